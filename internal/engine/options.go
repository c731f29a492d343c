package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facturaIA/fiscal-extractor/internal/services"
)

// Clock isolates the wall clock. It is only read for fallbacks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant
type FixedClock time.Time

// Now implements Clock
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger used for debug traces
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTolerances sets the mismatch and override thresholds of the consistency check
func WithTolerances(tolerance, overrideThreshold float64) Option {
	return func(e *Engine) {
		e.validator = services.NewTaxValidatorWithTolerances(tolerance, overrideThreshold)
	}
}

// WithCategories replaces the category keyword table
func WithCategories(rules []services.CategoryRule) Option {
	return func(e *Engine) {
		e.classifier = services.NewClassifier(rules)
	}
}

// WithTaxDefaults sets the rates assumed when a document omits them.
// Zero rates keep the defaults.
func WithTaxDefaults(d services.TaxDefaults) Option {
	return func(e *Engine) {
		if d.VATRate > 0 {
			e.defaults.VATRate = d.VATRate
		}
		if d.IRPFRate > 0 {
			e.defaults.IRPFRate = d.IRPFRate
		}
	}
}
