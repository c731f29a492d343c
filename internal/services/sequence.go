package services

import (
	"regexp"
	"strconv"
	"strings"
)

// Convention is an invoice numbering family
type Convention string

const (
	ConventionUnknown      Convention = "unknown"
	ConventionNumeric      Convention = "numeric"       // 123
	ConventionLetterDash   Convention = "letter_dash"   // F-123
	ConventionLetterPrefix Convention = "letter_prefix" // F123
	ConventionYearNumber   Convention = "year_number"   // 2025/007
	ConventionSeriesYear   Convention = "series_year"   // F-2025/007
)

type conventionPattern struct {
	convention Convention
	pattern    *regexp.Regexp
}

// Checked in order; year-based shapes before the plain ones they contain
var conventions = []conventionPattern{
	{ConventionSeriesYear, regexp.MustCompile(`^([A-Z]+)-(\d{4})/(\d+)$`)},
	{ConventionYearNumber, regexp.MustCompile(`^()(\d{4})/(\d+)$`)},
	{ConventionLetterDash, regexp.MustCompile(`^([A-Z]+)-(\d+)$`)},
	{ConventionLetterPrefix, regexp.MustCompile(`^([A-Z]+)(\d+)$`)},
	{ConventionNumeric, regexp.MustCompile(`^()(\d+)$`)},
}

// invoiceNumber is a number split along its convention
type invoiceNumber struct {
	convention Convention
	prefix     string
	year       int64
	seq        int64
}

// DetectConvention reports which numbering family n belongs to
func DetectConvention(n string) Convention {
	parsed, ok := parseInvoiceNumber(n)
	if !ok {
		return ConventionUnknown
	}
	return parsed.convention
}

// IsSequential reports whether newNumber directly follows lastNumber.
// Numbers that do not share a known convention cannot be disproved and
// count as sequential.
func IsSequential(newNumber, lastNumber string) bool {
	n, ok := parseInvoiceNumber(newNumber)
	if !ok {
		return true
	}
	l, ok := parseInvoiceNumber(lastNumber)
	if !ok || n.convention != l.convention {
		return true
	}

	switch n.convention {
	case ConventionSeriesYear, ConventionYearNumber:
		if n.prefix != l.prefix {
			return true
		}
		switch {
		case n.year == l.year:
			return n.seq == l.seq+1
		case n.year == l.year+1:
			// yearly reset
			return n.seq == 1
		default:
			return false
		}
	case ConventionLetterDash, ConventionLetterPrefix:
		if n.prefix != l.prefix {
			// another series
			return true
		}
		return n.seq == l.seq+1
	default:
		return n.seq == l.seq+1
	}
}

func parseInvoiceNumber(s string) (invoiceNumber, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return invoiceNumber{}, false
	}

	for _, c := range conventions {
		m := c.pattern.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		num := invoiceNumber{convention: c.convention, prefix: m[1]}
		seqText := m[len(m)-1]
		if len(m) == 4 {
			year, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				return invoiceNumber{}, false
			}
			num.year = year
		}
		seq, err := strconv.ParseInt(seqText, 10, 64)
		if err != nil {
			// too long to be a counter
			return invoiceNumber{}, false
		}
		num.seq = seq
		return num, true
	}
	return invoiceNumber{}, false
}
