package services

import (
	"regexp"
	"strings"

	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

// Category is a coarse expense category
type Category string

const (
	CategoryRestaurants  Category = "Restauración"
	CategoryTransport    Category = "Transporte y combustible"
	CategorySupermarket  Category = "Supermercado"
	CategoryUtilities    Category = "Suministros y telecomunicaciones"
	CategoryLodging      Category = "Alojamiento"
	CategoryProfessional Category = "Servicios profesionales"
	CategoryOther        Category = "Otros"
)

// CategoryRule maps keywords (folded) to a category
type CategoryRule struct {
	Category Category
	Keywords []string
}

// DefaultCategoryRules is the built-in table, in priority order
var DefaultCategoryRules = []CategoryRule{
	{CategoryRestaurants, []string{"restaurante", "bar", "cafeteria", "meson", "taberna", "pizzeria", "hamburgueseria", "tapas", "menu del dia", "comida", "cena"}},
	{CategoryTransport, []string{"gasolinera", "gasolina", "gasoleo", "diesel", "carburante", "combustible", "repsol", "cepsa", "galp", "parking", "aparcamiento", "peaje", "taxi", "renfe", "autobus", "vuelo", "cabify", "uber"}},
	{CategorySupermarket, []string{"supermercado", "mercadona", "carrefour", "lidl", "aldi", "eroski", "alcampo", "hipercor", "hipermercado"}},
	{CategoryUtilities, []string{"telefonica", "movistar", "vodafone", "orange", "fibra", "internet", "telefono", "movil", "electricidad", "endesa", "iberdrola", "naturgy", "gas natural", "suministro"}},
	{CategoryLodging, []string{"hotel", "hostal", "alojamiento", "apartamento", "booking", "airbnb", "pension"}},
	{CategoryProfessional, []string{"asesoria", "gestoria", "consultoria", "abogado", "notaria", "honorarios", "servicios profesionales", "auditoria", "diseno"}},
}

type compiledRule struct {
	category Category
	pattern  *regexp.Regexp
}

// Classifier assigns the first category whose keywords appear in a text
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles rules; an empty table uses DefaultCategoryRules
func NewClassifier(rules []CategoryRule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultCategoryRules
	}
	c := &Classifier{}
	for _, r := range rules {
		var alts []string
		for _, k := range r.Keywords {
			if k = textnorm.Normalize(strings.TrimSpace(k)); k != "" {
				alts = append(alts, regexp.QuoteMeta(k))
			}
		}
		if len(alts) == 0 {
			continue
		}
		c.rules = append(c.rules, compiledRule{
			category: r.Category,
			pattern:  regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`),
		})
	}
	return c
}

// Classify returns the category of a folded text, CategoryOther when nothing matches
func (c *Classifier) Classify(folded string) Category {
	for _, r := range c.rules {
		if r.pattern.MatchString(folded) {
			return r.category
		}
	}
	return CategoryOther
}

var defaultClassifier = NewClassifier(nil)

// Classify uses the built-in table
func Classify(folded string) Category {
	return defaultClassifier.Classify(folded)
}

// RulesFromConfig converts the YAML category table, keeping its order
func RulesFromConfig(cfg []models.CategoryConfig) []CategoryRule {
	rules := make([]CategoryRule, 0, len(cfg))
	for _, c := range cfg {
		if c.Name == "" {
			continue
		}
		rules = append(rules, CategoryRule{Category: Category(c.Name), Keywords: c.Keywords})
	}
	return rules
}
