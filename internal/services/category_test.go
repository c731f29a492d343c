package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text     string
		expected Category
	}{
		{"restaurante casa pepe\nmenu del dia 12,50", CategoryRestaurants},
		{"estacion de servicio repsol\ngasoleo a 45,00", CategoryTransport},
		{"mercadona s.a.\nleche 0,89", CategorySupermarket},
		{"movistar fibra 600mb", CategoryUtilities},
		{"hotel miramar\n2 noches", CategoryLodging},
		{"honorarios asesoria fiscal", CategoryProfessional},
		{"ferreteria lopez\ntornillos", CategoryOther},
		// whole words only: "barcelona" is not a bar
		{"tienda barcelona", CategoryOther},
		// table order decides between categories
		{"bar del hotel", CategoryRestaurants},
	}

	for _, tc := range tests {
		t.Run(string(tc.expected)+"/"+tc.text, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.text))
		})
	}
}

func TestClassifierFromConfig(t *testing.T) {
	rules := RulesFromConfig([]models.CategoryConfig{
		{Name: "Material de oficina", Keywords: []string{"Papelería", "tóner"}},
		{Name: ""},
		{Name: "Vacío"},
		{Name: "Restauración", Keywords: []string{"bar"}},
	})
	assert.Len(t, rules, 3)

	c := NewClassifier(rules)
	assert.Equal(t, Category("Material de oficina"), c.Classify("papeleria central, toner hp"))
	assert.Equal(t, Category("Restauración"), c.Classify("bar manolo"))
	assert.Equal(t, CategoryOther, c.Classify("hotel miramar"))
}

func TestNewClassifierDefaults(t *testing.T) {
	assert.Equal(t, CategoryLodging, NewClassifier(nil).Classify("hostal el sol"))
}
