package extract

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

var (
	paymentLabel = regexp.MustCompile(`(?:forma|metodo|medio|modo)\s+de\s+pago\s*[:.]?[ \t]*`)

	// paymentVocabulary is matched in order; the first whole word found names the method
	paymentVocabulary = []struct {
		pattern *regexp.Regexp
		method  string
	}{
		{vocabularyWord("domiciliacion"), "Domiciliación bancaria"},
		{vocabularyWord("transferencia"), "Transferencia bancaria"},
		{vocabularyWord("bizum"), "Bizum"},
		{vocabularyWord("paypal"), "PayPal"},
		{vocabularyWord("tarjeta"), "Tarjeta"},
		{vocabularyWord("visa"), "Tarjeta"},
		{vocabularyWord("mastercard"), "Tarjeta"},
		{vocabularyWord("contactless"), "Tarjeta"},
		{vocabularyWord("efectivo"), "Efectivo"},
		{vocabularyWord("contado"), "Efectivo"},
	}
)

func vocabularyWord(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
}

// ExtractPaymentMethod reads the labelled payment method, or the first
// known method mentioned anywhere in the text
func ExtractPaymentMethod(t textnorm.Text) (string, string, bool) {
	for i, l := range t.Lines() {
		loc := paymentLabel.FindStringIndex(l)
		if loc == nil {
			continue
		}
		value := l[loc[1]:]
		if m, ok := vocabularyMethod(value); ok {
			return m, "label", true
		}
		if v := strings.TrimSpace(t.OriginalFrom(i, loc[1])); v != "" {
			return v, "label", true
		}
	}

	if m, ok := vocabularyMethod(t.Folded); ok {
		return m, "vocabulary", true
	}
	return "", "", false
}

func vocabularyMethod(folded string) (string, bool) {
	for _, v := range paymentVocabulary {
		if v.pattern.MatchString(folded) {
			return v.method, true
		}
	}
	return "", false
}

var bankAccountStrategies = []Strategy{
	{
		Name:    "iban_label",
		Pattern: regexp.MustCompile(`iban[ \t]*[:.]?[ \t]*([a-z]{2}\d{2}(?:[ \t-]?[0-9a-z]{4}){4,7}(?:[ \t-]?[0-9a-z]{1,3})?)`),
	},
	{
		Name:    "iban",
		Pattern: regexp.MustCompile(`\b([a-z]{2}\d{2}(?:[ \t-]?\d{4}){5}(?:[ \t-]?\d{1,4})?)\b`),
		Accept:  validIBAN,
	},
	{
		Name:    "ccc",
		Pattern: regexp.MustCompile(`\b(\d{4}[ \t-]?\d{4}[ \t-]?\d{2}[ \t-]?\d{10})\b`),
	},
}

// ExtractBankAccount finds an IBAN (or a Spanish CCC) and regroups it
// every four characters
func ExtractBankAccount(folded string) (string, string, bool) {
	m, ok := FirstMatch(folded, bankAccountStrategies)
	if !ok {
		return "", "", false
	}
	raw := compactAccount(m.Value())
	if m.Strategy != "ccc" {
		raw = trimIBAN(raw)
	}
	return GroupByFour(raw), m.Strategy, true
}

// GroupByFour formats an account number with a space every four characters
func GroupByFour(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func compactAccount(s string) string {
	s = strings.NewReplacer(" ", "", "\t", "", "-", "").Replace(s)
	return strings.ToUpper(s)
}

// ibanLength lists the countries whose IBAN length is fixed and commonly
// seen on Spanish invoices
var ibanLength = map[string]int{
	"ES": 24, "PT": 25, "FR": 27, "DE": 22, "IT": 27, "NL": 18, "BE": 16, "GB": 22, "IE": 22, "LU": 20,
}

// trimIBAN cuts trailing characters the pattern swallowed beyond the
// country's IBAN length
func trimIBAN(s string) string {
	if n, ok := ibanLength[s[:2]]; ok && len(s) > n {
		return s[:n]
	}
	return s
}

func validIBAN(_ string, m Match) bool {
	return IBANChecksumOK(trimIBAN(compactAccount(m.Value())))
}

// IBANChecksumOK runs the ISO 13616 mod-97 check
func IBANChecksumOK(iban string) bool {
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			digits.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
