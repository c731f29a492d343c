// Package textnorm folds OCR text for matching and parses Spanish-formatted numbers.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Text keeps the original OCR text next to its folded form.
// Both have the same line structure, so a line index found in Folded
// addresses the same line in Original.
type Text struct {
	Original string
	Folded   string

	lines         []string
	originalLines []string
}

// New builds a Text from raw OCR output
func New(raw string) Text {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	folded := Normalize(raw)
	return Text{
		Original:      raw,
		Folded:        folded,
		lines:         strings.Split(folded, "\n"),
		originalLines: strings.Split(raw, "\n"),
	}
}

// Lines returns the folded lines
func (t Text) Lines() []string {
	return t.lines
}

// OriginalLine returns line i of the original text, trimmed
func (t Text) OriginalLine(i int) string {
	if i < 0 || i >= len(t.originalLines) {
		return ""
	}
	return strings.TrimSpace(t.originalLines[i])
}

// OriginalFrom returns line i of the original text starting at the
// position that corresponds to byte offset off in the folded line.
// When folding changed the rune count of the line, the text after the
// first colon is returned instead.
func (t Text) OriginalFrom(i, off int) string {
	if i < 0 || i >= len(t.originalLines) || i >= len(t.lines) {
		return ""
	}
	folded, orig := t.lines[i], t.originalLines[i]
	if off <= 0 {
		return strings.TrimSpace(orig)
	}
	if off > len(folded) {
		return ""
	}

	if utf8.RuneCountInString(folded) != utf8.RuneCountInString(orig) {
		if _, after, ok := strings.Cut(orig, ":"); ok {
			return strings.TrimSpace(after)
		}
		return strings.TrimSpace(orig)
	}
	n := utf8.RuneCountInString(folded[:off])
	return strings.TrimSpace(string([]rune(orig)[n:]))
}

// LineAt returns the index of the folded line containing byte offset off
func (t Text) LineAt(off int) int {
	if off <= 0 {
		return 0
	}
	if off > len(t.Folded) {
		off = len(t.Folded)
	}
	return strings.Count(t.Folded[:off], "\n")
}

// IsEmpty reports whether the text carries nothing but whitespace
func (t Text) IsEmpty() bool {
	return strings.TrimSpace(t.Folded) == ""
}

// Contains reports whether the folded text contains any of the keywords
func (t Text) Contains(keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(t.Folded, k) {
			return true
		}
	}
	return false
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// Normalize lower-cases s and removes diacritics (NFD, drop combining marks).
// Newlines are kept as-is.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	return strings.ToLower(result)
}

var currencyNoise = regexp.MustCompile(`(?i)[€$£\s]|eur(os)?`)

// ParseLocaleNumber converts a Spanish-formatted number ("1.234,56", "45,90", "100")
// to a decimal. It returns false on malformed input instead of failing.
func ParseLocaleNumber(s string) (decimal.Decimal, bool) {
	cleaned := currencyNoise.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero, false
	}

	switch {
	case strings.Contains(cleaned, ".") && strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatLocale renders d with two decimals in Spanish notation ("1.234,56")
func FormatLocale(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}
