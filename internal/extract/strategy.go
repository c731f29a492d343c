// Package extract pulls fiscal fields out of folded OCR text.
//
// Every field is described by an ordered list of strategies. Stricter
// patterns come first; the first strategy that matches wins.
package extract

import "regexp"

// Strategy is one pattern in a field's fallback chain
type Strategy struct {
	Name    string
	Pattern *regexp.Regexp
	// Last picks the last occurrence instead of the first (grand totals)
	Last bool
	// Accept optionally rejects a syntactic match
	Accept func(text string, m Match) bool
}

// Match is a successful strategy application
type Match struct {
	Strategy string
	Start    int
	End      int

	groups []string
	names  []string
}

// Group returns the named submatch, or "" when it did not participate
func (m Match) Group(name string) string {
	for i, n := range m.names {
		if n == name && i < len(m.groups) {
			return m.groups[i]
		}
	}
	return ""
}

// Value returns submatch 1, the conventional value slot
func (m Match) Value() string {
	if len(m.groups) > 1 {
		return m.groups[1]
	}
	return ""
}

// FirstMatch evaluates strategies in order and returns the first that matches
func FirstMatch(text string, strategies []Strategy) (Match, bool) {
	for _, s := range strategies {
		if m, ok := s.apply(text); ok {
			return m, true
		}
	}
	return Match{}, false
}

func (s Strategy) apply(text string) (Match, bool) {
	all := s.Pattern.FindAllStringSubmatchIndex(text, -1)
	if s.Last {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	for _, loc := range all {
		m := s.build(text, loc)
		if s.Accept == nil || s.Accept(text, m) {
			return m, true
		}
	}
	return Match{}, false
}

func (s Strategy) build(text string, loc []int) Match {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return Match{
		Strategy: s.Name,
		Start:    loc[0],
		End:      loc[1],
		groups:   groups,
		names:    s.Pattern.SubexpNames(),
	}
}
