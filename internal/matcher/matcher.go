// Package matcher extracts candidate names from meeting titles and verifies
// them against CRM records.
package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const ideographicSpace = "　"

// honorifics are trailing forms of address stripped before comparison.
var honorifics = []string{"様", "さま", "さん", "氏", "殿", "くん", "ちゃん"}

// nameSeparators are characters CRM users commonly place between family and
// given names.
var nameSeparators = []string{" ", ideographicSpace, "・", "･", ".", "·"}

// Matcher isolates a name from a title and performs exact-match checks.
// The zero value is not usable; construct with New.
type Matcher struct {
	pattern *regexp.Regexp
}

// New compiles titlePattern. An empty pattern means the whole title is the
// name. If the pattern has a group named "name" it is used, otherwise the
// first capture group, otherwise the whole match.
func New(titlePattern string) (*Matcher, error) {
	m := &Matcher{}
	if strings.TrimSpace(titlePattern) == "" {
		return m, nil
	}
	re, err := regexp.Compile(titlePattern)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: compile title pattern %q", titlePattern)
	}
	m.pattern = re
	return m, nil
}

// ExtractName returns the candidate name embedded in title, or false when the
// pattern does not match or yields an empty name.
func (m *Matcher) ExtractName(title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false
	}
	if m.pattern == nil {
		return title, true
	}

	sub := m.pattern.FindStringSubmatch(title)
	if sub == nil {
		return "", false
	}

	name := sub[0]
	if idx := m.pattern.SubexpIndex("name"); idx > 0 {
		name = sub[idx]
	} else if len(sub) > 1 {
		name = sub[1]
	}

	name = strings.TrimSpace(name)
	return name, name != ""
}

// Variants returns spacing and punctuation variants of name, starting with
// the name itself. The result is de-duplicated and deterministic.
func (m *Matcher) Variants(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	add(name)
	add(norm.NFKC.String(name))

	base := stripHonorific(name)
	add(base)

	parts := splitName(base)
	if len(parts) > 1 {
		for _, sep := range nameSeparators {
			add(strings.Join(parts, sep))
		}
		add(strings.Join(parts, ""))
	} else if isCJKName(base) {
		// Unspaced CJK names are often stored with a space between family
		// and given name; try every split point.
		runes := []rune(base)
		for i := 1; i < len(runes); i++ {
			add(string(runes[:i]) + " " + string(runes[i:]))
			add(string(runes[:i]) + ideographicSpace + string(runes[i:]))
		}
	}

	return out
}

// IsExactMatch reports whether extracted and candidate denote the same name
// once whitespace, punctuation, width and case differences are removed.
// When preExtracted is false, extracted is treated as a raw title and the
// name is pulled out of it first.
func (m *Matcher) IsExactMatch(extracted, candidate string, preExtracted bool) bool {
	if !preExtracted {
		name, ok := m.ExtractName(extracted)
		if !ok {
			return false
		}
		extracted = name
	}

	a := Normalize(extracted)
	b := Normalize(candidate)
	return a != "" && a == b
}

// Occurrences counts how often name appears in title after normalization.
func (m *Matcher) Occurrences(title, name string) int {
	n := Normalize(name)
	if n == "" {
		return 0
	}
	return strings.Count(Normalize(title), n)
}

// Normalize folds width and case, drops honorifics, and strips whitespace
// and punctuation.
func Normalize(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = stripHonorific(s)
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripHonorific(s string) string {
	s = strings.TrimSpace(s)
	for _, h := range honorifics {
		if strings.HasSuffix(s, h) && len(s) > len(h) {
			return strings.TrimSpace(strings.TrimSuffix(s, h))
		}
	}
	return s
}

func splitName(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '・' || r == '･' || r == '·' || r == '.'
	})
}

func isCJKName(s string) bool {
	runes := []rune(s)
	if len(runes) < 3 || len(runes) > 6 {
		return false
	}
	for _, r := range runes {
		if !unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return false
		}
	}
	return true
}
