package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is one occurrence of open NAME [| filter] close in a path or file body.
type Placeholder struct {
	Name   string
	Filter string
	Start  int
	End    int
}

// Syntax scans and expands placeholders for one pair of delimiters.
type Syntax struct {
	delims Delimiters
	re     *regexp.Regexp
}

// NewSyntax compiles the placeholder pattern for d.
// Delimiters must be non-empty and must not contain path separators.
func NewSyntax(d Delimiters) (*Syntax, error) {
	if strings.TrimSpace(d.Open) == "" || strings.TrimSpace(d.Close) == "" {
		return nil, fmt.Errorf("delimiters must be non-empty")
	}
	if strings.ContainsAny(d.Open+d.Close, `/\`) {
		return nil, fmt.Errorf("delimiters must not contain path separators")
	}
	re, err := regexp.Compile(regexp.QuoteMeta(d.Open) +
		`\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\|\s*([A-Za-z_][A-Za-z0-9_]*)\s*)?` +
		regexp.QuoteMeta(d.Close))
	if err != nil {
		return nil, err
	}
	return &Syntax{delims: d, re: re}, nil
}

// Delimiters returns the delimiters this syntax was compiled for.
func (s *Syntax) Delimiters() Delimiters {
	return s.delims
}

// Scan returns every placeholder in text, in order of appearance.
func (s *Syntax) Scan(text string) []Placeholder {
	matches := s.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		p := Placeholder{Name: text[m[2]:m[3]], Start: m[0], End: m[1]}
		if m[4] >= 0 {
			p.Filter = text[m[4]:m[5]]
		}
		out = append(out, p)
	}
	return out
}

// Expand replaces every placeholder in text with the value returned by
// lookup. The first lookup error aborts expansion.
func (s *Syntax) Expand(text string, lookup func(p Placeholder) (string, error)) (string, error) {
	placeholders := s.Scan(text)
	if len(placeholders) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, p := range placeholders {
		value, err := lookup(p)
		if err != nil {
			return "", err
		}
		b.WriteString(text[last:p.Start])
		b.WriteString(value)
		last = p.End
	}
	b.WriteString(text[last:])
	return b.String(), nil
}
