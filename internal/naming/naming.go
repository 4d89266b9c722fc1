// Package naming converts identifiers between naming conventions and
// recognizes which convention a string already follows.
package naming

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Convention is a naming convention such as snake_case or PascalCase.
type Convention string

const (
	Pascal     Convention = "pascal"
	Camel      Convention = "camel"
	Snake      Convention = "snake"
	Kebab      Convention = "kebab"
	UpperSnake Convention = "upper_snake"
	Unknown    Convention = "unknown"
)

// Conventions lists every concrete convention in guessing priority order.
var Conventions = []Convention{Pascal, Camel, Snake, Kebab, UpperSnake}

var tokenRe = regexp.MustCompile(`[A-Z]{2,}|[A-Z][a-z0-9]*|[a-z0-9]+`)

var conventionRe = map[Convention]*regexp.Regexp{
	Pascal:     regexp.MustCompile(`^[A-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)*$`),
	Camel:      regexp.MustCompile(`^[a-z][a-z0-9]*(?:[A-Z][a-z0-9]*)*$`),
	Snake:      regexp.MustCompile(`^[a-z][a-z0-9]*(?:_[a-z0-9]+)*$`),
	Kebab:      regexp.MustCompile(`^[a-z][a-z0-9]*(?:-[a-z0-9]+)*$`),
	UpperSnake: regexp.MustCompile(`^[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)*$`),
}

// ParseConvention validates a convention name from a manifest.
func ParseConvention(s string) (Convention, error) {
	c := Convention(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := conventionRe[c]; !ok {
		return "", fmt.Errorf("unknown naming convention %q (want one of pascal, camel, snake, kebab, upper_snake)", s)
	}
	return c, nil
}

// Tokenize splits s into words at case changes and at any run of
// non-alphanumeric characters. "thisIsHello-World_x" yields this, Is, Hello, World, x.
func Tokenize(s string) []string {
	return tokenRe.FindAllString(s, -1)
}

// ToPascal converts s to PascalCase.
func ToPascal(s string) string {
	var b strings.Builder
	for _, w := range Tokenize(s) {
		b.WriteString(capitalize(strings.ToLower(w)))
	}
	return b.String()
}

// ToCamel converts s to camelCase.
func ToCamel(s string) string {
	var b strings.Builder
	for i, w := range Tokenize(s) {
		w = strings.ToLower(w)
		if i > 0 {
			w = capitalize(w)
		}
		b.WriteString(w)
	}
	return b.String()
}

// ToSnake converts s to snake_case.
func ToSnake(s string) string {
	return join(s, "_", strings.ToLower)
}

// ToKebab converts s to kebab-case.
func ToKebab(s string) string {
	return join(s, "-", strings.ToLower)
}

// ToUpperSnake converts s to UPPER_SNAKE_CASE.
func ToUpperSnake(s string) string {
	return join(s, "_", strings.ToUpper)
}

// Convert rewrites s in convention c. Unknown conventions return s unchanged.
func Convert(s string, c Convention) string {
	switch c {
	case Pascal:
		return ToPascal(s)
	case Camel:
		return ToCamel(s)
	case Snake:
		return ToSnake(s)
	case Kebab:
		return ToKebab(s)
	case UpperSnake:
		return ToUpperSnake(s)
	default:
		return s
	}
}

// Guess reports the first convention s satisfies, in Conventions order.
// A single lowercase word such as "app" is reported as camel.
func Guess(s string) Convention {
	for _, c := range Conventions {
		if conventionRe[c].MatchString(s) {
			return c
		}
	}
	return Unknown
}

// Satisfies reports whether s is already written in convention c.
func Satisfies(s string, c Convention) bool {
	re, ok := conventionRe[c]
	return ok && re.MatchString(s)
}

var filters = map[string]func(string) string{
	"pascal":      ToPascal,
	"camel":       ToCamel,
	"snake":       ToSnake,
	"kebab":       ToKebab,
	"upper_snake": ToUpperSnake,
	"upper":       strings.ToUpper,
	"lower":       strings.ToLower,
}

// Filter returns the placeholder filter with the given name.
// The empty name is the identity filter.
func Filter(name string) (func(string) string, bool) {
	if name == "" {
		return func(s string) string { return s }, true
	}
	fn, ok := filters[name]
	return fn, ok
}

// FilterNames lists the supported placeholder filters, sorted.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func join(s, sep string, fn func(string) string) string {
	words := Tokenize(s)
	for i, w := range words {
		words[i] = fn(w)
	}
	return strings.Join(words, sep)
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
