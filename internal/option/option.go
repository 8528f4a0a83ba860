// Package option holds the label/value pairs that back every multi-select
// field in the console, plus helpers to build and order them.
package option

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Wildcard is the option value that stands for "everything" in a selector.
const Wildcard = "*"

// Option is a single selectable entry.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// New returns an option whose label and value are the same string.
func New(v string) Option {
	return Option{Label: v, Value: v}
}

// IsWildcard reports whether o is the wildcard option.
func (o Option) IsWildcard() bool {
	return o.Value == Wildcard
}

// HasWildcard reports whether any entry of opts is the wildcard option.
func HasWildcard(opts []Option) bool {
	for _, o := range opts {
		if o.IsWildcard() {
			return true
		}
	}
	return false
}

// Values returns the values of opts in order.
func Values(opts []Option) []string {
	values := make([]string, 0, len(opts))
	for _, o := range opts {
		values = append(values, o.Value)
	}
	return values
}

// Join comma-joins the values of opts.
func Join(opts []Option) string {
	return strings.Join(Values(opts), ",")
}

// Split is the inverse of Join. Empty segments are skipped.
func Split(s string) []string {
	if s == "" {
		return nil
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// ConvertToOptionsList projects items into options using the given accessors.
func ConvertToOptionsList[T any](items []T, label, value func(T) string) []Option {
	opts := make([]Option, 0, len(items))
	for _, item := range items {
		opts = append(opts, Option{Label: label(item), Value: value(item)})
	}
	return opts
}

// SortAlphabetically sorts items in place by key using English collation,
// so "alpha", "Beta" and "gamma" come out in dictionary order regardless of case.
func SortAlphabetically[T any](items []T, key func(T) string) {
	c := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(key(items[i]), key(items[j])) < 0
	})
}
