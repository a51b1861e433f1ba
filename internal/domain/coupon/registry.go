package coupon

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is a Registry backed by an in-process table, populated from
// configuration at startup.
type MemoryRegistry struct {
	rules map[string]Rule
}

// NewMemoryRegistry builds a registry from configured rules. Codes are
// stored upper-cased so lookups are case-insensitive.
func NewMemoryRegistry(rules []Rule) *MemoryRegistry {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		m[strings.ToUpper(r.Code)] = r
	}
	return &MemoryRegistry{rules: m}
}

// NewMemoryRegistryFromMap builds a registry from a code -> discount amount
// mapping, the shape the configuration file uses.
func NewMemoryRegistryFromMap(codes map[string]decimal.Decimal) *MemoryRegistry {
	rules := make([]Rule, 0, len(codes))
	for code, discount := range codes {
		rules = append(rules, Rule{Code: code, Discount: discount})
	}
	return NewMemoryRegistry(rules)
}

// FindByCode looks up a rule by code, ignoring case.
// Returns ErrInvalidCode when no rule matches.
func (r *MemoryRegistry) FindByCode(_ context.Context, code string) (*Rule, error) {
	rule, ok := r.rules[strings.ToUpper(code)]
	if !ok {
		return nil, ErrInvalidCode
	}
	return &rule, nil
}
