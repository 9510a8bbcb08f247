// Package pricing maps a student's school level and group to meal prices.
//
// The resolver is a pure lookup: it never talks to external services. When
// a level or group is unrecognized it falls back to the most expensive
// tier, so a directory glitch can only ever overcharge, never undercharge.
package pricing

import (
	"strings"

	"github.com/xraph/mensa/types"
)

// Level is a school level as reported by the directory service.
type Level string

const (
	LevelInfantil    Level = "infantil"
	LevelFundamental Level = "fundamental"
	LevelMedio       Level = "medio"
)

// Price carries the two prices the engine needs for one student.
type Price struct {
	// Token is the price of one meal token bought via top-up.
	Token types.Money `json:"token"`
	// PeriodDay is the price of one valid day in a purchased free period.
	PeriodDay types.Money `json:"period_day"`
}

// prefixRule overrides the level price for groups whose name carries a
// known prefix (e.g. full-time "INT-" groups include an extra meal).
type prefixRule struct {
	prefix string
	price  Price
}

// Resolver answers price lookups for (level, group name) pairs.
type Resolver struct {
	tiers    map[Level]Price
	prefixes []prefixRule
	fallback Price
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTier sets or replaces the price for one level.
func WithTier(level Level, price Price) Option {
	return func(r *Resolver) { r.tiers[level] = price }
}

// WithGroupPrefix prices groups matching a name prefix regardless of level.
// Prefix matching is case-insensitive and checked before the level table.
func WithGroupPrefix(prefix string, price Price) Option {
	return func(r *Resolver) {
		r.prefixes = append(r.prefixes, prefixRule{prefix: strings.ToUpper(prefix), price: price})
	}
}

// NewResolver builds a Resolver with the standard tier table. Options
// override or extend it.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		tiers: map[Level]Price{
			LevelInfantil:    {Token: types.BRL(400), PeriodDay: types.BRL(350)},
			LevelFundamental: {Token: types.BRL(450), PeriodDay: types.BRL(400)},
			LevelMedio:       {Token: types.BRL(500), PeriodDay: types.BRL(450)},
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	r.fallback = r.highestTier()

	return r
}

// Resolve returns the price for a student. Unknown levels and groups get
// the fallback (highest) tier.
func (r *Resolver) Resolve(level Level, groupName string) Price {
	upper := strings.ToUpper(groupName)
	for _, rule := range r.prefixes {
		if strings.HasPrefix(upper, rule.prefix) {
			return rule.price
		}
	}

	if p, ok := r.tiers[Level(strings.ToLower(string(level)))]; ok {
		return p
	}

	return r.fallback
}

// Fallback returns the price applied when the student cannot be classified.
func (r *Resolver) Fallback() Price {
	return r.fallback
}

func (r *Resolver) highestTier() Price {
	var top Price
	first := true
	for _, p := range r.tiers {
		if first || p.Token.GreaterThan(top.Token) {
			top = p
			first = false
		}
	}

	return top
}
