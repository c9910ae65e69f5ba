// Package categorize maps sold products to the shop's product groups.
package categorize

import (
	"strings"

	"posdash/internal/domain"
)

const (
	CrushedIce = "🧊 ป่น (Crushed Ice)"
	SmallTube  = "🧊 หลอดเล็ก (Small Tube)"
	LargeTube  = "🧊 หลอดใหญ่ (Large Tube)"
	Other      = "📦 อื่นๆ (Other)"
)

// Rule assigns Category when the lower-cased product name contains every
// keyword of any one of AnyOf.
type Rule struct {
	Category string
	AnyOf    [][]string
}

func (r Rule) matches(name string) bool {
	for _, group := range r.AnyOf {
		hit := len(group) > 0
		for _, kw := range group {
			if !strings.Contains(name, strings.ToLower(kw)) {
				hit = false
				break
			}
		}
		if hit {
			return true
		}
	}
	return false
}

// DefaultRules are checked in order; the first match wins.
var DefaultRules = []Rule{
	{Category: CrushedIce, AnyOf: [][]string{{"ป่น"}}},
	{Category: SmallTube, AnyOf: [][]string{{"หลอดเล็ก"}, {"หลอด", "เล็ก"}}},
	{Category: LargeTube, AnyOf: [][]string{{"หลอดใหญ่"}, {"หลอด", "ใหญ่"}}},
}

// Categorizer resolves a product's group: an override by item id first, then
// an override by product name, then the keyword rules, then Other.
type Categorizer struct {
	rules    []Rule
	fallback string
	byItem   map[string]string
	byName   map[string]string
}

func New(rules []Rule, overrides []domain.ManualCategory) *Categorizer {
	if rules == nil {
		rules = DefaultRules
	}
	c := &Categorizer{
		rules:    rules,
		fallback: Other,
		byItem:   make(map[string]string),
		byName:   make(map[string]string),
	}
	for _, o := range overrides {
		category := strings.TrimSpace(o.Category)
		if category == "" {
			continue
		}
		if id := strings.TrimSpace(o.ItemID); id != "" {
			c.byItem[id] = category
			continue
		}
		if name := strings.TrimSpace(o.ProductName); name != "" {
			c.byName[name] = category
		}
	}
	return c
}

func (c *Categorizer) Category(itemID string, productName string) string {
	if category, ok := c.byItem[strings.TrimSpace(itemID)]; ok {
		return category
	}
	name := strings.TrimSpace(productName)
	if name == "" {
		return c.fallback
	}
	if category, ok := c.byName[name]; ok {
		return category
	}
	lower := strings.ToLower(name)
	for _, rule := range c.rules {
		if rule.matches(lower) {
			return rule.Category
		}
	}
	return c.fallback
}

// Categories lists the rule categories followed by Other, for pickers.
func (c *Categorizer) Categories() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.Category)
	}
	return append(out, c.fallback)
}
