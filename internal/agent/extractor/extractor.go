// Package extractor maps free-text operator messages to an intent and its
// entities using an ordered rule table. Extraction depends on the text alone.
package extractor

import (
	"cloudops-agent/internal/models"
)

// DefaultFlavors is the flavor token set used when none is configured.
var DefaultFlavors = []string{"S.4", "M.8"}

type Extractor struct {
	rules   []Rule
	flavors []string
}

// New builds an extractor over the given flavor set. With no rules it uses DefaultRules.
func New(flavors []string, rules ...Rule) *Extractor {
	if len(flavors) == 0 {
		flavors = DefaultFlavors
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules, flavors: flavors}
}

// Extract returns the intent of the first matching rule and its entities.
// No match yields IntentUnknown with an empty entity set.
func (e *Extractor) Extract(text string) (models.Intent, models.EntitySet) {
	m := newMessage(text, e.flavors)
	for _, rule := range e.rules {
		if rule.Match(m) {
			entities := rule.Extract(m)
			if entities == nil {
				entities = models.EntitySet{}
			}
			return rule.Intent, entities
		}
	}
	return models.IntentUnknown, models.EntitySet{}
}

// Rules returns a copy of the rule table in evaluation order.
func (e *Extractor) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
