// Package rules holds the ordered business checks every transaction must pass
// before it is settled.
package rules

import (
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
)

// Evaluation is the state a single transaction carries through the chain.
type Evaluation struct {
	Position    int                // index of the transaction in the input
	Transaction models.Transaction // transaction under evaluation
	User        *models.User       // resolved owner, nil until the user rule passes
}

// Rule is one named predicate with the reason reported when it fails.
type Rule struct {
	Name   string
	Reason string
	Check  func(ev *Evaluation) bool
}

// Chain is an ordered list of rules; order is precedence.
type Chain []Rule

// Evaluate runs the rules left to right and stops at the first failing one.
// It returns the failed rule and false, or a zero Rule and true when all pass.
func (c Chain) Evaluate(ev *Evaluation) (Rule, bool) {
	for _, r := range c {
		if !r.Check(ev) {
			return r, false
		}
	}
	return Rule{}, true
}

// Names lists rule names in precedence order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, r := range c {
		names[i] = r.Name
	}
	return names
}
