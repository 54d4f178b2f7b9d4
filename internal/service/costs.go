package service

import (
	"math"

	"github.com/pesio-ai/be-sd-budget/internal/client"
)

// CostSourceInitial marks an estimate taken from the initial-cost field.
// Asset-based pricing is reserved; until it lands, "initial" is the only source.
const CostSourceInitial = "initial"

// ResolveEstimate extracts the declared estimated cost of an issue. A field
// that is missing, unparseable or exactly zero is treated as absent.
func ResolveEstimate(issue *client.Issue, estimatedCostField string) (cost float64, source string, ok bool) {
	value, present := issue.NumberField(estimatedCostField)
	if !present || value == 0 {
		return 0, "", false
	}
	return value, CostSourceInitial, true
}

// ResolveBaseCost sums the initial estimate and the internal labor cost,
// each defaulting to zero when absent. Never fails.
func ResolveBaseCost(issue *client.Issue, estimatedCostField, laborCostField string) float64 {
	initial, _ := issue.NumberField(estimatedCostField)
	labor, _ := issue.NumberField(laborCostField)
	return initial + labor
}

// round2 rounds to two decimal places, the precision of every reported cost
// and percentage.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
