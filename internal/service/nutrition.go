package service

import (
	"fmt"

	"github.com/kondateapp/backend/internal/models"
)

// IngredientQuery is one free-text ingredient line awaiting resolution.
type IngredientQuery struct {
	Name    string
	AmountG float64
	Note    string
}

// MatchMethod tags which cascade tier produced a match.
type MatchMethod string

const (
	MatchMethodExact    MatchMethod = "exact"
	MatchMethodFuzzy    MatchMethod = "fuzzy"
	MatchMethodSemantic MatchMethod = "semantic"
)

// IngredientMatch is the immutable result of resolving one query.
// Reference is nil when the cascade found nothing; Skip marks water-like
// ingredients excluded from nutrient math by convention.
type IngredientMatch struct {
	Query      IngredientQuery
	Reference  *models.ReferenceFood
	Similarity float64
	Method     MatchMethod
	Skip       bool
}

// Resolved reports whether the match contributes nutrients.
func (m IngredientMatch) Resolved() bool {
	return !m.Skip && m.Reference != nil
}

// Aggregate sums scaled per-100g reference vectors over an ingredient
// list. Unresolved and skipped ingredients contribute nothing, so the
// result is independent of list order.
func Aggregate(matches []IngredientMatch) models.NutrientVector {
	var totals models.NutrientVector
	for _, m := range matches {
		if !m.Resolved() {
			continue
		}
		totals.AddScaled(m.Reference.Nutrients, m.Query.AmountG/100.0)
	}
	return totals
}

// MappingRate is the fraction of non-skipped ingredients that resolved.
// A list with no non-skipped ingredients maps perfectly by definition.
func MappingRate(matches []IngredientMatch) float64 {
	var total, resolved int
	for _, m := range matches {
		if m.Skip {
			continue
		}
		total++
		if m.Reference != nil {
			resolved++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(resolved) / float64(total)
}

// MinMappingRate is the mapping rate below which a meal carries a
// warning. The meal is still accepted; a low rate signals lookup-quality
// drift, not a generation failure.
const MinMappingRate = 0.85

// energyFloorsKcal are per-role plausibility floors. A dish whose
// aggregated energy falls below its role's floor is flagged for the
// orchestrator to consider regenerating, never silently corrected.
var energyFloorsKcal = map[models.DishRole]float64{
	models.DishRoleMain: 100,
	models.DishRoleRice: 100,
	models.DishRoleSide: 30,
	models.DishRoleSoup: 20,
}

// CheckNutrientFloor returns a warning string when totals fall below the
// role's plausibility floor, and "" otherwise.
func CheckNutrientFloor(role models.DishRole, totals models.NutrientVector) string {
	floor, ok := energyFloorsKcal[role]
	if !ok {
		return ""
	}
	if totals.EnergyKcal < floor {
		return fmt.Sprintf("%s dish below %gkcal floor (got %.1fkcal)", role, floor, totals.EnergyKcal)
	}
	return ""
}
