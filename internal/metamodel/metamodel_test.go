package metamodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/metamodel"
)

func TestDefaultTraits(t *testing.T) {
	mm := metamodel.Default()

	assert.True(t, mm.HasTrait(graph.TypeStock, metamodel.TraitStock))
	assert.True(t, mm.HasTrait(graph.TypeStock, metamodel.TraitFormula))
	assert.True(t, mm.HasTrait(graph.TypeStock, metamodel.TraitNamed))
	assert.False(t, mm.HasTrait(graph.TypeStock, metamodel.TraitDelay))

	assert.True(t, mm.HasTrait(graph.TypeDelay, metamodel.TraitDelay))
	assert.False(t, mm.HasTrait(graph.TypeDelay, metamodel.TraitFormula))
}

func TestCardinalityAllows(t *testing.T) {
	assert.True(t, metamodel.CardinalityMany.Allows(0))
	assert.True(t, metamodel.CardinalityMany.Allows(500))

	assert.True(t, metamodel.CardinalityOne.Allows(0))
	assert.True(t, metamodel.CardinalityOne.Allows(1))
	assert.False(t, metamodel.CardinalityOne.Allows(2))
}

func TestPredicateComposition(t *testing.T) {
	traits := map[string]bool{metamodel.TraitFormula: true}

	or := metamodel.Or(metamodel.IsType(graph.TypeStock), metamodel.HasTrait(metamodel.TraitFormula))
	assert.True(t, or.Matches(graph.TypeAuxiliary, traits))
	assert.True(t, or.Matches(graph.TypeStock, nil))
	assert.False(t, or.Matches(graph.TypeDelay, nil))

	and := metamodel.And(metamodel.IsType(graph.TypeStock), metamodel.HasTrait(metamodel.TraitFormula))
	assert.False(t, and.Matches(graph.TypeAuxiliary, traits))
	assert.False(t, and.Matches(graph.TypeStock, nil))
}

func TestRulesForFlowCoversBothDrainAndFillShapes(t *testing.T) {
	mm := metamodel.Default()
	rules := mm.RulesFor(graph.TypeFlow)
	assert.Len(t, rules, 2)

	var sawStockOrigin, sawFlowRateOrigin bool
	for _, r := range rules {
		if r.OriginPredicate.Matches(graph.TypeStock, mm.Traits(graph.TypeStock)) {
			sawStockOrigin = true
		}
		if r.OriginPredicate.Matches(graph.TypeFlowRate, mm.Traits(graph.TypeFlowRate)) {
			sawFlowRateOrigin = true
		}
	}
	assert.True(t, sawStockOrigin)
	assert.True(t, sawFlowRateOrigin)
}
