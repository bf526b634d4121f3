package shopping

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-planner/internal/planner"
	"meal-planner/internal/recipe"
)

type mockCatalog map[string]recipe.Recipe

func (m mockCatalog) Get(id string) (recipe.Recipe, bool) {
	rec, ok := m[id]
	return rec, ok
}

func qty(v float64) *float64 { return &v }

func entry(id string, servings float64, options ...string) planner.Entry {
	flags := map[string]bool{}
	for _, label := range options {
		flags[label] = true
	}
	return planner.Entry{RecipeID: id, Servings: servings, Options: flags}
}

func TestResolve(t *testing.T) {
	t.Run("PerPerson", func(t *testing.T) {
		q := Resolve(recipe.IngredientLine{Name: "riz", PerPersonQuantity: qty(80)}, 3, 4)
		require.NotNil(t, q)
		assert.Equal(t, 240.0, *q)
	})

	t.Run("AbsoluteScalesWithBase", func(t *testing.T) {
		q := Resolve(recipe.IngredientLine{Name: "carotte", AbsoluteQuantity: qty(200)}, 2, 4)
		require.NotNil(t, q)
		assert.Equal(t, 100.0, *q)
	})

	t.Run("AbsoluteWithoutBase", func(t *testing.T) {
		q := Resolve(recipe.IngredientLine{Name: "carotte", AbsoluteQuantity: qty(200)}, 5, 0)
		require.NotNil(t, q)
		assert.Equal(t, 200.0, *q)
	})

	t.Run("PerPersonWinsOverAbsolute", func(t *testing.T) {
		q := Resolve(recipe.IngredientLine{Name: "x", PerPersonQuantity: qty(1), AbsoluteQuantity: qty(50)}, 3, 2)
		require.NotNil(t, q)
		assert.Equal(t, 3.0, *q)
	})

	t.Run("FractionalServings", func(t *testing.T) {
		q := Resolve(recipe.IngredientLine{Name: "lait", PerPersonQuantity: qty(100)}, 1.5, 0)
		require.NotNil(t, q)
		assert.Equal(t, 150.0, *q)
	})

	t.Run("NoQuantity", func(t *testing.T) {
		assert.Nil(t, Resolve(recipe.IngredientLine{Name: "sel"}, 4, 2))
	})
}

func TestAggregate(t *testing.T) {
	catalog := mockCatalog{
		"soupe": {
			ID:           "soupe",
			ServingsBase: 4,
			Ingredients: recipe.Groups{
				{Label: "legumes", Lines: []recipe.IngredientLine{{Name: "carrot", Unit: "g", AbsoluteQuantity: qty(200)}}},
				{Label: "base", Lines: []recipe.IngredientLine{{Name: "salt", Unit: "g", PerPersonQuantity: qty(1)}}},
			},
		},
		"tarte": {
			ID: "tarte",
			Ingredients: recipe.Groups{
				{Label: "base", Lines: []recipe.IngredientLine{
					{Name: "salt", Unit: "g", PerPersonQuantity: qty(1)},
					{Name: "sel"},
				}},
			},
			Options: recipe.Groups{
				{Label: "creme", Lines: []recipe.IngredientLine{{Name: "creme", Unit: "ml", AbsoluteQuantity: qty(20)}}},
			},
		},
	}

	t.Run("AbsoluteQuantityScaled", func(t *testing.T) {
		ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("soupe", 2)}}, catalog)
		assert.Equal(t, Ledger{
			{Name: "carrot", Unit: "g", Quantity: qty(100)},
			{Name: "salt", Unit: "g", Quantity: qty(2)},
		}, ledger)
	})

	t.Run("SameKeyAcrossRecipesIsSummed", func(t *testing.T) {
		ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("soupe", 2), entry("tarte", 3)}}, catalog)
		var salt *Line
		for i := range ledger {
			if ledger[i].Name == "salt" {
				salt = &ledger[i]
			}
		}
		require.NotNil(t, salt)
		assert.Equal(t, 5.0, *salt.Quantity)
	})

	t.Run("NameOnlyLineIsKept", func(t *testing.T) {
		ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("tarte", 1)}}, catalog)
		assert.Contains(t, ledger, Line{Name: "sel", Unit: "", Quantity: nil})
		assert.Equal(t, "salt - 1 g\nsel", ledger.Text())
	})

	t.Run("OptionalGroupOnlyWhenEnabled", func(t *testing.T) {
		off := Aggregate(planner.Plan{Items: []planner.Entry{entry("tarte", 2)}}, catalog)
		for _, line := range off {
			assert.NotEqual(t, "creme", line.Name)
		}

		on := Aggregate(planner.Plan{Items: []planner.Entry{entry("tarte", 2, "creme")}}, catalog)
		assert.Equal(t, Line{Name: "creme", Unit: "ml", Quantity: qty(20)}, on[0])
	})

	t.Run("DanglingEntrySkipped", func(t *testing.T) {
		ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("disparue", 2), entry("soupe", 4)}}, catalog)
		assert.Len(t, ledger, 2)
	})

	t.Run("EmptyPlan", func(t *testing.T) {
		ledger := Aggregate(planner.Plan{}, catalog)
		assert.Empty(t, ledger)
		assert.Equal(t, "", ledger.Text())
	})

	t.Run("ServingsFallBackToBase", func(t *testing.T) {
		ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("soupe", 0)}}, catalog)
		assert.Equal(t, 200.0, *ledger[0].Quantity)
	})

	t.Run("Idempotent", func(t *testing.T) {
		plan := planner.Plan{Items: []planner.Entry{entry("soupe", 3), entry("tarte", 2, "creme")}}
		assert.Equal(t, Aggregate(plan, catalog), Aggregate(plan, catalog))
	})
}

func TestAggregateKeepsCaseSensitiveNames(t *testing.T) {
	catalog := mockCatalog{
		"a": {ID: "a", Ingredients: recipe.Groups{{Label: "l", Lines: []recipe.IngredientLine{{Name: "Carotte", Unit: "g", PerPersonQuantity: qty(50)}}}}},
		"b": {ID: "b", Ingredients: recipe.Groups{{Label: "l", Lines: []recipe.IngredientLine{{Name: "carotte", Unit: "g", PerPersonQuantity: qty(50)}}}}},
	}
	ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("a", 1), entry("b", 1)}}, catalog)

	require.Len(t, ledger, 2)
	assert.Equal(t, "Carotte", ledger[0].Name)
	assert.Equal(t, "carotte", ledger[1].Name)
}

func TestAggregateSortsByNameThenUnit(t *testing.T) {
	catalog := mockCatalog{
		"a": {ID: "a", Ingredients: recipe.Groups{{Label: "l", Lines: []recipe.IngredientLine{
			{Name: "oeuf", Unit: "piece", AbsoluteQuantity: qty(2)},
			{Name: "beurre", Unit: "g", AbsoluteQuantity: qty(30)},
			{Name: "beurre", Unit: "cuillere", AbsoluteQuantity: qty(1)},
		}}}},
	}
	ledger := Aggregate(planner.Plan{Items: []planner.Entry{entry("a", 1)}}, catalog)
	assert.Equal(t, []string{"beurre - 1 cuillere", "beurre - 30 g", "oeuf - 2 piece"}, ledger.Strings())
}

func TestMergeIsOrderIndependent(t *testing.T) {
	key := Key{Name: "sel", Unit: "g"}
	inputs := []*float64{nil, qty(2), nil, qty(3.5)}

	forward := newBuilder()
	for _, q := range inputs {
		forward.merge(key, q)
	}
	backward := newBuilder()
	for i := len(inputs) - 1; i >= 0; i-- {
		backward.merge(key, inputs[i])
	}

	assert.Equal(t, 5.5, *forward.lines[key])
	assert.Equal(t, *forward.lines[key], *backward.lines[key])
}

func TestMergeNumberNeverBecomesNil(t *testing.T) {
	b := newBuilder()
	key := Key{Name: "poivre"}
	b.merge(key, qty(1))
	b.merge(key, nil)
	require.NotNil(t, b.lines[key])
	assert.Equal(t, 1.0, *b.lines[key])
}

func TestFormatQuantity(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{100, "100"},
		{0, "0"},
		{2.5, "2.5"},
		{1.24, "1.2"},
		{0.333, "0.3"},
		{2.96, "3"},
		{0.25, "0.3"},
		{1.25, "1.3"},
		{2.25, "2.3"},
		{0.15, "0.1"},
		{0.05, "0.1"},
		{9.95, "9.9"},
		{9.75, "9.8"},
		{-1.25, "-1.3"},
	}
	for _, tt := range tests {
		t.Run(strconv.FormatFloat(tt.in, 'g', -1, 64), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatQuantity(tt.in))
		})
	}
}

func TestAggregateRoundsQuarterAmountsUp(t *testing.T) {
	catalog := mockCatalog{
		"vinaigrette": {ID: "vinaigrette", ServingsBase: 4, Ingredients: recipe.Groups{{Label: "base", Lines: []recipe.IngredientLine{
			{Name: "moutarde", Unit: "g", AbsoluteQuantity: qty(5)},
		}}}},
	}
	plan := planner.Plan{Items: []planner.Entry{{RecipeID: "vinaigrette", Servings: 1}}}

	assert.Equal(t, "moutarde - 1.3 g", Aggregate(plan, catalog).Text())
}

func TestLineString(t *testing.T) {
	assert.Equal(t, "carrot - 100 g", Line{Name: "carrot", Unit: "g", Quantity: qty(100)}.String())
	assert.Equal(t, "oeuf - 3", Line{Name: "oeuf", Quantity: qty(3)}.String())
	assert.Equal(t, "sel", Line{Name: "sel", Unit: "g"}.String())
}
