package shopping

import (
	"sort"

	"meal-planner/internal/planner"
	"meal-planner/internal/recipe"
)

// Lookup resolves recipe ids.
type Lookup interface {
	Get(id string) (recipe.Recipe, bool)
}

// Resolve scales an ingredient line to the requested servings. Per-person
// quantities are multiplied by the servings, absolute quantities by the ratio
// to the recipe's base servings. Lines without a quantity resolve to nil.
func Resolve(line recipe.IngredientLine, servings float64, servingsBase int) *float64 {
	switch {
	case line.PerPersonQuantity != nil:
		q := *line.PerPersonQuantity * servings
		return &q
	case line.AbsoluteQuantity != nil:
		ratio := 1.0
		if servingsBase > 0 {
			ratio = servings / float64(servingsBase)
		}
		q := *line.AbsoluteQuantity * ratio
		return &q
	default:
		return nil
	}
}

// Aggregate builds the shopping list for a plan. Entries pointing at recipes
// the catalog does not know are skipped. Lines with the same name and unit are
// merged, and the result is sorted by name, then unit.
func Aggregate(plan planner.Plan, catalog Lookup) Ledger {
	b := newBuilder()
	for _, entry := range plan.Items {
		rec, ok := catalog.Get(entry.RecipeID)
		if !ok {
			continue
		}
		servings := effectiveServings(entry, rec)
		for _, group := range rec.Ingredients {
			for _, line := range group.Lines {
				b.add(line, servings, rec.ServingsBase)
			}
		}
		for _, group := range rec.Options {
			if !entry.Options[group.Label] {
				continue
			}
			for _, line := range group.Lines {
				b.add(line, servings, rec.ServingsBase)
			}
		}
	}
	return b.ledger()
}

func effectiveServings(entry planner.Entry, rec recipe.Recipe) float64 {
	switch {
	case entry.Servings > 0:
		return entry.Servings
	case rec.ServingsBase > 0:
		return float64(rec.ServingsBase)
	default:
		return 1
	}
}

type builder struct {
	lines map[Key]*float64
}

func newBuilder() *builder {
	return &builder{lines: make(map[Key]*float64)}
}

func (b *builder) add(line recipe.IngredientLine, servings float64, servingsBase int) {
	b.merge(Key{Name: line.Name, Unit: line.Unit}, Resolve(line, servings, servingsBase))
}

// merge inserts new keys as they come, lets a number replace an unknown
// quantity and sums numbers. An unknown quantity never erases a number.
func (b *builder) merge(key Key, q *float64) {
	current, exists := b.lines[key]
	switch {
	case !exists:
		b.lines[key] = q
	case q == nil:
	case current == nil:
		b.lines[key] = q
	default:
		sum := *current + *q
		b.lines[key] = &sum
	}
}

func (b *builder) ledger() Ledger {
	out := make(Ledger, 0, len(b.lines))
	for key, q := range b.lines {
		out = append(out, Line{Name: key.Name, Unit: key.Unit, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}
