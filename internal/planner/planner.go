package planner

import (
	"slices"
	"strconv"
	"strings"

	"meal-planner/internal/recipe"
)

const defaultServings = 2

// Catalog resolves recipe ids.
type Catalog interface {
	Get(id string) (recipe.Recipe, bool)
}

// Store holds the current plan and applies user mutations to it.
// Each mutation reports whether the plan changed.
//
// A Store is not safe for concurrent use; callers serialize access.
type Store struct {
	catalog Catalog
	plan    Plan
}

// NewStore returns a store with an empty plan.
func NewStore(catalog Catalog) *Store {
	return &Store{
		catalog: catalog,
		plan:    Plan{Items: []Entry{}},
	}
}

// Snapshot returns a deep copy of the current plan.
func (s *Store) Snapshot() Plan {
	return s.plan.Clone()
}

// Replace swaps the whole plan.
func (s *Store) Replace(p Plan) {
	s.plan = p.Clone()
}

// Add puts a recipe in the plan. Adding a recipe that is already planned
// increases its servings by the recipe's base serving count (or 1).
// Unknown recipes are ignored.
func (s *Store) Add(recipeID string) bool {
	rec, ok := s.catalog.Get(recipeID)
	if !ok {
		return false
	}

	if i := s.index(recipeID); i >= 0 {
		step := 1.0
		if rec.ServingsBase > 0 {
			step = float64(rec.ServingsBase)
		}
		s.plan.Items[i].Servings += step
		return true
	}

	servings := float64(defaultServings)
	if rec.ServingsBase > 0 {
		servings = float64(rec.ServingsBase)
	}
	options := make(map[string]bool, len(rec.Options))
	for _, label := range rec.OptionLabels() {
		options[label] = false
	}
	s.plan.Items = append(s.plan.Items, Entry{
		RecipeID: recipeID,
		Servings: servings,
		Options:  options,
	})
	return true
}

// Remove drops a recipe from the plan.
func (s *Store) Remove(recipeID string) bool {
	i := s.index(recipeID)
	if i < 0 {
		return false
	}
	s.plan.Items = slices.Delete(s.plan.Items, i, i+1)
	return true
}

// SetServings assigns servings from raw user input. Anything that is not a
// finite positive number is stored as 1.
func (s *Store) SetServings(recipeID, raw string) bool {
	i := s.index(recipeID)
	if i < 0 {
		return false
	}
	s.plan.Items[i].Servings = ParseServings(raw)
	return true
}

// ToggleOptionalGroup enables or disables an optional group of a planned
// recipe. Labels the recipe does not define are stored as well.
func (s *Store) ToggleOptionalGroup(recipeID, label string, enabled bool) bool {
	i := s.index(recipeID)
	if i < 0 {
		return false
	}
	if s.plan.Items[i].Options == nil {
		s.plan.Items[i].Options = map[string]bool{}
	}
	s.plan.Items[i].Options[label] = enabled
	return true
}

func (s *Store) index(recipeID string) int {
	return slices.IndexFunc(s.plan.Items, func(e Entry) bool {
		return e.RecipeID == recipeID
	})
}

// ParseServings converts user input to a serving count, falling back to 1.
func ParseServings(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 1
	}
	return clampServings(v)
}
