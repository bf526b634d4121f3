package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Recipe represents a single recipe as loaded from the catalog source.
// Recipes are never mutated once the catalog has been built.
type Recipe struct {
	ID           string         `json:"id" yaml:"id"`
	Title        string         `json:"title" yaml:"title"`
	Tags         []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	SeasonTags   []string       `json:"season_tags,omitempty" yaml:"season_tags,omitempty"`
	ServingsBase int            `json:"servings_base,omitempty" yaml:"servings_base,omitempty"`
	Time         *Time          `json:"time,omitempty" yaml:"time,omitempty"`
	Ingredients  Groups         `json:"ingredient_groups,omitempty" yaml:"ingredient_groups,omitempty"`
	Options      Groups         `json:"optional_groups,omitempty" yaml:"optional_groups,omitempty"`
	Steps        []string       `json:"steps,omitempty" yaml:"steps,omitempty"`
	Calories     map[string]any `json:"calories,omitempty" yaml:"calories,omitempty"`
}

// Time holds the optional preparation and cooking durations, in minutes.
type Time struct {
	PreparationMinutes *int `json:"preparation_minutes,omitempty" yaml:"preparation_minutes,omitempty"`
	CookingMinutes     *int `json:"cooking_minutes,omitempty" yaml:"cooking_minutes,omitempty"`
}

// Total returns preparation plus cooking minutes, counting absent values as zero.
func (t *Time) Total() int {
	if t == nil {
		return 0
	}
	total := 0
	if t.PreparationMinutes != nil {
		total += *t.PreparationMinutes
	}
	if t.CookingMinutes != nil {
		total += *t.CookingMinutes
	}
	return total
}

// IngredientLine is one entry of an ingredient group. Quantity is given either
// per person or for the recipe's base serving count, never both.
type IngredientLine struct {
	Name              string   `json:"name" yaml:"name"`
	Unit              string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Type              string   `json:"type,omitempty" yaml:"type,omitempty"`
	PerPersonQuantity *float64 `json:"per_person_quantity,omitempty" yaml:"per_person_quantity,omitempty"`
	AbsoluteQuantity  *float64 `json:"absolute_quantity,omitempty" yaml:"absolute_quantity,omitempty"`
	CaloriesDisplay   any      `json:"calories_display,omitempty" yaml:"calories_display,omitempty"`
}

// String renders the line the way it is written in the recipe, unscaled.
func (l IngredientLine) String() string {
	qty := l.AbsoluteQuantity
	if qty == nil {
		qty = l.PerPersonQuantity
	}
	name := l.Name
	if l.Type != "" {
		name = fmt.Sprintf("%s (%s)", l.Name, l.Type)
	}
	if qty == nil {
		return name
	}
	amount := strconv.FormatFloat(*qty, 'f', -1, 64)
	return strings.TrimSpace(fmt.Sprintf("%s - %s %s", name, amount, l.Unit))
}

// CaloriesText returns the pass-through calorie figure suffixed with "kcal",
// or an empty string when the line carries none.
func (l IngredientLine) CaloriesText() string {
	if l.CaloriesDisplay == nil {
		return ""
	}
	return fmt.Sprintf("%v kcal", l.CaloriesDisplay)
}

// Validate checks the minimum a recipe needs to be referenced by a plan.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("recipe has no id")
	}
	if r.ServingsBase < 0 {
		return fmt.Errorf("recipe %s: servings_base must not be negative, got %d", r.ID, r.ServingsBase)
	}
	return nil
}

// OptionLabels lists the optional group labels in recipe order.
func (r Recipe) OptionLabels() []string {
	return r.Options.Labels()
}
