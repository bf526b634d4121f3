package catalog

import (
	"errors"
	"fmt"
	"strings"

	"meal-planner/internal/recipe"
)

// ErrNotFound is returned when a recipe id is not part of the catalog.
var ErrNotFound = errors.New("recipe not found")

// Catalog is the in-memory, read-only collection of recipes.
type Catalog struct {
	recipes []recipe.Recipe
	byID    map[string]int
}

// New builds a catalog from the given recipes. When two recipes share an id the
// first one wins; the skipped ids are returned so the caller can report them.
func New(recipes []recipe.Recipe) (*Catalog, []string) {
	c := &Catalog{
		recipes: make([]recipe.Recipe, 0, len(recipes)),
		byID:    make(map[string]int, len(recipes)),
	}
	var duplicates []string
	for _, rec := range recipes {
		if _, exists := c.byID[rec.ID]; exists {
			duplicates = append(duplicates, rec.ID)
			continue
		}
		c.byID[rec.ID] = len(c.recipes)
		c.recipes = append(c.recipes, rec)
	}
	return c, duplicates
}

// Get returns the recipe with the given id.
func (c *Catalog) Get(id string) (recipe.Recipe, bool) {
	if c == nil {
		return recipe.Recipe{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return recipe.Recipe{}, false
	}
	return c.recipes[i], true
}

// Find is like Get but reports a missing recipe as ErrNotFound.
func (c *Catalog) Find(id string) (recipe.Recipe, error) {
	rec, ok := c.Get(id)
	if !ok {
		return recipe.Recipe{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// All returns every recipe in load order.
func (c *Catalog) All() []recipe.Recipe {
	if c == nil {
		return nil
	}
	out := make([]recipe.Recipe, len(c.recipes))
	copy(out, c.recipes)
	return out
}

// Len returns the number of recipes.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.recipes)
}

// Search returns the recipes whose title, tags or season tags contain the
// query. Matching ignores case and accents. An empty query returns everything.
func (c *Catalog) Search(query string) []recipe.Recipe {
	needle := fold(strings.TrimSpace(query))
	if needle == "" {
		return c.All()
	}

	var out []recipe.Recipe
	for _, rec := range c.All() {
		fields := make([]string, 0, 1+len(rec.Tags)+len(rec.SeasonTags))
		if rec.Title != "" {
			fields = append(fields, rec.Title)
		}
		fields = append(fields, rec.Tags...)
		fields = append(fields, rec.SeasonTags...)
		if strings.Contains(fold(strings.Join(fields, " ")), needle) {
			out = append(out, rec)
		}
	}
	return out
}
