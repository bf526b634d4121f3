package planner

// OptionView is one optional group toggle of a planned recipe.
type OptionView struct {
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// EntryView is a planned recipe ready to be rendered.
type EntryView struct {
	RecipeID string       `json:"recipe_id"`
	Title    string       `json:"title"`
	Servings float64      `json:"servings"`
	Options  []OptionView `json:"options"`
}

// View joins the plan with the catalog. Entries whose recipe is unknown are
// left out, and options follow the recipe's group order.
func View(p Plan, catalog Catalog) []EntryView {
	out := make([]EntryView, 0, len(p.Items))
	for _, e := range p.Items {
		rec, ok := catalog.Get(e.RecipeID)
		if !ok {
			continue
		}
		title := rec.Title
		if title == "" {
			title = rec.ID
		}
		labels := rec.OptionLabels()
		options := make([]OptionView, 0, len(labels))
		for _, label := range labels {
			options = append(options, OptionView{Label: label, Enabled: e.Options[label]})
		}
		out = append(out, EntryView{
			RecipeID: e.RecipeID,
			Title:    title,
			Servings: e.Servings,
			Options:  options,
		})
	}
	return out
}
