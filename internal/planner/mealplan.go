package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
)

// ErrMalformedPlan is returned when a stored or remote plan document does not
// have the expected shape.
var ErrMalformedPlan = errors.New("malformed plan")

// Entry is one recipe selected in the plan.
type Entry struct {
	RecipeID string          `json:"recipe_id"`
	Servings float64         `json:"servings_requested"`
	Options  map[string]bool `json:"enabled_optional_groups"`
}

// Plan is the ordered list of selected recipes. Each recipe appears at most once.
type Plan struct {
	Items []Entry `json:"items"`
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := Plan{Items: make([]Entry, len(p.Items))}
	for i, e := range p.Items {
		e.Options = maps.Clone(e.Options)
		if e.Options == nil {
			e.Options = map[string]bool{}
		}
		out.Items[i] = e
	}
	return out
}

// Find returns the entry for recipeID.
func (p Plan) Find(recipeID string) (Entry, bool) {
	for _, e := range p.Items {
		if e.RecipeID == recipeID {
			return e, true
		}
	}
	return Entry{}, false
}

// Encode serializes the plan to its JSON document form.
func (p Plan) Encode() ([]byte, error) {
	doc := p.Clone()
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	return data, nil
}

// Equal reports whether two plans have the same entries in the same order.
func Equal(a, b Plan) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		x, y := a.Items[i], b.Items[i]
		if x.RecipeID != y.RecipeID || x.Servings != y.Servings {
			return false
		}
		if !maps.Equal(x.Options, y.Options) {
			return false
		}
	}
	return true
}

// Decode parses a plan document. It rejects documents without an items array
// and items without a string recipe_id. Missing or invalid servings become 1,
// missing option maps become empty, and repeated recipe ids keep the first entry.
func Decode(data []byte) (Plan, error) {
	var doc struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	var raw []map[string]json.RawMessage
	if len(doc.Items) == 0 || json.Unmarshal(doc.Items, &raw) != nil || raw == nil {
		return Plan{}, fmt.Errorf("%w: items must be an array", ErrMalformedPlan)
	}

	plan := Plan{Items: make([]Entry, 0, len(raw))}
	seen := make(map[string]bool, len(raw))
	for i, item := range raw {
		var value any
		if item["recipe_id"] != nil {
			_ = json.Unmarshal(item["recipe_id"], &value)
		}
		id, ok := value.(string)
		if !ok {
			return Plan{}, fmt.Errorf("%w: item %d has no recipe_id", ErrMalformedPlan, i)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		plan.Items = append(plan.Items, Entry{
			RecipeID: id,
			Servings: decodeServings(item["servings_requested"]),
			Options:  decodeOptions(item["enabled_optional_groups"]),
		})
	}
	return plan, nil
}

func decodeServings(raw json.RawMessage) float64 {
	var v float64
	if raw == nil || json.Unmarshal(raw, &v) != nil {
		return 1
	}
	return clampServings(v)
}

func decodeOptions(raw json.RawMessage) map[string]bool {
	out := map[string]bool{}
	var values map[string]any
	if raw == nil || json.Unmarshal(raw, &values) != nil {
		return out
	}
	for label, v := range values {
		if enabled, ok := v.(bool); ok {
			out[label] = enabled
		}
	}
	return out
}

func clampServings(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 1
	}
	return v
}
