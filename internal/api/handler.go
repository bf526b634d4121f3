package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"meal-planner/internal/auth"
	"meal-planner/internal/catalog"
	"meal-planner/internal/metrics"
	"meal-planner/internal/planner"
	"meal-planner/internal/recipe"
	"meal-planner/internal/session"
	"meal-planner/internal/shopping"
)

// Handler groups dependencies for route handlers.
type Handler struct {
	catalog  *catalog.Catalog
	session  *session.Session
	verifier *auth.Verifier
	health   *metrics.Reporter
	logger   *zap.Logger
}

// NewRouter returns the HTTP API over one planning session.
func NewRouter(cat *catalog.Catalog, s *session.Session, v *auth.Verifier, health *metrics.Reporter, logger *zap.Logger) http.Handler {
	h := &Handler{catalog: cat, session: s, verifier: v, health: health, logger: logger}
	r := chi.NewRouter()

	r.Get("/health", h.getHealth)

	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", h.listRecipes)
		r.Get("/{id}", h.getRecipe)
	})

	r.Route("/plan", func(r chi.Router) {
		r.Get("/", h.getPlan)
		r.Post("/items", h.addItem)
		r.Delete("/items/{id}", h.removeItem)
		r.Put("/items/{id}/servings", h.setServings)
		r.Put("/items/{id}/options/{group}", h.toggleOption)
	})

	r.Get("/shopping-list", h.getShoppingList)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/status", h.authStatus)
		r.Post("/signin", h.signIn)
		r.Post("/signout", h.signOut)
	})

	return r
}

type planResponse struct {
	Items []planner.EntryView `json:"items"`
	Plan  planner.Plan        `json:"plan"`
}

type shoppingListResponse struct {
	Lines []shopping.Line `json:"lines"`
	Text  string          `json:"text"`
}

type authResponse struct {
	SignedIn bool   `json:"signed_in"`
	Identity string `json:"identity,omitempty"`
}

type recipeSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Tags         []string `json:"tags,omitempty"`
	SeasonTags   []string `json:"season_tags,omitempty"`
	ServingsBase int      `json:"servings_base,omitempty"`
	TotalMinutes int      `json:"total_minutes,omitempty"`
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Report())
}

func (h *Handler) listRecipes(w http.ResponseWriter, r *http.Request) {
	recipes := h.catalog.Search(r.URL.Query().Get("q"))
	out := make([]recipeSummary, 0, len(recipes))
	for _, rec := range recipes {
		out = append(out, summarize(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.catalog.Find(chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "recipe not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	h.writePlan(w)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipeID string `json:"recipe_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.session.Add(body.RecipeID)
	h.writePlan(w)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	h.session.Remove(chi.URLParam(r, "id"))
	h.writePlan(w)
}

// setServings accepts the servings as a JSON number or as the raw text typed
// by the user. Unparseable values are clamped to one serving.
func (h *Handler) setServings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Servings json.RawMessage `json:"servings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	raw := string(body.Servings)
	if s, err := strconv.Unquote(raw); err == nil {
		raw = s
	}
	h.session.SetServings(chi.URLParam(r, "id"), raw)
	h.writePlan(w)
}

func (h *Handler) toggleOption(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.session.ToggleOptionalGroup(chi.URLParam(r, "id"), chi.URLParam(r, "group"), body.Enabled)
	h.writePlan(w)
}

func (h *Handler) getShoppingList(w http.ResponseWriter, r *http.Request) {
	ledger := h.session.Ledger()
	lines := []shopping.Line(ledger)
	if lines == nil {
		lines = []shopping.Line{}
	}
	writeJSON(w, http.StatusOK, shoppingListResponse{Lines: lines, Text: ledger.Text()})
}

func (h *Handler) authStatus(w http.ResponseWriter, r *http.Request) {
	h.writeAuth(w)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.FromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.session.SignIn(r.Context(), identity); err != nil {
		if errors.Is(err, session.ErrNoRemote) {
			http.Error(w, "no remote backend configured", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to sign in", zap.Error(err))
		http.Error(w, "sign in failed", http.StatusInternalServerError)
		return
	}
	h.writeAuth(w)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(r.Context()); err != nil {
		h.logger.Error("failed to sign out", zap.Error(err))
		http.Error(w, "sign out failed", http.StatusInternalServerError)
		return
	}
	h.writeAuth(w)
}

func (h *Handler) writePlan(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, planResponse{
		Items: h.session.View(),
		Plan:  h.session.Plan(),
	})
}

func (h *Handler) writeAuth(w http.ResponseWriter) {
	identity := h.session.Identity()
	writeJSON(w, http.StatusOK, authResponse{SignedIn: identity != "", Identity: identity})
}

func summarize(rec recipe.Recipe) recipeSummary {
	return recipeSummary{
		ID:           rec.ID,
		Title:        rec.Title,
		Tags:         rec.Tags,
		SeasonTags:   rec.SeasonTags,
		ServingsBase: rec.ServingsBase,
		TotalMinutes: rec.Time.Total(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
