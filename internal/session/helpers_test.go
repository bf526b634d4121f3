package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"meal-planner/internal/catalog"
	"meal-planner/internal/planner"
	"meal-planner/internal/recipe"
	"meal-planner/internal/remote"
)

func qty(v float64) *float64 { return &v }

func testCatalog() *catalog.Catalog {
	c, _ := catalog.New([]recipe.Recipe{
		{
			ID:           "soupe",
			Title:        "Soupe de carottes",
			ServingsBase: 4,
			Ingredients: recipe.Groups{
				{Label: "legumes", Lines: []recipe.IngredientLine{{Name: "carotte", Unit: "g", AbsoluteQuantity: qty(200)}}},
				{Label: "base", Lines: []recipe.IngredientLine{{Name: "sel"}}},
			},
			Options: recipe.Groups{
				{Label: "pain", Lines: []recipe.IngredientLine{{Name: "pain", Unit: "g", PerPersonQuantity: qty(50)}}},
			},
		},
		{
			ID:    "tarte",
			Title: "Tarte salée",
			Ingredients: recipe.Groups{
				{Label: "base", Lines: []recipe.IngredientLine{{Name: "sel", Unit: "g", PerPersonQuantity: qty(1)}}},
			},
		},
	})
	return c
}

// memoryCache is a storage.Cache kept in memory.
type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	saveErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Load(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	return data, ok, nil
}

func (c *memoryCache) Save(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves++
	c.data[key] = append([]byte(nil), data...)
	return nil
}

func (c *memoryCache) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func (c *memoryCache) plan(t *testing.T) planner.Plan {
	t.Helper()
	data, ok, _ := c.Load(DefaultStorageKey)
	require.True(t, ok, "nothing cached")
	plan, err := planner.Decode(data)
	require.NoError(t, err)
	return plan
}

var errUnavailable = errors.New("remote unavailable")

// flakyStore wraps a MemoryStore so tests can count writes, fail them or hold
// reads back.
type flakyStore struct {
	*remote.MemoryStore

	mu      sync.Mutex
	sets    int
	setErr  error
	getGate chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: remote.NewMemoryStore()}
}

func (f *flakyStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	f.mu.Lock()
	gate := f.getGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	return f.MemoryStore.Get(ctx, id)
}

func (f *flakyStore) Set(ctx context.Context, id string, doc []byte) error {
	f.mu.Lock()
	f.sets++
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.Set(ctx, id, doc)
}

func (f *flakyStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func (f *flakyStore) failSets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErr = err
}

func (f *flakyStore) holdGets() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.getGate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *flakyStore) remotePlan(t *testing.T, id string) (planner.Plan, bool) {
	t.Helper()
	doc, ok, err := f.MemoryStore.Get(context.Background(), id)
	require.NoError(t, err)
	if !ok {
		return planner.Plan{}, false
	}
	plan, err := planner.Decode(doc)
	require.NoError(t, err)
	return plan, true
}

func (f *flakyStore) put(t *testing.T, id string, p planner.Plan) {
	t.Helper()
	doc, err := p.Encode()
	require.NoError(t, err)
	require.NoError(t, f.MemoryStore.Set(context.Background(), id, doc))
}

func planOf(entries ...planner.Entry) planner.Plan {
	for i := range entries {
		if entries[i].Options == nil {
			entries[i].Options = map[string]bool{}
		}
	}
	return planner.Plan{Items: entries}
}
