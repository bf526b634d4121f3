// Package session owns the live meal plan. It applies user mutations, keeps
// the shopping list current and persists the plan to the local cache or, once
// an identity is signed in, to the remote document store.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meal-planner/internal/planner"
	"meal-planner/internal/recipe"
	"meal-planner/internal/remote"
	"meal-planner/internal/shopping"
	"meal-planner/internal/storage"
)

// DefaultStorageKey is the cache key the plan is stored under.
const DefaultStorageKey = "mealPlanner"

const remoteTimeout = 10 * time.Second

// ErrNoRemote is returned by SignIn when no remote store is configured.
var ErrNoRemote = errors.New("no remote document store configured")

// Catalog resolves recipe ids.
type Catalog interface {
	Get(id string) (recipe.Recipe, bool)
}

// Config tunes a Session.
type Config struct {
	StorageKey string
	SaveDelay  time.Duration
}

// Session is the single owner of the plan. All events (mutations, remote
// snapshots, identity changes, timer fires) are serialized by one mutex; I/O
// against the remote store runs outside of it.
type Session struct {
	id      string
	catalog Catalog
	cache   storage.Cache
	docs    remote.DocumentStore
	key     string
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	debouncer *Debouncer

	mu         sync.Mutex
	store      *planner.Store
	ledger     shopping.Ledger
	identity   string
	generation uint64
	synced     *planner.Plan
	sub        *remote.Subscription
	listeners  []func(planner.Plan)
	closed     bool
}

// New creates a session with an empty plan. docs may be nil, in which case the
// session stays local-only.
func New(catalog Catalog, cache storage.Cache, docs remote.DocumentStore, cfg Config, logger *zap.Logger) *Session {
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		catalog:   catalog,
		cache:     cache,
		docs:      docs,
		key:       cfg.StorageKey,
		logger:    logger.With(zap.String("session_id", id)),
		ctx:       ctx,
		cancel:    cancel,
		debouncer: NewDebouncer(cfg.SaveDelay),
		store:     planner.NewStore(catalog),
	}
	s.ledger = shopping.Aggregate(s.store.Snapshot(), catalog)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Load adopts the plan kept in the local cache. Malformed content is ignored
// and the current plan is kept.
func (s *Session) Load() error {
	data, ok, err := s.cache.Load(s.key)
	if err != nil {
		return fmt.Errorf("failed to load cached plan: %w", err)
	}
	if !ok {
		return nil
	}
	plan, err := planner.Decode(data)
	if err != nil {
		s.logger.Warn("ignoring malformed cached plan", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.store.Replace(plan)
	s.recomputeLocked()
	listeners, snapshot := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
	s.logger.Info("plan loaded from cache", zap.Int("items", len(plan.Items)))
	return nil
}

// OnChange registers fn to be called with the new plan after every change.
func (s *Session) OnChange(fn func(planner.Plan)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Plan returns a copy of the current plan.
func (s *Session) Plan() planner.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Ledger returns the current shopping list.
func (s *Session) Ledger() shopping.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ledger)
}

// View returns the plan joined with recipe titles and option flags.
func (s *Session) View() []planner.EntryView {
	return planner.View(s.Plan(), s.catalog)
}

// Identity returns the signed-in identity, or "" when signed out.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Add puts a recipe in the plan.
func (s *Session) Add(recipeID string) bool {
	return s.mutate(func(st *planner.Store) bool { return st.Add(recipeID) })
}

// Remove drops a recipe from the plan.
func (s *Session) Remove(recipeID string) bool {
	return s.mutate(func(st *planner.Store) bool { return st.Remove(recipeID) })
}

// SetServings assigns servings from raw user input.
func (s *Session) SetServings(recipeID, raw string) bool {
	return s.mutate(func(st *planner.Store) bool { return st.SetServings(recipeID, raw) })
}

// ToggleOptionalGroup enables or disables an optional ingredient group.
func (s *Session) ToggleOptionalGroup(recipeID, label string, enabled bool) bool {
	return s.mutate(func(st *planner.Store) bool { return st.ToggleOptionalGroup(recipeID, label, enabled) })
}

func (s *Session) mutate(fn func(*planner.Store) bool) bool {
	s.mu.Lock()
	if !fn(s.store) {
		s.mu.Unlock()
		return false
	}
	s.recomputeLocked()
	if s.identity == "" {
		s.saveLocalLocked()
	} else {
		gen := s.generation
		s.debouncer.Schedule(func(ctx context.Context) { s.writeRemote(ctx, gen) })
	}
	listeners, snapshot := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// SignIn switches the session to identity. The remote document wins when it
// exists and is well formed; otherwise the current plan is pushed. A standing
// subscription then keeps the plan in sync with remote changes.
//
// An empty identity is the same as SignOut.
func (s *Session) SignIn(ctx context.Context, identity string) error {
	if identity == "" {
		return s.SignOut(ctx)
	}
	if s.docs == nil {
		return ErrNoRemote
	}

	// A write pending for the previous identity still belongs to it.
	s.mu.Lock()
	switching := s.identity != "" && s.identity != identity
	s.mu.Unlock()
	if switching {
		s.debouncer.Flush(ctx)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	if s.identity == identity {
		s.mu.Unlock()
		return nil
	}
	if s.identity != "" && s.debouncer.Stop() {
		s.saveLocalLocked()
	}
	sub := s.detachLocked()
	s.identity = identity
	s.generation++
	s.synced = nil
	gen := s.generation
	s.mu.Unlock()
	sub.Close()

	logger := s.logger.With(zap.String("identity", identity))
	logger.Info("signing in")

	s.reconcile(ctx, gen, identity, logger)
	s.attach(gen, identity, logger)
	return nil
}

// reconcile runs once per sign-in. A result that arrives after the identity
// changed again is dropped.
func (s *Session) reconcile(ctx context.Context, gen uint64, identity string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	doc, found, err := s.docs.Get(ctx, identity)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		logger.Info("discarding stale reconciliation")
		return
	}
	if err != nil {
		s.mu.Unlock()
		logger.Warn("failed to fetch remote plan, keeping local plan", zap.Error(err))
		return
	}

	if !found {
		snapshot := s.store.Snapshot()
		s.markSyncedLocked(snapshot)
		s.mu.Unlock()
		s.pushInitial(ctx, gen, identity, snapshot, logger)
		return
	}

	plan, err := planner.Decode(doc)
	if err != nil {
		s.mu.Unlock()
		logger.Warn("ignoring malformed remote plan", zap.Error(err))
		return
	}
	s.store.Replace(plan)
	s.markSyncedLocked(plan)
	s.recomputeLocked()
	s.saveLocalLocked()
	listeners, snapshot := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
	logger.Info("adopted remote plan", zap.Int("items", len(plan.Items)))
}

func (s *Session) pushInitial(ctx context.Context, gen uint64, identity string, plan planner.Plan, logger *zap.Logger) {
	doc, err := plan.Encode()
	if err != nil {
		logger.Error("failed to encode plan", zap.Error(err))
		return
	}
	if err := s.docs.Set(ctx, identity, doc); err != nil {
		logger.Warn("failed to create remote plan, writing local cache", zap.Error(err))
		s.fallbackLocal(gen)
		return
	}
	logger.Info("created remote plan from local plan", zap.Int("items", len(plan.Items)))
}

func (s *Session) attach(gen uint64, identity string, logger *zap.Logger) {
	sub, err := s.docs.Subscribe(s.ctx, identity)
	if err != nil {
		logger.Warn("failed to subscribe to remote plan", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.generation != gen || s.closed {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.sub = sub
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(gen, sub, logger)
}

func (s *Session) watch(gen uint64, sub *remote.Subscription, logger *zap.Logger) {
	defer s.wg.Done()
	for doc := range sub.Snapshots {
		s.applyRemote(gen, doc, logger)
	}

	s.mu.Lock()
	live := s.generation == gen && !s.closed
	s.mu.Unlock()
	if live {
		logger.Warn("remote subscription ended, remote changes are no longer applied until the next sign-in")
	}
}

// applyRemote replaces the plan with an incoming snapshot that differs from
// the current plan.
//
// It also ignores a snapshot equal to the plan last exchanged with the remote
// store, which goes beyond the plain "differs from the current plan" rule.
// Such a snapshot is an echo of the session's own write, or a replay of a
// state that local edits made since then (with their write still pending)
// have moved past. Applying it would revert those edits.
func (s *Session) applyRemote(gen uint64, doc []byte, logger *zap.Logger) {
	plan, err := planner.Decode(doc)
	if err != nil {
		logger.Warn("ignoring malformed remote snapshot", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.generation != gen || planner.Equal(plan, s.store.Snapshot()) || s.isSyncedLocked(plan) {
		s.mu.Unlock()
		return
	}
	s.store.Replace(plan)
	s.markSyncedLocked(plan)
	s.recomputeLocked()
	s.saveLocalLocked()
	listeners, snapshot := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
	logger.Debug("applied remote plan change", zap.Int("items", len(plan.Items)))
}

// SignOut detaches from the remote store. A pending remote write is dropped
// and the plan is written to the local cache instead.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return nil
	}
	identity := s.identity
	s.identity = ""
	s.generation++
	s.synced = nil
	sub := s.detachLocked()
	s.debouncer.Stop()
	err := s.saveLocalLocked()
	s.mu.Unlock()

	sub.Close()
	s.logger.Info("signed out", zap.String("identity", identity))
	return err
}

// Flush runs a pending remote write immediately.
func (s *Session) Flush(ctx context.Context) {
	s.debouncer.Flush(ctx)
}

// Close flushes pending writes and stops watching the remote store.
func (s *Session) Close(ctx context.Context) error {
	s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	sub := s.detachLocked()
	s.mu.Unlock()

	sub.Close()
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Session) writeRemote(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.identity == "" {
		s.mu.Unlock()
		return
	}
	identity := s.identity
	plan := s.store.Snapshot()
	s.markSyncedLocked(plan)
	s.mu.Unlock()

	doc, err := plan.Encode()
	if err != nil {
		s.logger.Error("failed to encode plan", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	if err := s.docs.Set(ctx, identity, doc); err != nil {
		s.logger.Warn("failed to save remote plan, writing local cache", zap.String("identity", identity), zap.Error(err))
		s.fallbackLocal(gen)
	}
}

func (s *Session) fallbackLocal(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.saveLocalLocked()
}

// detachLocked forgets the current subscription and returns it so the caller
// can close it once the mutex is released.
func (s *Session) detachLocked() *remote.Subscription {
	sub := s.sub
	s.sub = nil
	return sub
}

func (s *Session) markSyncedLocked(p planner.Plan) {
	synced := p.Clone()
	s.synced = &synced
}

func (s *Session) isSyncedLocked(p planner.Plan) bool {
	return s.synced != nil && planner.Equal(p, *s.synced)
}

func (s *Session) recomputeLocked() {
	s.ledger = shopping.Aggregate(s.store.Snapshot(), s.catalog)
}

func (s *Session) saveLocalLocked() error {
	doc, err := s.store.Snapshot().Encode()
	if err != nil {
		s.logger.Error("failed to encode plan", zap.Error(err))
		return err
	}
	if err := s.cache.Save(s.key, doc); err != nil {
		s.logger.Warn("failed to write plan to local cache", zap.Error(err))
		return fmt.Errorf("failed to write plan to local cache: %w", err)
	}
	return nil
}

func (s *Session) listenersLocked() ([]func(planner.Plan), planner.Plan) {
	return slices.Clone(s.listeners), s.store.Snapshot()
}

func notify(listeners []func(planner.Plan), plan planner.Plan) {
	for _, fn := range listeners {
		fn(plan.Clone())
	}
}
