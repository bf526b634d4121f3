package remote

import (
	"context"
	"sync"
)

// MemoryStore is an in-process DocumentStore.
type MemoryStore struct {
	mu          sync.Mutex
	docs        map[string][]byte
	subscribers map[string]map[*subscriber]struct{}
	closed      bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        map[string][]byte{},
		subscribers: map[string]map[*subscriber]struct{}{},
	}
}

// Get returns a copy of the stored document.
func (m *MemoryStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), doc...), true, nil
}

// Set stores the document and notifies every subscriber of id.
func (m *MemoryStore) Set(ctx context.Context, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.docs[id] = append([]byte(nil), doc...)
	for sub := range m.subscribers[id] {
		sub.deliver(doc)
	}
	return nil
}

// Subscribe registers for changes of id. The subscription ends when it is
// closed, when ctx is done or when the store is closed.
func (m *MemoryStore) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscriber()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.subscribers[id] == nil {
		m.subscribers[id] = map[*subscriber]struct{}{}
	}
	m.subscribers[id][sub] = struct{}{}
	if doc, ok := m.docs[id]; ok {
		sub.deliver(doc)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.removeSubscriber(id, sub)
		case <-done:
		}
	}()

	return &Subscription{
		Snapshots: sub.ch,
		cancel: func() {
			close(done)
			m.removeSubscriber(id, sub)
		},
	}, nil
}

// Close ends every subscription. Further calls fail with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, subs := range m.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(m.subscribers, id)
	}
	return nil
}

func (m *MemoryStore) removeSubscriber(id string, sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs := m.subscribers[id]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(m.subscribers, id)
		}
	}
	sub.close()
}
