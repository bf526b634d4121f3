// Package remote keeps one plan document per identity in a shared store and
// streams changes to subscribers.
package remote

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by stores that have been shut down.
var ErrClosed = errors.New("document store closed")

const snapshotBuffer = 4

// DocumentStore holds one JSON document per identity.
type DocumentStore interface {
	// Get returns the document for id. The boolean is false when none exists.
	Get(ctx context.Context, id string) ([]byte, bool, error)
	// Set overwrites the document for id.
	Set(ctx context.Context, id string, doc []byte) error
	// Subscribe streams the current document, if any, and then every change.
	Subscribe(ctx context.Context, id string) (*Subscription, error)
}

// Subscription is a live feed of full-document snapshots. The channel is
// closed once the subscription ends.
type Subscription struct {
	Snapshots <-chan []byte
	cancel    func()
	once      sync.Once
}

// Close terminates the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

type subscriber struct {
	ch      chan []byte
	closed  bool
	closeMu sync.Mutex
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan []byte, snapshotBuffer)}
}

// deliver queues a snapshot. When the buffer is full the oldest snapshot is
// dropped: every snapshot is a whole document, so only the latest matters.
func (s *subscriber) deliver(doc []byte) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	doc = append([]byte(nil), doc...)
	for {
		select {
		case s.ch <- doc:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
