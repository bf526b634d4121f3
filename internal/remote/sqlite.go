package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = time.Second

// SQLiteStore keeps documents in the plannings table. Subscriptions poll the
// row version, so writes from other processes sharing the file are seen too.
type SQLiteStore struct {
	db       *sql.DB
	interval time.Duration
	logger   *zap.Logger
}

// NewSQLiteStore wraps a database whose schema has been migrated.
func NewSQLiteStore(db *sql.DB, interval time.Duration, logger *zap.Logger) *SQLiteStore {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &SQLiteStore{db: db, interval: interval, logger: logger}
}

// Get returns the document stored for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	doc, _, ok, err := s.load(ctx, id)
	return doc, ok, err
}

// Set upserts the document and bumps its version.
func (s *SQLiteStore) Set(ctx context.Context, id string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO plannings (user_id, document, version, updated_at)
VALUES (?, ?, 1, CURRENT_TIMESTAMP)
ON CONFLICT (user_id) DO UPDATE
SET document = excluded.document,
    version = plannings.version + 1,
    updated_at = CURRENT_TIMESTAMP
`, id, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save planning for %s: %w", id, err)
	}
	return nil
}

// Subscribe polls the document for id and emits it whenever its version moves.
func (s *SQLiteStore) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscriber()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer sub.close()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		var seen int64
		for {
			doc, version, ok, err := s.load(ctx, id)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				s.logger.Warn("failed to poll planning", zap.String("user_id", id), zap.Error(err))
			case ok && version != seen:
				seen = version
				sub.deliver(doc)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return &Subscription{
		Snapshots: sub.ch,
		cancel: func() {
			cancel()
			<-done
		},
	}, nil
}

func (s *SQLiteStore) load(ctx context.Context, id string) ([]byte, int64, bool, error) {
	var (
		doc     string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT document, version FROM plannings WHERE user_id = ?`, id).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to load planning for %s: %w", id, err)
	}
	return []byte(doc), version, true, nil
}
