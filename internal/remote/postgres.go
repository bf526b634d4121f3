package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const notifyChannel = "plannings"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS plannings (
  user_id    TEXT PRIMARY KEY,
  document   JSONB NOT NULL,
  version    BIGINT NOT NULL DEFAULT 1,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps documents in PostgreSQL and pushes changes with
// LISTEN/NOTIFY on the plannings channel. The payload is the user id.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	retryInitial time.Duration
	retryMax     time.Duration
}

// NewPostgresStore connects to dbURL and makes sure the plannings table exists.
func NewPostgresStore(ctx context.Context, dbURL string, logger *zap.Logger) (*PostgresStore, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("db url missing")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := &PostgresStore{
		pool:         pool,
		logger:       logger,
		retryInitial: 250 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the plannings table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create plannings table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get returns the document stored for id.
func (s *PostgresStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document::text FROM plannings WHERE user_id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load planning for %s: %w", id, err)
	}
	return doc, true, nil
}

// Set upserts the document and notifies listeners in the same transaction.
func (s *PostgresStore) Set(ctx context.Context, id string, doc []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO plannings (user_id, document, version, updated_at)
VALUES ($1, $2::jsonb, 1, now())
ON CONFLICT (user_id) DO UPDATE
SET document = EXCLUDED.document,
    version = plannings.version + 1,
    updated_at = now()
`, id, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save planning for %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id); err != nil {
		return fmt.Errorf("failed to notify planning change: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit planning for %s: %w", id, err)
	}
	return nil
}

// Subscribe listens for changes of id on a dedicated connection. The current
// document is emitted first when one exists. A dropped listener connection is
// re-established with exponential backoff and the current document is emitted
// again, so changes made while disconnected are not lost.
func (s *PostgresStore) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	conn, err := s.listenConn(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscriber()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer sub.close()

		retry := s.newBackOff()
		for {
			err := s.listen(ctx, conn, id, sub)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("planning listener dropped, reconnecting", zap.String("user_id", id), zap.Error(err))

			for {
				wait := retry.NextBackOff()
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				conn, err = s.listenConn(ctx)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("failed to reconnect planning listener", zap.String("user_id", id), zap.Duration("waited", wait), zap.Error(err))
			}
			retry.Reset()
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

func (s *PostgresStore) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxInterval = s.retryMax
	b.MaxElapsedTime = 0
	return b
}

// listenConn acquires a connection and subscribes it to the plannings channel.
func (s *PostgresStore) listenConn(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for planning changes: %w", err)
	}
	return conn, nil
}

// listen emits the current document, then one per notification for id, until
// the connection fails or ctx is done. The connection is always released.
func (s *PostgresStore) listen(ctx context.Context, conn *pgxpool.Conn, id string, sub *subscriber) error {
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN "+notifyChannel); err != nil {
			conn.Conn().Close(unlistenCtx)
		}
		conn.Release()
	}()

	s.emit(ctx, id, sub)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload == id {
			s.emit(ctx, id, sub)
		}
	}
}

func (s *PostgresStore) emit(ctx context.Context, id string, sub *subscriber) {
	doc, ok, err := s.Get(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("failed to read planning after notification", zap.String("user_id", id), zap.Error(err))
		}
		return
	}
	if ok {
		sub.deliver(doc)
	}
}
