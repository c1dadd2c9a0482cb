// Package pgstore keeps the namespace in a PostgreSQL table. Writes are
// announced with NOTIFY inside the writing transaction, so listeners only
// hear about committed values.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tutorhub/pkg/breaker"
	"tutorhub/pkg/logger"
	"tutorhub/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
)

const watchBuffer = 64

type Options struct {
	// ConnString is needed by Watch, which holds its own connection
	ConnString string
	Channel    string
	Logger     *logger.Logger
}

// notification is the NOTIFY payload. Values are left out because NOTIFY
// payloads are capped at 8000 bytes.
type notification struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
}

type Handle struct {
	db      *sql.DB
	connStr string
	channel string
	origin  string
	cb      *gobreaker.CircuitBreaker
	log     *logger.Logger

	mu        sync.Mutex
	closed    bool
	listeners []*pq.Listener
}

// Open connects and applies migrations
func Open(ctx context.Context, opts Options) (*Handle, error) {
	db, err := sql.Open("postgres", opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return New(db, opts), nil
}

// New wraps an open database whose schema is already migrated
func New(db *sql.DB, opts Options) *Handle {
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Channel == "" {
		opts.Channel = "tutorhub_changes"
	}

	return &Handle{
		db:      db,
		connStr: opts.ConnString,
		channel: opts.Channel,
		origin:  uuid.NewString(),
		cb: breaker.New(breaker.Config{
			Name:     "postgres-store",
			Interval: 60 * time.Second,
			Timeout:  15 * time.Second,
		}),
		log: opts.Logger.Component("pgstore"),
	}
}

func (h *Handle) Name() string   { return "postgres" }
func (h *Handle) Origin() string { return h.origin }

func (h *Handle) DB() *sql.DB {
	return h.db
}

func (h *Handle) check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return store.ErrClosed
	}
	return nil
}

type lookup struct {
	value string
	found bool
}

func (h *Handle) Get(ctx context.Context, key string) (string, bool, error) {
	if err := h.check(); err != nil {
		return "", false, err
	}

	res, err := breaker.Execute(ctx, h.cb, func() (lookup, error) {
		var value string
		err := h.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{value: value, found: true}, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return res.value, res.found, nil
}

// exec runs query in a transaction and, when it touched a row, queues a
// NOTIFY for key before committing
func (h *Handle) exec(ctx context.Context, key, query string, args ...any) (bool, error) {
	return breaker.Execute(ctx, h.cb, func() (bool, error) {
		tx, err := h.db.BeginTx(ctx, nil)
		if err != nil {
			return false, err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return false, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if affected == 0 {
			return false, tx.Commit()
		}

		payload, err := json.Marshal(notification{Origin: h.origin, Key: key})
		if err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, h.channel, string(payload)); err != nil {
			return false, err
		}
		return true, tx.Commit()
	})
}

func (h *Handle) Set(ctx context.Context, key, value string) error {
	if err := h.check(); err != nil {
		return err
	}

	_, err := h.exec(ctx, key, `
		INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		WHERE kv_entries.value IS DISTINCT FROM EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	if err := h.check(); err != nil {
		return err
	}

	if _, err := h.exec(ctx, key, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

func (h *Handle) CompareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}

	var (
		swapped bool
		err     error
	)
	if old == nil {
		swapped, err = h.exec(ctx, key,
			`INSERT INTO kv_entries (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, value)
	} else {
		swapped, err = h.exec(ctx, key,
			`UPDATE kv_entries SET value = $2, updated_at = now() WHERE key = $1 AND value = $3`, key, value, *old)
	}
	if err != nil {
		return false, fmt.Errorf("postgres compare-and-swap %s: %w", key, err)
	}
	return swapped, nil
}

func (h *Handle) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	return breaker.Execute(ctx, h.cb, func() ([]string, error) {
		rows, err := h.db.QueryContext(ctx,
			`SELECT key FROM kv_entries WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, likePrefix(prefix))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var keys []string
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return keys, rows.Err()
	})
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// Watch opens a dedicated LISTEN connection. After a reconnect the
// listener may have missed notifications, so it reports a change with an
// empty key, telling subscribers to re-read everything.
func (h *Handle) Watch(ctx context.Context) (<-chan store.Change, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if h.connStr == "" {
		return nil, errors.New("postgres watch requires a connection string")
	}

	listener := pq.NewListener(h.connStr, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			h.log.WithError(err).WithField("event", int(ev)).Warn("listener connection event")
		}
	})
	if err := listener.Listen(h.channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", h.channel, err)
	}

	h.mu.Lock()
	h.listeners = append(h.listeners, listener)
	h.mu.Unlock()

	out := make(chan store.Change, watchBuffer)

	go func() {
		defer close(out)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}

				var change store.Change
				if n != nil {
					var payload notification
					if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
						h.log.WithError(err).Warn("dropping malformed notification")
						continue
					}
					if payload.Origin == h.origin {
						continue
					}
					change = store.Change{Origin: payload.Origin, Key: payload.Key}
				}

				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close stops listeners and closes the database
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	listeners := h.listeners
	h.listeners = nil
	h.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	return h.db.Close()
}

var (
	_ store.Backend = (*Handle)(nil)
	_ store.Watcher = (*Handle)(nil)
)
