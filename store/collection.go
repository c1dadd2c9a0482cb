package store

import (
	"context"

	"tutorhub/apperrors"
	"tutorhub/pkg/metrics"
)

// Collection is a persisted ordered sequence of records with a unique key.
// Every mutation reads the current value, writes the whole collection back
// and broadcasts. Upsert, Remove and SaveAll are last-writer-wins; Mutate
// rejects a write when another writer got there first and retries.
// keyOf may be nil for append-only logs that never look records up.
type Collection[T any] struct {
	store *Store
	key   string
	keyOf func(T) string
}

func NewCollection[T any](s *Store, key string, keyOf func(T) string) *Collection[T] {
	return &Collection[T]{store: s, key: key, keyOf: keyOf}
}

func (c *Collection[T]) Key() string {
	return c.key
}

// List returns the records in stored order. Missing or undecodable values
// yield an empty collection.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	records, _, _, err := c.load(ctx)
	return records, err
}

// Find returns the first record whose key equals id
func (c *Collection[T]) Find(ctx context.Context, id string) (T, bool, error) {
	var zero T
	records, err := c.List(ctx)
	if err != nil {
		return zero, false, err
	}
	if i := c.indexOf(records, id); i >= 0 {
		return records[i], true, nil
	}
	return zero, false, nil
}

// Upsert replaces the record with the same key in place, or appends it
func (c *Collection[T]) Upsert(ctx context.Context, record T) error {
	records, revision, _, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, Upsert(records, record, c.keyOf), revision+1)
}

// Append adds records to the end, last-writer-wins like Upsert
func (c *Collection[T]) Append(ctx context.Context, records ...T) error {
	current, revision, _, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, append(current, records...), revision+1)
}

// Remove drops every record with key id. Removing an absent key still
// writes and broadcasts.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	records, revision, _, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, c.without(records, id), revision+1)
}

// SaveAll overwrites the collection unconditionally
func (c *Collection[T]) SaveAll(ctx context.Context, records []T) error {
	_, revision, _, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, records, revision+1)
}

// Mutate applies fn to the current records and writes the result only if
// the stored value is still the one fn saw. On a lost race fn runs again
// against the fresh value, up to the configured number of attempts. An
// error from fn aborts without writing.
func (c *Collection[T]) Mutate(ctx context.Context, fn func([]T) ([]T, error)) ([]T, error) {
	for attempt := 1; attempt <= c.store.retries; attempt++ {
		records, revision, raw, err := c.load(ctx)
		if err != nil {
			return nil, err
		}

		next, err := fn(records)
		if err != nil {
			return nil, err
		}

		encoded, err := encodeRecords(next, revision+1)
		if err != nil {
			return nil, apperrors.NewInternalError("Failed to encode collection").WithInternal(err).WithDetails("key", c.key)
		}

		swapped, err := c.store.compareAndSwap(ctx, c.key, raw, encoded)
		if err != nil {
			return nil, err
		}
		if swapped {
			c.store.notifier.Broadcast()
			return nonNil(next), nil
		}

		c.store.log.WithField("key", c.key).WithField("attempt", attempt).Debug("revision conflict, retrying")
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, apperrors.NewRevisionConflict(c.key, c.store.retries)
}

// load returns the records, their revision and the raw value they were
// decoded from (nil when the key is absent)
func (c *Collection[T]) load(ctx context.Context) ([]T, int64, *string, error) {
	raw, ok, err := c.store.Raw(ctx, c.key)
	if err != nil {
		return nil, 0, nil, err
	}
	if !ok {
		metrics.RecordStoreRead(c.key, "missing")
		return []T{}, 0, nil, nil
	}

	records, revision, err := decodeRecords[T](raw)
	if err != nil {
		c.store.malformed(c.key, err)
		return []T{}, 0, &raw, nil
	}

	metrics.RecordStoreRead(c.key, "ok")
	return records, revision, &raw, nil
}

func (c *Collection[T]) write(ctx context.Context, records []T, revision int64) error {
	encoded, err := encodeRecords(records, revision)
	if err != nil {
		return apperrors.NewInternalError("Failed to encode collection").WithInternal(err).WithDetails("key", c.key)
	}
	if err := c.store.put(ctx, c.key, encoded); err != nil {
		return err
	}
	c.store.notifier.Broadcast()
	return nil
}

func (c *Collection[T]) indexOf(records []T, id string) int {
	for i, r := range records {
		if c.keyOf(r) == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) without(records []T, id string) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if c.keyOf(r) != id {
			out = append(out, r)
		}
	}
	return out
}

// Upsert replaces the record sharing record's key, keeping its position,
// or appends. The input slice is not modified.
func Upsert[T any](records []T, record T, keyOf func(T) string) []T {
	id := keyOf(record)
	out := make([]T, len(records), len(records)+1)
	copy(out, records)
	for i, r := range out {
		if keyOf(r) == id {
			out[i] = record
			return out
		}
	}
	return append(out, record)
}
