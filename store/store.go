package store

import (
	"context"
	"encoding/json"
	"time"

	"tutorhub/apperrors"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
)

// Broadcaster receives a call after every successful local mutation
type Broadcaster interface {
	Broadcast()
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast() {}

type Options struct {
	Logger        *logger.Logger
	MutateRetries int
}

// Store is the injectable entry point to the shared namespace. It owns
// serialization and the local change broadcast; it holds no cached state.
type Store struct {
	backend  Backend
	notifier Broadcaster
	log      *logger.Logger
	retries  int
}

func New(backend Backend, notifier Broadcaster, opts Options) *Store {
	if notifier == nil {
		notifier = noopBroadcaster{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.MutateRetries < 1 {
		opts.MutateRetries = 5
	}

	return &Store{
		backend:  backend,
		notifier: notifier,
		log:      opts.Logger.Component("store").WithField("backend", backend.Name()),
		retries:  opts.MutateRetries,
	}
}

func (s *Store) Backend() Backend {
	return s.backend
}

// Raw reads a value without decoding it
func (s *Store) Raw(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, ok, err := s.backend.Get(ctx, key)
	metrics.RecordBackendOperation(s.backend.Name(), "get", time.Since(start).Seconds(), err == nil)
	if err != nil {
		metrics.RecordStoreRead(key, "error")
		return "", false, apperrors.NewStorageUnavailable("get", key, err)
	}
	return value, ok, nil
}

// GetJSON decodes key into v. It reports false when the key is absent or
// holds a value that does not decode; the latter is logged and v is left
// untouched.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.Raw(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.RecordStoreRead(key, "missing")
		return false, nil
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.malformed(key, err)
		return false, nil
	}

	metrics.RecordStoreRead(key, "ok")
	return true, nil
}

// SetJSON overwrites key with the JSON encoding of v and broadcasts
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInternalError("Failed to encode value").WithInternal(err).WithDetails("key", key)
	}
	if err := s.put(ctx, key, string(data)); err != nil {
		return err
	}
	s.notifier.Broadcast()
	return nil
}

// Delete removes key and broadcasts
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.backend.Delete(ctx, key)
	metrics.RecordBackendOperation(s.backend.Name(), "delete", time.Since(start).Seconds(), err == nil)
	if err != nil {
		metrics.RecordStoreWrite(key, "error", 0)
		return apperrors.NewStorageUnavailable("delete", key, err)
	}
	s.notifier.Broadcast()
	return nil
}

// Keys lists the keys that start with prefix
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, apperrors.NewStorageUnavailable("keys", prefix, err)
	}
	return keys, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.backend.Set(ctx, key, value)
	metrics.RecordBackendOperation(s.backend.Name(), "set", time.Since(start).Seconds(), err == nil)
	if err != nil {
		metrics.RecordStoreWrite(key, "error", 0)
		return apperrors.NewStorageUnavailable("set", key, err)
	}
	metrics.RecordStoreWrite(key, "ok", len(value))
	return nil
}

func (s *Store) compareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error) {
	start := time.Now()
	swapped, err := s.backend.CompareAndSwap(ctx, key, old, value)
	metrics.RecordBackendOperation(s.backend.Name(), "cas", time.Since(start).Seconds(), err == nil)
	if err != nil {
		metrics.RecordStoreWrite(key, "error", 0)
		return false, apperrors.NewStorageUnavailable("compare_and_swap", key, err)
	}
	if !swapped {
		metrics.RecordStoreWrite(key, "conflict", 0)
		return false, nil
	}
	metrics.RecordStoreWrite(key, "ok", len(value))
	return true, nil
}

func (s *Store) malformed(key string, err error) {
	metrics.RecordStoreRead(key, "malformed")
	s.log.LogAppError(apperrors.NewMalformedStorage(key, err), logger.WARN, "treating stored value as empty")
}
