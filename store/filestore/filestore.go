// Package filestore persists the namespace as one JSON object on disk.
// Handles in different processes pointing at the same file see each
// other's writes through fsnotify.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tutorhub/pkg/logger"
	"tutorhub/store"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const watchBuffer = 64

// Handle owns no cached data: every call re-reads the file. known tracks
// the last contents this handle wrote or observed, so a file event caused
// by its own write produces an empty diff. Writes by other handles that a
// write of ours reads before the watcher does are queued in pending.
type Handle struct {
	path   string
	origin string
	log    *logger.Logger

	mu       sync.Mutex
	known    map[string]string
	pending  []store.Change
	watchers int
	closed   bool
	done     chan struct{}
}

// Open prepares a handle on path, creating parent directories as needed.
// The file itself is created on first write.
func Open(path string, log *logger.Logger) (*Handle, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	h := &Handle{
		path:   path,
		origin: uuid.NewString(),
		log:    log.Component("filestore").WithField("path", path),
		done:   make(chan struct{}),
	}

	data, err := h.readFile()
	if err != nil {
		return nil, err
	}
	h.known = data
	return h, nil
}

func (h *Handle) Name() string   { return "file" }
func (h *Handle) Origin() string { return h.origin }
func (h *Handle) Path() string   { return h.path }

func (h *Handle) readFile() (map[string]string, error) {
	raw, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]string{}, nil
	}

	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("store file is not a JSON object: %w", err)
	}
	return data, nil
}

// writeFile replaces the file atomically through a rename
func (h *Handle) writeFile(data map[string]string) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), "."+filepath.Base(h.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (h *Handle) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return store.ErrClosed
	}
	return nil
}

func (h *Handle) Get(ctx context.Context, key string) (string, bool, error) {
	if err := h.lock(ctx); err != nil {
		return "", false, err
	}
	defer h.mu.Unlock()

	data, err := h.readFile()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// update runs fn against the current file contents and writes them back
// when fn reports a change
func (h *Handle) update(ctx context.Context, fn func(map[string]string) bool) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.mu.Unlock()

	data, err := h.readFile()
	if err != nil {
		return err
	}
	if h.watchers > 0 {
		h.pending = append(h.pending, changesBetween(h.known, data)...)
	}
	h.known = copyMap(data)

	if !fn(data) {
		return nil
	}
	if err := h.writeFile(data); err != nil {
		return err
	}
	h.known = data
	return nil
}

func (h *Handle) Set(ctx context.Context, key, value string) error {
	return h.update(ctx, func(data map[string]string) bool {
		if old, ok := data[key]; ok && old == value {
			return false
		}
		data[key] = value
		return true
	})
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	return h.update(ctx, func(data map[string]string) bool {
		if _, ok := data[key]; !ok {
			return false
		}
		delete(data, key)
		return true
	})
}

// CompareAndSwap is atomic between handles of this process only; the file
// carries no lock visible to other processes.
func (h *Handle) CompareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error) {
	swapped := false
	err := h.update(ctx, func(data map[string]string) bool {
		current, ok := data[key]
		if old == nil && ok {
			return false
		}
		if old != nil && (!ok || current != *old) {
			return false
		}
		data[key] = value
		swapped = true
		return true
	})
	return swapped, err
}

func (h *Handle) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	data, err := h.readFile()
	if err != nil {
		return nil, err
	}

	var keys []string
	for k := range data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch reports keys whose value differs from what this handle last
// wrote or observed. The parent directory is watched because writes
// replace the file.
func (h *Handle) Watch(ctx context.Context) (<-chan store.Change, error) {
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	h.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(h.path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch store directory: %w", err)
	}

	h.mu.Lock()
	h.watchers++
	h.mu.Unlock()

	out := make(chan store.Change, watchBuffer)
	target := filepath.Clean(h.path)

	go func() {
		defer close(out)
		defer fsw.Close()
		defer func() {
			h.mu.Lock()
			h.watchers--
			if h.watchers == 0 {
				h.pending = nil
			}
			h.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}
				for _, change := range h.diff() {
					select {
					case out <- change:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				h.log.WithError(err).Warn("file watcher error")
			}
		}
	}()

	return out, nil
}

// diff re-reads the file and returns the queued changes followed by the
// changes against known
func (h *Handle) diff() []store.Change {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, err := h.readFile()
	if err != nil {
		// A half-written file from another process; the next event retries
		h.log.WithError(err).Debug("skipping unreadable store file")
		return nil
	}

	changes := append(h.pending, changesBetween(h.known, current)...)
	h.pending = nil
	h.known = current
	return changes
}

func changesBetween(known, current map[string]string) []store.Change {
	var changes []store.Change
	for k, v := range current {
		if old, ok := known[k]; !ok || old != v {
			changes = append(changes, store.Change{Key: k, Old: old, New: v})
		}
	}
	for k, old := range known {
		if _, ok := current[k]; !ok {
			changes = append(changes, store.Change{Key: k, Old: old})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.done)
	return nil
}

var (
	_ store.Backend = (*Handle)(nil)
	_ store.Watcher = (*Handle)(nil)
)
