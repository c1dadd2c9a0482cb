// Package memstore keeps the namespace in process memory. Several handles
// opened on one Namespace behave like independent contexts sharing a
// storage area, which is how tests exercise cross-context signalling.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tutorhub/store"

	"github.com/google/uuid"
)

const watchBuffer = 64

type watcher struct {
	origin string
	ch     chan store.Change
}

// Namespace is the shared storage area
type Namespace struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[*watcher]struct{}
}

func NewNamespace() *Namespace {
	return &Namespace{
		data:     make(map[string]string),
		watchers: make(map[*watcher]struct{}),
	}
}

// Open returns a new handle with its own origin
func (n *Namespace) Open() *Handle {
	return &Handle{ns: n, origin: uuid.NewString(), done: make(chan struct{})}
}

// Snapshot copies the current contents
func (n *Namespace) Snapshot() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string]string, len(n.data))
	for k, v := range n.data {
		out[k] = v
	}
	return out
}

// notify must be called with n.mu held. A full buffer means the watcher
// already has pending changes to re-read on, so the send is skipped.
func (n *Namespace) notify(change store.Change) {
	for w := range n.watchers {
		if w.origin == change.Origin {
			continue
		}
		select {
		case w.ch <- change:
		default:
		}
	}
}

func (n *Namespace) removeWatcher(w *watcher) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.watchers[w]; ok {
		delete(n.watchers, w)
		close(w.ch)
	}
}

// Handle is one context's view of a Namespace
type Handle struct {
	ns     *Namespace
	origin string

	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	watchers []*watcher
}

// New opens a handle on a fresh private namespace
func New() *Handle {
	return NewNamespace().Open()
}

func (h *Handle) Name() string   { return "memory" }
func (h *Handle) Origin() string { return h.origin }

func (h *Handle) Namespace() *Namespace {
	return h.ns
}

func (h *Handle) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return store.ErrClosed
	}
	return nil
}

func (h *Handle) Get(ctx context.Context, key string) (string, bool, error) {
	if err := h.check(ctx); err != nil {
		return "", false, err
	}

	h.ns.mu.Lock()
	defer h.ns.mu.Unlock()
	v, ok := h.ns.data[key]
	return v, ok, nil
}

func (h *Handle) Set(ctx context.Context, key, value string) error {
	if err := h.check(ctx); err != nil {
		return err
	}

	h.ns.mu.Lock()
	defer h.ns.mu.Unlock()
	h.setLocked(key, value)
	return nil
}

func (h *Handle) setLocked(key, value string) {
	old, existed := h.ns.data[key]
	h.ns.data[key] = value
	if existed && old == value {
		return
	}
	h.ns.notify(store.Change{Origin: h.origin, Key: key, Old: old, New: value})
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	if err := h.check(ctx); err != nil {
		return err
	}

	h.ns.mu.Lock()
	defer h.ns.mu.Unlock()

	old, existed := h.ns.data[key]
	if !existed {
		return nil
	}
	delete(h.ns.data, key)
	h.ns.notify(store.Change{Origin: h.origin, Key: key, Old: old})
	return nil
}

func (h *Handle) CompareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error) {
	if err := h.check(ctx); err != nil {
		return false, err
	}

	h.ns.mu.Lock()
	defer h.ns.mu.Unlock()

	current, existed := h.ns.data[key]
	switch {
	case old == nil && existed:
		return false, nil
	case old != nil && (!existed || current != *old):
		return false, nil
	}

	h.setLocked(key, value)
	return true, nil
}

func (h *Handle) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := h.check(ctx); err != nil {
		return nil, err
	}

	h.ns.mu.Lock()
	defer h.ns.mu.Unlock()

	var keys []string
	for k := range h.ns.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch delivers writes made through other handles of the namespace
func (h *Handle) Watch(ctx context.Context) (<-chan store.Change, error) {
	if err := h.check(ctx); err != nil {
		return nil, err
	}

	w := &watcher{origin: h.origin, ch: make(chan store.Change, watchBuffer)}

	h.ns.mu.Lock()
	h.ns.watchers[w] = struct{}{}
	h.ns.mu.Unlock()

	h.mu.Lock()
	h.watchers = append(h.watchers, w)
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-h.done:
		}
		h.ns.removeWatcher(w)
	}()

	return w.ch, nil
}

// Close detaches the handle; its watch channels are closed
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	watchers := h.watchers
	h.watchers = nil
	h.mu.Unlock()

	for _, w := range watchers {
		h.ns.removeWatcher(w)
	}
	return nil
}

var (
	_ store.Backend = (*Handle)(nil)
	_ store.Watcher = (*Handle)(nil)
)
