// Package notify fans "something changed" signals out to listeners. Local
// mutations are broadcast synchronously; writes made by other contexts
// arrive through a backend watcher and are relayed the same way.
// Listeners re-read whatever they display; signals carry no data to apply.
package notify

import (
	"context"
	"sync"

	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/store"
)

type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Signal tells a listener to re-run its read path. Key is set for remote
// signals when the backend reports it; empty means any key.
type Signal struct {
	Source Source `json:"source"`
	Key    string `json:"key,omitempty"`
}

type Listener func(Signal)

type Notifier struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	log       *logger.Logger
}

func New(log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Notifier{
		listeners: make(map[uint64]Listener),
		log:       log.Component("notify"),
	}
}

// Subscription is released with Close, which is safe to call repeatedly
type Subscription struct {
	n    *Notifier
	id   uint64
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.listeners, s.id)
		s.n.mu.Unlock()
		metrics.ListenersActive.Dec()
	})
}

func (n *Notifier) Subscribe(fn Listener) *Subscription {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners[id] = fn
	n.mu.Unlock()

	metrics.ListenersActive.Inc()
	return &Subscription{n: n, id: id}
}

// Listeners returns the number of active subscriptions
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Broadcast delivers a local signal to every listener before returning
func (n *Notifier) Broadcast() {
	n.deliver(Signal{Source: SourceLocal})
}

func (n *Notifier) deliver(sig Signal) {
	n.mu.RLock()
	listeners := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.RUnlock()

	metrics.RecordBroadcast(string(sig.Source))
	for _, fn := range listeners {
		n.call(fn, sig)
	}
}

func (n *Notifier) call(fn Listener, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithField("panic", r).Error("listener panicked")
		}
	}()
	fn(sig)
}

// Relay forwards changes observed by w until ctx ends or the watch
// channel closes
func (n *Notifier) Relay(ctx context.Context, w store.Watcher) error {
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			n.log.WithField("key", change.Key).Debug("relaying remote change")
			n.deliver(Signal{Source: SourceRemote, Key: change.Key})
		}
	}
}

// Signals adapts the notifier to a channel for stream handlers. Bursts
// coalesce into one pending signal. The channel closes when ctx ends.
func (n *Notifier) Signals(ctx context.Context) <-chan Signal {
	ch := make(chan Signal, 1)

	var (
		mu     sync.Mutex
		closed bool
	)
	sub := n.Subscribe(func(sig Signal) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- sig:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		sub.Close()

		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

var _ store.Broadcaster = (*Notifier)(nil)
