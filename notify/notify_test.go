package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain discards signals until the channel stays quiet briefly
func drain(ch <-chan Signal) {
	for {
		select {
		case <-ch:
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func TestBroadcastIsSynchronous(t *testing.T) {
	n := New(logger.Discard())

	var got []Signal
	sub := n.Subscribe(func(s Signal) { got = append(got, s) })
	defer sub.Close()

	n.Broadcast()
	require.Len(t, got, 1, "delivered before Broadcast returned")
	assert.Equal(t, SourceLocal, got[0].Source)
}

func TestCloseIsIdempotent(t *testing.T) {
	n := New(logger.Discard())

	var calls atomic.Int32
	sub := n.Subscribe(func(Signal) { calls.Add(1) })
	assert.Equal(t, 1, n.Listeners())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, n.Listeners())

	n.Broadcast()
	assert.Zero(t, calls.Load())
}

func TestListenerMayUnsubscribeDuringDelivery(t *testing.T) {
	n := New(logger.Discard())

	var sub *Subscription
	calls := 0
	sub = n.Subscribe(func(Signal) {
		calls++
		sub.Close()
	})

	n.Broadcast()
	n.Broadcast()
	assert.Equal(t, 1, calls)
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	n := New(logger.Discard())

	defer n.Subscribe(func(Signal) { panic("boom") }).Close()
	reached := false
	defer n.Subscribe(func(Signal) { reached = true }).Close()

	assert.NotPanics(t, n.Broadcast)
	assert.True(t, reached)
}

func TestRelayDeliversOtherContextWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ns := memstore.NewNamespace()
	tabA, tabB := ns.Open(), ns.Open()

	n := New(logger.Discard())
	signals := make(chan Signal, 4)
	defer n.Subscribe(func(s Signal) { signals <- s }).Close()

	done := make(chan error, 1)
	go func() { done <- n.Relay(ctx, tabA) }()

	// Wait for the relay to register its watcher
	require.Eventually(t, func() bool {
		_ = tabB.Set(ctx, "probe", time.Now().String())
		select {
		case <-signals:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	drain(signals)

	require.NoError(t, tabB.Set(ctx, "users", "[]"))
	select {
	case s := <-signals:
		assert.Equal(t, SourceRemote, s.Source)
		assert.Equal(t, "users", s.Key)
	case <-time.After(time.Second):
		t.Fatal("remote write not relayed")
	}

	// Writes through the relayed handle itself stay local
	require.NoError(t, tabA.Set(ctx, "users", "[1]"))
	select {
	case s := <-signals:
		t.Fatalf("own write relayed: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestStoreMutationReachesLocalAndRemoteListeners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ns := memstore.NewNamespace()
	writerTab, readerTab := ns.Open(), ns.Open()

	writerNotifier := New(logger.Discard())
	readerNotifier := New(logger.Discard())

	var local, remote atomic.Int32
	defer writerNotifier.Subscribe(func(Signal) { local.Add(1) }).Close()
	defer readerNotifier.Subscribe(func(s Signal) {
		if s.Source == SourceRemote {
			remote.Add(1)
		}
	}).Close()

	go readerNotifier.Relay(ctx, readerTab)

	st := store.New(writerTab, writerNotifier, store.Options{Logger: logger.Discard()})
	users := store.NewCollection(st, "users", func(s string) string { return s })

	// Relay may not be watching yet; keep writing until the reader hears one
	require.Eventually(t, func() bool {
		_ = users.Upsert(ctx, time.Now().String())
		return remote.Load() > 0
	}, time.Second, 10*time.Millisecond)

	assert.Positive(t, local.Load())
}

func TestSignalsCoalesceAndClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(logger.Discard())

	ch := n.Signals(ctx)
	n.Broadcast()
	n.Broadcast()
	n.Broadcast()

	s, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, SourceLocal, s.Source)

	select {
	case <-ch:
		t.Fatal("burst was not coalesced")
	default:
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, n.Listeners())
}
