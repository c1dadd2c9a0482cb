package store_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"tutorhub/apperrors"
	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type item struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func itemKey(i item) string { return i.ID }

type countingBroadcaster struct {
	n atomic.Int32
}

func (c *countingBroadcaster) Broadcast() { c.n.Add(1) }

// racingBackend lets another context write just before each of the first
// `races` compare-and-swap calls
type racingBackend struct {
	*memstore.Handle
	rival *memstore.Handle
	races int
	calls int
}

func (r *racingBackend) CompareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error) {
	r.calls++
	if r.races > 0 {
		r.races--
		rival := store.New(r.rival, nil, store.Options{Logger: logger.Discard()})
		if err := store.NewCollection(rival, key, itemKey).Upsert(ctx, item{ID: "rival", Value: r.calls}); err != nil {
			return false, err
		}
	}
	return r.Handle.CompareAndSwap(ctx, key, old, value)
}

type failingBackend struct {
	*memstore.Handle
}

var errDown = errors.New("connection refused")

func (failingBackend) Get(context.Context, string) (string, bool, error) { return "", false, errDown }
func (failingBackend) Set(context.Context, string, string) error         { return errDown }

type StoreTestSuite struct {
	suite.Suite
	ctx      context.Context
	ns       *memstore.Namespace
	handle   *memstore.Handle
	notifier *countingBroadcaster
	store    *store.Store
	items    *store.Collection[item]
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ns = memstore.NewNamespace()
	s.handle = s.ns.Open()
	s.notifier = &countingBroadcaster{}
	s.store = store.New(s.handle, s.notifier, store.Options{Logger: logger.Discard(), MutateRetries: 3})
	s.items = store.NewCollection(s.store, "items", itemKey)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestListMissingIsEmpty() {
	records, err := s.items.List(s.ctx)
	s.Require().NoError(err)
	s.NotNil(records)
	s.Empty(records)
}

func (s *StoreTestSuite) TestUpsertPreservesPosition() {
	s.Require().NoError(s.items.SaveAll(s.ctx, []item{{"a", 1}, {"b", 2}, {"c", 3}}))
	s.Require().NoError(s.items.Upsert(s.ctx, item{"b", 20}))

	records, err := s.items.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]item{{"a", 1}, {"b", 20}, {"c", 3}}, records)

	s.Require().NoError(s.items.Upsert(s.ctx, item{"d", 4}))
	records, _ = s.items.List(s.ctx)
	s.Equal(item{"d", 4}, records[3])
	s.Len(records, 4)
}

func (s *StoreTestSuite) TestRemove() {
	s.Require().NoError(s.items.SaveAll(s.ctx, []item{{"a", 1}, {"b", 2}}))
	s.Require().NoError(s.items.Remove(s.ctx, "a"))

	records, _ := s.items.List(s.ctx)
	s.Equal([]item{{"b", 2}}, records)

	_, found, err := s.items.Find(s.ctx, "a")
	s.Require().NoError(err)
	s.False(found)
}

func (s *StoreTestSuite) TestEveryMutationBroadcasts() {
	s.Require().NoError(s.items.Upsert(s.ctx, item{"a", 1}))
	s.Require().NoError(s.items.Remove(s.ctx, "missing"))
	s.Require().NoError(s.items.SaveAll(s.ctx, nil))
	_, err := s.items.Mutate(s.ctx, func(r []item) ([]item, error) { return r, nil })
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetJSON(s.ctx, "currentUser", "a"))
	s.Require().NoError(s.store.Delete(s.ctx, "currentUser"))

	s.Equal(int32(6), s.notifier.n.Load())
}

func (s *StoreTestSuite) TestWritesVersionedEnvelope() {
	s.Require().NoError(s.items.Upsert(s.ctx, item{"a", 1}))
	s.Require().NoError(s.items.Upsert(s.ctx, item{"b", 2}))

	raw, ok, err := s.store.Raw(s.ctx, "items")
	s.Require().NoError(err)
	s.True(ok)
	s.JSONEq(`{"version":1,"revision":2,"records":[{"id":"a","value":1},{"id":"b","value":2}]}`, raw)
}

func (s *StoreTestSuite) TestReadsLegacyArray() {
	s.Require().NoError(s.handle.Set(s.ctx, "items", `[{"id":"a","value":1}]`))

	records, err := s.items.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]item{{"a", 1}}, records)
}

func (s *StoreTestSuite) TestMalformedValueReadsAsEmpty() {
	for _, raw := range []string{`{not json`, `"a string"`, `{"version":99,"records":[]}`} {
		s.Require().NoError(s.handle.Set(s.ctx, "items", raw))

		records, err := s.items.List(s.ctx)
		s.Require().NoError(err, raw)
		s.Empty(records, raw)
	}

	s.Require().NoError(s.items.Upsert(s.ctx, item{"a", 1}))
	records, _ := s.items.List(s.ctx)
	s.Equal([]item{{"a", 1}}, records)
}

func (s *StoreTestSuite) TestGetJSONMalformed() {
	s.Require().NoError(s.handle.Set(s.ctx, "readCount_amina", "three"))

	count := 7
	ok, err := s.store.GetJSON(s.ctx, "readCount_amina", &count)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(7, count)
}

func (s *StoreTestSuite) TestMutateRetriesAfterConcurrentWrite() {
	racer := &racingBackend{Handle: s.handle, rival: s.ns.Open(), races: 1}
	st := store.New(racer, s.notifier, store.Options{Logger: logger.Discard(), MutateRetries: 3})
	items := store.NewCollection(st, "items", itemKey)

	runs := 0
	result, err := items.Mutate(s.ctx, func(r []item) ([]item, error) {
		runs++
		return store.Upsert(r, item{"mine", 1}, itemKey), nil
	})
	s.Require().NoError(err)
	s.Equal(2, runs)

	ids := []string{}
	for _, r := range result {
		ids = append(ids, r.ID)
	}
	s.Equal([]string{"rival", "mine"}, ids, "the rival's write is kept")
}

func (s *StoreTestSuite) TestMutateGivesUpAfterRetries() {
	racer := &racingBackend{Handle: s.handle, rival: s.ns.Open(), races: 10}
	st := store.New(racer, s.notifier, store.Options{Logger: logger.Discard(), MutateRetries: 3})
	items := store.NewCollection(st, "items", itemKey)

	_, err := items.Mutate(s.ctx, func(r []item) ([]item, error) { return r, nil })
	s.Require().Error(err)
	s.True(apperrors.HasCode(err, apperrors.ErrCodeRevisionConflict))
	s.Equal(3, racer.calls)
}

func (s *StoreTestSuite) TestMutateErrorDoesNotWrite() {
	s.Require().NoError(s.items.Upsert(s.ctx, item{"a", 1}))
	before, _, _ := s.store.Raw(s.ctx, "items")
	broadcasts := s.notifier.n.Load()

	_, err := s.items.Mutate(s.ctx, func([]item) ([]item, error) {
		return nil, apperrors.NewNotFound("Item", "zzz")
	})
	s.True(apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	after, _, _ := s.store.Raw(s.ctx, "items")
	s.Equal(before, after)
	s.Equal(broadcasts, s.notifier.n.Load())
}

func TestBackendFailureIsReported(t *testing.T) {
	ctx := context.Background()
	notifier := &countingBroadcaster{}
	st := store.New(failingBackend{memstore.New()}, notifier, store.Options{Logger: logger.Discard()})
	items := store.NewCollection(st, "items", itemKey)

	_, err := items.List(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))
	assert.ErrorIs(t, err, errDown)

	err = items.Upsert(ctx, item{"a", 1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))
	assert.Zero(t, notifier.n.Load())
}
