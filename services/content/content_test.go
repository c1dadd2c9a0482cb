package content

import (
	"context"
	"testing"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.New(memstore.New(), nil, store.Options{Logger: logger.Discard()})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(st, Options{
		Logger: logger.Discard(),
		Now: func() time.Time {
			now = now.Add(time.Minute)
			return now
		},
	})
	return svc, st
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("Notices")
	assert.True(t, ok)
	assert.Equal(t, KindNotices, k)

	_, ok = ParseKind("posts")
	assert.False(t, ok)
}

func TestBoard_CreateAssignsIDAndTimestamp(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Notices.Create(ctx, db.Notice{ID: "ignored", Title: "Exam week", Body: "Good luck"})
	require.NoError(t, err)
	b, err := svc.Notices.Create(ctx, db.Notice{Title: "Holiday", Priority: "high"})
	require.NoError(t, err)

	assert.NotEqual(t, "ignored", a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())

	notices, err := svc.Notices.List(ctx)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "Exam week", notices[0].Title)
	assert.Equal(t, "Holiday", notices[1].Title)
}

func TestBoard_UpdateKeepsPosition(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, _ := svc.Links.Create(ctx, db.Link{Title: "Docs", URL: "https://example.com/docs"})
	_, _ = svc.Links.Create(ctx, db.Link{Title: "Forum", URL: "https://example.com/forum"})

	updated, err := svc.Links.Update(ctx, first.ID, db.Link{Title: "Manual", URL: "https://example.com/manual"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)

	links, _ := svc.Links.List(ctx)
	require.Len(t, links, 2)
	assert.Equal(t, "Manual", links[0].Title)
	assert.Equal(t, "Forum", links[1].Title)
}

func TestBoard_UpdateAndDeleteMissing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Banners.Update(ctx, "nope", db.Banner{Title: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	err = svc.Banners.Delete(ctx, "nope")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestBoard_Delete(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	banner, _ := svc.Banners.Create(ctx, db.Banner{Title: "Welcome", LinkURL: "https://example.com"})
	require.NoError(t, svc.Banners.Delete(ctx, banner.ID))

	banners, _ := svc.Banners.List(ctx)
	assert.Empty(t, banners)

	raw, ok, err := st.Raw(ctx, db.KeyBanners)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, raw, `"records":[]`)
}

func TestBoard_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		fn   func() error
	}{
		{"empty title", func() error { _, err := svc.Notices.Create(ctx, db.Notice{Title: "  "}); return err }},
		{"bad priority", func() error { _, err := svc.Notices.Create(ctx, db.Notice{Title: "x", Priority: "urgent"}); return err }},
		{"link without scheme", func() error { _, err := svc.Links.Create(ctx, db.Link{Title: "x", URL: "example.com"}); return err }},
		{"banner javascript link", func() error {
			_, err := svc.Banners.Create(ctx, db.Banner{Title: "x", LinkURL: "javascript:alert(1)"})
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, apperrors.HasCode(tc.fn(), apperrors.ErrCodeValidationFailed))
		})
	}

	notices, _ := svc.Notices.List(ctx)
	assert.Empty(t, notices)
}
