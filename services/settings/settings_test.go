package settings

import (
	"context"
	"testing"

	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newRegistry(t *testing.T) (*Registry, *memstore.Handle) {
	t.Helper()
	h := memstore.New()
	st := store.New(h, nil, store.Options{Logger: logger.Discard()})
	return NewRegistry(st, logger.Discard()), h
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		persisted string
		check     func(t *testing.T, s db.AdminSettings)
	}{
		{
			name:      "absent value",
			persisted: "",
			check: func(t *testing.T, s db.AdminSettings) {
				assert.Equal(t, Defaults(), s)
			},
		},
		{
			name:      "older object without new fields",
			persisted: `{"appName":"Bright Minds"}`,
			check: func(t *testing.T, s db.AdminSettings) {
				assert.Equal(t, "Bright Minds", s.AppName)
				assert.Equal(t, Defaults().DailyReward, s.DailyReward)
				assert.Equal(t, Defaults().BannerTitle, s.BannerTitle)
			},
		},
		{
			name:      "stored empty string wins",
			persisted: `{"footerText":""}`,
			check: func(t *testing.T, s db.AdminSettings) {
				assert.Equal(t, "", s.FooterText)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Merge(Defaults(), []byte(tt.persisted))
			require.NoError(t, err)
			tt.check(t, s)
		})
	}

	_, err := Merge(Defaults(), []byte(`["not","an","object"]`))
	assert.Error(t, err)
}

func TestReadDefaultsWhenEmptyOrMalformed(t *testing.T) {
	ctx := context.Background()
	r, h := newRegistry(t)

	s, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)

	require.NoError(t, h.Set(ctx, db.KeySettings, `{"dailyReward":"lots"}`))
	s, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	old, err := r.Read(ctx)
	require.NoError(t, err)

	reward := 25
	patch := Patch{AppName: strPtr("Bright Minds"), DailyReward: &reward, SystemInstruction: strPtr("<anything goes>")}
	_, err = r.Write(ctx, patch)
	require.NoError(t, err)

	got, err := r.Read(ctx)
	require.NoError(t, err)

	want := old
	want.AppName = "Bright Minds"
	want.DailyReward = 25
	want.SystemInstruction = "<anything goes>"
	assert.Equal(t, want, got)
}

func TestWritePersistsFullObject(t *testing.T) {
	ctx := context.Background()
	r, h := newRegistry(t)

	_, err := r.Write(ctx, Patch{AdminName: strPtr("Ms. Rahman")})
	require.NoError(t, err)

	raw, ok, err := h.Get(ctx, db.KeySettings)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"bannerTitle":"Welcome back!"`)
	assert.Contains(t, raw, `"adminName":"Ms. Rahman"`)
}

func TestWriteMergesOntoLastKnown(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.Write(ctx, Patch{AppName: strPtr("One")})
	require.NoError(t, err)
	s, err := r.Write(ctx, Patch{FooterText: strPtr("Two")})
	require.NoError(t, err)

	assert.Equal(t, "One", s.AppName)
	assert.Equal(t, "Two", s.FooterText)
}

func TestValidateImages(t *testing.T) {
	assert.NoError(t, Patch{AppName: strPtr("x"), AppLogo: strPtr("")}.ValidateImages())
	assert.Error(t, Patch{AdminImage: strPtr("https://example.com/me.png")}.ValidateImages())
}
