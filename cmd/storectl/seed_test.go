package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/services/content"
	"tutorhub/services/settings"
	"tutorhub/store"
	"tutorhub/store/memstore"
	"tutorhub/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
users:
  - id: amina
    name: Amina
    password: secret1
    points: 40
    grade: "9"
  - id: tariq
    name: Tariq
    password: pass2
    blocked: true
settings:
  appName: Study Corner
  dailyReward: 25
banners:
  - title: Exam week
    linkUrl: https://example.com/exams
links:
  - title: Library
    url: https://example.com/library
notices:
  - title: Maintenance
    body: Back at 9
    priority: high
`

func newSeeder(t *testing.T, hash bool) (*Seeder, *store.Store) {
	t.Helper()
	log := logger.Discard()
	st := store.New(memstore.New(), nil, store.Options{Logger: log})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Seeder{
		Store:         st,
		Settings:      settings.NewRegistry(st, log),
		Content:       content.NewService(st, content.Options{Logger: log}),
		HashPasswords: hash,
		Now:           func() time.Time { return now },
	}, st
}

func TestSeedApply(t *testing.T) {
	ctx := context.Background()
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	s, st := newSeeder(t, false)
	report, err := s.Apply(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Users: 2, Settings: true, Banners: 1, Links: 1, Notices: 1}, report)

	users, err := store.NewCollection(st, db.KeyUsers, db.UserKey).List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amina", users[0].ID)
	assert.Equal(t, 40, users[0].Points)
	assert.Equal(t, "secret1", users[0].Password)
	assert.True(t, users[1].IsBlocked)

	got, err := s.Settings.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Study Corner", got.AppName)
	assert.Equal(t, 25, got.DailyReward)
	assert.Equal(t, settings.Defaults().FooterText, got.FooterText)

	notices, err := s.Content.Notices.List(ctx)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.NotEmpty(t, notices[0].ID)
	assert.Equal(t, "high", notices[0].Priority)
}

func TestSeedKeepsProfileFieldsOnReseed(t *testing.T) {
	ctx := context.Background()
	s, st := newSeeder(t, false)
	users := store.NewCollection(st, db.KeyUsers, db.UserKey)
	require.NoError(t, users.SaveAll(ctx, []db.UserRecord{{ID: "amina", Name: "Old", Password: "x", Bio: "likes maths", Streak: 3}}))

	_, err := s.Apply(ctx, SeedFile{Users: []SeedUser{{ID: "amina", Name: "Amina", Password: "secret1", Points: 5}}})
	require.NoError(t, err)

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Amina", list[0].Name)
	assert.Equal(t, "likes maths", list[0].Bio)
	assert.Equal(t, 3, list[0].Streak)
	assert.Equal(t, 5, list[0].Points)
}

func TestSeedHashesPasswords(t *testing.T) {
	ctx := context.Background()
	s, st := newSeeder(t, true)

	_, err := s.Apply(ctx, SeedFile{Users: []SeedUser{{ID: "amina", Name: "Amina", Password: "secret1"}}})
	require.NoError(t, err)

	u, found, err := store.NewCollection(st, db.KeyUsers, db.UserKey).Find(ctx, "amina")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, utils.IsHashed(u.Password))
	assert.True(t, utils.CheckPassword(u.Password, "secret1"))
}

func TestSeedRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown settings key", func(t *testing.T) {
		s, _ := newSeeder(t, false)
		_, err := s.Apply(ctx, SeedFile{Settings: map[string]any{"colour": "red"}})
		assert.Error(t, err)
	})

	t.Run("invalid link url", func(t *testing.T) {
		s, _ := newSeeder(t, false)
		_, err := s.Apply(ctx, SeedFile{Links: []SeedLink{{Title: "x", URL: "ftp://nope"}}})
		assert.Error(t, err)
	})

	t.Run("empty password", func(t *testing.T) {
		s, _ := newSeeder(t, false)
		_, err := s.Apply(ctx, SeedFile{Users: []SeedUser{{ID: "amina", Name: "Amina"}}})
		assert.Error(t, err)
	})

	t.Run("unknown yaml field", func(t *testing.T) {
		_, err := ParseSeed(strings.NewReader("groups: []\n"))
		assert.Error(t, err)
	})
}

func TestRunHelpAndUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--help"}, &out))

	t.Setenv("STORE_BACKEND", "memory")
	err := run([]string{"--env-file", "", "frobnicate"}, &out)
	assert.ErrorContains(t, err, "unknown command")
}

func TestRunKeysOnFileBackend(t *testing.T) {
	// run overrides these through the environment; t.Setenv restores them
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STORE_FILE", "")
	path := t.TempDir() + "/store.json"
	var out bytes.Buffer

	require.NoError(t, run([]string{"--env-file", "", "--backend", "file", "--store-file", path, "keys"}, &out))
	assert.Empty(t, out.String())
}

func TestRunCollectionsCountsRecords(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STORE_FILE", "")
	path := t.TempDir() + "/store.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"users":"[{\"id\":\"amina\"},{\"id\":\"bilal\"}]","tickets":"not json"}`), 0o600))

	var out bytes.Buffer
	require.NoError(t, run([]string{"--env-file", "", "--backend", "file", "--store-file", path, "collections"}, &out))
	assert.Equal(t, "users\t2\ntickets\t0\nbanners\t0\nlinks\t0\nnotices\t0\n", out.String())
}
