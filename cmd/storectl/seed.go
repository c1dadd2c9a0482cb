package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"tutorhub/db"
	"tutorhub/services/content"
	"tutorhub/services/settings"
	"tutorhub/store"
	"tutorhub/utils"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by `storectl seed`
type SeedFile struct {
	Users    []SeedUser     `yaml:"users"`
	Settings map[string]any `yaml:"settings"`
	Banners  []SeedBanner   `yaml:"banners"`
	Links    []SeedLink     `yaml:"links"`
	Notices  []SeedNotice   `yaml:"notices"`
}

type SeedUser struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	Points      int    `yaml:"points"`
	Institution string `yaml:"institution"`
	Grade       string `yaml:"grade"`
	Blocked     bool   `yaml:"blocked"`
}

type SeedBanner struct {
	Title    string `yaml:"title"`
	ImageURL string `yaml:"imageUrl"`
	LinkURL  string `yaml:"linkUrl"`
}

type SeedLink struct {
	Title       string `yaml:"title"`
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

type SeedNotice struct {
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	Priority string `yaml:"priority"`
}

type SeedReport struct {
	Users    int
	Settings bool
	Banners  int
	Links    int
	Notices  int
}

func (r SeedReport) String() string {
	return fmt.Sprintf("users=%d settings=%v banners=%d links=%d notices=%d",
		r.Users, r.Settings, r.Banners, r.Links, r.Notices)
}

func ParseSeed(r io.Reader) (SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return SeedFile{}, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed, nil
}

// Seeder applies seed files. Content items go through the content boards
// so they are validated like admin edits.
type Seeder struct {
	Store    *store.Store
	Settings *settings.Registry
	Content  *content.Service
	// HashPasswords bcrypts plaintext seed passwords
	HashPasswords bool
	Now           func() time.Time
}

// Apply upserts seed users by id and appends content items. Settings keys
// go through the registry so unknown keys are rejected and absent ones
// keep their stored values.
func (s *Seeder) Apply(ctx context.Context, seed SeedFile) (SeedReport, error) {
	var report SeedReport

	if err := s.applyUsers(ctx, seed.Users); err != nil {
		return report, err
	}
	report.Users = len(seed.Users)

	if len(seed.Settings) > 0 {
		patch, err := settingsPatch(seed.Settings)
		if err != nil {
			return report, err
		}
		if err := patch.ValidateImages(); err != nil {
			return report, err
		}
		if _, err := s.Settings.Write(ctx, patch); err != nil {
			return report, err
		}
		report.Settings = true
	}

	for _, b := range seed.Banners {
		if _, err := s.Content.Banners.Create(ctx, db.Banner{Title: b.Title, ImageURL: b.ImageURL, LinkURL: b.LinkURL}); err != nil {
			return report, fmt.Errorf("banner %q: %w", b.Title, err)
		}
		report.Banners++
	}
	for _, l := range seed.Links {
		if _, err := s.Content.Links.Create(ctx, db.Link{Title: l.Title, URL: l.URL, Description: l.Description}); err != nil {
			return report, fmt.Errorf("link %q: %w", l.Title, err)
		}
		report.Links++
	}
	for _, n := range seed.Notices {
		if _, err := s.Content.Notices.Create(ctx, db.Notice{Title: n.Title, Body: n.Body, Priority: n.Priority}); err != nil {
			return report, fmt.Errorf("notice %q: %w", n.Title, err)
		}
		report.Notices++
	}

	return report, nil
}

func (s *Seeder) applyUsers(ctx context.Context, seedUsers []SeedUser) error {
	if len(seedUsers) == 0 {
		return nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	records := make([]db.UserRecord, 0, len(seedUsers))
	for _, su := range seedUsers {
		if err := utils.ValidateUserID(su.ID); err != nil {
			return fmt.Errorf("user %q: %w", su.ID, err)
		}
		if err := utils.ValidatePassword(su.Password); err != nil {
			return fmt.Errorf("user %q: %w", su.ID, err)
		}
		password := su.Password
		if s.HashPasswords && !utils.IsHashed(password) {
			hashed, err := utils.HashPassword(password)
			if err != nil {
				return err
			}
			password = hashed
		}
		records = append(records, db.UserRecord{
			ID:          su.ID,
			Name:        su.Name,
			Email:       su.Email,
			Password:    password,
			Points:      su.Points,
			Institution: su.Institution,
			Grade:       su.Grade,
			IsBlocked:   su.Blocked,
			LastActive:  db.At(now()),
		})
	}

	users := store.NewCollection(s.Store, db.KeyUsers, db.UserKey)
	_, err := users.Mutate(ctx, func(list []db.UserRecord) ([]db.UserRecord, error) {
		for _, rec := range records {
			// Profile fields the seed does not carry survive a re-seed
			if existing, ok := db.FindUser(list, rec.ID); ok {
				existing.Name = rec.Name
				existing.Email = rec.Email
				existing.Password = rec.Password
				existing.Points = rec.Points
				existing.Institution = rec.Institution
				existing.Grade = rec.Grade
				existing.IsBlocked = rec.IsBlocked
				rec = existing
			}
			list = store.Upsert(list, rec, db.UserKey)
		}
		return list, nil
	})
	return err
}

func settingsPatch(values map[string]any) (settings.Patch, error) {
	var patch settings.Patch
	raw, err := json.Marshal(values)
	if err != nil {
		return patch, fmt.Errorf("settings: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return patch, fmt.Errorf("settings: %w", err)
	}
	return patch, nil
}
