package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/utils"
)

// Defaults fills every setting an older stored object may lack
func Defaults() db.AdminSettings {
	return db.AdminSettings{
		AppName:           "TutorHub",
		AppSubtitle:       "Learn, practice and grow every day",
		AdminName:         "Administrator",
		AdminBio:          "Here to help with your studies.",
		SystemInstruction: "You are a patient, encouraging tutor. Explain step by step and check understanding before moving on.",
		DailyReward:       10,
		FooterText:        "TutorHub",
		BannerTitle:       "Welcome back!",
		BannerSubtitle:    "Keep your streak alive with today's challenge.",
		BannerBackground:  "#1e3a8a",
	}
}

// Merge overlays a stored, possibly partial, settings object on base.
// Fields absent from persisted keep base's value; fields present win even
// when empty.
func Merge(base db.AdminSettings, persisted []byte) (db.AdminSettings, error) {
	merged := base
	if len(persisted) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(persisted, &merged); err != nil {
		return base, fmt.Errorf("settings object: %w", err)
	}
	return merged, nil
}

// Patch lists the settings to change; nil fields are left alone
type Patch struct {
	AppName           *string `json:"appName,omitempty"`
	AppSubtitle       *string `json:"appSubtitle,omitempty"`
	AppLogo           *string `json:"appLogo,omitempty"`
	AdminName         *string `json:"adminName,omitempty"`
	AdminBio          *string `json:"adminBio,omitempty"`
	AdminImage        *string `json:"adminImage,omitempty"`
	SystemInstruction *string `json:"systemInstruction,omitempty"`
	DailyReward       *int    `json:"dailyReward,omitempty"`
	FooterText        *string `json:"footerText,omitempty"`
	BannerTitle       *string `json:"bannerTitle,omitempty"`
	BannerSubtitle    *string `json:"bannerSubtitle,omitempty"`
	BannerImage       *string `json:"bannerImage,omitempty"`
	BannerBackground  *string `json:"bannerBackground,omitempty"`
}

// Apply returns s with the patch applied. Values are taken verbatim.
func (p Patch) Apply(s db.AdminSettings) db.AdminSettings {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.AppName, p.AppName)
	set(&s.AppSubtitle, p.AppSubtitle)
	set(&s.AppLogo, p.AppLogo)
	set(&s.AdminName, p.AdminName)
	set(&s.AdminBio, p.AdminBio)
	set(&s.AdminImage, p.AdminImage)
	set(&s.SystemInstruction, p.SystemInstruction)
	set(&s.FooterText, p.FooterText)
	set(&s.BannerTitle, p.BannerTitle)
	set(&s.BannerSubtitle, p.BannerSubtitle)
	set(&s.BannerImage, p.BannerImage)
	set(&s.BannerBackground, p.BannerBackground)
	if p.DailyReward != nil {
		s.DailyReward = *p.DailyReward
	}
	return s
}

// ValidateImages checks uploaded images; text values are not validated
func (p Patch) ValidateImages() error {
	for _, img := range []*string{p.AppLogo, p.AdminImage, p.BannerImage} {
		if img != nil && *img != "" {
			if err := utils.ValidateImageDataURI(*img); err != nil {
				return err
			}
		}
	}
	return nil
}

// Registry reads and writes the settings singleton
type Registry struct {
	store *store.Store
	log   *logger.Logger

	mu     sync.Mutex
	last   db.AdminSettings
	loaded bool
}

func NewRegistry(st *store.Store, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Registry{store: st, log: log.Component("settings")}
}

// Read returns the stored settings merged onto Defaults
func (r *Registry) Read(ctx context.Context) (db.AdminSettings, error) {
	var raw json.RawMessage
	if _, err := r.store.GetJSON(ctx, db.KeySettings, &raw); err != nil {
		return db.AdminSettings{}, err
	}

	settings, err := Merge(Defaults(), raw)
	if err != nil {
		r.log.WithError(err).Warn("stored settings are malformed, using defaults")
	}

	r.mu.Lock()
	r.last = settings
	r.loaded = true
	r.mu.Unlock()
	return settings, nil
}

// Write applies patch to the last settings this registry read or wrote
// and persists the full result
func (r *Registry) Write(ctx context.Context, patch Patch) (db.AdminSettings, error) {
	r.mu.Lock()
	base, loaded := r.last, r.loaded
	r.mu.Unlock()

	if !loaded {
		var err error
		if base, err = r.Read(ctx); err != nil {
			return db.AdminSettings{}, err
		}
	}

	next := patch.Apply(base)
	if err := r.store.SetJSON(ctx, db.KeySettings, next); err != nil {
		return db.AdminSettings{}, err
	}

	r.mu.Lock()
	r.last = next
	r.loaded = true
	r.mu.Unlock()

	r.log.Info("settings updated")
	return next, nil
}
