package content

import (
	"context"
	"net/url"
	"strings"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/store"

	"github.com/google/uuid"
)

// Kind names a content collection on the HTTP surface
type Kind string

const (
	KindBanners Kind = "banners"
	KindLinks   Kind = "links"
	KindNotices Kind = "notices"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindBanners, KindLinks, KindNotices:
		return k, true
	}
	return "", false
}

// Board is one administrator-owned collection of content items
type Board[T any] struct {
	coll     *store.Collection[T]
	kind     Kind
	keyOf    func(T) string
	stamp    func(item *T, id string, ts db.Timestamp)
	validate func(T) error
	now      func() time.Time
	log      *logger.Logger
}

func (b *Board[T]) Kind() Kind {
	return b.kind
}

func (b *Board[T]) List(ctx context.Context) ([]T, error) {
	return b.coll.List(ctx)
}

// Create assigns a fresh id and timestamp and appends the item
func (b *Board[T]) Create(ctx context.Context, item T) (T, error) {
	if err := b.validate(item); err != nil {
		return item, err
	}
	b.stamp(&item, uuid.NewString(), db.At(b.now()))

	if err := b.coll.Append(ctx, item); err != nil {
		return item, err
	}
	b.log.WithField("id", b.keyOf(item)).Info("content item created")
	return item, nil
}

// Update replaces the item with the given id in place. The id is taken
// from the path, the timestamp is refreshed.
func (b *Board[T]) Update(ctx context.Context, id string, item T) (T, error) {
	if err := b.validate(item); err != nil {
		return item, err
	}
	b.stamp(&item, id, db.At(b.now()))

	_, err := b.coll.Mutate(ctx, func(current []T) ([]T, error) {
		for i := range current {
			if b.keyOf(current[i]) == id {
				current[i] = item
				return current, nil
			}
		}
		return nil, apperrors.NewNotFound(string(b.kind), id)
	})
	return item, err
}

func (b *Board[T]) Delete(ctx context.Context, id string) error {
	_, err := b.coll.Mutate(ctx, func(current []T) ([]T, error) {
		out := current[:0]
		for _, item := range current {
			if b.keyOf(item) != id {
				out = append(out, item)
			}
		}
		if len(out) == len(current) {
			return nil, apperrors.NewNotFound(string(b.kind), id)
		}
		return out, nil
	})
	if err == nil {
		b.log.WithField("id", id).Info("content item deleted")
	}
	return err
}

// Service groups the three content boards
type Service struct {
	Banners *Board[db.Banner]
	Links   *Board[db.Link]
	Notices *Board[db.Notice]
}

type Options struct {
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(st *store.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.Component("content")

	return &Service{
		Banners: &Board[db.Banner]{
			coll:  store.NewCollection(st, db.KeyBanners, db.BannerKey),
			kind:  KindBanners,
			keyOf: db.BannerKey,
			stamp: func(b *db.Banner, id string, ts db.Timestamp) {
				b.ID, b.Timestamp = id, ts
			},
			validate: validateBanner,
			now:      opts.Now,
			log:      log.WithField("kind", KindBanners),
		},
		Links: &Board[db.Link]{
			coll:  store.NewCollection(st, db.KeyLinks, db.LinkKey),
			kind:  KindLinks,
			keyOf: db.LinkKey,
			stamp: func(l *db.Link, id string, ts db.Timestamp) {
				l.ID, l.Timestamp = id, ts
			},
			validate: validateLink,
			now:      opts.Now,
			log:      log.WithField("kind", KindLinks),
		},
		Notices: &Board[db.Notice]{
			coll:  store.NewCollection(st, db.KeyNotices, db.NoticeKey),
			kind:  KindNotices,
			keyOf: db.NoticeKey,
			stamp: func(n *db.Notice, id string, ts db.Timestamp) {
				n.ID, n.Timestamp = id, ts
			},
			validate: validateNotice,
			now:      opts.Now,
			log:      log.WithField("kind", KindNotices),
		},
	}
}

func requireTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return apperrors.NewValidationError("Title is required")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.NewValidationError("Invalid URL").WithDetails("field", field)
	}
	return nil
}

func validateBanner(b db.Banner) error {
	if err := requireTitle(b.Title); err != nil {
		return err
	}
	if b.LinkURL != "" {
		return validateHTTPURL("linkUrl", b.LinkURL)
	}
	return nil
}

func validateLink(l db.Link) error {
	if err := requireTitle(l.Title); err != nil {
		return err
	}
	return validateHTTPURL("url", l.URL)
}

func validateNotice(n db.Notice) error {
	if err := requireTitle(n.Title); err != nil {
		return err
	}
	switch n.Priority {
	case "", "low", "normal", "high":
		return nil
	}
	return apperrors.NewValidationError("Priority must be low, normal or high")
}
