package admin

import (
	"context"
	"strings"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/services/sessions"
	"tutorhub/services/settings"
	"tutorhub/services/tickets"
)

// Console holds the operations of the administrator dashboard. Every call
// re-reads the store; nothing is cached between dashboard polls.
type Console struct {
	sessions *sessions.SessionManager
	mailbox  *tickets.Mailbox
	settings *settings.Registry
	log      *logger.Logger
}

func NewConsole(sm *sessions.SessionManager, mb *tickets.Mailbox, reg *settings.Registry, log *logger.Logger) *Console {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Console{
		sessions: sm,
		mailbox:  mb,
		settings: reg,
		log:      log.Component("admin"),
	}
}

type Stats struct {
	Users       int `json:"users"`
	Blocked     int `json:"blocked"`
	TotalPoints int `json:"totalPoints"`
	Tickets     int `json:"tickets"`
	// AwaitingReply counts tickets whose newest message came from a user
	AwaitingReply int `json:"awaitingReply"`
}

// Dashboard is one snapshot of everything the admin views render
type Dashboard struct {
	Users    []db.UserRecord    `json:"users"`
	Tickets  []db.SupportTicket `json:"tickets"`
	Settings db.AdminSettings   `json:"settings"`
	Stats    Stats              `json:"stats"`
}

// Dashboard reads users, tickets (most recent first) and settings.
// Passwords are stripped from the returned users.
func (c *Console) Dashboard(ctx context.Context) (Dashboard, error) {
	users, err := c.sessions.Users().List(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	ticketList, err := c.mailbox.Tickets(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	s, err := c.settings.Read(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Users:    make([]db.UserRecord, 0, len(users)),
		Tickets:  tickets.SortedByLastUpdate(ticketList),
		Settings: s,
	}
	for _, u := range users {
		d.Users = append(d.Users, u.Public())
		d.Stats.TotalPoints += u.Points
		if u.IsBlocked {
			d.Stats.Blocked++
		}
	}
	d.Stats.Users = len(users)
	d.Stats.Tickets = len(ticketList)
	for _, t := range ticketList {
		if t.LastSender() == db.SenderUser {
			d.Stats.AwaitingReply++
		}
	}
	return d, nil
}

// SetBlocked flips the user's block flag. A blocked user that is signed in
// elsewhere is logged out the next time that context resolves its session.
func (c *Console) SetBlocked(ctx context.Context, id string, blocked bool) (db.UserRecord, error) {
	user, err := c.sessions.UpdateUser(ctx, id, func(u *db.UserRecord) error {
		u.IsBlocked = blocked
		return nil
	})
	if err != nil {
		return db.UserRecord{}, err
	}

	c.log.WithFields(map[string]any{"user_id": id, "blocked": blocked}).Info("user block flag updated")
	return user.Public(), nil
}

// RemoveUser deletes the user record together with the user's support
// log, ticket entry and read watermark.
func (c *Console) RemoveUser(ctx context.Context, id string) error {
	_, err := c.sessions.Users().Mutate(ctx, func(users []db.UserRecord) ([]db.UserRecord, error) {
		out := make([]db.UserRecord, 0, len(users))
		for _, u := range users {
			if u.ID != id {
				out = append(out, u)
			}
		}
		if len(out) == len(users) {
			return nil, apperrors.NewUserNotFound(id)
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	if err := c.mailbox.DeleteTicket(ctx, id); err != nil {
		c.log.WithError(err).WithField("user_id", id).Warn("user removed but support data was left behind")
		return err
	}

	c.log.WithField("user_id", id).Info("user removed")
	return nil
}

// UpdateIDCard replaces the identity card fields of one user
func (c *Console) UpdateIDCard(ctx context.Context, id string, card db.IDCard) (db.UserRecord, error) {
	user, err := c.sessions.UpdateUser(ctx, id, func(u *db.UserRecord) error {
		u.IDCard = card
		return nil
	})
	if err != nil {
		return db.UserRecord{}, err
	}
	return user.Public(), nil
}

// SaveAllUsers overwrites the users collection with the edited list from
// the dashboard. Records arrive without passwords, so an empty password
// keeps the stored one. Ids are only required to be non-empty and unique,
// so records registered under looser rules can still be edited.
func (c *Console) SaveAllUsers(ctx context.Context, users []db.UserRecord) ([]db.UserRecord, error) {
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if strings.TrimSpace(u.ID) == "" {
			return nil, apperrors.NewValidationError("user id is required")
		}
		if seen[u.ID] {
			return nil, apperrors.NewDuplicateID(u.ID)
		}
		seen[u.ID] = true
	}

	saved, err := c.sessions.Users().Mutate(ctx, func(current []db.UserRecord) ([]db.UserRecord, error) {
		next := make([]db.UserRecord, len(users))
		for i, u := range users {
			if u.Password == "" {
				if existing, ok := db.FindUser(current, u.ID); ok {
					u.Password = existing.Password
				}
			}
			next[i] = u
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.WithField("count", len(saved)).Info("users collection replaced")
	out := make([]db.UserRecord, 0, len(saved))
	for _, u := range saved {
		out = append(out, u.Public())
	}
	return out, nil
}

// Reply appends an administrator message to an existing user's ticket
func (c *Console) Reply(ctx context.Context, userID, text string) (db.SupportTicket, error) {
	if _, found, err := c.sessions.Users().Find(ctx, userID); err != nil {
		return db.SupportTicket{}, err
	} else if !found {
		return db.SupportTicket{}, apperrors.NewUserNotFound(userID)
	}
	return c.mailbox.AppendMessage(ctx, userID, "", db.SenderAdmin, text)
}

// UpdateSettings validates embedded images and persists the patch
func (c *Console) UpdateSettings(ctx context.Context, patch settings.Patch) (db.AdminSettings, error) {
	if err := patch.ValidateImages(); err != nil {
		return db.AdminSettings{}, err
	}
	return c.settings.Write(ctx, patch)
}
