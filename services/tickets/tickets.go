package tickets

import (
	"context"
	"sort"
	"strings"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/services/archive"
	"tutorhub/store"
	"tutorhub/utils"
)

type Options struct {
	Archive archive.Sink
	Logger  *logger.Logger
	Now     func() time.Time
}

// Mailbox keeps one append-only message log per user under
// support_<id>, a denormalized index of all tickets for administrators,
// and a per-user read watermark.
type Mailbox struct {
	store   *store.Store
	tickets *store.Collection[db.SupportTicket]
	archive archive.Sink
	log     *logger.Logger
	now     func() time.Time
}

func NewMailbox(st *store.Store, opts Options) *Mailbox {
	if opts.Archive == nil {
		opts.Archive = archive.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Mailbox{
		store:   st,
		tickets: store.NewCollection(st, db.KeyTickets, db.TicketKey),
		archive: opts.Archive,
		log:     opts.Logger.Component("tickets"),
		now:     opts.Now,
	}
}

func (m *Mailbox) userLog(userID string) *store.Collection[db.ChatMessage] {
	return store.NewCollection[db.ChatMessage](m.store, db.SupportKey(userID), nil)
}

// AppendMessage adds a message to the user's log, then refreshes the
// user's entry in the ticket index. The log is written first; the index
// can be rebuilt from the logs. An empty userName keeps the name already
// on the ticket.
func (m *Mailbox) AppendMessage(ctx context.Context, userID, userName string, sender db.Sender, text string) (db.SupportTicket, error) {
	if sender != db.SenderUser && sender != db.SenderAdmin {
		return db.SupportTicket{}, apperrors.NewValidationError("Unknown message sender").WithDetails("sender", string(sender))
	}
	if err := utils.ValidateMessageText(text); err != nil {
		return db.SupportTicket{}, err
	}

	now := db.At(m.now())
	msg := db.ChatMessage{Sender: sender, Text: text, Time: now}

	messages, err := m.userLog(userID).Mutate(ctx, func(current []db.ChatMessage) ([]db.ChatMessage, error) {
		return append(current, msg), nil
	})
	if err != nil {
		return db.SupportTicket{}, err
	}

	var ticket db.SupportTicket
	_, err = m.tickets.Mutate(ctx, func(current []db.SupportTicket) ([]db.SupportTicket, error) {
		ticket = db.SupportTicket{
			UserID:     userID,
			UserName:   strings.TrimSpace(userName),
			Messages:   messages,
			LastUpdate: now,
		}
		if ticket.UserName == "" {
			ticket.UserName = userID
			for _, t := range current {
				if t.UserID == userID && t.UserName != "" {
					ticket.UserName = t.UserName
				}
			}
		}
		return store.Upsert(current, ticket, db.TicketKey), nil
	})
	if err != nil {
		// The log already holds the message; RebuildIndex repairs the index
		m.log.WithError(err).WithField("user_id", userID).Error("ticket index update failed after log append")
		return db.SupportTicket{}, err
	}

	metrics.RecordTicketMessage(string(sender))
	m.archive.Archive(archive.NewEvent(userID, ticket.UserName, msg))
	return ticket, nil
}

// Messages returns the user's log in insertion order
func (m *Mailbox) Messages(ctx context.Context, userID string) ([]db.ChatMessage, error) {
	return m.userLog(userID).List(ctx)
}

// Tickets returns the admin index in stored order
func (m *Mailbox) Tickets(ctx context.Context) ([]db.SupportTicket, error) {
	return m.tickets.List(ctx)
}

func (m *Mailbox) Ticket(ctx context.Context, userID string) (db.SupportTicket, bool, error) {
	return m.tickets.Find(ctx, userID)
}

// SortedByLastUpdate returns a copy, most recently updated first
func SortedByLastUpdate(tickets []db.SupportTicket) []db.SupportTicket {
	out := append([]db.SupportTicket(nil), tickets...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdate.After(out[j].LastUpdate.Time)
	})
	return out
}

// ReadCount returns the user's watermark, zero when unset
func (m *Mailbox) ReadCount(ctx context.Context, userID string) (int, error) {
	count := 0
	if _, err := m.store.GetJSON(ctx, db.ReadCountKey(userID), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead records that the owner has seen every current message. Only
// the owning user's own view calls this.
func (m *Mailbox) MarkRead(ctx context.Context, userID string) error {
	messages, err := m.Messages(ctx, userID)
	if err != nil {
		return err
	}
	return m.store.SetJSON(ctx, db.ReadCountKey(userID), len(messages))
}

// HasUnread is true when there are messages past the watermark and the
// newest one came from an administrator
func (m *Mailbox) HasUnread(ctx context.Context, userID string) (bool, error) {
	messages, err := m.Messages(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(messages) == 0 {
		return false, nil
	}

	seen, err := m.ReadCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(messages) > seen && messages[len(messages)-1].Sender == db.SenderAdmin, nil
}

// RebuildIndex regenerates the ticket index from the per-user logs,
// keeping known user names. It returns the number of tickets written.
func (m *Mailbox) RebuildIndex(ctx context.Context) (int, error) {
	keys, err := m.store.Keys(ctx, db.SupportKey(""))
	if err != nil {
		return 0, err
	}

	existing, err := m.tickets.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]string, len(existing))
	for _, t := range existing {
		names[t.UserID] = t.UserName
	}

	rebuilt := make([]db.SupportTicket, 0, len(keys))
	for _, key := range keys {
		userID := strings.TrimPrefix(key, db.SupportKey(""))
		messages, err := m.Messages(ctx, userID)
		if err != nil {
			return 0, err
		}
		if len(messages) == 0 {
			continue
		}

		name := names[userID]
		if name == "" {
			name = userID
		}
		rebuilt = append(rebuilt, db.SupportTicket{
			UserID:     userID,
			UserName:   name,
			Messages:   messages,
			LastUpdate: messages[len(messages)-1].Time,
		})
	}

	if err := m.tickets.SaveAll(ctx, rebuilt); err != nil {
		return 0, err
	}
	m.log.WithField("tickets", len(rebuilt)).Info("ticket index rebuilt")
	return len(rebuilt), nil
}

// DeleteTicket removes the user's log, watermark and index entry
func (m *Mailbox) DeleteTicket(ctx context.Context, userID string) error {
	if err := m.store.Delete(ctx, db.SupportKey(userID)); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, db.ReadCountKey(userID)); err != nil {
		return err
	}
	return m.tickets.Remove(ctx, userID)
}
