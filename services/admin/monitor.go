package admin

import (
	"context"

	"tutorhub/config"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/services/poller"
	"tutorhub/services/sessions"
)

// RefreshStats recomputes the dashboard counters exported on /metrics
func (c *Console) RefreshStats(ctx context.Context) error {
	d, err := c.Dashboard(ctx)
	if err != nil {
		return err
	}
	metrics.SetDashboardStats(d.Stats.Users-d.Stats.Blocked, d.Stats.Blocked, d.Stats.AwaitingReply)
	return nil
}

// RefreshUnread re-resolves the session and exports whether the signed-in
// user has an admin reply they have not read. Anonymous sessions report 0.
func (c *Console) RefreshUnread(ctx context.Context) error {
	state, err := c.sessions.ResolveSession(ctx)
	if err != nil {
		return err
	}
	if state != sessions.Authenticated {
		metrics.SetSessionUnread(false)
		return nil
	}

	user, ok, err := c.sessions.CurrentUser(ctx)
	if err != nil || !ok {
		metrics.SetSessionUnread(false)
		return err
	}
	unread, err := c.mailbox.HasUnread(ctx, user.ID)
	if err != nil {
		return err
	}
	metrics.SetSessionUnread(unread)
	return nil
}

// Pollers builds the dashboard and unread pollers at the configured
// intervals. The caller starts and stops them.
func (c *Console) Pollers(cfg config.PollConfig, log *logger.Logger) []*poller.Poller {
	return []*poller.Poller{
		poller.New(cfg.AdminInterval, c.RefreshStats, poller.Options{
			Name:        "admin-dashboard",
			TickTimeout: cfg.TickTimeout,
			Logger:      log,
		}),
		poller.New(cfg.UnreadInterval, c.RefreshUnread, poller.Options{
			Name:        "session-unread",
			TickTimeout: cfg.TickTimeout,
			Logger:      log,
		}),
	}
}
