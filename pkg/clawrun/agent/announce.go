// Package agent – announce.go injects cron-scheduled notices into a running
// conversation (time-of-day announcements, standup reminders). Notices land
// as system messages and are visible to the model on the next generation.
package agent

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Announcement is one scheduled notice.
type Announcement struct {
	Schedule string
	Message  string
}

// Announcer runs announcements against one manager.
type Announcer struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewAnnouncer schedules the announcements. Invalid cron expressions fail
// fast before anything starts.
func NewAnnouncer(m *Manager, items []Announcement, logger *slog.Logger) (*Announcer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Announcer{
		cron:   cron.New(),
		logger: logger.With("component", "announcer"),
	}
	for _, item := range items {
		msg := item.Message
		if _, err := a.cron.AddFunc(item.Schedule, func() {
			m.EnqueueNotice(msg)
			a.logger.Debug("announcement delivered", "message", msg)
		}); err != nil {
			return nil, fmt.Errorf("announcement schedule %q: %w", item.Schedule, err)
		}
	}
	return a, nil
}

// Start begins delivery.
func (a *Announcer) Start() { a.cron.Start() }

// Stop halts delivery, waiting for an in-flight announcement to finish.
func (a *Announcer) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}
