package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/kavindu/lmswatch/internal/store"
)

// Notifier delivers digests to a specific destination.
type Notifier interface {
	Name() string
	SendActivities(ctx context.Context, activities []store.Activity) error
	SendDeadlines(ctx context.Context, deadlines []store.Deadline) error
}

// Manager broadcasts to all registered notifiers. Delivery counts as
// confirmed when at least one channel accepts the message.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// BroadcastActivities sends the new-activity digest to every channel and
// returns the names of the channels that accepted it. The error joins the
// per-channel failures; delivery is confirmed iff the returned slice is
// non-empty.
func (m *Manager) BroadcastActivities(ctx context.Context, activities []store.Activity) ([]string, error) {
	return m.broadcast(func(n Notifier) error {
		return n.SendActivities(ctx, activities)
	})
}

// BroadcastDeadlines sends the upcoming-deadline digest to every channel.
func (m *Manager) BroadcastDeadlines(ctx context.Context, deadlines []store.Deadline) ([]string, error) {
	return m.broadcast(func(n Notifier) error {
		return n.SendDeadlines(ctx, deadlines)
	})
}

func (m *Manager) broadcast(send func(Notifier) error) ([]string, error) {
	var accepted []string
	var errs []error
	for _, n := range m.notifiers {
		if err := send(n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		accepted = append(accepted, n.Name())
	}
	return accepted, errors.Join(errs...)
}
