package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kavindu/lmswatch/internal/store"
)

// Gate decides what gets announced and owns the new→seen transition.
//
// Activities are announced at most once: only after the manager confirms
// delivery does the gate mark them seen and record the notification. A failed
// broadcast leaves everything "new", so the next run naturally retries.
// Deadlines carry no notification state and may be re-announced as the
// horizon window slides; that is accepted behavior.
type Gate struct {
	store   store.Store
	manager *Manager
}

// NewGate creates a notification gate over the given store and manager.
func NewGate(st store.Store, m *Manager) *Gate {
	return &Gate{store: st, manager: m}
}

// Run announces new activities and deadlines due within the horizon. An empty
// activity set skips the activity digest but still announces deadlines.
func (g *Gate) Run(ctx context.Context, horizon time.Duration) error {
	if !g.manager.HasNotifiers() {
		slog.Info("no notification channels configured, skipping")
		return nil
	}

	if err := g.announceActivities(ctx); err != nil {
		return err
	}
	return g.announceDeadlines(ctx, horizon)
}

func (g *Gate) announceActivities(ctx context.Context) error {
	activities, err := g.store.ListNewActivities(ctx)
	if err != nil {
		return fmt.Errorf("load new activities: %w", err)
	}
	if len(activities) == 0 {
		slog.Info("no new activities to announce")
		return nil
	}

	channels, sendErr := g.manager.BroadcastActivities(ctx, activities)
	if len(channels) == 0 {
		// Nothing accepted: leave every activity "new" for the next cycle.
		slog.Warn("activity notification failed, will retry next run",
			"count", len(activities), "error", sendErr)
		return nil
	}
	if sendErr != nil {
		slog.Warn("some notification channels failed", "error", sendErr)
	}

	ids := make([]string, len(activities))
	for i, a := range activities {
		ids[i] = a.ActivityID
	}
	if err := g.store.MarkActivitiesSeen(ctx, ids, strings.Join(channels, ",")); err != nil {
		return fmt.Errorf("mark activities seen: %w", err)
	}

	slog.Info("announced new activities", "count", len(activities), "channels", channels)
	return nil
}

func (g *Gate) announceDeadlines(ctx context.Context, horizon time.Duration) error {
	deadlines, err := g.store.ListUpcomingDeadlines(ctx, time.Now().UTC(), horizon)
	if err != nil {
		return fmt.Errorf("load upcoming deadlines: %w", err)
	}
	if len(deadlines) == 0 {
		slog.Info("no deadlines inside horizon")
		return nil
	}

	channels, sendErr := g.manager.BroadcastDeadlines(ctx, deadlines)
	if len(channels) == 0 {
		slog.Warn("deadline notification failed", "count", len(deadlines), "error", sendErr)
		return nil
	}

	slog.Info("announced upcoming deadlines", "count", len(deadlines), "channels", channels)
	return nil
}
