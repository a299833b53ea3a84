// Package reconcile drives one pass of the announcement pipeline: diff
// the feed against the store, deliver the delta oldest-first, persist
// confirmed deliveries, and mirror the store to the remote backup.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"uniherald/internal/backup"
	"uniherald/internal/domain"
	"uniherald/internal/feed"
	"uniherald/internal/status"
)

const defaultAnnouncementPause = 2 * time.Second

// Store is the durable record of confirmed deliveries.
type Store interface {
	Load(ctx context.Context) ([]domain.PostedRecord, error)
	Save(ctx context.Context, records []domain.PostedRecord) error
	Snapshot(ctx context.Context) ([]byte, error)
}

// Dispatcher attempts delivery of one announcement to every target and
// reports per-target outcomes.
type Dispatcher interface {
	Deliver(
		ctx context.Context,
		ann domain.Announcement,
		targets []domain.Target,
	) []domain.DeliveryOutcome
}

// Loop owns the scheduling state that used to be ambient in the original
// process: the last-backup timestamp and the injected collaborators.
// Cycles are independently testable by constructing a Loop around stubs.
type Loop struct {
	reader     feed.Reader
	store      Store
	dispatcher Dispatcher
	syncer     backup.Syncer
	tracker    *status.Tracker

	targets           []domain.Target
	announcementPause time.Duration
	backupCooldown    time.Duration

	lastBackup time.Time
	now        func() time.Time

	log *slog.Logger
}

func New(
	reader feed.Reader,
	store Store,
	dispatcher Dispatcher,
	syncer backup.Syncer,
	tracker *status.Tracker,
	targets []domain.Target,
	backupCooldown time.Duration,
	log *slog.Logger,
) *Loop {
	return &Loop{
		reader:            reader,
		store:             store,
		dispatcher:        dispatcher,
		syncer:            syncer,
		tracker:           tracker,
		targets:           targets,
		announcementPause: defaultAnnouncementPause,
		backupCooldown:    backupCooldown,
		now:               time.Now,
		log:               log,
	}
}

// RunCycle executes exactly one reconciliation pass. A fetch failure
// aborts the cycle without mutating the store; every other failure is
// contained within the cycle.
func (l *Loop) RunCycle(ctx context.Context) error {
	log := l.log.With("cycleID", uuid.NewString())

	posted := 0
	err := l.runCycle(ctx, log, &posted)
	l.tracker.RecordCycle(l.now().UTC(), err, posted)

	return err
}

func (l *Loop) runCycle(ctx context.Context, log *slog.Logger, posted *int) error {
	records, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	candidates, err := l.reader.Fetch(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to fetch announcement feed",
			"error", err)

		return fmt.Errorf("fetch feed: %w", err)
	}

	if len(candidates) == 0 {
		log.InfoContext(ctx, "No announcements in feed")
		l.maybeBackup(ctx, log)

		return nil
	}

	knownIDs := make(map[string]struct{}, len(records))
	for _, r := range records {
		knownIDs[r.ID] = struct{}{}
	}

	var confirmed []domain.PostedRecord
	dispatched := 0

	// Feed order is newest-first; deliveries must land in publish order
	// so channel history reads top-to-bottom in time order.
	for i := len(candidates) - 1; i >= 0; i-- {
		candidate := candidates[i]

		if _, ok := knownIDs[candidate.ID]; ok {
			continue
		}

		if dispatched > 0 {
			l.pause(ctx)
		}
		dispatched++

		outcomes := l.dispatcher.Deliver(ctx, candidate, l.targets)

		if !domain.Delivered(outcomes) {
			allFailed := &domain.AllTargetsFailedError{ID: candidate.ID}
			log.ErrorContext(ctx, "Announcement stays pending for the next cycle",
				"error", allFailed,
				"announcementID", candidate.ID,
				"title", candidate.Title,
				"targetCount", len(l.targets))

			continue
		}

		confirmed = append(confirmed, domain.PostedRecord{
			ID:       candidate.ID,
			Title:    candidate.Title,
			PostedAt: l.now().UTC(),
		})
		knownIDs[candidate.ID] = struct{}{}
	}

	if len(confirmed) == 0 {
		log.InfoContext(ctx, "No new confirmed deliveries",
			"candidateCount", len(candidates))
		l.maybeBackup(ctx, log)

		return nil
	}

	records = append(records, confirmed...)
	if err = l.store.Save(ctx, records); err != nil {
		return fmt.Errorf("save store: %w", err)
	}

	*posted = len(confirmed)
	log.InfoContext(ctx, "Cycle is complete",
		"candidateCount", len(candidates),
		"confirmedCount", len(confirmed),
		"recordCount", len(records))

	l.backupNow(ctx, log)

	return nil
}

func (l *Loop) maybeBackup(ctx context.Context, log *slog.Logger) {
	if l.now().Sub(l.lastBackup) < l.backupCooldown {
		return
	}

	l.backupNow(ctx, log)
}

func (l *Loop) backupNow(ctx context.Context, log *slog.Logger) {
	snapshot, err := l.store.Snapshot(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read store snapshot for backup",
			"error", err)

		return
	}

	if !l.syncer.Sync(ctx, snapshot) {
		log.WarnContext(ctx, "Backup sync failed",
			"sizeBytes", len(snapshot))

		return
	}

	l.lastBackup = l.now()
}

func (l *Loop) pause(ctx context.Context) {
	if l.announcementPause <= 0 {
		return
	}

	t := time.NewTimer(l.announcementPause)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
