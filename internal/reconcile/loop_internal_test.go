package reconcile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"uniherald/internal/backup"
	"uniherald/internal/domain"
	"uniherald/internal/store"
)

type stubReader struct {
	announcements []domain.Announcement
	err           error
}

func (r *stubReader) Fetch(context.Context) ([]domain.Announcement, error) {
	if r.err != nil {
		return nil, r.err
	}

	return r.announcements, nil
}

type memStore struct {
	records []domain.PostedRecord
	saves   int
}

func (s *memStore) Load(context.Context) ([]domain.PostedRecord, error) {
	out := make([]domain.PostedRecord, len(s.records))
	copy(out, s.records)

	return out, nil
}

func (s *memStore) Save(_ context.Context, records []domain.PostedRecord) error {
	s.records = make([]domain.PostedRecord, len(records))
	copy(s.records, records)
	s.saves++

	return nil
}

func (s *memStore) Snapshot(context.Context) ([]byte, error) {
	return []byte("[]\n"), nil
}

type stubDispatcher struct {
	// failIDs marks announcements every target rejects.
	failIDs   map[string]struct{}
	delivered []string
}

func (d *stubDispatcher) Deliver(
	_ context.Context,
	ann domain.Announcement,
	targets []domain.Target,
) []domain.DeliveryOutcome {
	d.delivered = append(d.delivered, ann.ID)

	outcomes := make([]domain.DeliveryOutcome, 0, len(targets))
	_, fail := d.failIDs[ann.ID]

	for _, target := range targets {
		outcome := domain.DeliveryOutcome{Target: target.Name, Success: !fail}
		if fail {
			outcome.Err = "unexpected status: 502"
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

type countingSyncer struct {
	calls int
	ok    bool
}

func (s *countingSyncer) Sync(context.Context, []byte) bool {
	s.calls++

	return s.ok
}

func testTargets() []domain.Target {
	return []domain.Target{
		{Name: "general", Endpoint: "https://chat.example.com/hook", Kind: domain.TargetKindGeneric},
	}
}

func newTestLoop(
	reader *stubReader,
	st Store,
	dispatcher *stubDispatcher,
	syncer backup.Syncer,
	cooldown time.Duration,
) *Loop {
	l := New(reader, st, dispatcher, syncer, nil, testTargets(), cooldown, slog.Default())
	l.announcementPause = 0

	return l
}

func feedNewestFirst() []domain.Announcement {
	return []domain.Announcement{
		{ID: "c3", Title: "newest"},
		{ID: "c2", Title: "middle"},
		{ID: "c1", Title: "oldest"},
	}
}

func TestCycleDeliversOldestFirst(t *testing.T) {
	st := &memStore{}
	dispatcher := &stubDispatcher{}
	loop := newTestLoop(&stubReader{announcements: feedNewestFirst()}, st, dispatcher, backup.NopSyncer{}, time.Hour)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	wantOrder := []string{"c1", "c2", "c3"}

	if len(dispatcher.delivered) != len(wantOrder) {
		t.Fatalf("expected %d deliveries, got %d", len(wantOrder), len(dispatcher.delivered))
	}
	for i, id := range wantOrder {
		if dispatcher.delivered[i] != id {
			t.Fatalf("delivery %d: got %q want %q", i, dispatcher.delivered[i], id)
		}
	}

	if len(st.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(st.records))
	}
	for i, id := range wantOrder {
		if st.records[i].ID != id {
			t.Fatalf("record %d: got %q want %q", i, st.records[i].ID, id)
		}
	}
}

func TestSecondCycleWithUnchangedFeedIsIdempotent(t *testing.T) {
	st := &memStore{}
	dispatcher := &stubDispatcher{}
	loop := newTestLoop(&stubReader{announcements: feedNewestFirst()}, st, dispatcher, backup.NopSyncer{}, time.Hour)
	ctx := context.Background()

	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if len(dispatcher.delivered) != 3 {
		t.Fatalf("expected no deliveries on the second cycle, got %d total", len(dispatcher.delivered))
	}
	if st.saves != 1 {
		t.Fatalf("expected a single save, got %d", st.saves)
	}
	if len(st.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(st.records))
	}
}

func TestAllTargetsFailedAnnouncementIsNotPersisted(t *testing.T) {
	st := &memStore{}
	dispatcher := &stubDispatcher{failIDs: map[string]struct{}{"c2": {}}}
	loop := newTestLoop(&stubReader{announcements: feedNewestFirst()}, st, dispatcher, backup.NopSyncer{}, time.Hour)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if store.ContainsID(st.records, "c2") {
		t.Fatal("expected the failed announcement to stay out of the store")
	}
	if !store.ContainsID(st.records, "c1") || !store.ContainsID(st.records, "c3") {
		t.Fatal("expected confirmed announcements to be persisted")
	}
}

func TestFailedAnnouncementIsRetriedNextCycle(t *testing.T) {
	st := &memStore{}
	dispatcher := &stubDispatcher{failIDs: map[string]struct{}{"c2": {}}}
	loop := newTestLoop(&stubReader{announcements: feedNewestFirst()}, st, dispatcher, backup.NopSyncer{}, time.Hour)
	ctx := context.Background()

	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	dispatcher.failIDs = nil
	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if !store.ContainsID(st.records, "c2") {
		t.Fatal("expected the retried announcement to be persisted")
	}

	// c2 lands after the first cycle's confirmations.
	if st.records[len(st.records)-1].ID != "c2" {
		t.Fatalf("expected c2 appended last, got %q", st.records[len(st.records)-1].ID)
	}
}

func TestNoDuplicateIDsAcrossOverlappingCycles(t *testing.T) {
	st := &memStore{}
	dispatcher := &stubDispatcher{}
	reader := &stubReader{announcements: feedNewestFirst()}
	loop := newTestLoop(reader, st, dispatcher, backup.NopSyncer{}, time.Hour)
	ctx := context.Background()

	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	reader.announcements = append([]domain.Announcement{
		{ID: "c4", Title: "brand new"},
	}, feedNewestFirst()...)

	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	seen := make(map[string]int)
	for _, r := range st.records {
		seen[r.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("id %q appears %d times", id, n)
		}
	}
	if len(st.records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(st.records))
	}
}

func TestFetchErrorLeavesStoreFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posted.json")
	fileStore := store.New(path, slog.Default())
	ctx := context.Background()

	if err := fileStore.Save(ctx, []domain.PostedRecord{{ID: "a", Title: "kept"}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}

	fetchErr := &domain.FetchError{URL: "https://example.edu/news", Err: errors.New("connection refused")}
	dispatcher := &stubDispatcher{}
	loop := newTestLoop(&stubReader{err: fetchErr}, fileStore, dispatcher, backup.NopSyncer{}, time.Hour)

	err = loop.RunCycle(ctx)
	if err == nil {
		t.Fatal("expected the cycle to fail")
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a FetchError, got %v", err)
	}

	after, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("read store file: %v", readErr)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("expected the store file to be byte-for-byte unchanged")
	}
	if len(dispatcher.delivered) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(dispatcher.delivered))
	}
}

func TestBackupRunsUnconditionallyAfterSave(t *testing.T) {
	st := &memStore{}
	syncer := &countingSyncer{ok: true}
	loop := newTestLoop(&stubReader{announcements: feedNewestFirst()}, st, &stubDispatcher{}, syncer, time.Hour)
	loop.lastBackup = time.Now() // cooldown not elapsed

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if syncer.calls != 1 {
		t.Fatalf("expected one backup after a save, got %d", syncer.calls)
	}
}

func TestBackupIsCooldownGatedWhenNothingNew(t *testing.T) {
	syncer := &countingSyncer{ok: true}
	loop := newTestLoop(&stubReader{}, &memStore{}, &stubDispatcher{}, syncer, time.Hour)
	loop.lastBackup = time.Now()
	ctx := context.Background()

	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if syncer.calls != 0 {
		t.Fatalf("expected no backup inside the cooldown, got %d", syncer.calls)
	}

	loop.lastBackup = time.Now().Add(-2 * time.Hour)
	if err := loop.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected a backup once the cooldown elapsed, got %d", syncer.calls)
	}
}

func TestBackupFailureNeverFailsTheCycle(t *testing.T) {
	st := &memStore{}
	syncer := &countingSyncer{ok: false}
	loop := newTestLoop(&stubReader{announcements: feedNewestFirst()}, st, &stubDispatcher{}, syncer, time.Hour)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("expected the cycle to succeed despite backup failure, got %v", err)
	}

	if loop.lastBackup != (time.Time{}) {
		t.Fatal("expected a failed backup to leave the last-backup timestamp unset")
	}
	if len(st.records) != 3 {
		t.Fatalf("expected deliveries to persist, got %d records", len(st.records))
	}
}
