package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reelroom/reelroom/internal/queue"
	"github.com/reelroom/reelroom/internal/store"
)

type fakeRecords struct {
	pending   map[string][]store.Notification
	watermark map[string]*time.Time

	addedAttempts map[string][]string
	sent          map[string][]string
	failed        map[string][]string
	deleted       []string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		pending:       make(map[string][]store.Notification),
		watermark:     make(map[string]*time.Time),
		addedAttempts: make(map[string][]string),
		sent:          make(map[string][]string),
		failed:        make(map[string][]string),
	}
}

func (f *fakeRecords) ListPending(ctx context.Context, scope string) ([]store.Notification, error) {
	return f.pending[scope], nil
}

func (f *fakeRecords) AddAttempt(ctx context.Context, scope string, ids []string) error {
	f.addedAttempts[scope] = append(f.addedAttempts[scope], ids...)
	return nil
}

func (f *fakeRecords) MarkSent(ctx context.Context, scope string, ids []string) error {
	f.sent[scope] = append(f.sent[scope], ids...)
	return nil
}

func (f *fakeRecords) MarkFailed(ctx context.Context, scope string, ids []string) error {
	f.failed[scope] = append(f.failed[scope], ids...)
	return nil
}

func (f *fakeRecords) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	for scope, list := range f.pending {
		kept := list[:0:0]
		for _, n := range list {
			if n.ID != id {
				kept = append(kept, n)
			}
		}
		f.pending[scope] = kept
	}
	return nil
}

func (f *fakeRecords) Watermark(ctx context.Context, scope string) (*time.Time, error) {
	return f.watermark[scope], nil
}

func (f *fakeRecords) SetWatermark(ctx context.Context, scope string, at time.Time) error {
	f.watermark[scope] = &at
	return nil
}

type fakeChecker struct {
	missing map[string]bool
}

func (f *fakeChecker) Exists(ctx context.Context, id string) (bool, error) {
	return !f.missing[id], nil
}

type fixedSettings struct {
	byScope map[string]Settings
}

func (f *fixedSettings) ScopeSettings(ctx context.Context, scope string) (Settings, error) {
	return f.byScope[scope], nil
}

func (f *fixedSettings) LastFetch() time.Time { return time.Time{} }

type sentBatch struct {
	to    Recipient
	batch []store.Notification
}

func testScheduler(records *fakeRecords, checker *fakeChecker, sendErr error) (*Scheduler, *[]sentBatch) {
	var sent []sentBatch
	send := func(ctx context.Context, to Recipient, batch []store.Notification) error {
		if sendErr != nil {
			return sendErr
		}
		sent = append(sent, sentBatch{to: to, batch: batch})
		return nil
	}

	settings := &fixedSettings{byScope: map[string]Settings{
		store.ScopeAdmin:  {Schedule: ScheduleHourly},
		store.ScopeClient: {Schedule: ScheduleImmediate},
	}}

	s := NewScheduler(records, checker, settings, send, queue.RetryPolicy{MaxAttempts: 3})
	s.now = func() time.Time { return time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC) }
	return s, &sent
}

func notification(id, projectID string, attempts int) store.Notification {
	return store.Notification{
		ID:        id,
		Type:      "comment",
		ProjectID: projectID,
		Author:    "Sam",
		Body:      "looks great",
		Admin:     store.ScopeState{Attempts: attempts},
	}
}

func TestTickSendsDueBatch(t *testing.T) {
	records := newFakeRecords()
	records.pending[store.ScopeAdmin] = []store.Notification{
		notification("n1", "p1", 0),
		notification("n2", "p1", 0),
	}

	s, sent := testScheduler(records, &fakeChecker{}, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(*sent) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(*sent))
	}
	got := (*sent)[0]
	if got.to.Scope != store.ScopeAdmin || got.to.ProjectID != "p1" {
		t.Errorf("unexpected recipient %+v", got.to)
	}
	if len(got.batch) != 2 {
		t.Errorf("batch size = %d, want 2", len(got.batch))
	}
	if len(records.sent[store.ScopeAdmin]) != 2 {
		t.Errorf("marked sent = %v, want both records", records.sent[store.ScopeAdmin])
	}
	if len(records.addedAttempts[store.ScopeAdmin]) != 2 {
		t.Error("attempts must be charged before the send")
	}
	if records.watermark[store.ScopeAdmin] == nil {
		t.Error("watermark must advance after a fully successful tick")
	}
}

func TestTickGroupsByProject(t *testing.T) {
	records := newFakeRecords()
	records.pending[store.ScopeAdmin] = []store.Notification{
		notification("n1", "p1", 0),
		notification("n2", "p2", 0),
		notification("n3", "p1", 0),
	}

	s, sent := testScheduler(records, &fakeChecker{}, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(*sent) != 2 {
		t.Fatalf("expected one batch per project, got %d", len(*sent))
	}
	sizes := map[string]int{}
	for _, b := range *sent {
		sizes[b.to.ProjectID] = len(b.batch)
	}
	if sizes["p1"] != 2 || sizes["p2"] != 1 {
		t.Errorf("batch sizes = %v, want p1:2 p2:1", sizes)
	}
}

func TestTickSkipsImmediateScope(t *testing.T) {
	records := newFakeRecords()
	records.pending[store.ScopeClient] = []store.Notification{notification("n1", "p1", 0)}

	s, sent := testScheduler(records, &fakeChecker{}, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 0 {
		t.Error("immediate scope must not be batched")
	}
}

func TestTickNotDueBeforeBoundary(t *testing.T) {
	records := newFakeRecords()
	records.pending[store.ScopeAdmin] = []store.Notification{notification("n1", "p1", 0)}
	sentAt := time.Date(2026, 8, 31, 14, 10, 0, 0, time.UTC) // this hour's boundary done
	records.watermark[store.ScopeAdmin] = &sentAt

	s, sent := testScheduler(records, &fakeChecker{}, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 0 {
		t.Error("nothing should send before the next boundary")
	}
	if got := records.watermark[store.ScopeAdmin]; !got.Equal(sentAt) {
		t.Error("watermark must not move on a no-op tick")
	}
}

func TestTickCancelsDeletedSources(t *testing.T) {
	records := newFakeRecords()
	key := "comment-9"
	n := notification("n1", "p1", 0)
	n.CorrelationKey = &key
	records.pending[store.ScopeAdmin] = []store.Notification{n, notification("n2", "p1", 0)}

	s, sent := testScheduler(records, &fakeChecker{missing: map[string]bool{key: true}}, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(records.deleted) != 1 || records.deleted[0] != "n1" {
		t.Errorf("deleted = %v, want [n1]", records.deleted)
	}
	if len(*sent) != 1 || len((*sent)[0].batch) != 1 {
		t.Fatal("remaining record must still send")
	}
	if (*sent)[0].batch[0].ID != "n2" {
		t.Errorf("sent %s, want n2", (*sent)[0].batch[0].ID)
	}
}

func TestTickEmptyBatchDoesNotAdvanceWatermark(t *testing.T) {
	records := newFakeRecords()

	s, _ := testScheduler(records, &fakeChecker{}, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if records.watermark[store.ScopeAdmin] != nil {
		t.Error("empty batch must not advance the watermark")
	}
}

func TestTickSendFailureKeepsRecordsPending(t *testing.T) {
	records := newFakeRecords()
	records.pending[store.ScopeAdmin] = []store.Notification{notification("n1", "p1", 0)}

	s, _ := testScheduler(records, &fakeChecker{}, errors.New("smtp down"))
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(records.sent[store.ScopeAdmin]) != 0 {
		t.Error("failed batch must not be marked sent")
	}
	if len(records.failed[store.ScopeAdmin]) != 0 {
		t.Error("first failure must not retire the record")
	}
	if records.watermark[store.ScopeAdmin] != nil {
		t.Error("watermark must not advance past a failed group")
	}
}

func TestTickSendFailureRetiresExhausted(t *testing.T) {
	records := newFakeRecords()
	// Two attempts already charged; this tick's charge makes three.
	records.pending[store.ScopeAdmin] = []store.Notification{notification("n1", "p1", 2)}

	s, _ := testScheduler(records, &fakeChecker{}, errors.New("smtp down"))
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(records.failed[store.ScopeAdmin]) != 1 {
		t.Fatalf("exhausted record must be retired, failed = %v", records.failed[store.ScopeAdmin])
	}
}
