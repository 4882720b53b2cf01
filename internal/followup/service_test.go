package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/nudge/internal/caserec"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[string]*Run)}
}

func (m *mockStore) Get(_ context.Context, id string) (*Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	cp.Intents = append([]NotificationIntent(nil), r.Intents...)
	return &cp, true, nil
}

func (m *mockStore) Put(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *r
	cp.Intents = append([]NotificationIntent(nil), r.Intents...)
	m.runs[r.ID] = &cp
	return nil
}

// mockMailer records deliveries and can fail selected owners.
type mockMailer struct {
	mu        sync.Mutex
	delivered []string
	failOwner string
}

func (m *mockMailer) Deliver(_ context.Context, intent *NotificationIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent.Owner == m.failOwner {
		return errors.New("smtp: mailbox unavailable")
	}
	m.delivered = append(m.delivered, intent.Owner)
	return nil
}

type mockNotifier struct {
	mu   sync.Mutex
	runs []*Run
}

func (m *mockNotifier) Send(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

type mockSummarizer struct {
	digest string
	err    error
}

func (m *mockSummarizer) Summarize(_ context.Context, _ *Run) (string, error) {
	return m.digest, m.err
}

func testRecords() []caserec.Record {
	return []caserec.Record{
		rec("C-1", "Fadi Hanna", day(2023, 1, 1)),
		rec("C-2", "Fadi Hanna", day(2022, 11, 1)),
		rec("C-3", "Jana Sweid", day(2023, 2, 1)),
		rec("C-4", "Abdo Khoury", day(2020, 1, 1)),
	}
}

func drain(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestSubmit_StagesRun(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := NewService(store, testDirectory(t), nil, nil, nil, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sr.Skipped {
		t.Fatal("expected run to be accepted")
	}
	if sr.Intents != 2 {
		t.Errorf("Intents = %d, want 2", sr.Intents)
	}
	drain(t, svc)

	run, ok, err := svc.Get(context.Background(), sr.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if run.Status != StatusComplete {
		t.Errorf("Status = %q, want complete", run.Status)
	}
	for _, intent := range run.Intents {
		if intent.Delivery != DeliveryStaged {
			t.Errorf("intent %s Delivery = %q, want staged in dry-run", intent.Owner, intent.Delivery)
		}
	}
	if run.TotalCases != 4 {
		t.Errorf("TotalCases = %d, want 4", run.TotalCases)
	}
	if run.OwnerCount != 3 {
		t.Errorf("OwnerCount = %d, want 3 (escalation contact still grouped)", run.OwnerCount)
	}
}

func TestSubmit_EmptyExportSkipped(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), testDirectory(t), nil, nil, nil, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), nil, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !sr.Skipped {
		t.Error("expected empty export to be skipped")
	}
	if sr.Reason != "empty export" {
		t.Errorf("Reason = %q, want %q", sr.Reason, "empty export")
	}
}

func TestSubmit_DeliversWhenRequested(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	mailer := &mockMailer{}
	svc := NewService(store, testDirectory(t), mailer, nil, nil, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{Deliver: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, svc)

	run, _, _ := svc.Get(context.Background(), sr.ID)
	for _, intent := range run.Intents {
		if intent.Delivery != DeliverySent {
			t.Errorf("intent %s Delivery = %q, want sent", intent.Owner, intent.Delivery)
		}
	}
	if len(mailer.delivered) != 2 {
		t.Errorf("delivered = %v, want 2 owners", mailer.delivered)
	}
}

func TestSubmit_DeliveryFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	mailer := &mockMailer{failOwner: "Fadi Hanna"}
	svc := NewService(store, testDirectory(t), mailer, nil, nil, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{Deliver: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, svc)

	run, _, _ := svc.Get(context.Background(), sr.ID)
	if run.Status != StatusComplete {
		t.Errorf("Status = %q, want complete despite one failed delivery", run.Status)
	}

	byOwner := map[string]NotificationIntent{}
	for _, intent := range run.Intents {
		byOwner[intent.Owner] = intent
	}
	if byOwner["Fadi Hanna"].Delivery != DeliveryFailed {
		t.Errorf("failed owner Delivery = %q, want failed", byOwner["Fadi Hanna"].Delivery)
	}
	if byOwner["Fadi Hanna"].DeliveryError == "" {
		t.Error("expected DeliveryError on failed intent")
	}
	if byOwner["Jana Sweid"].Delivery != DeliverySent {
		t.Errorf("other owner Delivery = %q, want sent", byOwner["Jana Sweid"].Delivery)
	}
}

func TestSubmit_UnresolvedOwnersReported(t *testing.T) {
	t.Parallel()

	records := append(testRecords(), rec("C-9", "Unknown Person", day(2023, 3, 1)))
	store := newMockStore()
	svc := NewService(store, testDirectory(t), nil, nil, nil, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), records, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, svc)

	run, _, _ := svc.Get(context.Background(), sr.ID)
	if len(run.UnresolvedOwners) != 1 || run.UnresolvedOwners[0] != "Unknown Person" {
		t.Errorf("UnresolvedOwners = %v, want [Unknown Person]", run.UnresolvedOwners)
	}
	// The rest of the run still completed.
	if sr.Intents != 2 {
		t.Errorf("Intents = %d, want 2", sr.Intents)
	}
}

func TestSubmit_DigestStoredOnRun(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := NewService(store, testDirectory(t), nil, nil, &mockSummarizer{digest: "two owners need nudging"}, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, svc)

	run, _, _ := svc.Get(context.Background(), sr.ID)
	if run.Digest != "two owners need nudging" {
		t.Errorf("Digest = %q, want summarizer output", run.Digest)
	}
}

func TestSubmit_DigestFailureNonFatal(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := NewService(store, testDirectory(t), nil, nil, &mockSummarizer{err: errors.New("api down")}, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, svc)

	run, _, _ := svc.Get(context.Background(), sr.ID)
	if run.Status != StatusComplete {
		t.Errorf("Status = %q, want complete despite digest failure", run.Status)
	}
	if run.Digest != "" {
		t.Errorf("Digest = %q, want empty", run.Digest)
	}
}

func TestSubmit_NotifierReceivesFinishedRun(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	notifier := &mockNotifier{}
	svc := NewService(store, testDirectory(t), nil, notifier, nil, nil, log.Nop())

	if _, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, svc)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.runs) != 1 {
		t.Fatalf("notifier runs = %d, want 1", len(notifier.runs))
	}
	if notifier.runs[0].Status != StatusComplete {
		t.Errorf("notified run status = %q, want complete", notifier.runs[0].Status)
	}
}

func TestSubmit_OwnerFilterPassedThrough(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := NewService(store, testDirectory(t), nil, nil, nil, nil, log.Nop())

	sr, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{OwnerFilter: "FHanna@info-sys.com"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sr.Intents != 1 {
		t.Errorf("Intents = %d, want 1 with owner filter", sr.Intents)
	}
	drain(t, svc)

	run, _, _ := svc.Get(context.Background(), sr.ID)
	if run.OwnerFilter != "FHanna@info-sys.com" {
		t.Errorf("OwnerFilter = %q, want recorded on run", run.OwnerFilter)
	}
}

func TestSubmit_StorePutError(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.putErr = errors.New("disk full")
	svc := NewService(store, testDirectory(t), nil, nil, nil, nil, log.Nop())

	if _, err := svc.Submit(context.Background(), testRecords(), SubmitOptions{}); err == nil {
		t.Fatal("expected error when store rejects the run")
	}
}
