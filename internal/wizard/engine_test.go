package wizard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"projectally/api/internal/gateway"
	"projectally/api/internal/store"
)

const testDebounce = 20 * time.Millisecond

type fakeGateway struct {
	mu       sync.Mutex
	getFn    func(ctx context.Context, submissionID string) (store.Submission, error)
	updateFn func(ctx context.Context, params gateway.UpdateSubmissionParams) (store.Submission, error)
	updates  []gateway.UpdateSubmissionParams
}

func (f *fakeGateway) GetSubmission(ctx context.Context, submissionID string) (store.Submission, error) {
	if f.getFn != nil {
		return f.getFn(ctx, submissionID)
	}
	return store.Submission{ID: submissionID, Submitter: "user@example.com", Status: store.StatusInProgress, FormData: store.EmptyFormData()}, nil
}

func (f *fakeGateway) UpdateSubmission(ctx context.Context, params gateway.UpdateSubmissionParams) (store.Submission, error) {
	f.mu.Lock()
	f.updates = append(f.updates, params)
	f.mu.Unlock()
	if f.updateFn != nil {
		return f.updateFn(ctx, params)
	}
	return store.Submission{ID: params.SubmissionID, Status: params.Status, FormData: params.FormData}, nil
}

func (f *fakeGateway) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeGateway) lastUpdate() gateway.UpdateSubmissionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

type fakeNotifier struct {
	mu         sync.Mutex
	firstEdits []string
	formReady  []string
	resets     []string
}

func (f *fakeNotifier) ArmFirstEdit(_ context.Context, submissionID string, _ *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.firstEdits = append(f.firstEdits, submissionID)
}

func (f *fakeNotifier) ArmFormReady(_ context.Context, submissionID string, _ *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formReady = append(f.formReady, submissionID)
}

func (f *fakeNotifier) Reset(submissionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, submissionID)
}

func (f *fakeNotifier) firstEditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.firstEdits)
}

func newTestSession(t *testing.T, gw *fakeGateway, notifier Notifier) *Session {
	t.Helper()
	session := NewSession(gw, notifier, Options{Debounce: testDebounce, Device: store.DeviceDesktop})
	t.Cleanup(session.Close)
	return session
}

func adoptFresh(session *Session) {
	session.AdoptNew(store.Submission{
		ID:        "sub-1",
		Submitter: "user@example.com",
		Status:    store.StatusStarted,
		FormData:  store.EmptyFormData(),
	})
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// settle waits long enough for any pending debounce timer to have fired.
func settle() {
	time.Sleep(6 * testDebounce)
}

func TestEngineSuppressesFirstObservation(t *testing.T) {
	gw := &fakeGateway{}
	session := newTestSession(t, gw, nil)
	adoptFresh(session)

	session.SetSelectedProjectIDs([]int{42})
	settle()

	if got := gw.updateCount(); got != 0 {
		t.Errorf("expected no writes for the baseline-seeding edit, got %d", got)
	}
}

func TestEngineSingleWriteForSecondDistinctChange(t *testing.T) {
	gw := &fakeGateway{}
	session := newTestSession(t, gw, nil)
	adoptFresh(session)

	session.SetSelectedProjectIDs([]int{42})
	session.SetSelectedProjectIDs([]int{42, 43})
	settle()

	if got := gw.updateCount(); got != 1 {
		t.Fatalf("expected exactly 1 write, got %d", got)
	}

	update := gw.lastUpdate()
	if update.Status != store.StatusInProgress {
		t.Errorf("expected status in_progress, got %s", update.Status)
	}
	if update.DeviceLastViewedOn != store.DeviceDesktop {
		t.Errorf("expected device desktop, got %s", update.DeviceLastViewedOn)
	}
	if len(update.FormData.SelectedProjectIDs) != 2 {
		t.Errorf("expected latest ids in write, got %v", update.FormData.SelectedProjectIDs)
	}
}

func TestEngineCoalescesBurstIntoTrailingWrite(t *testing.T) {
	gw := &fakeGateway{}
	session := newTestSession(t, gw, nil)
	adoptFresh(session)

	session.SetGeneralInfo(map[string]any{"title": "a"})
	session.SetGeneralInfo(map[string]any{"title": "ab"})
	session.SetGeneralInfo(map[string]any{"title": "abc"})
	session.SetGeneralInfo(map[string]any{"title": "abcd"})
	settle()

	if got := gw.updateCount(); got != 1 {
		t.Fatalf("expected burst to coalesce into 1 write, got %d", got)
	}
	if title := gw.lastUpdate().FormData.GeneralInfo["title"]; title != "abcd" {
		t.Errorf("expected trailing state in write, got %v", title)
	}
}

func TestEngineDropsNoOpChange(t *testing.T) {
	gw := &fakeGateway{}
	session := newTestSession(t, gw, nil)
	adoptFresh(session)

	session.SetGeneralInfo(map[string]any{"title": "first"})
	session.SetGeneralInfo(map[string]any{"title": "final"})
	waitFor(t, func() bool { return gw.updateCount() == 1 }, "expected initial write")

	// Structurally identical to the synced baseline, fresh object.
	session.SetGeneralInfo(map[string]any{"title": "final"})
	settle()

	if got := gw.updateCount(); got != 1 {
		t.Errorf("expected no-op change to be dropped, got %d writes", got)
	}
}

func TestEngineRetriesAfterFailedWrite(t *testing.T) {
	gw := &fakeGateway{}
	var fail atomic.Bool
	fail.Store(true)
	gw.updateFn = func(_ context.Context, params gateway.UpdateSubmissionParams) (store.Submission, error) {
		if fail.Load() {
			return store.Submission{}, context.DeadlineExceeded
		}
		return store.Submission{ID: params.SubmissionID, Status: params.Status, FormData: params.FormData}, nil
	}
	session := newTestSession(t, gw, nil)
	adoptFresh(session)

	session.SetGeneralInfo(map[string]any{"title": "seed"})
	session.SetGeneralInfo(map[string]any{"title": "draft"})
	waitFor(t, func() bool { return gw.updateCount() == 1 }, "expected first write attempt")
	waitFor(t, func() bool { return session.LastSyncError() != "" }, "expected sync error after failed write")

	// The baseline did not advance, so re-emitting the exact same state must
	// register as a diff and retry.
	fail.Store(false)
	session.SetGeneralInfo(map[string]any{"title": "draft"})
	waitFor(t, func() bool { return gw.updateCount() == 2 }, "expected retry write")
	waitFor(t, func() bool { return session.LastSyncError() == "" }, "expected sync error cleared after success")

	// Baseline advanced now; the same state again is a no-op.
	session.SetGeneralInfo(map[string]any{"title": "draft"})
	settle()
	if got := gw.updateCount(); got != 2 {
		t.Errorf("expected baseline to advance after success, got %d writes", got)
	}
}

func TestEngineArmsFirstEditForNewSubmissionsOnly(t *testing.T) {
	gw := &fakeGateway{}
	notifier := &fakeNotifier{}
	session := newTestSession(t, gw, notifier)
	adoptFresh(session)

	session.SetSelectedProjectIDs([]int{1})
	session.SetSelectedProjectIDs([]int{1, 2})
	waitFor(t, func() bool { return notifier.firstEditCount() > 0 }, "expected first-edit arming for new submission")

	session.SetExistingSubmission(true)
	before := notifier.firstEditCount()
	session.SetSelectedProjectIDs([]int{1, 2, 3})
	settle()
	if got := notifier.firstEditCount(); got != before {
		t.Errorf("expected no first-edit arming for existing submission, got %d extra", got-before)
	}
}

func TestEngineResetSuppressesNextObservation(t *testing.T) {
	gw := &fakeGateway{}
	session := newTestSession(t, gw, nil)
	adoptFresh(session)

	session.SetSelectedProjectIDs([]int{1})
	session.SetSelectedProjectIDs([]int{2})
	waitFor(t, func() bool { return gw.updateCount() == 1 }, "expected write before reset")

	// A rehydration returns the engine to initial setup.
	adoptFresh(session)
	session.SetSelectedProjectIDs([]int{9})
	settle()
	if got := gw.updateCount(); got != 1 {
		t.Errorf("expected post-rehydrate edit to seed baseline silently, got %d writes", got)
	}
}
