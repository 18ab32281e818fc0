package wizard

import (
	"context"
	"log"
	"sync"
	"time"

	"projectally/api/internal/gateway"
	"projectally/api/internal/store"
)

// DefaultDebounce is the quiet period after the last change before a write
// is issued.
const DefaultDebounce = 1000 * time.Millisecond

// Gateway is the slice of the persistence gateway the wizard core consumes.
type Gateway interface {
	GetSubmission(ctx context.Context, submissionID string) (store.Submission, error)
	UpdateSubmission(ctx context.Context, params gateway.UpdateSubmissionParams) (store.Submission, error)
}

// Notifier arms and resets the continue-on-mobile prompt.
type Notifier interface {
	ArmFirstEdit(ctx context.Context, submissionID string, account *int64)
	ArmFormReady(ctx context.Context, submissionID string, account *int64)
	Reset(submissionID string)
}

type noopNotifier struct{}

func (noopNotifier) ArmFirstEdit(context.Context, string, *int64) {}
func (noopNotifier) ArmFormReady(context.Context, string, *int64) {}
func (noopNotifier) Reset(string)                                 {}

type writeRequest struct {
	submissionID string
	submitter    string
	account      *int64
	formData     store.FormData
	canonical    string
}

// Engine keeps the remote submission eventually consistent with the session
// state. Changes are debounced and coalesced into a single trailing write;
// no-op changes are detected by comparing canonical snapshots against the
// last successfully synced baseline.
type Engine struct {
	mu       sync.Mutex
	gw       Gateway
	notifier Notifier
	debounce time.Duration
	device   store.DeviceType

	ctx    context.Context
	cancel context.CancelFunc

	// initialSetup suppresses the first observation after hydration so a
	// freshly created or loaded session does not immediately write back
	// its own server-side defaults.
	initialSetup bool
	baseline     string
	hasBaseline  bool
	pending      *time.Timer
	next         writeRequest
	inFlight     bool
	lastErr      string
}

func newEngine(gw Gateway, notifier Notifier, debounce time.Duration, device store.DeviceType) *Engine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		gw:           gw,
		notifier:     notifier,
		debounce:     debounce,
		device:       device,
		ctx:          ctx,
		cancel:       cancel,
		initialSetup: true,
	}
}

// observe records a new state of the watched fields. The first observation
// after hydration becomes the baseline without writing. Later observations
// that match the baseline are dropped; real diffs (re)start the debounce
// timer, and for brand-new submissions arm the mobile prompt.
func (e *Engine) observe(req writeRequest, isExisting bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialSetup {
		e.baseline = req.canonical
		e.hasBaseline = true
		e.initialSetup = false
		return
	}

	if e.hasBaseline && req.canonical == e.baseline {
		return
	}

	if !isExisting {
		// The preference guard behind arming may hit the network; keep
		// the edit path non-blocking.
		go e.notifier.ArmFirstEdit(e.ctx, req.submissionID, req.account)
	}

	e.next = req
	if e.pending != nil {
		e.pending.Stop()
	}
	e.pending = time.AfterFunc(e.debounce, e.flush)
}

func (e *Engine) flush() {
	e.mu.Lock()
	if e.inFlight {
		// One write at a time per session; pick this change up after the
		// current write settles.
		e.pending = time.AfterFunc(e.debounce, e.flush)
		e.mu.Unlock()
		return
	}
	e.pending = nil
	e.inFlight = true
	req := e.next
	e.mu.Unlock()

	_, err := e.gw.UpdateSubmission(e.ctx, gateway.UpdateSubmissionParams{
		SubmissionID:       req.submissionID,
		Status:             store.StatusInProgress,
		FormData:           req.formData,
		DeviceLastViewedOn: e.device,
	})

	e.mu.Lock()
	defer func() {
		e.inFlight = false
		e.mu.Unlock()
	}()
	if err != nil {
		// Keep the old baseline: the next observed change still registers
		// as a diff and retries the full snapshot.
		e.lastErr = err.Error()
		log.Printf("[sync] write failed for %s: %v", req.submissionID, err)
		return
	}
	e.baseline = req.canonical
	e.hasBaseline = true
	e.lastErr = ""
}

// reset returns the engine to its initial-setup state: pending writes are
// dropped, the baseline is cleared and the next observation is suppressed.
func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.initialSetup = true
	e.baseline = ""
	e.hasBaseline = false
	e.lastErr = ""
	e.next = writeRequest{}
}

// InFlight reports whether a persistence write is currently running.
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// LastSyncError returns the most recent write failure, or "" after a
// successful write. Sync failures never block editing.
func (e *Engine) LastSyncError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Close cancels the write context and any scheduled write. Call on session
// teardown so delayed tasks cannot fire against a torn-down session.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.mu.Unlock()
	e.cancel()
}
