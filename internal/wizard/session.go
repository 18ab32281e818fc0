// Package wizard holds the client-side state of one multi-step project
// request: the five step slices, session metadata, and the sync engine that
// reconciles edits against the persistence gateway.
package wizard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"projectally/api/internal/store"
)

// Options tune a session. Zero values fall back to production defaults.
type Options struct {
	Debounce time.Duration
	Device   store.DeviceType
}

// Session is the single source of truth for an in-progress submission's
// editable state. It is owned by one wizard flow for its lifetime; the only
// sharing across tabs happens through the remote store.
type Session struct {
	mu       sync.Mutex
	gw       Gateway
	notifier Notifier
	engine   *Engine

	submissionID    string
	submitter       string
	selectedAccount *int64
	isExisting      bool
	formReady       bool
	loading         bool

	mode               string
	selectedProjectIDs []int
	allProjects        []store.Project
	generalInfo        map[string]any
	designStyle        map[string]any
	creativeDirection  map[string]any
	deliverableDetails map[string]any
}

func NewSession(gw Gateway, notifier Notifier, opts Options) *Session {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	device := opts.Device
	if device == "" {
		device = store.DeviceDesktop
	}
	return &Session{
		gw:                 gw,
		notifier:           notifier,
		engine:             newEngine(gw, notifier, opts.Debounce, device),
		mode:               "simple",
		selectedProjectIDs: []int{},
	}
}

// --- step slice setters -------------------------------------------------

func (s *Session) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.syncLocked()
}

func (s *Session) SetSelectedProjectIDs(ids []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ids == nil {
		ids = []int{}
	}
	s.selectedProjectIDs = ids
	s.syncLocked()
}

// SetAllProjects replaces the display catalog. The catalog is derived data:
// it never reaches form_data and never triggers a sync.
func (s *Session) SetAllProjects(projects []store.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allProjects = projects
}

func (s *Session) SetGeneralInfo(state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generalInfo = state
	s.syncLocked()
}

func (s *Session) SetDesignStyle(state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.designStyle = state
	s.syncLocked()
}

func (s *Session) SetCreativeDirection(state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creativeDirection = state
	s.syncLocked()
}

// SetDeliverableDetails skips structurally equal updates. The embedded widget
// re-emits equivalent state on every render, which would otherwise loop the
// engine forever.
func (s *Session) SetDeliverableDetails(state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if structurallyEqual(s.deliverableDetails, state) {
		return
	}
	s.deliverableDetails = state
	s.syncLocked()
}

// --- session metadata ---------------------------------------------------

func (s *Session) SetSubmissionID(submissionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissionID = submissionID
}

func (s *Session) SetSubmitter(submitter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitter = submitter
}

func (s *Session) SetSelectedAccount(account *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedAccount = account
}

func (s *Session) SetExistingSubmission(existing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isExisting = existing
}

// SetFormReady marks the resumed form as fully rendered. For existing
// submissions this is the trigger that arms the mobile prompt, independent
// of whether the user edits anything.
func (s *Session) SetFormReady(ready bool) {
	s.mu.Lock()
	s.formReady = ready
	arm := ready && s.isExisting && s.submissionID != ""
	submissionID := s.submissionID
	account := s.selectedAccount
	s.mu.Unlock()

	if arm {
		go s.notifier.ArmFormReady(context.Background(), submissionID, account)
	}
}

// --- lifecycle ----------------------------------------------------------

// Load hydrates the session wholesale from a fetched submission. On failure
// (not-found or network) the store is left unchanged and the caller decides
// the fallback; there are no retries here.
func (s *Session) Load(ctx context.Context, submissionID string) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	sub, err := s.gw.GetSubmission(ctx, submissionID)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return fmt.Errorf("load submission %s: %w", submissionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(sub)
	s.loading = false
	return nil
}

// AdoptNew populates the session from a freshly created submission without
// counting as an observed change, so the engine stays in initial-setup state
// and the user's first real edit is the one that seeds the baseline.
func (s *Session) AdoptNew(sub store.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(sub)
	s.isExisting = false
}

// hydrateLocked overwrites slices and metadata from a submission record,
// defaulting absent fields. allProjects is deliberately untouched: the
// catalog is never sourced from the record.
func (s *Session) hydrateLocked(sub store.Submission) {
	formData := sub.FormData
	if formData.Mode == "" {
		formData.Mode = "simple"
	}
	if formData.SelectedProjectIDs == nil {
		formData.SelectedProjectIDs = []int{}
	}

	s.mode = formData.Mode
	s.selectedProjectIDs = formData.SelectedProjectIDs
	s.generalInfo = formData.GeneralInfo
	s.designStyle = formData.DesignStyle
	s.creativeDirection = formData.CreativeDirection
	s.deliverableDetails = formData.DeliverableDetails

	s.submissionID = sub.ID
	s.submitter = sub.Submitter
	s.selectedAccount = sub.SelectedAccount

	s.engine.reset()
}

// Clear resets every slice and session-meta field to initial values and all
// sync bookkeeping, so a subsequent session inherits no stale diff state.
// Any pending mobile prompt for the outgoing submission is canceled too.
func (s *Session) Clear() {
	s.mu.Lock()
	outgoing := s.submissionID

	s.submissionID = ""
	s.submitter = ""
	s.selectedAccount = nil
	s.isExisting = false
	s.formReady = false
	s.loading = false

	s.mode = "simple"
	s.selectedProjectIDs = []int{}
	s.allProjects = nil
	s.generalInfo = nil
	s.designStyle = nil
	s.creativeDirection = nil
	s.deliverableDetails = nil

	s.engine.reset()
	s.mu.Unlock()

	if outgoing != "" {
		s.notifier.Reset(outgoing)
	}
}

// Close tears the session down, canceling scheduled writes and timers.
func (s *Session) Close() {
	s.engine.Close()
}

// --- sync trigger -------------------------------------------------------

// syncLocked feeds the engine after a watched mutation. It does nothing
// while a load is in flight or before the session has both a submission id
// and a submitter.
func (s *Session) syncLocked() {
	if s.loading || s.submissionID == "" || s.submitter == "" {
		return
	}
	formData := s.formDataLocked()
	canonical, err := canonicalSnapshot(formData)
	if err != nil {
		log.Printf("[sync] snapshot failed for %s: %v", s.submissionID, err)
		return
	}
	s.engine.observe(writeRequest{
		submissionID: s.submissionID,
		submitter:    s.submitter,
		account:      s.selectedAccount,
		formData:     formData,
		canonical:    canonical,
	}, s.isExisting)
}

func (s *Session) formDataLocked() store.FormData {
	ids := make([]int, len(s.selectedProjectIDs))
	copy(ids, s.selectedProjectIDs)
	return store.FormData{
		Mode:               s.mode,
		SelectedProjectIDs: ids,
		GeneralInfo:        s.generalInfo,
		DesignStyle:        s.designStyle,
		CreativeDirection:  s.creativeDirection,
		DeliverableDetails: s.deliverableDetails,
	}
}

// --- accessors ----------------------------------------------------------

func (s *Session) SubmissionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissionID
}

func (s *Session) Submitter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitter
}

func (s *Session) SelectedAccount() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedAccount
}

func (s *Session) IsExistingSubmission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isExisting
}

func (s *Session) IsFormReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formReady
}

func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) SelectedProjectIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, len(s.selectedProjectIDs))
	copy(ids, s.selectedProjectIDs)
	return ids
}

func (s *Session) AllProjects() []store.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allProjects
}

func (s *Session) GeneralInfo() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generalInfo
}

func (s *Session) DesignStyle() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.designStyle
}

func (s *Session) CreativeDirection() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creativeDirection
}

func (s *Session) DeliverableDetails() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverableDetails
}

// FormData returns the persistable snapshot of the watched fields.
func (s *Session) FormData() store.FormData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formDataLocked()
}

// IsSyncing reports whether a persistence write is in flight.
func (s *Session) IsSyncing() bool {
	return s.engine.InFlight()
}

// LastSyncError exposes the most recent write failure for the sync
// indicator. Empty after a successful write.
func (s *Session) LastSyncError() string {
	return s.engine.LastSyncError()
}
