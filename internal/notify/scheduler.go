// Package notify schedules the continue-on-mobile prompt. A prompt is armed
// when a session starts being edited or finishes loading, fires once after a
// short delay, stays visible briefly and is never repeated for the same
// submission.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"projectally/api/internal/store"
)

type promptState int

const (
	stateIdle promptState = iota
	stateArmed
	stateVisible
	stateShown
)

// Defaults for arming delay, visibility window and the desktop breakpoint.
const (
	DefaultDelay             = 3 * time.Second
	DefaultDuration          = 30 * time.Second
	DefaultDesktopBreakpoint = 1024
)

// Prompt is what the presenter renders.
type Prompt struct {
	SubmissionID string
	Title        string
	Description  string
}

// Presenter displays and hides the prompt. Show and Hide are called outside
// the scheduler lock and must be safe to call from timer goroutines.
type Presenter interface {
	Show(prompt Prompt)
	Hide()
}

// PreferenceStore reads and patches per-account preferences. The gateway
// client satisfies this.
type PreferenceStore interface {
	GetAccountPreferences(ctx context.Context, accountNumber int64) (store.AccountPreferences, error)
	UpdateAccountPreferences(ctx context.Context, accountNumber int64, patch store.AccountPreferencesPatch) (store.AccountPreferences, error)
}

// Options tune the scheduler. Zero values fall back to defaults; a nil
// ViewportWidth disables the breakpoint guard.
type Options struct {
	Delay             time.Duration
	Duration          time.Duration
	DesktopBreakpoint int
	ViewportWidth     func() int
}

// Scheduler de-duplicates the prompt per submission id. Both arming paths
// funnel into the same state machine, so whichever arms first wins and a
// shown prompt never re-arms.
type Scheduler struct {
	mu        sync.Mutex
	presenter Presenter
	prefs     PreferenceStore
	opts      Options

	states map[string]promptState

	pending        *time.Timer
	pendingID      string
	pendingAccount *int64

	visibleID      string
	visibleAccount *int64
	dismissTimer   *time.Timer
}

func NewScheduler(presenter Presenter, prefs PreferenceStore, opts Options) *Scheduler {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.DesktopBreakpoint <= 0 {
		opts.DesktopBreakpoint = DefaultDesktopBreakpoint
	}
	return &Scheduler{
		presenter: presenter,
		prefs:     prefs,
		opts:      opts,
		states:    map[string]promptState{},
	}
}

// ArmFirstEdit arms the prompt when a brand-new submission receives its
// first edit.
func (s *Scheduler) ArmFirstEdit(ctx context.Context, submissionID string, account *int64) {
	s.arm(ctx, submissionID, account, "first-edit")
}

// ArmFormReady arms the prompt when a resumed submission's form has finished
// rendering.
func (s *Scheduler) ArmFormReady(ctx context.Context, submissionID string, account *int64) {
	s.arm(ctx, submissionID, account, "form-ready")
}

// arm applies the guards at arming time, then starts the delay timer.
// Re-arming an already armed, visible or shown submission is a no-op.
func (s *Scheduler) arm(ctx context.Context, submissionID string, account *int64, trigger string) {
	if submissionID == "" {
		return
	}

	// Hand-off only makes sense from a desktop viewport: scanning a QR code
	// with the phone you are already on is pointless.
	if s.opts.ViewportWidth != nil && s.opts.ViewportWidth() < s.opts.DesktopBreakpoint {
		return
	}

	// Preference lookup fails open: an unreachable preference store must not
	// suppress the prompt.
	if account != nil && s.prefs != nil {
		prefs, err := s.prefs.GetAccountPreferences(ctx, *account)
		if err != nil {
			log.Printf("[notify] preference lookup failed for account %d: %v", *account, err)
		} else if prefs.DontShowMobileQRCodeAgain {
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.states[submissionID] != stateIdle {
		return
	}
	s.states[submissionID] = stateArmed

	if s.pending != nil {
		s.pending.Stop()
	}
	s.pendingID = submissionID
	s.pendingAccount = account
	s.pending = time.AfterFunc(s.opts.Delay, func() {
		s.fire(submissionID)
	})
	log.Printf("[notify] armed %s prompt for %s", trigger, submissionID)
}

// fire shows the prompt if the arming is still current, then starts the
// auto-dismiss timer.
func (s *Scheduler) fire(submissionID string) {
	s.mu.Lock()
	if s.pendingID != submissionID || s.states[submissionID] != stateArmed {
		s.mu.Unlock()
		return
	}
	s.states[submissionID] = stateVisible
	s.pending = nil
	s.pendingID = ""
	s.visibleID = submissionID
	s.visibleAccount = s.pendingAccount
	s.pendingAccount = nil

	if s.dismissTimer != nil {
		s.dismissTimer.Stop()
	}
	s.dismissTimer = time.AfterFunc(s.opts.Duration, func() {
		s.Dismiss()
	})
	s.mu.Unlock()

	s.presenter.Show(Prompt{
		SubmissionID: submissionID,
		Title:        "Continue on your phone",
		Description:  "Scan the QR code to keep working on this request from your phone.",
	})
}

// Dismiss hides the visible prompt. The submission stays in the shown state,
// so it never re-arms within this scheduler's lifetime.
func (s *Scheduler) Dismiss() {
	s.mu.Lock()
	if s.visibleID == "" {
		s.mu.Unlock()
		return
	}
	s.states[s.visibleID] = stateShown
	s.visibleID = ""
	s.visibleAccount = nil
	if s.dismissTimer != nil {
		s.dismissTimer.Stop()
		s.dismissTimer = nil
	}
	s.mu.Unlock()

	s.presenter.Hide()
}

// DontShowAgain persists the opt-out for the visible prompt's account and
// hides the prompt. Persistence failures are logged and the prompt still
// hides.
func (s *Scheduler) DontShowAgain(ctx context.Context) {
	s.mu.Lock()
	account := s.visibleAccount
	s.mu.Unlock()

	if account != nil && s.prefs != nil {
		dontShow := true
		if _, err := s.prefs.UpdateAccountPreferences(ctx, *account, store.AccountPreferencesPatch{
			DontShowMobileQRCodeAgain: &dontShow,
		}); err != nil {
			log.Printf("[notify] persisting opt-out failed for account %d: %v", *account, err)
		}
	}

	s.Dismiss()
}

// Reset forgets a submission entirely, cancels any pending arming for it and
// hides the prompt if it is the one visible. Called when a session is cleared
// so a later session for the same id can prompt again.
func (s *Scheduler) Reset(submissionID string) {
	s.mu.Lock()
	delete(s.states, submissionID)

	if s.pendingID == submissionID {
		if s.pending != nil {
			s.pending.Stop()
		}
		s.pending = nil
		s.pendingID = ""
		s.pendingAccount = nil
	}

	hide := s.visibleID == submissionID
	if hide {
		s.visibleID = ""
		s.visibleAccount = nil
		if s.dismissTimer != nil {
			s.dismissTimer.Stop()
			s.dismissTimer = nil
		}
	}
	s.mu.Unlock()

	if hide {
		s.presenter.Hide()
	}
}

// HasShown reports whether the prompt already fired for the submission.
func (s *Scheduler) HasShown(submissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[submissionID]
	return state == stateVisible || state == stateShown
}

// Close stops all timers. The presenter is not hidden; callers tearing down
// the whole UI do that themselves.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.dismissTimer != nil {
		s.dismissTimer.Stop()
		s.dismissTimer = nil
	}
}
