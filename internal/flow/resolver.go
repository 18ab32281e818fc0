// Package flow implements the resume-or-fresh decision behind the "create
// new request" action: look up the submitter's resumable draft, offer a
// choice when one exists, otherwise mint a fresh submission and route to it.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"projectally/api/internal/gateway"
	"projectally/api/internal/store"
	"projectally/api/internal/wizard"
)

// Choice is the user's answer when a resumable draft exists.
type Choice int

const (
	ChoiceContinue Choice = iota
	ChoiceStartFresh
)

// ErrNoDefaultAccount means the authenticated profile has no default account
// configured. Creating a submission without one is impossible; this is not
// retryable.
var ErrNoDefaultAccount = errors.New("flow: profile has no default account")

// Chooser presents the blocking continue-vs-fresh choice. It must not return
// until the user has decided.
type Chooser interface {
	Choose(ctx context.Context, draft store.Submission) (Choice, error)
}

// Navigator performs a client-side route transition. Navigate returns only
// once the destination route has actually been reached.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// Overlay is the loading indicator spanning the whole resolution window.
type Overlay interface {
	Show()
	Hide()
}

// Profile is the authenticated user's identity as the flow needs it.
type Profile struct {
	Email          string
	UserID         string
	DefaultAccount *int64
}

// Submitter derives the identity string persisted on submissions.
func (p Profile) Submitter() string {
	if p.Email != "" {
		return p.Email
	}
	if p.UserID != "" {
		return p.UserID
	}
	return "unknown"
}

// ProfileProvider resolves the current authenticated profile.
type ProfileProvider interface {
	Profile(ctx context.Context) (Profile, error)
}

// Gateway is the slice of the persistence gateway the flow consumes.
type Gateway interface {
	CreateSubmission(ctx context.Context, params gateway.CreateSubmissionParams) (store.Submission, error)
	ListSubmissionsByStatus(ctx context.Context, submitter string, status store.SubmissionStatus) ([]store.Submission, error)
	GetAccountPreferences(ctx context.Context, accountNumber int64) (store.AccountPreferences, error)
}

// Resolver runs the resolution flow for one wizard session.
type Resolver struct {
	gw       Gateway
	session  *wizard.Session
	chooser  Chooser
	nav      Navigator
	overlay  Overlay
	profiles ProfileProvider
	device   store.DeviceType

	mu      sync.Mutex
	pending bool
}

func NewResolver(gw Gateway, session *wizard.Session, chooser Chooser, nav Navigator, overlay Overlay, profiles ProfileProvider, device store.DeviceType) *Resolver {
	return &Resolver{
		gw:       gw,
		session:  session,
		chooser:  chooser,
		nav:      nav,
		overlay:  overlay,
		profiles: profiles,
		device:   device,
	}
}

// StepURL builds the route for one step of a submission.
func StepURL(submissionID string, step int) string {
	return fmt.Sprintf("/create/%s/%d", submissionID, step)
}

// Resolve handles a "create new request" action. Re-entry while a resolution
// is already running is ignored, which absorbs double-clicks. The overlay
// stays up until the destination route has been reached.
func (r *Resolver) Resolve(ctx context.Context) error {
	r.mu.Lock()
	if r.pending {
		r.mu.Unlock()
		return nil
	}
	r.pending = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.pending = false
		r.mu.Unlock()
	}()

	r.overlay.Show()
	defer r.overlay.Hide()

	profile, err := r.profiles.Profile(ctx)
	if err != nil {
		return fmt.Errorf("resolve profile: %w", err)
	}
	submitter := profile.Submitter()

	draft, found := r.lookupDraft(ctx, submitter)
	if !found {
		return r.startFresh(ctx, profile)
	}

	choice, err := r.chooser.Choose(ctx, draft)
	if err != nil {
		return fmt.Errorf("await choice: %w", err)
	}
	if choice == ChoiceContinue {
		return r.continueExisting(ctx, draft)
	}
	return r.startFresh(ctx, profile)
}

// lookupDraft finds the submitter's most recent in-progress submission.
// Lookup failures fall back to a fresh start rather than blocking the user.
func (r *Resolver) lookupDraft(ctx context.Context, submitter string) (store.Submission, bool) {
	drafts, err := r.gw.ListSubmissionsByStatus(ctx, submitter, store.StatusInProgress)
	if err != nil {
		log.Printf("[flow] draft lookup failed for %s, starting fresh: %v", submitter, err)
		return store.Submission{}, false
	}
	if len(drafts) == 0 {
		return store.Submission{}, false
	}
	return drafts[0], true
}

// continueExisting resumes a draft. The existing flag is raised before the
// load so the form-ready notification path sees it the moment the form
// mounts; a failed load rolls it back.
func (r *Resolver) continueExisting(ctx context.Context, draft store.Submission) error {
	r.session.SetExistingSubmission(true)
	if err := r.session.Load(ctx, draft.ID); err != nil {
		r.session.SetExistingSubmission(false)
		return fmt.Errorf("resume draft %s: %w", draft.ID, err)
	}
	if err := r.nav.Navigate(ctx, StepURL(draft.ID, 1)); err != nil {
		return fmt.Errorf("navigate to draft: %w", err)
	}
	return nil
}

// startFresh clears the session and creates a new submission with the
// account's default mode. Creation failures abort with no navigation.
func (r *Resolver) startFresh(ctx context.Context, profile Profile) error {
	r.session.Clear()

	if profile.DefaultAccount == nil {
		return ErrNoDefaultAccount
	}
	account := *profile.DefaultAccount

	// Mode lookup fails soft to simple; a missing preference row is not a
	// reason to block creation.
	mode := "simple"
	if prefs, err := r.gw.GetAccountPreferences(ctx, account); err != nil {
		log.Printf("[flow] preference lookup failed for account %d, defaulting mode: %v", account, err)
	} else if prefs.DefaultSubmissionMode != "" {
		mode = prefs.DefaultSubmissionMode
	}

	formData := store.EmptyFormData()
	formData.Mode = mode

	sub, err := r.gw.CreateSubmission(ctx, gateway.CreateSubmissionParams{
		Submitter:          profile.Submitter(),
		Status:             store.StatusStarted,
		FormData:           formData,
		DeviceLastViewedOn: r.device,
		SelectedAccount:    profile.DefaultAccount,
	})
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}

	r.session.AdoptNew(sub)

	if err := r.nav.Navigate(ctx, StepURL(sub.ID, 1)); err != nil {
		return fmt.Errorf("navigate to new submission: %w", err)
	}
	return nil
}
