package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"projectally/api/internal/config"
	"projectally/api/internal/store"
)

type fakeStore struct {
	createSubmissionFn       func(context.Context, string, store.SubmissionStatus, *int64, store.FormData, store.DeviceType) (store.Submission, error)
	updateSubmissionFn       func(context.Context, string, store.SubmissionStatus, store.FormData, store.DeviceType) (store.Submission, error)
	getSubmissionFn          func(context.Context, string) (store.Submission, error)
	listSubmissionsFn        func(context.Context, string, store.SubmissionStatus) ([]store.Submission, error)
	getAccountPreferencesFn  func(context.Context, int64) (store.AccountPreferences, error)
	saveAccountPreferencesFn func(context.Context, store.AccountPreferences) error
	accountStatsFn           func(context.Context, int64) (store.AccountStats, error)
	pingFn                   func(context.Context) error
}

func (f *fakeStore) CreateSubmission(ctx context.Context, submitter string, status store.SubmissionStatus, account *int64, formData store.FormData, device store.DeviceType) (store.Submission, error) {
	if f.createSubmissionFn != nil {
		return f.createSubmissionFn(ctx, submitter, status, account, formData, device)
	}
	return store.Submission{ID: "sub-1", Submitter: submitter, Status: status, SelectedAccount: account, FormData: formData, DeviceLastViewedOn: device}, nil
}

func (f *fakeStore) UpdateSubmission(ctx context.Context, submissionID string, status store.SubmissionStatus, formData store.FormData, device store.DeviceType) (store.Submission, error) {
	if f.updateSubmissionFn != nil {
		return f.updateSubmissionFn(ctx, submissionID, status, formData, device)
	}
	return store.Submission{ID: submissionID, Status: status, FormData: formData, DeviceLastViewedOn: device}, nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, submissionID string) (store.Submission, error) {
	if f.getSubmissionFn != nil {
		return f.getSubmissionFn(ctx, submissionID)
	}
	return store.Submission{ID: submissionID, Submitter: "user@example.com", Status: store.StatusStarted, FormData: store.EmptyFormData()}, nil
}

func (f *fakeStore) ListSubmissionsByStatus(ctx context.Context, submitter string, status store.SubmissionStatus) ([]store.Submission, error) {
	if f.listSubmissionsFn != nil {
		return f.listSubmissionsFn(ctx, submitter, status)
	}
	return nil, nil
}

func (f *fakeStore) GetAccountPreferences(ctx context.Context, accountNumber int64) (store.AccountPreferences, error) {
	if f.getAccountPreferencesFn != nil {
		return f.getAccountPreferencesFn(ctx, accountNumber)
	}
	return store.DefaultAccountPreferences(accountNumber), nil
}

func (f *fakeStore) SaveAccountPreferences(ctx context.Context, prefs store.AccountPreferences) error {
	if f.saveAccountPreferencesFn != nil {
		return f.saveAccountPreferencesFn(ctx, prefs)
	}
	return nil
}

func (f *fakeStore) AccountStats(ctx context.Context, accountNumber int64) (store.AccountStats, error) {
	if f.accountStatsFn != nil {
		return f.accountStatsFn(ctx, accountNumber)
	}
	return store.AccountStats{AccountNumber: accountNumber}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeCache struct {
	getFn  func(context.Context, string, any) (bool, error)
	setFn  func(context.Context, string, any) error
	pingFn func(context.Context) error
	sets   []string
}

func (f *fakeCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if f.getFn != nil {
		return f.getFn(ctx, key, dest)
	}
	return false, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value any) error {
	f.sets = append(f.sets, key)
	if f.setFn != nil {
		return f.setFn(ctx, key, value)
	}
	return nil
}

func (f *fakeCache) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{cfg: config.Config{}, store: fs}
}

func newTestServiceWithCache(fs *fakeStore, fc *fakeCache) *Service {
	return &Service{cfg: config.Config{}, store: fs, cache: fc}
}

func expectDomainCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var domain *DomainError
	if !errors.As(err, &domain) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domain.Status != status || domain.Code != code {
		t.Errorf("expected %d %s, got %d %s", status, code, domain.Status, domain.Code)
	}
}

func TestCreateSubmissionRequiresSubmitter(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateSubmission(context.Background(), CreateSubmissionInput{Submitter: "   "})
	expectDomainCode(t, err, http.StatusBadRequest, "INVALID_SUBMITTER")
}

func TestCreateSubmissionRejectsSubmittedStatus(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateSubmission(context.Background(), CreateSubmissionInput{
		Submitter: "user@example.com",
		Status:    store.StatusSubmitted,
	})
	expectDomainCode(t, err, http.StatusBadRequest, "INVALID_STATUS")
}

func TestCreateSubmissionDefaultsStatusAndFormData(t *testing.T) {
	var gotStatus store.SubmissionStatus
	var gotFormData store.FormData
	fs := &fakeStore{
		createSubmissionFn: func(_ context.Context, submitter string, status store.SubmissionStatus, account *int64, formData store.FormData, device store.DeviceType) (store.Submission, error) {
			gotStatus = status
			gotFormData = formData
			return store.Submission{ID: "sub-1", Submitter: submitter, Status: status, FormData: formData}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateSubmission(context.Background(), CreateSubmissionInput{Submitter: "user@example.com"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if gotStatus != store.StatusStarted {
		t.Errorf("expected status to default to started, got %s", gotStatus)
	}
	if gotFormData.Mode != "simple" {
		t.Errorf("expected mode to default to simple, got %s", gotFormData.Mode)
	}
	if gotFormData.SelectedProjectIDs == nil {
		t.Error("expected nil ids normalized to empty slice")
	}
}

func TestUpdateSubmissionRejectsStatusRegression(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, submissionID string) (store.Submission, error) {
			return store.Submission{ID: submissionID, Status: store.StatusSubmitted}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateSubmission(context.Background(), UpdateSubmissionInput{
		SubmissionID: "sub-1",
		Status:       store.StatusInProgress,
	})
	expectDomainCode(t, err, http.StatusConflict, "INVALID_STATUS_TRANSITION")
}

func TestUpdateSubmissionAllowsForwardTransition(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, submissionID string) (store.Submission, error) {
			return store.Submission{ID: submissionID, Status: store.StatusStarted}, nil
		},
	}
	svc := newTestService(fs)

	sub, err := svc.UpdateSubmission(context.Background(), UpdateSubmissionInput{
		SubmissionID: "sub-1",
		Status:       store.StatusSubmitted,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if sub.Status != store.StatusSubmitted {
		t.Errorf("expected submitted, got %s", sub.Status)
	}
}

func TestUpdateSubmissionDefaultsToInProgress(t *testing.T) {
	var gotStatus store.SubmissionStatus
	fs := &fakeStore{
		updateSubmissionFn: func(_ context.Context, submissionID string, status store.SubmissionStatus, formData store.FormData, _ store.DeviceType) (store.Submission, error) {
			gotStatus = status
			return store.Submission{ID: submissionID, Status: status, FormData: formData}, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.UpdateSubmission(context.Background(), UpdateSubmissionInput{SubmissionID: "sub-1"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if gotStatus != store.StatusInProgress {
		t.Errorf("expected status to default to in_progress, got %s", gotStatus)
	}
}

func TestUpdateSubmissionNotFound(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(context.Context, string) (store.Submission, error) {
			return store.Submission{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateSubmission(context.Background(), UpdateSubmissionInput{SubmissionID: "ghost"})
	expectDomainCode(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestUpdateAccountPreferencesShallowMerge(t *testing.T) {
	var saved store.AccountPreferences
	fs := &fakeStore{
		getAccountPreferencesFn: func(_ context.Context, accountNumber int64) (store.AccountPreferences, error) {
			return store.AccountPreferences{
				AccountNumber:         accountNumber,
				DefaultSubmissionMode: "advanced",
				HiddenBanners:         []string{"welcome"},
			}, nil
		},
		saveAccountPreferencesFn: func(_ context.Context, prefs store.AccountPreferences) error {
			saved = prefs
			return nil
		},
	}
	svc := newTestService(fs)

	dontShow := true
	merged, err := svc.UpdateAccountPreferences(context.Background(), 7, store.AccountPreferencesPatch{
		DontShowMobileQRCodeAgain: &dontShow,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Untouched fields survive the merge.
	if saved.DefaultSubmissionMode != "advanced" {
		t.Errorf("expected mode preserved, got %s", saved.DefaultSubmissionMode)
	}
	if len(saved.HiddenBanners) != 1 || saved.HiddenBanners[0] != "welcome" {
		t.Errorf("expected banners preserved, got %v", saved.HiddenBanners)
	}
	if !merged.DontShowMobileQRCodeAgain {
		t.Error("expected patched field applied")
	}
}

func TestUpdateAccountPreferencesRejectsUnknownMode(t *testing.T) {
	svc := newTestService(&fakeStore{})

	mode := "expert"
	_, err := svc.UpdateAccountPreferences(context.Background(), 7, store.AccountPreferencesPatch{
		DefaultSubmissionMode: &mode,
	})
	expectDomainCode(t, err, http.StatusBadRequest, "INVALID_MODE")
}

func TestAccountStatsCacheHitSkipsStore(t *testing.T) {
	storeCalls := 0
	fs := &fakeStore{
		accountStatsFn: func(_ context.Context, accountNumber int64) (store.AccountStats, error) {
			storeCalls++
			return store.AccountStats{AccountNumber: accountNumber}, nil
		},
	}
	fc := &fakeCache{
		getFn: func(_ context.Context, _ string, dest any) (bool, error) {
			*dest.(*store.AccountStats) = store.AccountStats{AccountNumber: 7, Total: 12}
			return true, nil
		},
	}
	svc := newTestServiceWithCache(fs, fc)

	stats, err := svc.AccountStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 12 {
		t.Errorf("expected cached value, got %+v", stats)
	}
	if storeCalls != 0 {
		t.Errorf("expected store untouched on cache hit, got %d calls", storeCalls)
	}
}

func TestAccountStatsCacheMissPopulates(t *testing.T) {
	fs := &fakeStore{
		accountStatsFn: func(_ context.Context, accountNumber int64) (store.AccountStats, error) {
			return store.AccountStats{AccountNumber: accountNumber, Total: 3}, nil
		},
	}
	fc := &fakeCache{}
	svc := newTestServiceWithCache(fs, fc)

	stats, err := svc.AccountStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected store value, got %+v", stats)
	}
	if len(fc.sets) != 1 || fc.sets[0] != "account-stats:7" {
		t.Errorf("expected cache populated, got %v", fc.sets)
	}
}

func TestAccountStatsCacheFailureFallsThrough(t *testing.T) {
	fs := &fakeStore{
		accountStatsFn: func(_ context.Context, accountNumber int64) (store.AccountStats, error) {
			return store.AccountStats{AccountNumber: accountNumber, Total: 5}, nil
		},
	}
	fc := &fakeCache{
		getFn: func(context.Context, string, any) (bool, error) {
			return false, errors.New("redis down")
		},
		setFn: func(context.Context, string, any) error {
			return errors.New("redis down")
		},
	}
	svc := newTestServiceWithCache(fs, fc)

	stats, err := svc.AccountStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("expected cache failure to be non-fatal, got %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("expected store value, got %+v", stats)
	}
}
