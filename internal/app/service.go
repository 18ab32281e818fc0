package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"projectally/api/internal/config"
	"projectally/api/internal/store"
)

type CreateSubmissionInput struct {
	Submitter          string                 `json:"submitter"`
	Status             store.SubmissionStatus `json:"status"`
	FormData           store.FormData         `json:"form_data"`
	DeviceLastViewedOn store.DeviceType       `json:"device_last_viewed_on"`
	SelectedAccount    *int64                 `json:"selected_account"`
}

type UpdateSubmissionInput struct {
	SubmissionID       string                 `json:"submission_id"`
	Status             store.SubmissionStatus `json:"status"`
	FormData           store.FormData         `json:"form_data"`
	DeviceLastViewedOn store.DeviceType       `json:"device_last_viewed_on"`
}

type dataStore interface {
	CreateSubmission(context.Context, string, store.SubmissionStatus, *int64, store.FormData, store.DeviceType) (store.Submission, error)
	UpdateSubmission(context.Context, string, store.SubmissionStatus, store.FormData, store.DeviceType) (store.Submission, error)
	GetSubmission(context.Context, string) (store.Submission, error)
	ListSubmissionsByStatus(context.Context, string, store.SubmissionStatus) ([]store.Submission, error)
	GetAccountPreferences(context.Context, int64) (store.AccountPreferences, error)
	SaveAccountPreferences(context.Context, store.AccountPreferences) error
	AccountStats(context.Context, int64) (store.AccountStats, error)
	Ping(ctx context.Context) error
}

// statsCache is the slice of the cache the service needs. A nil cache
// disables stats caching entirely.
type statsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg   config.Config
	store dataStore
	cache statsCache
}

func New(cfg config.Config, dataStore *store.PostgresStore) *Service {
	return &Service{cfg: cfg, store: dataStore}
}

func NewWithCache(cfg config.Config, dataStore *store.PostgresStore, statsCache statsCache) *Service {
	return &Service{cfg: cfg, store: dataStore, cache: statsCache}
}

func (s *Service) CreateSubmission(ctx context.Context, input CreateSubmissionInput) (store.Submission, error) {
	submitter := strings.TrimSpace(input.Submitter)
	if submitter == "" {
		return store.Submission{}, domainError(http.StatusBadRequest, "INVALID_SUBMITTER", "submitter is required", nil)
	}

	status := input.Status
	if status == "" {
		status = store.StatusStarted
	}
	if status != store.StatusStarted && status != store.StatusInProgress {
		return store.Submission{}, domainError(http.StatusBadRequest, "INVALID_STATUS", "new submissions must be started or in_progress", nil)
	}

	formData := normalizeFormData(input.FormData)
	sub, err := s.store.CreateSubmission(ctx, submitter, status, input.SelectedAccount, formData, input.DeviceLastViewedOn)
	if err != nil {
		return store.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return sub, nil
}

func (s *Service) UpdateSubmission(ctx context.Context, input UpdateSubmissionInput) (store.Submission, error) {
	if strings.TrimSpace(input.SubmissionID) == "" {
		return store.Submission{}, domainError(http.StatusBadRequest, "INVALID_SUBMISSION_ID", "submission_id is required", nil)
	}

	status := input.Status
	if status == "" {
		status = store.StatusInProgress
	}
	if !status.Valid() {
		return store.Submission{}, domainError(http.StatusBadRequest, "INVALID_STATUS", "unknown submission status", nil)
	}

	current, err := s.store.GetSubmission(ctx, input.SubmissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Submission{}, domainError(http.StatusNotFound, "NOT_FOUND", "submission not found", nil)
	}
	if err != nil {
		return store.Submission{}, fmt.Errorf("load submission for update: %w", err)
	}

	// Status never regresses: started -> in_progress -> submitted.
	if status.Rank() < current.Status.Rank() {
		return store.Submission{}, domainError(http.StatusConflict, "INVALID_STATUS_TRANSITION",
			fmt.Sprintf("cannot move submission from %s back to %s", current.Status, status), nil)
	}

	formData := normalizeFormData(input.FormData)
	sub, err := s.store.UpdateSubmission(ctx, input.SubmissionID, status, formData, input.DeviceLastViewedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Submission{}, domainError(http.StatusNotFound, "NOT_FOUND", "submission not found", nil)
	}
	if err != nil {
		return store.Submission{}, fmt.Errorf("update submission: %w", err)
	}
	return sub, nil
}

func (s *Service) GetSubmission(ctx context.Context, submissionID string) (store.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Submission{}, domainError(http.StatusNotFound, "NOT_FOUND", "submission not found", nil)
	}
	if err != nil {
		return store.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *Service) ListSubmissionsByStatus(ctx context.Context, submitter string, status store.SubmissionStatus) ([]store.Submission, error) {
	if strings.TrimSpace(submitter) == "" {
		return nil, domainError(http.StatusBadRequest, "INVALID_SUBMITTER", "submitter is required", nil)
	}
	if !status.Valid() {
		return nil, domainError(http.StatusBadRequest, "INVALID_STATUS", "unknown submission status", nil)
	}
	subs, err := s.store.ListSubmissionsByStatus(ctx, submitter, status)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if subs == nil {
		subs = []store.Submission{}
	}
	return subs, nil
}

func (s *Service) GetAccountPreferences(ctx context.Context, accountNumber int64) (store.AccountPreferences, error) {
	if accountNumber <= 0 {
		return store.AccountPreferences{}, domainError(http.StatusBadRequest, "INVALID_ACCOUNT", "account number is required", nil)
	}
	prefs, err := s.store.GetAccountPreferences(ctx, accountNumber)
	if err != nil {
		return store.AccountPreferences{}, fmt.Errorf("get account preferences: %w", err)
	}
	return prefs, nil
}

// UpdateAccountPreferences applies a shallow merge: only fields present in
// the patch replace stored values.
func (s *Service) UpdateAccountPreferences(ctx context.Context, accountNumber int64, patch store.AccountPreferencesPatch) (store.AccountPreferences, error) {
	if accountNumber <= 0 {
		return store.AccountPreferences{}, domainError(http.StatusBadRequest, "INVALID_ACCOUNT", "account number is required", nil)
	}

	prefs, err := s.store.GetAccountPreferences(ctx, accountNumber)
	if err != nil {
		return store.AccountPreferences{}, fmt.Errorf("read preferences for merge: %w", err)
	}

	if patch.DefaultSubmissionMode != nil {
		mode := *patch.DefaultSubmissionMode
		if mode != "simple" && mode != "advanced" {
			return store.AccountPreferences{}, domainError(http.StatusBadRequest, "INVALID_MODE", "default_submission_mode must be simple or advanced", nil)
		}
		prefs.DefaultSubmissionMode = mode
	}
	if patch.DontShowMobileQRCodeAgain != nil {
		prefs.DontShowMobileQRCodeAgain = *patch.DontShowMobileQRCodeAgain
	}
	if patch.HiddenBanners != nil {
		prefs.HiddenBanners = *patch.HiddenBanners
	}

	if err := s.store.SaveAccountPreferences(ctx, prefs); err != nil {
		return store.AccountPreferences{}, fmt.Errorf("save merged preferences: %w", err)
	}
	return prefs, nil
}

func (s *Service) AccountStats(ctx context.Context, accountNumber int64) (store.AccountStats, error) {
	if accountNumber <= 0 {
		return store.AccountStats{}, domainError(http.StatusBadRequest, "INVALID_ACCOUNT", "account number is required", nil)
	}

	cacheKey := fmt.Sprintf("account-stats:%d", accountNumber)
	if s.cache != nil {
		var cached store.AccountStats
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			log.Printf("[stats] cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	stats, err := s.store.AccountStats(ctx, accountNumber)
	if err != nil {
		return store.AccountStats{}, fmt.Errorf("account stats: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats); err != nil {
			log.Printf("[stats] cache write failed: %v", err)
		}
	}
	return stats, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Service) HasCache() bool {
	return s.cache != nil
}

func normalizeFormData(formData store.FormData) store.FormData {
	if formData.Mode == "" {
		formData.Mode = "simple"
	}
	if formData.SelectedProjectIDs == nil {
		formData.SelectedProjectIDs = []int{}
	}
	return formData
}
