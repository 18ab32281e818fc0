// Package gateway is the thin network boundary between the wizard core and
// the submissions API. It creates, updates and fetches submission records and
// reads/merges account preferences.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"projectally/api/internal/store"
)

// ErrNotFound is returned when a submission id does not exist.
var ErrNotFound = errors.New("gateway: submission not found")

type CreateSubmissionParams struct {
	Submitter          string                 `json:"submitter"`
	Status             store.SubmissionStatus `json:"status"`
	FormData           store.FormData         `json:"form_data"`
	DeviceLastViewedOn store.DeviceType       `json:"device_last_viewed_on,omitempty"`
	SelectedAccount    *int64                 `json:"selected_account,omitempty"`
}

type UpdateSubmissionParams struct {
	SubmissionID       string                 `json:"submission_id"`
	Status             store.SubmissionStatus `json:"status"`
	FormData           store.FormData         `json:"form_data"`
	DeviceLastViewedOn store.DeviceType       `json:"device_last_viewed_on,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a gateway client. A nil httpClient falls back to
// http.DefaultClient; no request timeout is imposed beyond the transport's
// own behavior.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// CreateSubmission creates a new submission. Status defaults to started.
func (c *Client) CreateSubmission(ctx context.Context, params CreateSubmissionParams) (store.Submission, error) {
	if params.Status == "" {
		params.Status = store.StatusStarted
	}
	var sub store.Submission
	if err := c.do(ctx, http.MethodPost, "/api/submissions", params, &sub); err != nil {
		return store.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return sub, nil
}

// UpdateSubmission writes the full form-data snapshot. Status defaults to
// in_progress, which is what every sync write uses.
func (c *Client) UpdateSubmission(ctx context.Context, params UpdateSubmissionParams) (store.Submission, error) {
	if params.Status == "" {
		params.Status = store.StatusInProgress
	}
	var sub store.Submission
	if err := c.do(ctx, http.MethodPut, "/api/submissions", params, &sub); err != nil {
		return store.Submission{}, fmt.Errorf("update submission: %w", err)
	}
	return sub, nil
}

// GetSubmission fetches one submission by id. Returns ErrNotFound for
// unknown ids.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (store.Submission, error) {
	path := "/api/submissions?id=" + url.QueryEscape(submissionID)
	var sub store.Submission
	if err := c.do(ctx, http.MethodGet, path, nil, &sub); err != nil {
		return store.Submission{}, err
	}
	return sub, nil
}

// ListSubmissionsByStatus returns the submitter's submissions with the given
// status, most recent first.
func (c *Client) ListSubmissionsByStatus(ctx context.Context, submitter string, status store.SubmissionStatus) ([]store.Submission, error) {
	path := "/api/submissions?status=" + url.QueryEscape(string(status)) + "&submitter=" + url.QueryEscape(submitter)
	var subs []store.Submission
	if err := c.do(ctx, http.MethodGet, path, nil, &subs); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

func (c *Client) GetAccountPreferences(ctx context.Context, accountNumber int64) (store.AccountPreferences, error) {
	path := "/api/account-preferences?account=" + strconv.FormatInt(accountNumber, 10)
	var prefs store.AccountPreferences
	if err := c.do(ctx, http.MethodGet, path, nil, &prefs); err != nil {
		return store.AccountPreferences{}, fmt.Errorf("get account preferences: %w", err)
	}
	return prefs, nil
}

// UpdateAccountPreferences sends a partial patch; the server performs a
// shallow merge and returns the merged preferences.
func (c *Client) UpdateAccountPreferences(ctx context.Context, accountNumber int64, patch store.AccountPreferencesPatch) (store.AccountPreferences, error) {
	path := "/api/account-preferences?account=" + strconv.FormatInt(accountNumber, 10)
	var prefs store.AccountPreferences
	if err := c.do(ctx, http.MethodPut, path, patch, &prefs); err != nil {
		return store.AccountPreferences{}, fmt.Errorf("update account preferences: %w", err)
	}
	return prefs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, envelope.Error, envelope.Code)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
