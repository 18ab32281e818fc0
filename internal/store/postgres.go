package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const submissionColumns = `submission_id, submitter, status, selected_account, form_data, device_last_viewed_on, created_at, updated_at`

func (s *PostgresStore) CreateSubmission(ctx context.Context, submitter string, status SubmissionStatus, selectedAccount *int64, formData FormData, device DeviceType) (Submission, error) {
	payload, err := json.Marshal(formData)
	if err != nil {
		return Submission{}, fmt.Errorf("marshal form data: %w", err)
	}

	insert := `
		INSERT INTO prf_submissions (submission_id, submitter, status, selected_account, form_data, device_last_viewed_on)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING ` + submissionColumns
	row := s.db.QueryRowContext(ctx, insert, uuid.NewString(), submitter, string(status), selectedAccount, payload, string(device))
	sub, err := scanSubmission(row)
	if err != nil {
		return Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateSubmission(ctx context.Context, submissionID string, status SubmissionStatus, formData FormData, device DeviceType) (Submission, error) {
	payload, err := json.Marshal(formData)
	if err != nil {
		return Submission{}, fmt.Errorf("marshal form data: %w", err)
	}

	update := `
		UPDATE prf_submissions
		SET status = $2,
			form_data = $3,
			device_last_viewed_on = COALESCE(NULLIF($4, ''), device_last_viewed_on),
			updated_at = NOW()
		WHERE submission_id = $1
		RETURNING ` + submissionColumns
	row := s.db.QueryRowContext(ctx, update, submissionID, string(status), payload, string(device))
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return Submission{}, err
	}
	if err != nil {
		return Submission{}, fmt.Errorf("update submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM prf_submissions WHERE submission_id = $1`
	row := s.db.QueryRowContext(ctx, query, submissionID)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return Submission{}, err
	}
	if err != nil {
		return Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ListSubmissionsByStatus returns the submitter's submissions with the given
// status, most recently updated first.
func (s *PostgresStore) ListSubmissionsByStatus(ctx context.Context, submitter string, status SubmissionStatus) ([]Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM prf_submissions
		WHERE submitter = $1 AND status = $2
		ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query, submitter, string(status))
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) GetAccountPreferences(ctx context.Context, accountNumber int64) (AccountPreferences, error) {
	query := `
		SELECT account_number, default_submission_mode, dont_show_mobile_qr_code_again, hidden_banners
		FROM prf_account_preferences
		WHERE account_number = $1`
	var prefs AccountPreferences
	var banners []byte
	err := s.db.QueryRowContext(ctx, query, accountNumber).Scan(
		&prefs.AccountNumber, &prefs.DefaultSubmissionMode, &prefs.DontShowMobileQRCodeAgain, &banners)
	if err == sql.ErrNoRows {
		return DefaultAccountPreferences(accountNumber), nil
	}
	if err != nil {
		return AccountPreferences{}, fmt.Errorf("get account preferences: %w", err)
	}
	if err := json.Unmarshal(banners, &prefs.HiddenBanners); err != nil {
		return AccountPreferences{}, fmt.Errorf("decode hidden banners: %w", err)
	}
	if prefs.HiddenBanners == nil {
		prefs.HiddenBanners = []string{}
	}
	return prefs, nil
}

func (s *PostgresStore) SaveAccountPreferences(ctx context.Context, prefs AccountPreferences) error {
	banners, err := json.Marshal(prefs.HiddenBanners)
	if err != nil {
		return fmt.Errorf("marshal hidden banners: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prf_account_preferences (account_number, default_submission_mode, dont_show_mobile_qr_code_again, hidden_banners, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_number) DO UPDATE SET
			default_submission_mode = EXCLUDED.default_submission_mode,
			dont_show_mobile_qr_code_again = EXCLUDED.dont_show_mobile_qr_code_again,
			hidden_banners = EXCLUDED.hidden_banners,
			updated_at = NOW()
	`, prefs.AccountNumber, prefs.DefaultSubmissionMode, prefs.DontShowMobileQRCodeAgain, banners)
	if err != nil {
		return fmt.Errorf("save account preferences: %w", err)
	}
	return nil
}

func (s *PostgresStore) AccountStats(ctx context.Context, accountNumber int64) (AccountStats, error) {
	query := `
		SELECT status, COUNT(*)
		FROM prf_submissions
		WHERE selected_account = $1
		GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query, accountNumber)
	if err != nil {
		return AccountStats{}, fmt.Errorf("account stats: %w", err)
	}
	defer rows.Close()

	stats := AccountStats{AccountNumber: accountNumber}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return AccountStats{}, fmt.Errorf("scan account stats: %w", err)
		}
		switch SubmissionStatus(status) {
		case StatusStarted:
			stats.Started = count
		case StatusInProgress:
			stats.InProgress = count
		case StatusSubmitted:
			stats.Submitted = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var payload []byte
	var device sql.NullString
	err := row.Scan(&sub.ID, &sub.Submitter, &sub.Status, &sub.SelectedAccount, &payload, &device, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Submission{}, err
	}
	if err := json.Unmarshal(payload, &sub.FormData); err != nil {
		return Submission{}, fmt.Errorf("decode form data: %w", err)
	}
	if device.Valid {
		sub.DeviceLastViewedOn = DeviceType(device.String)
	}
	return sub, nil
}
