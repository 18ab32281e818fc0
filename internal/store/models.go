package store

import "time"

// SubmissionStatus follows the prf_submission_status lifecycle. Transitions
// are monotonic: started -> in_progress -> submitted, never backwards.
type SubmissionStatus string

const (
	StatusStarted    SubmissionStatus = "started"
	StatusInProgress SubmissionStatus = "in_progress"
	StatusSubmitted  SubmissionStatus = "submitted"
)

var statusRank = map[SubmissionStatus]int{
	StatusStarted:    0,
	StatusInProgress: 1,
	StatusSubmitted:  2,
}

func (s SubmissionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank orders statuses for monotonicity checks. Unknown statuses rank lowest.
func (s SubmissionStatus) Rank() int {
	return statusRank[s]
}

// DeviceType classifies the client that last wrote a submission.
// Advisory metadata only.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// FormData is the persisted form_data bag. Only user-input state lives here;
// derived data like the full project catalog is never part of it. The four
// step slices are opaque objects owned by their step widgets.
// Note: selected_account is a separate column, not a form_data key.
type FormData struct {
	Mode               string         `json:"mode"`
	SelectedProjectIDs []int          `json:"selectedProjectIds"`
	GeneralInfo        map[string]any `json:"generalInfo"`
	DesignStyle        map[string]any `json:"designStyle"`
	CreativeDirection  map[string]any `json:"creativeDirection"`
	DeliverableDetails map[string]any `json:"deliverableDetails"`
}

// EmptyFormData is the initial state for a new submission.
func EmptyFormData() FormData {
	return FormData{
		Mode:               "simple",
		SelectedProjectIDs: []int{},
	}
}

// HasProgress reports whether the user has made any meaningful input.
func (f FormData) HasProgress() bool {
	return len(f.SelectedProjectIDs) > 0 ||
		f.GeneralInfo != nil ||
		f.DesignStyle != nil ||
		f.CreativeDirection != nil ||
		f.DeliverableDetails != nil
}

type Submission struct {
	ID                 string           `json:"submission_id"`
	Submitter          string           `json:"submitter"`
	Status             SubmissionStatus `json:"status"`
	SelectedAccount    *int64           `json:"selected_account"`
	FormData           FormData         `json:"form_data"`
	DeviceLastViewedOn DeviceType       `json:"device_last_viewed_on,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// AccountPreferences is keyed by the tenant account number.
type AccountPreferences struct {
	AccountNumber             int64    `json:"account_number"`
	DefaultSubmissionMode     string   `json:"default_submission_mode"`
	DontShowMobileQRCodeAgain bool     `json:"dont_show_mobile_qr_code_again"`
	HiddenBanners             []string `json:"hidden_banners"`
}

// DefaultAccountPreferences returns the preferences for an account that has
// never written any.
func DefaultAccountPreferences(accountNumber int64) AccountPreferences {
	return AccountPreferences{
		AccountNumber:         accountNumber,
		DefaultSubmissionMode: "simple",
		HiddenBanners:         []string{},
	}
}

// AccountPreferencesPatch is a partial update; nil fields are left unchanged
// (server-side shallow merge).
type AccountPreferencesPatch struct {
	DefaultSubmissionMode     *string   `json:"default_submission_mode"`
	DontShowMobileQRCodeAgain *bool     `json:"dont_show_mobile_qr_code_again"`
	HiddenBanners             *[]string `json:"hidden_banners"`
}

// AccountStats are per-account submission counts, served from cache when warm.
type AccountStats struct {
	AccountNumber int64 `json:"account_number"`
	Started       int   `json:"started"`
	InProgress    int   `json:"in_progress"`
	Submitted     int   `json:"submitted"`
	Total         int   `json:"total"`
}

// Project is one entry of the display catalog. The catalog is fetched per
// page load and is deliberately never persisted inside form_data.
type Project struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
