package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a report does not exist or is not
// visible to the requesting actor.
var ErrNotFound = errors.New("report not found")

// Status is the lifecycle state of a report.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	// StatusResolved is accepted as an admin target but is never stored:
	// setting it redirects the report to awaiting_user_confirmation.
	StatusResolved            Status = "resolved"
	StatusAwaitingUserConfirm Status = "awaiting_user_confirmation"
	StatusReopened            Status = "reopened"
	StatusClosed              Status = "closed"
)

// Valid reports whether s is a recognized status value.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusAwaitingUserConfirm, StatusReopened, StatusClosed:
		return true
	}
	return false
}

// Priority is the triage level of a report. A nil *Priority means the report
// is closed; that is produced by the transition into closed, never set directly.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// VerificationStatus values. Informational, independent of lifecycle status.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// Report is a geotagged civic-issue report.
type Report struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	ImageURL    string    `json:"image_url"`

	// Device GPS at capture time. Immutable once set.
	CapturedLatitude  float64 `json:"captured_latitude"`
	CapturedLongitude float64 `json:"captured_longitude"`
	CapturedAccuracy  float64 `json:"captured_accuracy"`

	// Optional user-corrected location, set at most once at creation after
	// passing proximity validation.
	UserLatitude      *float64 `json:"user_latitude,omitempty"`
	UserLongitude     *float64 `json:"user_longitude,omitempty"`
	LocationDistanceM *float64 `json:"location_distance_m,omitempty"`

	// Canonical location: the corrected point when present, else the captured one.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Status             Status    `json:"status"`
	Priority           *Priority `json:"priority"`
	ReopenCount        int       `json:"reopen_count"`
	RejectionReason    *string   `json:"rejection_reason,omitempty"`
	VerificationStatus string    `json:"verification_status"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ReportDetail is a report joined with its reporter, for admin views.
type ReportDetail struct {
	Report
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	UserPhone string `json:"user_phone,omitempty"`
}

// MapPoint is the trimmed row shape served to the admin map.
type MapPoint struct {
	ID          uuid.UUID `json:"id"`
	Category    string    `json:"category"`
	Priority    *Priority `json:"priority"`
	Status      Status    `json:"status"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusCounts aggregates report counts per lifecycle status.
type StatusCounts struct {
	Total                int `json:"total"`
	Open                 int `json:"open"`
	InProgress           int `json:"in_progress"`
	AwaitingConfirmation int `json:"awaiting_confirmation"`
	Reopened             int `json:"reopened"`
	Closed               int `json:"closed"`
}

// CategoryCount is one row of a per-category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// UserStats summarizes a single reporter's activity.
type UserStats struct {
	TotalReports    int             `json:"total_reports"`
	OpenReports     int             `json:"open_reports"`
	InProgress      int             `json:"in_progress_reports"`
	AwaitingReports int             `json:"awaiting_reports"`
	ClosedReports   int             `json:"closed_reports"`
	VerifiedReports int             `json:"verified_reports"`
	Categories      []CategoryCount `json:"categories"`
}
