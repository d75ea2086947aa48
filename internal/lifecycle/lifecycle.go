// Package lifecycle is the single authoritative implementation of the report
// status/priority state machine. Both the admin status endpoint and the
// user accept/reject endpoints apply transitions through Transition; no other
// code mutates report status.
package lifecycle

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nammaooru/civicreport/internal/models"
)

var (
	// ErrInvalidTransition is returned when an admin attempts any status
	// change while the report is awaiting user confirmation.
	ErrInvalidTransition = errors.New("cannot update status while awaiting user confirmation")

	// ErrInvalidState is returned when a user accept/reject is attempted on a
	// report that is not awaiting confirmation.
	ErrInvalidState = errors.New("report is not awaiting user confirmation")

	// ErrUnknownStatus is returned for a target status outside the enum.
	ErrUnknownStatus = errors.New("invalid status")

	// ErrReasonRequired is returned when a rejection carries no reason.
	ErrReasonRequired = errors.New("rejection reason is required")
)

// Role identifies the actor type driving a transition.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Action is a user-driven trigger on an awaiting report.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Request describes one transition attempt. Admins set Target; owning users
// set Action (and Reason for rejects) together with their UserID.
type Request struct {
	Role   Role
	UserID uuid.UUID

	Target models.Status // admin only
	Action Action        // user only
	Reason string        // reject only
}

// Transition applies req to r in place. It returns an error and leaves r
// untouched when the transition is not permitted. Callers are expected to run
// it inside a read-modify-write transaction on the report row.
func Transition(r *models.Report, req Request, now time.Time) error {
	switch req.Role {
	case RoleAdmin:
		return adminSetStatus(r, req.Target, now)
	case RoleUser:
		return userConfirm(r, req, now)
	default:
		return ErrUnknownStatus
	}
}

func adminSetStatus(r *models.Report, target models.Status, now time.Time) error {
	if !target.Valid() {
		return ErrUnknownStatus
	}
	// While the ball is in the user's court the admin may not move it.
	if r.Status == models.StatusAwaitingUserConfirm {
		return ErrInvalidTransition
	}

	// "resolved" is transient: it always lands as awaiting_user_confirmation.
	if target == models.StatusResolved {
		target = models.StatusAwaitingUserConfirm
	}

	if target == models.StatusClosed {
		closeReport(r, now)
		return nil
	}

	r.Status = target
	return nil
}

func userConfirm(r *models.Report, req Request, now time.Time) error {
	// Non-owners get not-found so an attacker cannot probe report existence.
	if r.UserID != req.UserID {
		return models.ErrNotFound
	}
	if r.Status != models.StatusAwaitingUserConfirm {
		return ErrInvalidState
	}

	switch req.Action {
	case ActionAccept:
		closeReport(r, now)
		return nil
	case ActionReject:
		if req.Reason == "" {
			return ErrReasonRequired
		}
		r.Status = models.StatusReopened
		r.ReopenCount++
		p := Escalate(currentPriority(r))
		r.Priority = &p
		reason := req.Reason
		r.RejectionReason = &reason
		r.ResolvedAt = nil
		return nil
	default:
		return ErrUnknownStatus
	}
}

// closeReport is the only place the closed invariants are produced: priority is
// nulled and resolvedAt is stamped exactly when a report enters closed.
func closeReport(r *models.Report, now time.Time) {
	r.Status = models.StatusClosed
	r.Priority = nil
	r.RejectionReason = nil
	t := now
	r.ResolvedAt = &t
}

// Escalate raises a priority one tier per rejection, saturating at high.
func Escalate(p models.Priority) models.Priority {
	switch p {
	case models.PriorityLow:
		return models.PriorityMedium
	case models.PriorityMedium:
		return models.PriorityHigh
	default:
		return models.PriorityHigh
	}
}

func currentPriority(r *models.Report) models.Priority {
	if r.Priority == nil {
		return models.PriorityLow
	}
	return *r.Priority
}
