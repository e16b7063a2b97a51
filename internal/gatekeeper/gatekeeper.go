// Package gatekeeper decides whether a connection may start or resume an interview.
package gatekeeper

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/ai-interviewer/internal/infra/db"
	"github.com/chadiek/ai-interviewer/internal/interview"
)

// Rejection reasons, sent to clients as the close reason.
const (
	ReasonNotFound        = "not found"
	ReasonCompleted       = "already completed"
	ReasonExpired         = "expired"
	ReasonNotYetAvailable = "not yet available"
)

const (
	// ExpiryWindow is how long after the scheduled time a link stays usable.
	ExpiryWindow = 24 * time.Hour
	// EarlyWindow is how long before the scheduled time a link opens.
	EarlyWindow = time.Hour
)

// RejectError is returned when a link may not be used.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return "interview rejected: " + e.Reason }

// Store is the part of the persistence gateway the gatekeeper needs.
type Store interface {
	FindInterviewByLink(ctx context.Context, link string) (*interview.Record, error)
	UpsertInterview(ctx context.Context, u interview.Update) error
}

type Gatekeeper struct {
	store Store
	now   func() time.Time
}

func New(store Store, now func() time.Time) *Gatekeeper {
	if now == nil {
		now = time.Now
	}
	return &Gatekeeper{store: store, now: now}
}

// Check validates link against the interview's state and scheduling window
// without changing anything.
func (g *Gatekeeper) Check(ctx context.Context, link string) (*interview.Record, error) {
	rec, err := g.store.FindInterviewByLink(ctx, link)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &RejectError{Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, interview.Errorf(interview.KindFatalSetup, err, "load interview")
	}
	now := g.now()
	switch {
	case rec.Ended():
		return nil, &RejectError{Reason: ReasonCompleted}
	case now.Sub(rec.ScheduledAt) > ExpiryWindow:
		return nil, &RejectError{Reason: ReasonExpired}
	case rec.ScheduledAt.Sub(now) > EarlyWindow && !rec.IsActive:
		return nil, &RejectError{Reason: ReasonNotYetAvailable}
	}
	return rec, nil
}

// Accept validates link and activates the interview. The first acceptance
// records the actual start time; later ones resume it.
func (g *Gatekeeper) Accept(ctx context.Context, link string) (*interview.Record, error) {
	rec, err := g.Check(ctx, link)
	if err != nil {
		return nil, err
	}
	active := true
	update := interview.Update{ID: rec.ID, IsActive: &active}
	if rec.ActualStartedAt == nil {
		started := g.now()
		update.ActualStartedAt = &started
		rec.ActualStartedAt = &started
	}
	if err := g.store.UpsertInterview(ctx, update); err != nil {
		return nil, interview.Errorf(interview.KindFatalSetup, err, "activate interview")
	}
	rec.IsActive = true
	return rec, nil
}

// Reason extracts the rejection reason from err, if any.
func Reason(err error) (string, bool) {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

