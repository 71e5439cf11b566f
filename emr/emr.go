/*
Package emr manages extramural research (EMR) funding calls.

PURPOSE:
  The research office publishes funding calls from external agencies.
  Faculty register interest in a call before its deadline, and the office
  then schedules evaluation meetings for the registered applicants.

KEY CONCEPTS:
  - Call: One funding opportunity with a registration deadline
  - Interest: One faculty member's registration for one call
  - Meeting: Evaluation slot assigned to one or more interests

RULES:
  - One interest per user per call (DuplicateRegistrationError)
  - No registration after the deadline day has ended
  - Scheduling is a bulk action with the same skip accounting as claim
    disbursement: Processed + Skipped == len(ids)

SEE ALSO:
  - service.go: Operations
  - claim/store: In-memory Store implementation
  - store/sqlite: Persistent Store implementation
*/
package emr

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// CALLS
// =============================================================================

type Call struct {
	ID          string    `json:"id"`
	CallID      string    `json:"callId"` // RDC/EMR/CALL/00001
	Title       string    `json:"title"`
	Agency      string    `json:"agency"`
	Description string    `json:"description,omitempty"`
	Deadline    time.Time `json:"deadline"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Open reports whether registration is still accepted at now. The deadline
// day itself is included.
func (c *Call) Open(now time.Time) bool {
	y, m, d := c.Deadline.UTC().Date()
	closes := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return now.UTC().Before(closes)
}

// =============================================================================
// INTERESTS
// =============================================================================

type InterestStatus string

const (
	StatusRegistered       InterestStatus = "Registered"
	StatusMeetingScheduled InterestStatus = "Meeting Scheduled"
)

type Interest struct {
	ID           string         `json:"id"`
	InterestID   string         `json:"interestId"` // RDC/EMR/INT/00001
	CallID       string         `json:"callId"`     // Call.ID
	UID          string         `json:"uid"`
	UserName     string         `json:"userName"`
	UserEmail    string         `json:"userEmail,omitempty"`
	Faculty      string         `json:"faculty,omitempty"`
	ProjectTitle string         `json:"projectTitle"`
	CoPIs        []string       `json:"coPis,omitempty"`
	Status       InterestStatus `json:"status"`
	Meeting      *Meeting       `json:"meeting,omitempty"`
	RegisteredAt time.Time      `json:"registeredAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (i *Interest) Clone() *Interest {
	if i == nil {
		return nil
	}
	out := *i
	out.CoPIs = append([]string(nil), i.CoPIs...)
	if i.Meeting != nil {
		m := *i.Meeting
		m.Evaluators = append([]string(nil), i.Meeting.Evaluators...)
		out.Meeting = &m
	}
	return &out
}

// Meeting is an evaluation slot. Mode is free text such as "Offline" or
// "Online".
type Meeting struct {
	Date       time.Time `json:"date"`
	Venue      string    `json:"venue"`
	Mode       string    `json:"mode,omitempty"`
	Evaluators []string  `json:"evaluators,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// =============================================================================
// STORE
// =============================================================================

// Store persists calls and interests. CreateInterest must reject a second
// interest for the same (CallID, UID) with *claim.DuplicateRegistrationError,
// atomically with the insert.
type Store interface {
	CreateCall(ctx context.Context, c *Call) error
	GetCall(ctx context.Context, id string) (*Call, error)
	ListCalls(ctx context.Context) ([]*Call, error)

	CreateInterest(ctx context.Context, i *Interest) error
	GetInterest(ctx context.Context, id string) (*Interest, error)
	UpdateInterest(ctx context.Context, i *Interest) error
	ListInterests(ctx context.Context, callID string) ([]*Interest, error)
}

const (
	callCounter     = "emr/calls"
	interestCounter = "emr/interests"
)

func formatCallID(seq int64) string     { return fmt.Sprintf("RDC/EMR/CALL/%05d", seq) }
func formatInterestID(seq int64) string { return fmt.Sprintf("RDC/EMR/INT/%05d", seq) }
