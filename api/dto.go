/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Claim, batch and EMR
  documents are returned as-is (their JSON tags are the contract); request
  bodies get their own types so they can carry validation tags.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers that add computed fields

ENVELOPE:
  Every JSON response is wrapped:

      {"success": true,  "data": {...}}
      {"success": false, "error": "message", "details": {...}}

VALIDATION:
  Struct tags are checked with go-playground/validator before a handler
  calls the domain. Field names in error details are the JSON names.

SEE ALSO:
  - handlers.go: Decoding, validation and error mapping
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rdc/incentive-engine/claim"
)

// Envelope is the response body of every JSON endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CLAIMS
// =============================================================================

// SubmitClaimRequest creates a claim. The type-specific detail object
// ("conference", "paper", ...) sits next to claimType.
type SubmitClaimRequest struct {
	ClaimType string `json:"claimType" validate:"required,oneof=ResearchPaper Patent Conference Book Membership SeedMoneyAPC"`
	Draft     bool   `json:"draft"`
	Faculty   string `json:"faculty,omitempty" validate:"omitempty,max=120"`
	UserEmail string `json:"userEmail,omitempty" validate:"omitempty,email"`
	claim.Variant
}

// UpdateDraftRequest replaces the details of a draft.
type UpdateDraftRequest struct {
	claim.Variant
}

// StageActionRequest is a reviewer's action at one stage.
type StageActionRequest struct {
	Action         string            `json:"action" validate:"required,oneof=verify approve reject"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Comments       string            `json:"comments,omitempty" validate:"max=2000"`
	VerifiedFields map[string]bool   `json:"verifiedFields,omitempty"`
	Suggestions    map[string]string `json:"suggestions,omitempty"`
}

type StageActionResponse struct {
	Claim              *claim.Claim `json:"claim"`
	ChangedSuggestions []string     `json:"changedSuggestions"`
}

type EligibilityResponse struct {
	ClaimID  string `json:"claimId"`
	Eligible bool   `json:"eligible"`
}

type BucketsResponse struct {
	claim.Buckets
	Counts map[claim.Bucket]int `json:"counts"`
}

// =============================================================================
// DISBURSEMENT
// =============================================================================

type PaymentSheetRequest struct {
	ClaimIDs        []string          `json:"claimIds" validate:"required,min=1,dive,required"`
	Remarks         map[string]string `json:"remarks,omitempty"`
	ReferenceNumber string            `json:"referenceNumber" validate:"required,max=100"`
}

type PaymentSheetResponse struct {
	Batch    *claim.PaymentBatch `json:"batch,omitempty"`
	Filename string              `json:"filename,omitempty"`
	Content  []byte              `json:"content,omitempty"` // base64 .xlsx
	Result   claim.BulkResult    `json:"result"`
	Summary  string              `json:"summary"`
}

// BulkRequest lists the claim document ids a bulk action applies to.
type BulkRequest struct {
	ClaimIDs []string `json:"claimIds" validate:"required,min=1,dive,required"`
}

type BulkResponse struct {
	claim.BulkResult
	Summary string `json:"summary"`
}

type BatchResponse struct {
	Batch  *claim.PaymentBatch `json:"batch"`
	Claims []*claim.Claim      `json:"claims"`
}

// =============================================================================
// EMR
// =============================================================================

type CreateCallRequest struct {
	Title       string    `json:"title" validate:"required,max=300"`
	Agency      string    `json:"agency" validate:"required,max=200"`
	Description string    `json:"description,omitempty"`
	Deadline    time.Time `json:"deadline" validate:"required"`
}

type RegisterInterestRequest struct {
	ProjectTitle string   `json:"projectTitle" validate:"required,max=300"`
	UserEmail    string   `json:"userEmail,omitempty" validate:"omitempty,email"`
	Faculty      string   `json:"faculty,omitempty"`
	CoPIs        []string `json:"coPIs,omitempty" validate:"max=10"`
}

type ScheduleMeetingRequest struct {
	InterestIDs []string  `json:"interestIds" validate:"required,min=1,dive,required"`
	Date        time.Time `json:"date" validate:"required"`
	Venue       string    `json:"venue" validate:"required"`
	Mode        string    `json:"mode,omitempty" validate:"omitempty,oneof=Online Offline Hybrid"`
	Evaluators  []string  `json:"evaluators,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}
