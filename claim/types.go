/*
Package claim provides the incentive claim lifecycle engine.

PURPOSE:
  A faculty member files an incentive claim (research paper, patent,
  conference, book, membership, seed money / APC). The claim moves from
  Draft through a chain of approval stages to a terminal decision, and
  accepted claims are then batched into payment sheets for the accounts
  office.

KEY CONCEPTS IN THIS FILE (types.go):
  - Claim: Shared base record plus exactly one type-specific variant
  - Status: Draft → Pending Stage N → Accepted/Rejected → Accounts → Paid
  - ApprovalStage: One approver's action at one stage index
  - PaymentBatch: A named group of claims for one disbursement run

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Tagged variants: Type selects which detail struct is populated
  3. Snapshots: BankDetails is copied at submission, never a live reference
  4. No deletes: Terminal states are data, claims are never removed

SEE ALSO:
  - details.go: Type-specific variants
  - stage.go: Approval stage engine
  - workflow.go: Orchestrator
  - disbursement.go: Payment batches
*/
package claim

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLAIM TYPE
// =============================================================================

type ClaimType string

const (
	TypeResearchPaper ClaimType = "ResearchPaper"
	TypePatent        ClaimType = "Patent"
	TypeConference    ClaimType = "Conference"
	TypeBook          ClaimType = "Book"
	TypeMembership    ClaimType = "Membership"
	TypeSeedMoneyAPC  ClaimType = "SeedMoneyAPC"
)

// AllTypes lists every claim type in display order.
var AllTypes = []ClaimType{
	TypeResearchPaper, TypePatent, TypeConference, TypeBook, TypeMembership, TypeSeedMoneyAPC,
}

func (t ClaimType) Valid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Code is the short segment used in human-readable claim ids.
func (t ClaimType) Code() string {
	switch t {
	case TypeResearchPaper:
		return "PAPER"
	case TypePatent:
		return "PATENT"
	case TypeConference:
		return "CONF"
	case TypeBook:
		return "BOOK"
	case TypeMembership:
		return "MEMBER"
	case TypeSeedMoneyAPC:
		return "APC"
	default:
		return "GEN"
	}
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft               Status = "Draft"
	StatusAccepted            Status = "Accepted"
	StatusRejected            Status = "Rejected"
	StatusSubmittedToAccounts Status = "Submitted to Accounts"
	StatusPaymentCompleted    Status = "Payment Completed"
)

const pendingPrefix = "Pending Stage "
const pendingSuffix = " Approval"

// PendingStatus returns the pending marker for a 0-based stage index.
// Stage index 0 is "Pending Stage 1 Approval".
func PendingStatus(stageIndex int) Status {
	return Status(pendingPrefix + strconv.Itoa(stageIndex+1) + pendingSuffix)
}

// PendingStage returns the 0-based stage index a pending status waits on.
func (s Status) PendingStage() (int, bool) {
	str := string(s)
	if !strings.HasPrefix(str, pendingPrefix) || !strings.HasSuffix(str, pendingSuffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(str, pendingPrefix), pendingSuffix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func (s Status) IsPending() bool {
	_, ok := s.PendingStage()
	return ok
}

// IsFinal reports whether the approval workflow is closed for the claim.
// Post-acceptance disbursement states are final as far as approvers go.
func (s Status) IsFinal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusSubmittedToAccounts, StatusPaymentCompleted:
		return true
	}
	return false
}

// =============================================================================
// APPROVAL STAGE - One approver's action at one stage
// =============================================================================

type StageStatus string

const (
	StageApproved StageStatus = "Approved"
	StageRejected StageStatus = "Rejected"
	StageVerified StageStatus = "Verified"
)

type ApprovalStage struct {
	Stage          int               `json:"stage"` // 1-based
	ApproverUID    string            `json:"approverUid"`
	ApproverName   string            `json:"approverName"`
	Status         StageStatus       `json:"status"`
	ApprovedAmount *decimal.Decimal  `json:"approvedAmount,omitempty"`
	Comments       string            `json:"comments,omitempty"`
	VerifiedFields map[string]bool   `json:"verifiedFields,omitempty"`
	Suggestions    map[string]string `json:"suggestions,omitempty"`
	ActedAt        time.Time         `json:"actedAt"`
}

// =============================================================================
// CLAIM
// =============================================================================

type BankDetails struct {
	BeneficiaryName string `json:"beneficiaryName"`
	AccountNumber   string `json:"accountNumber"`
	IFSC            string `json:"ifsc"`
	BankName        string `json:"bankName"`
	Branch          string `json:"branch,omitempty"`
}

// Attachment is an uploaded proof document.
type Attachment struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Breakdown explains a capped reimbursement calculation.
type Breakdown struct {
	EligibleExpenses decimal.Decimal `json:"eligibleExpenses"`
	MaxReimbursement decimal.Decimal `json:"maxReimbursement"`
}

// Calculation is the output of an incentive calculation.
type Calculation struct {
	Amount    decimal.Decimal `json:"amount"`
	Breakdown *Breakdown      `json:"breakdown,omitempty"`
}

type Claim struct {
	ID      string    `json:"id"`
	ClaimID string    `json:"claimId"`
	Type    ClaimType `json:"claimType"`

	UID       string `json:"uid"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
	Faculty   string `json:"faculty"`

	Variant

	CalculatedIncentive *decimal.Decimal `json:"calculatedIncentive,omitempty"`
	Breakdown           *Breakdown       `json:"breakdown,omitempty"`
	FinalApprovedAmount *decimal.Decimal `json:"finalApprovedAmount,omitempty"`

	Status          Status           `json:"status"`
	Approvals       []*ApprovalStage `json:"approvals"`
	RejectedAtStage *int             `json:"rejectedAtStage,omitempty"`

	PaymentSheetRef string       `json:"paymentSheetRef,omitempty"`
	BankDetails     *BankDetails `json:"bankDetails,omitempty"`
	Proofs          []Attachment `json:"proofs,omitempty"`

	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Details returns the populated variant for the claim's type, or nil.
func (c *Claim) Details() Details {
	return c.Variant.For(c.Type)
}

// Title is the display title of the claim's subject.
func (c *Claim) Title() string {
	if d := c.Details(); d != nil {
		return d.DisplayTitle()
	}
	return ""
}

// Stage returns the recorded stage at a 0-based index, or nil.
func (c *Claim) Stage(index int) *ApprovalStage {
	if index < 0 || index >= len(c.Approvals) {
		return nil
	}
	return c.Approvals[index]
}

// Clone returns a deep copy so engine operations never mutate caller state.
func (c *Claim) Clone() *Claim {
	cp := *c
	cp.Variant = c.Variant.Clone()
	cp.CalculatedIncentive = clonePtr(c.CalculatedIncentive)
	cp.FinalApprovedAmount = clonePtr(c.FinalApprovedAmount)
	cp.Breakdown = clonePtr(c.Breakdown)
	cp.RejectedAtStage = clonePtr(c.RejectedAtStage)
	cp.BankDetails = clonePtr(c.BankDetails)
	cp.SubmittedAt = clonePtr(c.SubmittedAt)

	cp.Approvals = make([]*ApprovalStage, len(c.Approvals))
	for i, s := range c.Approvals {
		if s == nil {
			continue
		}
		sc := *s
		sc.ApprovedAmount = clonePtr(s.ApprovedAmount)
		sc.VerifiedFields = cloneMap(s.VerifiedFields)
		sc.Suggestions = cloneMap(s.Suggestions)
		cp.Approvals[i] = &sc
	}
	cp.Proofs = append([]Attachment(nil), c.Proofs...)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FormatClaimID renders the human-readable sequential id.
func FormatClaimID(t ClaimType, seq int64) string {
	return fmt.Sprintf("RDC/INC/%s/%05d", t.Code(), seq)
}

// CounterName is the counter key for a claim type's sequence.
func CounterName(t ClaimType) string {
	return "claims/" + string(t)
}

// =============================================================================
// USER PROFILE
// =============================================================================

type UserProfile struct {
	UID     string       `json:"uid"`
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Faculty string       `json:"faculty"`
	Bank    *BankDetails `json:"bankDetails,omitempty"`
}

// =============================================================================
// PAYMENT BATCH
// =============================================================================

type PaymentBatch struct {
	Reference string            `json:"referenceNumber"`
	Remarks   map[string]string `json:"remarks"` // claim document id → remark
	ClaimIDs  []string          `json:"claimIds"`
	Total     decimal.Decimal   `json:"total"`
	CreatedBy string            `json:"createdBy"`
	CreatedAt time.Time         `json:"createdAt"`
}

// BulkResult reports per-claim outcomes of a bulk action.
type BulkResult struct {
	Processed  int      `json:"processedCount"`
	Skipped    int      `json:"skippedCount"`
	SkippedIDs []string `json:"skippedIds,omitempty"`
}

func (r *BulkResult) skip(id string) {
	r.Skipped++
	r.SkippedIDs = append(r.SkippedIDs, id)
}

// Summary is the toast text shown after a bulk action.
func (r BulkResult) Summary(verb string) string {
	return fmt.Sprintf("%d %s %s, %d skipped", r.Processed, pluralClaims(r.Processed), verb, r.Skipped)
}

func pluralClaims(n int) string {
	if n == 1 {
		return "claim"
	}
	return "claims"
}
