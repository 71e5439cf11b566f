/*
stage.go - Approval stage engine

PURPOSE:
  Decides what a reviewer may do at a given stage of a claim and produces
  the next claim state. The engine is pure: it never touches storage,
  never notifies, and never mutates the claim it is given.

STAGE KINDS:
  Verify:        Checklist only. Always forwards to the next stage.
  VerifyAmount:  Checklist plus an amount. On the final stage a verify
                 closes the claim as Accepted. May also reject.
  ApproveReject: Approve with an amount, or reject with a reason.

  | type          | stage 0 | stage 1      | stage 2+      |
  |---------------|---------|--------------|---------------|
  | Conference    | Verify  | VerifyAmount | n/a           |
  | ResearchPaper | Verify  | ApproveReject| ApproveReject |
  | others        | ApproveReject at every stage           |

CHECK ORDER:
  1. Finalized claim       → FinalizedError
  2. Stage order           → ErrStageOutOfOrder
  3. Action for stage kind → ErrActionNotAllowed
  4. Checklist             → IncompleteChecklistError
  5. Reject reason         → ErrMissingRejectionReason
  6. Amount >= 0           → ErrMissingAmount

  Stage records therefore always form a contiguous prefix starting at 0,
  and nothing follows a Rejected stage.

SEE ALSO:
  - workflow.go: Loads, applies, persists, notifies
*/
package claim

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STAGE KINDS AND ACTIONS
// =============================================================================

type StageKind string

const (
	KindVerify        StageKind = "verify"
	KindVerifyAmount  StageKind = "verify_amount"
	KindApproveReject StageKind = "approve_reject"
)

type Action string

const (
	ActionVerify  Action = "verify"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) Valid() bool {
	return a == ActionVerify || a == ActionApprove || a == ActionReject
}

// KindFor returns the stage kind for a claim type at a 0-based stage index.
func KindFor(t ClaimType, index int) StageKind {
	switch t {
	case TypeConference:
		if index == 0 {
			return KindVerify
		}
		return KindVerifyAmount
	case TypeResearchPaper:
		if index == 0 {
			return KindVerify
		}
		return KindApproveReject
	default:
		return KindApproveReject
	}
}

// Allows reports whether the stage kind accepts the action.
func (k StageKind) Allows(a Action) bool {
	switch k {
	case KindVerify:
		return a == ActionVerify
	case KindVerifyAmount:
		return a == ActionVerify || a == ActionReject
	case KindApproveReject:
		return a == ActionApprove || a == ActionReject
	}
	return false
}

// Actions lists the actions a stage kind accepts, for display.
func (k StageKind) Actions() []Action {
	var out []Action
	for _, a := range []Action{ActionVerify, ActionApprove, ActionReject} {
		if k.Allows(a) {
			out = append(out, a)
		}
	}
	return out
}

func (k StageKind) requiresChecklist() bool {
	return k == KindVerify || k == KindVerifyAmount
}

// =============================================================================
// CHAIN - Number of stages per claim type
// =============================================================================

// Chain maps a claim type to its number of approval stages.
type Chain map[ClaimType]int

const defaultStages = 4

// DefaultChain is the university's standard approval chain.
func DefaultChain() Chain {
	return Chain{
		TypeResearchPaper: 4,
		TypePatent:        4,
		TypeConference:    2,
		TypeBook:          4,
		TypeMembership:    4,
		TypeSeedMoneyAPC:  4,
	}
}

// Stages returns the stage count for a type. Conference always has exactly
// two stages, and a chain that starts with a Verify stage has at least two
// so that a verify never has to close a claim.
func (c Chain) Stages(t ClaimType) int {
	n, ok := c[t]
	if !ok || n < 1 {
		n = defaultStages
	}
	switch t {
	case TypeConference:
		return 2
	case TypeResearchPaper:
		if n < 2 {
			return 2
		}
	}
	return n
}

// =============================================================================
// ENGINE
// =============================================================================

// Approver identifies the reviewer acting on a stage.
type Approver struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// StagePayload is what the reviewer submits with an action.
type StagePayload struct {
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Comments       string            `json:"comments,omitempty"`
	VerifiedFields map[string]bool   `json:"verifiedFields,omitempty"`
	Suggestions    map[string]string `json:"suggestions,omitempty"`
}

type Engine struct {
	chain Chain
}

func NewEngine(chain Chain) *Engine {
	if chain == nil {
		chain = DefaultChain()
	}
	return &Engine{chain: chain}
}

func (e *Engine) Stages(t ClaimType) int {
	return e.chain.Stages(t)
}

// Apply validates the action and returns the next claim state plus the
// sorted list of fields whose suggested value differs from the stored one.
func (e *Engine) Apply(c *Claim, stageIndex int, approver Approver, action Action, p StagePayload, now time.Time) (*Claim, []string, error) {
	if c.Status.IsFinal() {
		return nil, nil, &FinalizedError{ClaimID: c.ClaimID, Status: c.Status}
	}
	if err := e.checkOrder(c, stageIndex); err != nil {
		return nil, nil, err
	}

	kind := KindFor(c.Type, stageIndex)
	if !action.Valid() || !kind.Allows(action) {
		return nil, nil, fmt.Errorf("%w: %q on a %s stage", ErrActionNotAllowed, action, kind)
	}

	var applicable map[string]string
	if d := c.Details(); d != nil {
		applicable = d.ChecklistFields()
	}

	checklist := kind.requiresChecklist() && action == ActionVerify
	if checklist {
		if missing := missingChecks(applicable, p.VerifiedFields); len(missing) > 0 {
			return nil, nil, &IncompleteChecklistError{Missing: missing}
		}
	}
	if action == ActionReject && strings.TrimSpace(p.Comments) == "" {
		return nil, nil, ErrMissingRejectionReason
	}

	needsAmount := action == ActionApprove || (kind == KindVerifyAmount && action == ActionVerify)
	if needsAmount && (p.Amount == nil || p.Amount.IsNegative()) {
		return nil, nil, ErrMissingAmount
	}

	next := c.Clone()
	rec := &ApprovalStage{
		Stage:        stageIndex + 1,
		ApproverUID:  approver.UID,
		ApproverName: approver.Name,
		Comments:     strings.TrimSpace(p.Comments),
		ActedAt:      now,
	}
	switch action {
	case ActionReject:
		rec.Status = StageRejected
	case ActionApprove:
		rec.Status = StageApproved
	default:
		rec.Status = StageVerified
	}
	if needsAmount {
		amt := *p.Amount
		rec.ApprovedAmount = &amt
	}
	if checklist {
		rec.VerifiedFields = cloneMap(p.VerifiedFields)
	}
	rec.Suggestions = keepSuggestions(p.Suggestions, rec.VerifiedFields)

	for len(next.Approvals) <= stageIndex {
		next.Approvals = append(next.Approvals, nil)
	}
	next.Approvals[stageIndex] = rec
	next.UpdatedAt = now

	last := stageIndex == e.chain.Stages(c.Type)-1
	switch {
	case action == ActionReject:
		next.Status = StatusRejected
		at := stageIndex + 1
		next.RejectedAtStage = &at
	case last && needsAmount:
		next.Status = StatusAccepted
		amt := *p.Amount
		next.FinalApprovedAmount = &amt
	default:
		next.Status = PendingStatus(stageIndex + 1)
	}

	return next, changedSuggestions(rec.Suggestions, applicable), nil
}

func (e *Engine) checkOrder(c *Claim, stageIndex int) error {
	pending, ok := c.Status.PendingStage()
	if !ok {
		return fmt.Errorf("%w: claim is %s", ErrStageOutOfOrder, c.Status)
	}
	if stageIndex < 0 || stageIndex >= e.chain.Stages(c.Type) {
		return fmt.Errorf("%w: stage %d does not exist for %s", ErrStageOutOfOrder, stageIndex+1, c.Type)
	}
	if stageIndex != pending {
		return fmt.Errorf("%w: claim is waiting on stage %d, not %d", ErrStageOutOfOrder, pending+1, stageIndex+1)
	}
	for i := 0; i < stageIndex; i++ {
		s := c.Stage(i)
		if s == nil {
			return fmt.Errorf("%w: stage %d has not been acted on", ErrStageOutOfOrder, i+1)
		}
		if s.Status == StageRejected {
			return fmt.Errorf("%w: stage %d rejected the claim", ErrStageOutOfOrder, i+1)
		}
	}
	if c.Stage(stageIndex) != nil {
		return fmt.Errorf("%w: stage %d already recorded", ErrStageOutOfOrder, stageIndex+1)
	}
	return nil
}

// DefaultAmount is the pre-filled amount for a stage: the most recent
// earlier approved amount, else the calculated incentive, else zero.
func (e *Engine) DefaultAmount(c *Claim, stageIndex int) decimal.Decimal {
	for i := stageIndex - 1; i >= 0; i-- {
		if s := c.Stage(i); s != nil && s.ApprovedAmount != nil {
			return *s.ApprovedAmount
		}
	}
	if c.CalculatedIncentive != nil {
		return *c.CalculatedIncentive
	}
	return decimal.Zero
}

// Prefill is everything a reviewer form needs for one stage.
type Prefill struct {
	Stage               int               `json:"stage"` // 1-based
	Kind                StageKind         `json:"kind"`
	Actions             []Action          `json:"actions"`
	DefaultAmount       decimal.Decimal   `json:"defaultAmount"`
	ChecklistFields     map[string]string `json:"checklistFields,omitempty"`
	PreviousSuggestions map[string]string `json:"previousSuggestions,omitempty"`
	Final               bool              `json:"final"`
}

// Prefill describes the form for a stage. Later stages see what earlier
// reviewers suggested, with the most recent suggestion winning.
func (e *Engine) Prefill(c *Claim, stageIndex int) Prefill {
	kind := KindFor(c.Type, stageIndex)
	pf := Prefill{
		Stage:         stageIndex + 1,
		Kind:          kind,
		Actions:       kind.Actions(),
		DefaultAmount: e.DefaultAmount(c, stageIndex),
		Final:         stageIndex == e.chain.Stages(c.Type)-1,
	}
	if kind.requiresChecklist() {
		if d := c.Details(); d != nil {
			pf.ChecklistFields = d.ChecklistFields()
		}
	}
	for i := 0; i < stageIndex; i++ {
		s := c.Stage(i)
		if s == nil {
			continue
		}
		for k, v := range s.Suggestions {
			if pf.PreviousSuggestions == nil {
				pf.PreviousSuggestions = map[string]string{}
			}
			pf.PreviousSuggestions[k] = v
		}
	}
	return pf
}

// =============================================================================
// HELPERS
// =============================================================================

func missingChecks(applicable map[string]string, verified map[string]bool) []string {
	var missing []string
	for field := range applicable {
		if _, ok := verified[field]; !ok {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// keepSuggestions drops empty suggestions, and on checklist stages drops
// suggestions for fields the reviewer marked correct.
func keepSuggestions(s map[string]string, verified map[string]bool) map[string]string {
	var out map[string]string
	for k, v := range s {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if verified != nil && verified[k] {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}

func changedSuggestions(suggestions, stored map[string]string) []string {
	var changed []string
	for k, v := range suggestions {
		if stored[k] != v {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
