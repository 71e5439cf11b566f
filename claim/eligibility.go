package claim

import "time"

// =============================================================================
// DISBURSEMENT ELIGIBILITY
// =============================================================================

// EligibilityPolicy rejects a claim that conflicts with one the submitter
// has already been paid for.
type EligibilityPolicy interface {
	Name() string
	Conflicts(c *Claim, history []*Claim) bool
}

// OnePerPeriod allows one paid claim of a type per submitter per period.
type OnePerPeriod struct {
	Type   ClaimType
	Period PeriodConfig

	// PUOrganizedOnly limits the policy to conferences organized by PU.
	PUOrganizedOnly bool
}

func (p OnePerPeriod) Name() string {
	return "one-" + string(p.Type) + "-per-" + string(p.Period.Type)
}

func (p OnePerPeriod) Conflicts(c *Claim, history []*Claim) bool {
	if c.Type != p.Type || !p.applies(c) {
		return false
	}
	window := p.Period.PeriodFor(ReferenceDate(c))
	for _, h := range history {
		if h == nil || h.ID == c.ID || h.UID != c.UID || h.Type != c.Type {
			continue
		}
		if h.Status != StatusPaymentCompleted || !p.applies(h) {
			continue
		}
		if window.Contains(ReferenceDate(h)) {
			return true
		}
	}
	return false
}

func (p OnePerPeriod) applies(c *Claim) bool {
	if !p.PUOrganizedOnly {
		return true
	}
	return c.Conference != nil && c.Conference.PUOrganized()
}

// DefaultPolicies returns the university's disbursement rules: one
// conference reimbursement per submitter per academic year.
func DefaultPolicies() []EligibilityPolicy {
	return []EligibilityPolicy{
		OnePerPeriod{Type: TypeConference, Period: AcademicYear},
	}
}

// ReferenceDate is the date a claim counts against for period policies:
// the conference date when known, else submission, else creation.
func ReferenceDate(c *Claim) time.Time {
	if c.Conference != nil && c.Conference.ConferenceDate != nil {
		return *c.Conference.ConferenceDate
	}
	if c.SubmittedAt != nil {
		return *c.SubmittedAt
	}
	return c.CreatedAt
}

// EligibleForDisbursement is the guard every bulk disbursement action
// applies. history is the submitter's other claims.
func EligibleForDisbursement(c *Claim, history []*Claim, policies []EligibilityPolicy) bool {
	if c == nil || c.FinalApprovedAmount == nil {
		return false
	}
	switch c.Status {
	case StatusAccepted, StatusSubmittedToAccounts, StatusPaymentCompleted:
	default:
		return false
	}
	for _, p := range policies {
		if p.Conflicts(c, history) {
			return false
		}
	}
	return true
}
