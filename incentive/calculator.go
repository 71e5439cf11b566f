// Package incentive computes the tentative incentive for a claim.
//
// Every function here is pure. Calculation is called on every edit of a
// draft, so partial input is normal: missing optional numbers count as
// zero and a missing classification yields an amount of zero, never an
// error. Only a missing claim type is an error.
package incentive

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rdc/incentive-engine/claim"
)

type Calculator struct {
	p *Policies
}

var _ claim.Calculator = (*Calculator)(nil)

// New returns a calculator for the given policies, or the default policy
// when p is nil.
func New(p *Policies) *Calculator {
	if p == nil {
		p = DefaultPolicies()
	}
	return &Calculator{p: p}
}

func (calc *Calculator) Calculate(c *claim.Claim) (claim.Calculation, error) {
	if c == nil || c.Type == "" {
		return claim.Calculation{}, claim.ErrMissingClaimType
	}
	switch c.Type {
	case claim.TypeConference:
		return calc.conference(c.Conference), nil
	case claim.TypePatent:
		return amount(calc.patent(c.Patent)), nil
	case claim.TypeResearchPaper:
		return amount(calc.paper(c.Paper)), nil
	case claim.TypeBook:
		return amount(calc.book(c.Book)), nil
	case claim.TypeMembership:
		return calc.membership(c.Membership), nil
	case claim.TypeSeedMoneyAPC:
		return calc.apc(c.SeedMoneyAPC), nil
	}
	return claim.Calculation{}, claim.NewValidationError("claimType", "unknown claim type %q", c.Type)
}

func amount(d decimal.Decimal) claim.Calculation {
	return claim.Calculation{Amount: d}
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil || d.IsNegative() {
		return decimal.Zero
	}
	return *d
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func scopeOf(venue string) string {
	if strings.EqualFold(strings.TrimSpace(venue), claim.VenueIndia) {
		return string(claim.ScopeNational)
	}
	return string(claim.ScopeInternational)
}
