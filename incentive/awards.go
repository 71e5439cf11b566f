package incentive

import (
	"github.com/shopspring/decimal"

	"github.com/rdc/incentive-engine/claim"
)

// =============================================================================
// PATENT
// =============================================================================

// patent: base award for the lifecycle status, doubled for international
// filings, shared between PU inventors, halved when PU is not the sole
// applicant. Dates play no part, so missing dates never matter.
func (calc *Calculator) patent(d *claim.PatentDetails) decimal.Decimal {
	if d == nil || d.Status == "" {
		return decimal.Zero
	}
	base, ok := calc.p.Patent.Base[string(d.Status)]
	if !ok {
		return decimal.Zero
	}
	if d.International {
		base = base.Mul(calc.p.Patent.InternationalMultiplier)
	}
	inventors := d.InventorCount
	if inventors < 1 {
		inventors = 1
	}
	amt := base.Div(decimal.NewFromInt(int64(inventors)))
	if d.PUSoleApplicant != nil && !*d.PUSoleApplicant {
		amt = amt.Mul(calc.p.Patent.NonSoleApplicantFactor)
	}
	return amt.Round(2)
}

// =============================================================================
// RESEARCH PAPER
// =============================================================================

func (calc *Calculator) paper(d *claim.PaperDetails) decimal.Decimal {
	if d == nil || d.Indexing == "" || d.AuthorRole == "" {
		return decimal.Zero
	}
	awards, ok := calc.p.Paper.Awards[string(d.Indexing)]
	if !ok {
		return decimal.Zero
	}
	award, ok := awards[string(d.Quartile)]
	if !ok || d.Quartile == "" {
		if award, ok = awards[anyQuartile]; !ok {
			return decimal.Zero
		}
	}
	factor, ok := calc.p.Paper.RoleFactors[string(d.AuthorRole)]
	if !ok {
		return decimal.Zero
	}
	return award.Mul(factor).Round(2)
}

// =============================================================================
// BOOK
// =============================================================================

func (calc *Calculator) book(d *claim.BookDetails) decimal.Decimal {
	if d == nil || d.Kind == "" || d.PublisherScope == "" {
		return decimal.Zero
	}
	return calc.p.Book.Awards[string(d.Kind)][string(d.PublisherScope)]
}

// =============================================================================
// MEMBERSHIP - min(cap, rate × fee)
// =============================================================================

func (calc *Calculator) membership(d *claim.MembershipDetails) claim.Calculation {
	if d == nil || d.Fee == nil || d.Category == "" {
		return amount(decimal.Zero)
	}
	limit, ok := calc.p.Membership.Caps[string(d.Category)]
	if !ok {
		return amount(decimal.Zero)
	}
	fee := orZero(d.Fee)
	return claim.Calculation{
		Amount:    minDecimal(limit, calc.p.Membership.Rate.Mul(fee)).Round(2),
		Breakdown: &claim.Breakdown{EligibleExpenses: fee, MaxReimbursement: limit},
	}
}

// =============================================================================
// SEED MONEY / APC - min(APC paid, cap)
// =============================================================================

func (calc *Calculator) apc(d *claim.APCDetails) claim.Calculation {
	if d == nil || d.APCAmount == nil || !calc.apcIndexed(d.Indexing) {
		return amount(decimal.Zero)
	}
	limit, ok := calc.p.APC.Caps[string(d.Quartile)]
	if !ok {
		return amount(decimal.Zero)
	}
	paid := orZero(d.APCAmount)
	return claim.Calculation{
		Amount:    minDecimal(limit, paid).Round(2),
		Breakdown: &claim.Breakdown{EligibleExpenses: paid, MaxReimbursement: limit},
	}
}

func (calc *Calculator) apcIndexed(ix claim.Indexing) bool {
	for _, v := range calc.p.APC.Indexings {
		if v == string(ix) {
			return true
		}
	}
	return false
}
