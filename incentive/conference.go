package incentive

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rdc/incentive-engine/claim"
)

// =============================================================================
// CONFERENCE - min(cap, rate × eligible expenses)
// =============================================================================

// conference reimburses a share of the eligible expenses up to a cap that
// depends on mode, venue scope, region and whether PU organized it.
// Online attendance only has a registration fee to reimburse.
func (calc *Calculator) conference(d *claim.ConferenceDetails) claim.Calculation {
	if d == nil {
		return claim.Calculation{Amount: decimal.Zero, Breakdown: &claim.Breakdown{}}
	}

	eligible := orZero(d.RegistrationFee)
	if strings.EqualFold(string(d.Mode), string(claim.ModeOffline)) {
		eligible = eligible.Add(orZero(d.TravelFare))
	}
	breakdown := &claim.Breakdown{EligibleExpenses: eligible, MaxReimbursement: decimal.Zero}

	if d.Mode == "" || strings.TrimSpace(d.Venue) == "" {
		return claim.Calculation{Amount: decimal.Zero, Breakdown: breakdown}
	}
	rule, ok := calc.conferenceRule(d)
	if !ok {
		return claim.Calculation{Amount: decimal.Zero, Breakdown: breakdown}
	}

	breakdown.MaxReimbursement = rule.Cap
	amt := minDecimal(rule.Cap, rule.Rate.Mul(eligible)).Round(2)
	return claim.Calculation{Amount: amt, Breakdown: breakdown}
}

func (calc *Calculator) conferenceRule(d *claim.ConferenceDetails) (ConferenceRule, bool) {
	scope := scopeOf(d.Venue)
	pu := d.PUOrganized()
	for _, r := range calc.p.Conference.Rules {
		if r.Mode != "" && !strings.EqualFold(r.Mode, string(d.Mode)) {
			continue
		}
		if r.Scope != "" && !strings.EqualFold(r.Scope, scope) {
			continue
		}
		if r.Region != "" && !strings.EqualFold(r.Region, normalizeRegion(d.Region)) {
			continue
		}
		if r.PUOrganized != nil && *r.PUOrganized != pu {
			continue
		}
		return r, true
	}
	return ConferenceRule{}, false
}

// normalizeRegion maps "North America" and "north-america" to "NorthAmerica".
func normalizeRegion(region string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(region))
}
