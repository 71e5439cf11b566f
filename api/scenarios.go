/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos of the review and disbursement screens. Every scenario
	goes through the claim and emr services, so ids, calculations and
	notifications are exactly what real usage produces.

AVAILABLE SCENARIOS:

	conference-review:  One conference claim waiting on stage 1
	payment-run:        Three accepted claims ready for a payment sheet
	emr-call:           An open funding call with one registered interest

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create faculty profiles with bank details
 3. Submit claims as the faculty member
 4. Walk the approval stages as reviewers, verifying every field

NOTE:

	Scenarios reset the database. The routes are only mounted when
	RouterOptions.EnableScenarios is set.

SEE ALSO:
  - server.go: Route registration
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/emr"
)

var scenarios = []ScenarioDTO{
	{
		ID:          "conference-review",
		Name:        "Conference Review",
		Description: "An offline conference at Parul University waiting on the first reviewer",
	},
	{
		ID:          "payment-run",
		Name:        "Payment Run",
		Description: "Three accepted claims from two faculties, none on a payment sheet yet",
	},
	{
		ID:          "emr-call",
		Name:        "EMR Call",
		Description: "An open SERB call with one registered interest",
	},
}

var demoReviewer = claim.Approver{UID: "rev-1", Name: "Dr. Patel (RDC)"}

var demoProfiles = []*claim.UserProfile{
	{
		UID: "fac-1", Name: "Dr. Anil Mehta", Email: "anil.mehta@paruluniversity.ac.in", Faculty: "Engineering",
		Bank: &claim.BankDetails{BeneficiaryName: "Anil Mehta", AccountNumber: "001122334455", IFSC: "SBIN0001234", BankName: "State Bank of India"},
	},
	{
		UID: "fac-2", Name: "Dr. Priya Shah", Email: "priya.shah@paruluniversity.ac.in", Faculty: "Pharmacy",
		Bank: &claim.BankDetails{BeneficiaryName: "Priya Shah", AccountNumber: "998877665544", IFSC: "HDFC0000456", BankName: "HDFC Bank"},
	},
}

// ListScenarios returns the available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario id.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.RLock()
	current := h.currentScenario
	h.scenarioMu.RUnlock()
	writeData(w, http.StatusOK, map[string]string{"scenarioId": current})
}

// LoadScenario resets the database and loads one scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(ctx context.Context) error
	switch req.ScenarioID {
	case "conference-review":
		load = h.loadConferenceReview
	case "payment-run":
		load = h.loadPaymentRun
	case "emr-call":
		load = h.loadEMRCall
	default:
		writeJSON(w, http.StatusNotFound, Envelope{Error: fmt.Sprintf("unknown scenario %q", req.ScenarioID)})
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.seed(ctx); err != nil {
		h.writeErr(w, r, "LoadScenario", err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeErr(w, r, "LoadScenario", err)
		return
	}
	h.currentScenario = req.ScenarioID
	writeData(w, http.StatusOK, map[string]string{"scenarioId": req.ScenarioID})
}

func (h *Handler) seed(ctx context.Context) error {
	if err := h.db.Reset(ctx); err != nil {
		return err
	}
	for _, p := range demoProfiles {
		if err := h.db.PutProfile(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadConferenceReview(ctx context.Context) error {
	_, err := h.claims.SubmitClaim(ctx, claim.SubmitInput{
		UID:     "fac-1",
		Type:    claim.TypeConference,
		Variant: demoConference("ICCN 2025", "5000"),
	})
	return err
}

func (h *Handler) loadPaymentRun(ctx context.Context) error {
	inputs := []claim.SubmitInput{
		{UID: "fac-1", Type: claim.TypeConference, Variant: demoConference("ICCN 2025", "5000")},
		{UID: "fac-2", Type: claim.TypeConference, Variant: demoConference("NCETE 2025", "3000")},
		{UID: "fac-2", Type: claim.TypeResearchPaper, Variant: claim.Variant{Paper: &claim.PaperDetails{
			Title:      "Nanocarrier Delivery of Curcumin",
			Journal:    "International Journal of Pharmaceutics",
			DOI:        "10.1016/j.ijpharm.2025.01.001",
			Indexing:   claim.IndexScopus,
			Quartile:   claim.Q1,
			AuthorRole: claim.RoleFirstAuthor,
		}}},
	}
	for _, in := range inputs {
		c, err := h.claims.SubmitClaim(ctx, in)
		if err != nil {
			return err
		}
		if err := h.acceptAllStages(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadEMRCall(ctx context.Context) error {
	call, err := h.emr.CreateCall(ctx, emr.CallInput{
		Title:       "Core Research Grant 2025",
		Agency:      "SERB",
		Description: "Individual-centric support for active researchers",
		Deadline:    time.Now().UTC().AddDate(0, 1, 0),
		CreatedBy:   demoReviewer.UID,
	})
	if err != nil {
		return err
	}
	_, err = h.emr.RegisterInterest(ctx, call.ID, emr.InterestInput{
		UID:          "fac-2",
		ProjectTitle: "Targeted nanocarriers for oral insulin",
	})
	return err
}

// acceptAllStages walks every stage with the prefilled amount, verifying
// each checklist field.
func (h *Handler) acceptAllStages(ctx context.Context, c *claim.Claim) error {
	stages := h.claims.Engine().Stages(c.Type)
	for idx := 0; idx < stages; idx++ {
		pf, err := h.claims.Prefill(ctx, c.ID, idx)
		if err != nil {
			return err
		}
		action := claim.ActionApprove
		if len(pf.Actions) > 0 && pf.Actions[0] == claim.ActionVerify {
			action = claim.ActionVerify
		}
		verified := make(map[string]bool, len(pf.ChecklistFields))
		for field := range pf.ChecklistFields {
			verified[field] = true
		}
		amount := pf.DefaultAmount
		if _, err := h.claims.SubmitStageAction(ctx, c.ID, idx, demoReviewer, action, claim.StagePayload{
			Amount:         &amount,
			VerifiedFields: verified,
		}); err != nil {
			return err
		}
	}
	return nil
}

func demoConference(name, fee string) claim.Variant {
	date := time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC)
	regFee := decimal.RequireFromString(fee)
	travel := decimal.Zero
	return claim.Variant{Conference: &claim.ConferenceDetails{
		PaperTitle:      "Edge Caching for Rural Networks",
		ConferenceName:  name,
		Organizer:       "Parul University",
		Mode:            claim.ModeOffline,
		Venue:           "India",
		ConferenceDate:  &date,
		RegistrationFee: &regFee,
		TravelFare:      &travel,
	}}
}
