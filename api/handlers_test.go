/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Claim submission, lookup and validation errors
- Stage actions end to end, including checklist and finalized errors
- Payment sheets and batch lookup by escaped reference
- EMR calls, interest registration and meetings
- Notices, health and unknown routes

Every test runs the real router against the real services on an
in-memory SQLite database.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/config"
	"github.com/rdc/incentive-engine/emr"
	"github.com/rdc/incentive-engine/export"
	"github.com/rdc/incentive-engine/filestore"
	"github.com/rdc/incentive-engine/incentive"
	"github.com/rdc/incentive-engine/notify"
	"github.com/rdc/incentive-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testEnv struct {
	router http.Handler
	db     *sqlite.Store
	emails *notify.Console
}

func testLookup(key string) (string, error) {
	switch key {
	case config.KeyBaseURL:
		return "https://portal.test", nil
	case config.KeyStaffEmail:
		return "rdc@paruluniversity.ac.in", nil
	}
	return "", &config.MissingError{Key: key}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := config.DiscardLogger()
	emails := notify.NewConsole(nil)
	dispatcher := notify.NewDispatcher(db, emails, config.EmailConfig{
		DefaultFrom: "noreply@paruluniversity.ac.in",
		RDCFrom:     "rdc@paruluniversity.ac.in",
	}, logger, notify.WithLookup(testLookup))

	claims := claim.NewService(claim.Deps{
		Store:           db,
		Counter:         db,
		Batches:         db,
		Profiles:        db,
		Activity:        db,
		Files:           filestore.NewMemory(),
		Renderer:        export.NewExcel(),
		Notifier:        dispatcher,
		Calculator:      incentive.New(nil),
		ReferencePrefix: "RDC/PAY/",
		Logger:          logger,
	})
	emrSvc := emr.NewService(emr.Deps{
		Store:    db,
		Counter:  db,
		Profiles: db,
		Activity: db,
		Notifier: dispatcher,
		Logger:   logger,
	})

	h := NewHandler(Deps{
		Claims:  claims,
		EMR:     emrSvc,
		DB:      db,
		Notices: db,
		Reports: export.NewExcel(),
		Logger:  logger,
	})
	router := NewRouter(h, RouterOptions{EnableScenarios: true})

	require.NoError(t, db.PutProfile(context.Background(), &claim.UserProfile{
		UID:     "fac-1",
		Name:    "Dr. Anil Mehta",
		Email:   "anil.mehta@paruluniversity.ac.in",
		Faculty: "Engineering",
		Bank: &claim.BankDetails{
			BeneficiaryName: "Anil Mehta",
			AccountNumber:   "001122334455",
			IFSC:            "SBIN0001234",
			BankName:        "State Bank of India",
		},
	}))
	return &testEnv{router: router, db: db, emails: emails}
}

// do sends a JSON request as uid. An empty uid sends no identity headers.
func (e *testEnv) do(t *testing.T, method, path string, body any, uid string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(HeaderUserID, uid)
		req.Header.Set(HeaderUserName, "User "+uid)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type rawEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) rawEnvelope {
	t.Helper()
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func data[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := envelope(t, rec)
	require.True(t, env.Success, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func conferenceBody() map[string]any {
	return map[string]any{
		"claimType": "Conference",
		"conference": map[string]any{
			"paperTitle":      "Edge Caching for Rural Networks",
			"conferenceName":  "ICCN 2025",
			"organizer":       "Parul University",
			"mode":            "Offline",
			"venue":           "India",
			"conferenceDate":  "2025-07-10T00:00:00Z",
			"registrationFee": "5000",
			"travelFare":      "0",
		},
	}
}

func (e *testEnv) submitConference(t *testing.T) *claim.Claim {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/claims", conferenceBody(), "fac-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return data[*claim.Claim](t, rec)
}

// accept walks a conference claim through both stages.
func (e *testEnv) accept(t *testing.T, c *claim.Claim, amount string) *claim.Claim {
	t.Helper()
	for stage := 1; stage <= 2; stage++ {
		path := "/api/claims/" + c.ID + "/stages/" + string(rune('0'+stage))
		pf := data[claim.Prefill](t, e.do(t, http.MethodGet, path, nil, "rev-1"))
		verified := map[string]bool{}
		for field := range pf.ChecklistFields {
			verified[field] = true
		}
		rec := e.do(t, http.MethodPost, path, map[string]any{
			"action":         "verify",
			"amount":         amount,
			"verifiedFields": verified,
		}, "rev-1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		c = data[StageActionResponse](t, rec).Claim
	}
	require.Equal(t, claim.StatusAccepted, c.Status)
	return c
}

// =============================================================================
// HEALTH AND ROUTING
// =============================================================================

func TestHealth_OK(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", data[map[string]string](t, rec)["status"])
}

func TestUnknownRoute_ReturnsJSON404(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/nothing-here", nil, "fac-1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", envelope(t, rec).Error)
}

// =============================================================================
// CLAIMS
// =============================================================================

func TestSubmitClaim_CreatedAndRetrievable(t *testing.T) {
	// GIVEN: A faculty member with a profile
	e := newTestEnv(t)

	// WHEN: They submit a conference claim
	c := e.submitConference(t)

	// THEN: It gets the first conference id and the policy incentive
	assert.Equal(t, "RDC/INC/CONF/00001", c.ClaimID)
	assert.Equal(t, claim.PendingStatus(0), c.Status)
	require.NotNil(t, c.CalculatedIncentive)
	assert.Equal(t, "3750", c.CalculatedIncentive.String())
	assert.Equal(t, "Engineering", c.Faculty)

	// AND: GET returns the same claim
	rec := e.do(t, http.MethodGet, "/api/claims/"+c.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, c.ClaimID, data[*claim.Claim](t, rec).ClaimID)

	// AND: The submitter got an in-app notice
	notices := data[[]*notify.Notice](t, e.do(t, http.MethodGet, "/api/notices", nil, "fac-1"))
	require.Len(t, notices, 1)
	assert.Equal(t, "claim_submitted", notices[0].Kind)
	assert.False(t, notices[0].Read)
}

func TestSubmitClaim_MissingIdentityIs401(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/claims", conferenceBody(), "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, envelope(t, rec).Error, HeaderUserID)
}

func TestSubmitClaim_ValidationDetails(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/claims", map[string]any{"claimType": "Poem"}, "fac-1")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := envelope(t, rec)
	assert.Equal(t, "validation failed", env.Error)
	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Details, &details))
	assert.Contains(t, details["claimType"], "must be one of")
}

func TestSubmitClaim_InvalidJSON(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/claims", `{"claimType":`, "fac-1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", envelope(t, rec).Error)
}

func TestGetClaim_NotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/claims/does-not-exist", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraft_EditByAnotherUserIsForbidden(t *testing.T) {
	// GIVEN: A draft owned by fac-1
	e := newTestEnv(t)
	body := conferenceBody()
	body["draft"] = true
	rec := e.do(t, http.MethodPost, "/api/claims", body, "fac-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := data[*claim.Claim](t, rec)
	assert.Equal(t, claim.StatusDraft, draft.Status)

	// WHEN: Someone else edits it
	rec = e.do(t, http.MethodPut, "/api/claims/"+draft.ID, map[string]any{"conference": body["conference"]}, "fac-9")

	// THEN: 403
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// AND: The owner can submit it
	rec = e.do(t, http.MethodPost, "/api/claims/"+draft.ID+"/submit", nil, "fac-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, claim.PendingStatus(0), data[*claim.Claim](t, rec).Status)
}

func TestListClaims_FiltersByTypeAndStatus(t *testing.T) {
	e := newTestEnv(t)
	e.submitConference(t)

	rec := e.do(t, http.MethodGet, "/api/claims?type=Conference&status="+url.QueryEscape(string(claim.PendingStatus(0))), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, data[[]*claim.Claim](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/api/claims?type=Patent", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, data[[]*claim.Claim](t, rec))
}

func TestListClaims_BadDateIs400(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/claims?from=yesterday", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewClaim_DoesNotSave(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/claims/preview", conferenceBody(), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	calc := data[claim.Calculation](t, rec)
	assert.Equal(t, "3750", calc.Amount.String())
	assert.Empty(t, data[[]*claim.Claim](t, e.do(t, http.MethodGet, "/api/claims", nil, "")))
}

func TestAttachProof_Multipart(t *testing.T) {
	e := newTestEnv(t)
	c := e.submitConference(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "certificate.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 certificate"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/claims/"+c.ID+"/proofs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, "fac-1")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	updated := data[*claim.Claim](t, rec)
	require.Len(t, updated.Proofs, 1)
	assert.Equal(t, "certificate.pdf", updated.Proofs[0].Name)
}

func TestAttachProof_MissingFileField(t *testing.T) {
	e := newTestEnv(t)
	c := e.submitConference(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/claims/"+c.ID+"/proofs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, "fac-1")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// STAGES
// =============================================================================

func TestStageAction_ConferenceFlow(t *testing.T) {
	// GIVEN: A submitted conference claim
	e := newTestEnv(t)
	c := e.submitConference(t)
	path := "/api/claims/" + c.ID + "/stages/1"

	// WHEN: The first reviewer opens stage 1
	pf := data[claim.Prefill](t, e.do(t, http.MethodGet, path, nil, "rev-1"))

	// THEN: It is a checklist stage
	assert.Equal(t, 1, pf.Stage)
	assert.Equal(t, claim.KindVerify, pf.Kind)
	assert.Equal(t, []claim.Action{claim.ActionVerify}, pf.Actions)
	require.NotEmpty(t, pf.ChecklistFields)

	// WHEN: They verify without ticking the checklist
	rec := e.do(t, http.MethodPost, path, map[string]any{"action": "verify"}, "rev-1")

	// THEN: 400 with the missing fields
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var details map[string][]string
	require.NoError(t, json.Unmarshal(envelope(t, rec).Details, &details))
	assert.Len(t, details["missing"], len(pf.ChecklistFields))

	// WHEN: Both stages are verified with an amount of 3000
	accepted := e.accept(t, c, "3000")

	// THEN: The claim is accepted at that amount
	require.NotNil(t, accepted.FinalApprovedAmount)
	assert.Equal(t, "3000", accepted.FinalApprovedAmount.String())
	require.Len(t, accepted.Approvals, 2)
	assert.Equal(t, "rev-1", accepted.Approvals[1].ApproverUID)

	// AND: Another action on the finalized claim is a conflict
	rec = e.do(t, http.MethodPost, "/api/claims/"+c.ID+"/stages/2", map[string]any{"action": "reject", "comments": "late"}, "rev-2")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: The claim is eligible for disbursement
	elig := data[EligibilityResponse](t, e.do(t, http.MethodGet, "/api/claims/"+c.ID+"/eligibility", nil, ""))
	assert.True(t, elig.Eligible)
}

func TestStageAction_WrongActionForStage(t *testing.T) {
	e := newTestEnv(t)
	c := e.submitConference(t)

	rec := e.do(t, http.MethodPost, "/api/claims/"+c.ID+"/stages/1", map[string]any{"action": "approve", "amount": "100"}, "rev-1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageAction_OutOfOrder(t *testing.T) {
	e := newTestEnv(t)
	c := e.submitConference(t)

	rec := e.do(t, http.MethodPost, "/api/claims/"+c.ID+"/stages/2", map[string]any{"action": "reject", "comments": "no"}, "rev-2")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageAction_InvalidStageNumber(t *testing.T) {
	e := newTestEnv(t)
	c := e.submitConference(t)

	for _, stage := range []string{"0", "first"} {
		rec := e.do(t, http.MethodPost, "/api/claims/"+c.ID+"/stages/"+stage, map[string]any{"action": "verify"}, "rev-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code, stage)
	}
}

func TestStageAction_RequiresIdentity(t *testing.T) {
	e := newTestEnv(t)
	c := e.submitConference(t)

	rec := e.do(t, http.MethodPost, "/api/claims/"+c.ID+"/stages/1", map[string]any{"action": "verify"}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// DISBURSEMENT
// =============================================================================

func TestPaymentSheet_BatchAndStatusChanges(t *testing.T) {
	// GIVEN: An accepted claim
	e := newTestEnv(t)
	c := e.accept(t, e.submitConference(t), "3000")

	// WHEN: A payment sheet is generated for it
	rec := e.do(t, http.MethodPost, "/api/disbursements/sheets", map[string]any{
		"claimIds":        []string{c.ID},
		"referenceNumber": "2025-08",
		"remarks":         map[string]string{c.ID: "August run"},
	}, "rev-1")

	// THEN: The sheet carries the prefixed reference
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sheet := data[PaymentSheetResponse](t, rec)
	assert.Equal(t, 1, sheet.Result.Processed)
	assert.Equal(t, "1 claim added to the payment sheet, 0 skipped", sheet.Summary)
	require.NotNil(t, sheet.Batch)
	assert.Equal(t, "RDC/PAY/2025-08", sheet.Batch.Reference)
	assert.Equal(t, "3000", sheet.Batch.Total.String())
	assert.NotEmpty(t, sheet.Content)

	// AND: The batch can be looked up by its escaped reference
	rec = e.do(t, http.MethodGet, "/api/disbursements/batches/"+url.PathEscape("RDC/PAY/2025-08"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := data[BatchResponse](t, rec)
	require.Len(t, batch.Claims, 1)
	assert.Equal(t, c.ClaimID, batch.Claims[0].ClaimID)
	assert.Equal(t, "August run", batch.Batch.Remarks[c.ID])

	// WHEN: It is submitted to accounts, then marked paid
	bulk := data[BulkResponse](t, e.do(t, http.MethodPost, "/api/disbursements/submit-to-accounts", map[string]any{"claimIds": []string{c.ID}}, "rev-1"))
	assert.Equal(t, "1 claim submitted to accounts, 0 skipped", bulk.Summary)
	bulk = data[BulkResponse](t, e.do(t, http.MethodPost, "/api/disbursements/mark-paid", map[string]any{"claimIds": []string{c.ID, "missing-id"}}, "rev-1"))

	// THEN: Unknown ids are skipped and the claim ends paid
	assert.Equal(t, 1, bulk.Processed)
	assert.Equal(t, []string{"missing-id"}, bulk.SkippedIDs)
	got := data[*claim.Claim](t, e.do(t, http.MethodGet, "/api/claims/"+c.ID, nil, ""))
	assert.Equal(t, claim.StatusPaymentCompleted, got.Status)
}

func TestPaymentSheet_XLSXDownload(t *testing.T) {
	e := newTestEnv(t)
	c := e.accept(t, e.submitConference(t), "3000")

	rec := e.do(t, http.MethodPost, "/api/disbursements/sheets?format=xlsx", map[string]any{
		"claimIds":        []string{c.ID},
		"referenceNumber": "2025-09",
	}, "rev-1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payment-sheet-RDC-PAY-2025-09.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestPaymentSheet_RequiresClaimIDs(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/disbursements/sheets", map[string]any{"referenceNumber": "2025-08"}, "rev-1")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", envelope(t, rec).Error)
}

func TestGetBatch_UnknownIs404(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/disbursements/batches/"+url.PathEscape("RDC/PAY/none"), nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportClaims_XLSX(t *testing.T) {
	e := newTestEnv(t)
	e.submitConference(t)

	rec := e.do(t, http.MethodGet, "/api/claims/export?type=Conference", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
}

// =============================================================================
// EMR
// =============================================================================

func TestEMR_RegisterScheduleAndDuplicate(t *testing.T) {
	// GIVEN: An open call
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/emr/calls", map[string]any{
		"title":    "Core Research Grant 2025",
		"agency":   "SERB",
		"deadline": time.Now().UTC().AddDate(0, 1, 0).Format(time.RFC3339),
	}, "rev-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	call := data[*emr.Call](t, rec)
	assert.Equal(t, "RDC/EMR/CALL/00001", call.CallID)

	// WHEN: A faculty member registers interest
	interestsPath := "/api/emr/calls/" + call.ID + "/interests"
	rec = e.do(t, http.MethodPost, interestsPath, map[string]any{"projectTitle": "Low-cost water sensors"}, "fac-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	interest := data[*emr.Interest](t, rec)
	assert.Equal(t, emr.StatusRegistered, interest.Status)

	// THEN: A second registration is a conflict
	rec = e.do(t, http.MethodPost, interestsPath, map[string]any{"projectTitle": "Another idea"}, "fac-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: A meeting is scheduled for the interest and an unknown id
	rec = e.do(t, http.MethodPost, "/api/emr/calls/"+call.ID+"/meetings", map[string]any{
		"interestIds": []string{interest.ID, "unknown"},
		"date":        time.Now().UTC().AddDate(0, 0, 7).Format(time.RFC3339),
		"venue":       "Board Room, Admin Block",
		"mode":        "Offline",
	}, "rev-1")

	// THEN: One is scheduled and one skipped
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bulk := data[BulkResponse](t, rec)
	assert.Equal(t, "1 scheduled, 1 skipped", bulk.Summary)

	interests := data[[]*emr.Interest](t, e.do(t, http.MethodGet, interestsPath, nil, ""))
	require.Len(t, interests, 1)
	assert.Equal(t, emr.StatusMeetingScheduled, interests[0].Status)
	require.NotNil(t, interests[0].Meeting)
	assert.Equal(t, "Board Room, Admin Block", interests[0].Meeting.Venue)
}

func TestEMR_CreateCallValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/emr/calls", map[string]any{"title": "No agency"}, "rev-1")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var details map[string]string
	require.NoError(t, json.Unmarshal(envelope(t, rec).Details, &details))
	assert.Contains(t, details, "agency")
	assert.Contains(t, details, "deadline")
}

func TestEMR_UnknownCallIs404(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/emr/calls/nope", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// NOTICES
// =============================================================================

func TestNotices_MarkRead(t *testing.T) {
	e := newTestEnv(t)
	e.submitConference(t)
	notices := data[[]*notify.Notice](t, e.do(t, http.MethodGet, "/api/notices", nil, "fac-1"))
	require.Len(t, notices, 1)

	// Another user cannot mark it
	rec := e.do(t, http.MethodPost, "/api/notices/"+notices[0].ID+"/read", nil, "fac-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/notices/"+notices[0].ID+"/read", nil, "fac-1")
	require.Equal(t, http.StatusOK, rec.Code)

	notices = data[[]*notify.Notice](t, e.do(t, http.MethodGet, "/api/notices", nil, "fac-1"))
	require.Len(t, notices, 1)
	assert.True(t, notices[0].Read)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		visible bool
	}{
		{"not found", &claim.NotFoundError{Kind: "claim", ID: "x"}, http.StatusNotFound, true},
		{"forbidden", claim.ErrForbidden, http.StatusForbidden, true},
		{"finalized", &claim.FinalizedError{}, http.StatusConflict, true},
		{"duplicate", &claim.DuplicateRegistrationError{UserID: "u", CallID: "c"}, http.StatusConflict, true},
		{"validation", claim.NewValidationError("f", "bad"), http.StatusBadRequest, true},
		{"checklist", &claim.IncompleteChecklistError{Missing: []string{"doi"}}, http.StatusBadRequest, true},
		{"upload", claim.ErrUploadFailure, http.StatusBadGateway, true},
		{"config", &config.MissingError{Key: "BASE_URL"}, http.StatusServiceUnavailable, true},
		{"opaque", io.ErrUnexpectedEOF, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, visible := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.visible, visible)
		})
	}
}

func TestWriteErr_HidesInternalErrors(t *testing.T) {
	h := NewHandler(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	h.writeErr(rec, req, "Test", io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, claim.ErrOperationFailed.Error(), envelope(t, rec).Error)
}
