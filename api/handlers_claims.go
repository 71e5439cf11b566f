package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/export"
)

// =============================================================================
// CLAIM HANDLERS
//
//   POST   /api/claims                       Submit (or save as draft)
//   GET    /api/claims                       List with filters
//   GET    /api/claims/buckets               Five-tab projection
//   POST   /api/claims/preview               Calculation without saving
//   GET    /api/claims/export                Filtered list as .xlsx
//   GET    /api/claims/{id}                  One claim
//   PUT    /api/claims/{id}                  Edit a draft
//   POST   /api/claims/{id}/submit           Submit a draft
//   POST   /api/claims/{id}/proofs           Upload a proof (multipart "file")
//   GET    /api/claims/{id}/eligibility      Disbursement guard
//   GET    /api/claims/{id}/stages/{stage}   Stage form prefill (1-based)
//   POST   /api/claims/{id}/stages/{stage}   Reviewer action (1-based)
// =============================================================================

func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req SubmitClaimRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.claims.SubmitClaim(r.Context(), claim.SubmitInput{
		UID:       a.UID,
		UserName:  a.Name,
		UserEmail: req.UserEmail,
		Faculty:   req.Faculty,
		Type:      claim.ClaimType(req.ClaimType),
		Variant:   req.Variant,
		Draft:     req.Draft,
	})
	if err != nil {
		h.writeErr(w, r, "SubmitClaim", err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.writeErr(w, r, "ListClaims", err)
		return
	}
	claims, err := h.claims.List(r.Context(), f)
	if err != nil {
		h.writeErr(w, r, "ListClaims", err)
		return
	}
	if claims == nil {
		claims = []*claim.Claim{}
	}
	writeData(w, http.StatusOK, claims)
}

func (h *Handler) ClaimBuckets(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.writeErr(w, r, "ClaimBuckets", err)
		return
	}
	b, err := h.claims.Buckets(r.Context(), f)
	if err != nil {
		h.writeErr(w, r, "ClaimBuckets", err)
		return
	}
	writeData(w, http.StatusOK, BucketsResponse{Buckets: b, Counts: b.Counts()})
}

// PreviewClaim returns the incentive a submission would get.
func (h *Handler) PreviewClaim(w http.ResponseWriter, r *http.Request) {
	var req SubmitClaimRequest
	if !h.decode(w, r, &req) {
		return
	}
	calc, err := h.claims.Preview(&claim.Claim{Type: claim.ClaimType(req.ClaimType), Variant: req.Variant})
	if err != nil {
		h.writeErr(w, r, "PreviewClaim", err)
		return
	}
	writeData(w, http.StatusOK, calc)
}

func (h *Handler) ExportClaims(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSON(w, http.StatusNotImplemented, Envelope{Error: "export is not configured"})
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		h.writeErr(w, r, "ExportClaims", err)
		return
	}
	claims, err := h.claims.List(r.Context(), f)
	if err != nil {
		h.writeErr(w, r, "ExportClaims", err)
		return
	}
	content, err := h.reports.RenderClaims(claims)
	if err != nil {
		h.writeErr(w, r, "ExportClaims", err)
		return
	}
	writeFile(w, "claims-"+time.Now().UTC().Format("20060102")+".xlsx", export.ContentType, content)
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.claims.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, "GetClaim", err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateDraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claims.UpdateDraft(r.Context(), chi.URLParam(r, "id"), a.UID, req.Variant)
	if err != nil {
		h.writeErr(w, r, "UpdateDraft", err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	c, err := h.claims.SubmitDraft(r.Context(), chi.URLParam(r, "id"), a.UID)
	if err != nil {
		h.writeErr(w, r, "SubmitDraft", err)
		return
	}
	writeData(w, http.StatusOK, c)
}

// AttachProof stores an uploaded file and links it to the claim.
func (h *Handler) AttachProof(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxProof+(1<<16))
	if err := r.ParseMultipartForm(h.maxProof); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "invalid upload", Details: err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: `multipart field "file" is required`})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "could not read upload", Details: err.Error()})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	c, err := h.claims.AttachProof(r.Context(), chi.URLParam(r, "id"), a.UID, header.Filename, data, contentType)
	if err != nil {
		h.writeErr(w, r, "AttachProof", err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (h *Handler) ClaimEligibility(w http.ResponseWriter, r *http.Request) {
	c, err := h.claims.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, "ClaimEligibility", err)
		return
	}
	ok, err := h.claims.IsEligibleForFinancialDisbursement(r.Context(), c)
	if err != nil {
		h.writeErr(w, r, "ClaimEligibility", err)
		return
	}
	writeData(w, http.StatusOK, EligibilityResponse{ClaimID: c.ClaimID, Eligible: ok})
}

// =============================================================================
// STAGE HANDLERS
// =============================================================================

func (h *Handler) StagePrefill(w http.ResponseWriter, r *http.Request) {
	idx, err := stageIndex(r)
	if err != nil {
		h.writeErr(w, r, "StagePrefill", err)
		return
	}
	pf, err := h.claims.Prefill(r.Context(), chi.URLParam(r, "id"), idx)
	if err != nil {
		h.writeErr(w, r, "StagePrefill", err)
		return
	}
	writeData(w, http.StatusOK, pf)
}

func (h *Handler) StageAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	idx, err := stageIndex(r)
	if err != nil {
		h.writeErr(w, r, "StageAction", err)
		return
	}
	var req StageActionRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.claims.SubmitStageAction(r.Context(), chi.URLParam(r, "id"), idx, a, claim.Action(req.Action), claim.StagePayload{
		Amount:         req.Amount,
		Comments:       req.Comments,
		VerifiedFields: req.VerifiedFields,
		Suggestions:    req.Suggestions,
	})
	if err != nil {
		h.writeErr(w, r, "StageAction", err)
		return
	}
	changed := res.ChangedSuggestions
	if changed == nil {
		changed = []string{}
	}
	writeData(w, http.StatusOK, StageActionResponse{Claim: res.Claim, ChangedSuggestions: changed})
}

// stageIndex converts the 1-based {stage} path value to a 0-based index.
func stageIndex(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "stage"))
	if err != nil || n < 1 {
		return 0, claim.NewValidationError("stage", "stage must be a positive number")
	}
	return n - 1, nil
}

// =============================================================================
// FILTERS
// =============================================================================

// parseFilter reads uid, faculty, type, status, ref, from and to.
// type and status take comma-separated lists; from/to take a date or RFC 3339.
func parseFilter(r *http.Request) (claim.Filter, error) {
	q := r.URL.Query()
	f := claim.Filter{
		UID:             q.Get("uid"),
		Faculty:         q.Get("faculty"),
		PaymentSheetRef: q.Get("ref"),
	}
	for _, t := range splitCSV(q.Get("type")) {
		f.Types = append(f.Types, claim.ClaimType(t))
	}
	for _, s := range splitCSV(q.Get("status")) {
		f.Statuses = append(f.Statuses, claim.Status(s))
	}

	var err error
	if f.CreatedFrom, err = parseTimeParam(q.Get("from"), "from", false); err != nil {
		return f, err
	}
	if f.CreatedTo, err = parseTimeParam(q.Get("to"), "to", true); err != nil {
		return f, err
	}
	return f, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTimeParam accepts "2006-01-02" or RFC 3339. A bare "to" date
// includes the whole day.
func parseTimeParam(v, name string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, claim.NewValidationError(name, "expected YYYY-MM-DD or RFC 3339, got %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
