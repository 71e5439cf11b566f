package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/rdc/incentive-engine/export"
)

// =============================================================================
// DISBURSEMENT HANDLERS
//
//   POST   /api/disbursements/sheets              Generate a payment sheet
//   GET    /api/disbursements/batches/{ref}       Batch and its claims
//   POST   /api/disbursements/submit-to-accounts  Accepted → Submitted to Accounts
//   POST   /api/disbursements/mark-paid           Submitted → Payment Completed
//
// References contain slashes ("RDC/PAY/2025-01"); clients escape them
// in the {ref} path segment.
// =============================================================================

// GeneratePaymentSheet assigns the claims to a batch and returns the
// sheet. With ?format=xlsx the workbook itself is the response.
func (h *Handler) GeneratePaymentSheet(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req PaymentSheetRequest
	if !h.decode(w, r, &req) {
		return
	}

	sheet, result, err := h.claims.GeneratePaymentSheet(r.Context(), req.ClaimIDs, req.Remarks, req.ReferenceNumber, a)
	if err != nil {
		h.writeErr(w, r, "GeneratePaymentSheet", err)
		return
	}

	if sheet != nil && len(sheet.Content) > 0 && r.URL.Query().Get("format") == "xlsx" {
		writeFile(w, sheet.Filename, export.ContentType, sheet.Content)
		return
	}

	resp := PaymentSheetResponse{Result: result, Summary: result.Summary("added to the payment sheet")}
	if sheet != nil {
		resp.Batch = sheet.Batch
		resp.Filename = sheet.Filename
		resp.Content = sheet.Content
	}
	writeData(w, http.StatusOK, resp)
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ref, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "invalid reference"})
		return
	}
	batch, claims, err := h.claims.Batch(r.Context(), ref)
	if err != nil {
		h.writeErr(w, r, "GetBatch", err)
		return
	}
	writeData(w, http.StatusOK, BatchResponse{Batch: batch, Claims: claims})
}

func (h *Handler) SubmitToAccounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	var req BulkRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.claims.SubmitToAccounts(r.Context(), req.ClaimIDs)
	if err != nil {
		h.writeErr(w, r, "SubmitToAccounts", err)
		return
	}
	writeData(w, http.StatusOK, BulkResponse{BulkResult: result, Summary: result.Summary("submitted to accounts")})
}

func (h *Handler) MarkPaymentsCompleted(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	var req BulkRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.claims.MarkPaymentsCompleted(r.Context(), req.ClaimIDs)
	if err != nil {
		h.writeErr(w, r, "MarkPaymentsCompleted", err)
		return
	}
	writeData(w, http.StatusOK, BulkResponse{BulkResult: result, Summary: result.Summary("marked as paid")})
}
