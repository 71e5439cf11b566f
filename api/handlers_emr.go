package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rdc/incentive-engine/emr"
)

// =============================================================================
// EMR HANDLERS
//
//   GET    /api/emr/calls                   Calls, latest deadline first
//   POST   /api/emr/calls                   Publish a call
//   GET    /api/emr/calls/{id}              One call
//   GET    /api/emr/calls/{id}/interests    Interests on a call
//   POST   /api/emr/calls/{id}/interests    Register the caller's interest
//   POST   /api/emr/calls/{id}/meetings     Schedule an evaluation meeting
// =============================================================================

func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.emr.ListCalls(r.Context())
	if err != nil {
		h.writeErr(w, r, "ListCalls", err)
		return
	}
	if calls == nil {
		calls = []*emr.Call{}
	}
	writeData(w, http.StatusOK, calls)
}

func (h *Handler) CreateCall(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateCallRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.emr.CreateCall(r.Context(), emr.CallInput{
		Title:       req.Title,
		Agency:      req.Agency,
		Description: req.Description,
		Deadline:    req.Deadline,
		CreatedBy:   a.UID,
	})
	if err != nil {
		h.writeErr(w, r, "CreateCall", err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	c, err := h.emr.GetCall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, "GetCall", err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *Handler) ListInterests(w http.ResponseWriter, r *http.Request) {
	interests, err := h.emr.ListInterests(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, "ListInterests", err)
		return
	}
	if interests == nil {
		interests = []*emr.Interest{}
	}
	writeData(w, http.StatusOK, interests)
}

func (h *Handler) RegisterInterest(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req RegisterInterestRequest
	if !h.decode(w, r, &req) {
		return
	}
	i, err := h.emr.RegisterInterest(r.Context(), chi.URLParam(r, "id"), emr.InterestInput{
		UID:          a.UID,
		UserName:     a.Name,
		UserEmail:    req.UserEmail,
		Faculty:      req.Faculty,
		ProjectTitle: req.ProjectTitle,
		CoPIs:        req.CoPIs,
	})
	if err != nil {
		h.writeErr(w, r, "RegisterInterest", err)
		return
	}
	writeData(w, http.StatusCreated, i)
}

func (h *Handler) ScheduleMeeting(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	var req ScheduleMeetingRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.emr.ScheduleMeeting(r.Context(), chi.URLParam(r, "id"), req.InterestIDs, emr.Meeting{
		Date:       req.Date,
		Venue:      req.Venue,
		Mode:       req.Mode,
		Evaluators: req.Evaluators,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeErr(w, r, "ScheduleMeeting", err)
		return
	}
	writeData(w, http.StatusOK, BulkResponse{BulkResult: result, Summary: fmt.Sprintf("%d scheduled, %d skipped", result.Processed, result.Skipped)})
}
