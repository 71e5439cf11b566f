/*
handlers.go - HTTP API handlers for the incentive claim engine

PURPOSE:
  Exposes the claim workflow, disbursement runs and EMR calls via REST.
  Handles HTTP request/response, JSON serialization and validation, and
  delegates to the claim and emr services.

ENDPOINTS:
  Claims:         see handlers_claims.go
  Disbursements:  see handlers_disbursement.go
  EMR:            see handlers_emr.go
  Notices:
    GET    /api/notices                In-app notices for the caller
    POST   /api/notices/{id}/read      Mark one notice read
  Health:
    GET    /health                     Database ping

IDENTITY:
  Authentication happens upstream. The gateway forwards the caller as
  X-User-ID and X-User-Name. Endpoints that act on behalf of someone
  return 401 without them.

ERROR HANDLING:
  Errors are returned in the envelope with a status chosen from the
  claim error taxonomy:
  - 400: Validation, checklist, stage order, disallowed action
  - 401: Missing identity headers
  - 403: Editing another user's claim
  - 404: Claim, batch, call or interest not found
  - 409: Finalized claim, duplicate registration, concurrent write
  - 502: Proof upload failed
  - 503: Required configuration missing
  - 500: Everything else, with the generic retry message

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - claim/errors.go: Error taxonomy
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/config"
	"github.com/rdc/incentive-engine/emr"
	"github.com/rdc/incentive-engine/notify"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"

	maxBodyBytes = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Database is what the handlers need from the store directly.
type Database interface {
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	PutProfile(ctx context.Context, p *claim.UserProfile) error
}

// ReportRenderer renders claim lists for download.
type ReportRenderer interface {
	RenderClaims(claims []*claim.Claim) ([]byte, error)
}

type Deps struct {
	Claims   *claim.Service
	EMR      *emr.Service
	DB       Database
	Notices  notify.NoticeStore
	Reports  ReportRenderer
	Logger   *logrus.Logger
	MaxProof int64 // bytes, default 10 MiB
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	claims   *claim.Service
	emr      *emr.Service
	db       Database
	notices  notify.NoticeStore
	reports  ReportRenderer
	logger   *logrus.Logger
	validate *validator.Validate
	maxProof int64

	// scenarioMu serializes scenario loads and guards currentScenario.
	scenarioMu      sync.RWMutex
	currentScenario string
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		claims:   d.Claims,
		emr:      d.EMR,
		db:       d.DB,
		notices:  d.Notices,
		reports:  d.Reports,
		logger:   d.Logger,
		validate: newValidator(),
		maxProof: d.MaxProof,
	}
	if h.logger == nil {
		h.logger = config.DiscardLogger()
	}
	if h.maxProof <= 0 {
		h.maxProof = 10 << 20
	}
	return h
}

// newValidator reports JSON field names instead of Go ones.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the database answers.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"status": "ok"}})
		return
	}
	if err := h.db.Ping(r.Context()); err != nil {
		config.LogError(h.logger, "api", "Health", "database ping failed", nil, err)
		writeJSON(w, http.StatusServiceUnavailable, Envelope{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

// =============================================================================
// NOTICES
// =============================================================================

// ListNotices returns the caller's notices, newest first.
// GET /api/notices
func (h *Handler) ListNotices(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	notices, err := h.notices.ListNotices(r.Context(), actor.UID)
	if err != nil {
		h.writeErr(w, r, "ListNotices", err)
		return
	}
	if notices == nil {
		notices = []*notify.Notice{}
	}
	writeData(w, http.StatusOK, notices)
}

// MarkNoticeRead marks one of the caller's notices read.
// POST /api/notices/{id}/read
func (h *Handler) MarkNoticeRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.notices.MarkNoticeRead(r.Context(), actor.UID, chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, "MarkNoticeRead", err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"read": true})
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// actor returns the caller from the identity headers.
func actor(r *http.Request) claim.Approver {
	return claim.Approver{
		UID:  strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Name: strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (claim.Approver, bool) {
	a := actor(r)
	if a.UID == "" {
		writeJSON(w, http.StatusUnauthorized, Envelope{Error: "missing " + HeaderUserID + " header"})
		return a, false
	}
	return a, true
}

// decode reads and validates a JSON body. On failure it has already
// written the response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "invalid JSON body", Details: err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fieldPath(fe)] = fieldMessage(fe)
			}
			writeJSON(w, http.StatusBadRequest, Envelope{Error: "validation failed", Details: fields})
			return false
		}
		writeJSON(w, http.StatusBadRequest, Envelope{Error: err.Error()})
		return false
	}
	return true
}

// fieldPath drops the request type name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeFile(w http.ResponseWriter, filename, contentType string, content []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// statusFor maps the error taxonomy to an HTTP status. The boolean says
// whether the error text may be shown to the caller.
func statusFor(err error) (int, bool) {
	var missing *config.MissingError
	switch {
	case claim.IsNotFound(err):
		return http.StatusNotFound, true
	case errors.Is(err, claim.ErrForbidden):
		return http.StatusForbidden, true
	case claim.IsConflict(err):
		return http.StatusConflict, true
	case claim.IsClientError(err):
		return http.StatusBadRequest, true
	case errors.Is(err, claim.ErrUploadFailure):
		return http.StatusBadGateway, true
	case errors.As(err, &missing):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, claim.ErrOperationFailed):
		return http.StatusInternalServerError, true
	default:
		return http.StatusInternalServerError, false
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, visible := statusFor(err)
	msg := err.Error()
	if !visible {
		config.LogError(h.logger, "api", op, r.Method+" "+r.URL.Path, nil, err)
		msg = claim.ErrOperationFailed.Error()
	}
	env := Envelope{Error: msg}
	var ice *claim.IncompleteChecklistError
	if errors.As(err, &ice) {
		env.Details = map[string][]string{"missing": ice.Missing}
	}
	writeJSON(w, status, env)
}
