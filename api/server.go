/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request
  2. RealIP:     Client address from proxy headers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Tracing:    OpenTelemetry server span per request
  6. CORS:       Cross-origin requests for the portal frontend

ROUTE GROUPS:
  /api/claims/*         Claim submission, review stages, proofs
  /api/disbursements/*  Payment sheets and bulk status changes
  /api/emr/*            Extramural funding calls
  /api/notices/*        In-app notifications
  /api/scenarios/*      Demo data (development only)
  /health               Liveness and database check

SECURITY NOTE:
  No authentication middleware. The gateway in front of this service
  authenticates and sets X-User-ID / X-User-Name.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rdc/incentive-engine/tracing"
)

type RouterOptions struct {
	AllowedOrigins []string
	// EnableScenarios mounts /api/scenarios. Loading a scenario wipes the database.
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderUserID, HeaderUserName},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Claim routes
		r.Route("/claims", func(r chi.Router) {
			r.Get("/", h.ListClaims)
			r.Post("/", h.SubmitClaim)
			r.Get("/buckets", h.ClaimBuckets)
			r.Post("/preview", h.PreviewClaim)
			r.Get("/export", h.ExportClaims)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetClaim)
				r.Put("/", h.UpdateDraft)
				r.Post("/submit", h.SubmitDraft)
				r.Post("/proofs", h.AttachProof)
				r.Get("/eligibility", h.ClaimEligibility)
				r.Get("/stages/{stage}", h.StagePrefill)
				r.Post("/stages/{stage}", h.StageAction)
			})
		})

		// Disbursement routes
		r.Route("/disbursements", func(r chi.Router) {
			r.Post("/sheets", h.GeneratePaymentSheet)
			r.Get("/batches/{ref}", h.GetBatch)
			r.Post("/submit-to-accounts", h.SubmitToAccounts)
			r.Post("/mark-paid", h.MarkPaymentsCompleted)
		})

		// EMR routes
		r.Route("/emr/calls", func(r chi.Router) {
			r.Get("/", h.ListCalls)
			r.Post("/", h.CreateCall)
			r.Get("/{id}", h.GetCall)
			r.Get("/{id}/interests", h.ListInterests)
			r.Post("/{id}/interests", h.RegisterInterest)
			r.Post("/{id}/meetings", h.ScheduleMeeting)
		})

		// Notice routes
		r.Route("/notices", func(r chi.Router) {
			r.Get("/", h.ListNotices)
			r.Post("/{id}/read", h.MarkNoticeRead)
		})

		// Scenario routes
		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Error: "route not found"})
	})

	return r
}
