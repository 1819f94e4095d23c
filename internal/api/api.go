// Package api exposes the workflow over HTTP. Handlers are thin: decode,
// call the service, map errors through httputil.WorkflowError. All policy
// lives in the service packages.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/outreach-engine/internal/approval"
	"github.com/ignite/outreach-engine/internal/budget"
	"github.com/ignite/outreach-engine/internal/cluster"
	"github.com/ignite/outreach-engine/internal/compliance"
	"github.com/ignite/outreach-engine/internal/dedup"
	"github.com/ignite/outreach-engine/internal/drafting"
	"github.com/ignite/outreach-engine/internal/enrich"
	"github.com/ignite/outreach-engine/internal/export"
	"github.com/ignite/outreach-engine/internal/followup"
	"github.com/ignite/outreach-engine/internal/importer"
	"github.com/ignite/outreach-engine/internal/quota"
	"github.com/ignite/outreach-engine/internal/replies"
	"github.com/ignite/outreach-engine/internal/sending"
	"github.com/ignite/outreach-engine/internal/store"
)

// Handlers bundles the workflow services the API exposes.
type Handlers struct {
	Store     *store.Store
	Importer  *importer.Importer
	Enrich    *enrich.Service
	Cluster   *cluster.Service
	Drafting  *drafting.Drafter
	Approval  *approval.Service
	Sending   *sending.Sender
	Followups *followup.Scheduler
	Replies   *replies.Router
	Export    *export.Service
	Ledger    *budget.Ledger
	Quota     *quota.Tracker
	Gate      *compliance.Gate
	Dedup     *dedup.Checker
	UserID    int
}

// NewRouter builds the HTTP router.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Get("/unsubscribe", h.unsubscribe)

	r.Route("/api", func(r chi.Router) {
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.listContacts)
			r.Post("/import", h.importContacts)
			r.Post("/enrich", h.enrichBatch)
			r.Post("/retry-rate-limited", h.retryRateLimited)
			r.Post("/embed", h.embedContacts)
			r.Post("/cluster", h.clusterContacts)
			r.Post("/merge", h.mergeContacts)
			r.Get("/export.csv", h.exportContactsCSV)
			r.Get("/export.json", h.exportContactsJSON)
			r.Route("/{contactID}", func(r chi.Router) {
				r.Get("/", h.getContact)
				r.Post("/enrich", h.enrichContact)
				r.Post("/draft", h.createDraft)
				r.Delete("/", h.eraseContact)
			})
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/pending", h.listPendingDrafts)
			r.Post("/bulk", h.createDraftsBulk)
			r.Post("/bulk-approve", h.bulkApprove)
			r.Post("/undo-bulk-approval", h.undoBulkApproval)
			r.Post("/send-bulk", h.sendBulk)
			r.Route("/{draftID}", func(r chi.Router) {
				r.Get("/", h.getDraft)
				r.Post("/approve", h.approveDraft)
				r.Post("/reject", h.rejectDraft)
				r.Post("/edit", h.editDraft)
				r.Post("/cancel", h.cancelDraft)
				r.Post("/send", h.sendDraft)
			})
		})

		r.Post("/replies/inbound", h.inboundReply)
		r.Post("/followups/run", h.runFollowups)
		r.Post("/scheduled/dispatch", h.dispatchScheduled)

		r.Get("/budget", h.budgetStatus)
		r.Get("/quota", h.quotaStatus)
		r.Get("/campaign/export.json", h.exportCampaign)
		r.Get("/audit/{entityID}", h.auditTrail)
	})

	return r
}
