package api

import (
	"net/http"
	"time"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/replies"
)

func (h *Handlers) inboundReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThreadID   string    `json:"thread_id"`
		FromEmail  string    `json:"from_email"`
		CC         []string  `json:"cc,omitempty"`
		Body       string    `json:"body"`
		ReceivedAt time.Time `json:"received_at,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ThreadID == "" || req.FromEmail == "" {
		httputil.BadRequest(w, "thread_id and from_email are required")
		return
	}

	reply, err := h.Replies.Receive(r.Context(), replies.Inbound{
		ThreadID:   req.ThreadID,
		FromEmail:  req.FromEmail,
		CC:         req.CC,
		Body:       req.Body,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	if reply == nil {
		// Self-reply, discarded.
		httputil.NoContent(w)
		return
	}

	processed, err := h.Replies.Process(r.Context(), reply)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, processed)
}

func (h *Handlers) runFollowups(w http.ResponseWriter, r *http.Request) {
	created, err := h.Followups.Run(r.Context())
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"created": len(created), "drafts": created})
}

func (h *Handlers) dispatchScheduled(w http.ResponseWriter, r *http.Request) {
	result, err := h.Sending.ProcessDueScheduled(r.Context(), h.UserID)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) budgetStatus(w http.ResponseWriter, r *http.Request) {
	spent, err := h.Ledger.DailyCost(r.Context())
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	remaining, err := h.Ledger.RemainingBudget(r.Context())
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	breakdown, err := h.Ledger.Breakdown(r.Context())
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"daily_limit": h.Ledger.DailyLimit(),
		"spent":       spent,
		"remaining":   remaining,
		"breakdown":   breakdown,
	})
}

func (h *Handlers) quotaStatus(w http.ResponseWriter, r *http.Request) {
	used, err := h.Quota.Used(r.Context())
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	remaining, err := h.Quota.Remaining(r.Context())
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"daily_limit": h.Quota.DailyLimit(),
		"used":        used,
		"remaining":   remaining,
	})
}

// unsubscribe is the public endpoint behind the footer link in every email.
func (h *Handlers) unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.BadRequest(w, "missing token")
		return
	}
	contact, err := h.Gate.ProcessToken(r.Context(), token)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, map[string]string{
		"status":     "unsubscribed",
		"contact_id": contact.ID.String(),
	})
}

func (h *Handlers) exportCampaign(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := h.Export.CampaignJSON(r.Context(), w); err != nil {
		httputil.InternalError(w, err)
	}
}

func (h *Handlers) auditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "entityID")
	if !ok {
		httputil.BadRequest(w, "invalid entity id")
		return
	}
	entries, err := h.Store.AuditTrail(r.Context(), id)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, entries)
}
