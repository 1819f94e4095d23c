package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/drafting"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

func (h *Handlers) getDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "draftID")
	if !ok {
		httputil.BadRequest(w, "invalid draft id")
		return
	}
	draft, err := h.Store.DraftByID(r.Context(), id)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, draft)
}

func (h *Handlers) createDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "contactID")
	if !ok {
		httputil.BadRequest(w, "invalid contact id")
		return
	}
	var req struct {
		Template *drafting.Template `json:"template,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}

	contact, err := h.Store.ContactByID(r.Context(), id)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	draft, err := h.Drafting.CreateDraft(r.Context(), contact, req.Template)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.Created(w, draft)
}

func (h *Handlers) createDraftsBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactIDs []uuid.UUID        `json:"contact_ids"`
		Template   *drafting.Template `json:"template,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.ContactIDs) == 0 {
		httputil.BadRequest(w, "no contact ids")
		return
	}

	var contacts []*domain.Contact
	for _, id := range req.ContactIDs {
		contact, err := h.Store.ContactByID(r.Context(), id)
		if err != nil {
			httputil.WorkflowError(w, err)
			return
		}
		contacts = append(contacts, contact)
	}

	result, err := h.Drafting.CreateDraftsBulk(r.Context(), contacts, req.Template)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.Created(w, result)
}

func (h *Handlers) listPendingDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.Approval.ListPending(r.Context(), h.UserID)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	if drafts == nil {
		drafts = []*domain.EmailDraft{}
	}
	httputil.OK(w, drafts)
}

type actorRequest struct {
	Actor  string `json:"actor"`
	Notes  string `json:"notes,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) approveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "draftID")
	if !ok {
		httputil.BadRequest(w, "invalid draft id")
		return
	}
	var req actorRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	draft, err := h.Approval.Approve(r.Context(), id, req.Actor, req.Notes)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, draft)
}

func (h *Handlers) rejectDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "draftID")
	if !ok {
		httputil.BadRequest(w, "invalid draft id")
		return
	}
	var req actorRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	draft, err := h.Approval.Reject(r.Context(), id, req.Actor, req.Reason)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, draft)
}

func (h *Handlers) editDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "draftID")
	if !ok {
		httputil.BadRequest(w, "invalid draft id")
		return
	}
	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Actor   string `json:"actor"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	draft, err := h.Approval.Edit(r.Context(), id, req.Subject, req.Body, req.Actor)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, draft)
}

func (h *Handlers) cancelDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "draftID")
	if !ok {
		httputil.BadRequest(w, "invalid draft id")
		return
	}
	var req actorRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	draft, err := h.Approval.Cancel(r.Context(), id, req.Actor, req.Reason)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, draft)
}

func (h *Handlers) bulkApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DraftIDs []uuid.UUID `json:"draft_ids"`
		Actor    string      `json:"actor"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.DraftIDs) == 0 {
		httputil.BadRequest(w, "no draft ids")
		return
	}
	result, err := h.Approval.BulkApprove(r.Context(), req.DraftIDs, req.Actor)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) undoBulkApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID uuid.UUID `json:"batch_id"`
		Actor   string    `json:"actor"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	reverted, err := h.Approval.UndoBulkApproval(r.Context(), req.BatchID, req.Actor)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"reverted": reverted})
}

func (h *Handlers) sendDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "draftID")
	if !ok {
		httputil.BadRequest(w, "invalid draft id")
		return
	}
	draft, err := h.Sending.Send(r.Context(), id)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, draft)
}

func (h *Handlers) sendBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DraftIDs []uuid.UUID `json:"draft_ids"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.DraftIDs) == 0 {
		httputil.BadRequest(w, "no draft ids")
		return
	}
	result, err := h.Sending.SendBulk(r.Context(), req.DraftIDs)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, result)
}
