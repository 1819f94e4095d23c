package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/importer"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func urlUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *Handlers) listContacts(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	contacts, err := h.Store.ListContacts(r.Context(), h.UserID, includeDeleted)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	if contacts == nil {
		contacts = []*domain.Contact{}
	}
	httputil.OK(w, contacts)
}

func (h *Handlers) getContact(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "contactID")
	if !ok {
		httputil.BadRequest(w, "invalid contact id")
		return
	}
	contact, err := h.Store.ContactByID(r.Context(), id)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, contact)
}

func (h *Handlers) importContacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows []importer.Row `json:"rows"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Rows) == 0 {
		httputil.BadRequest(w, "no rows to import")
		return
	}
	result, err := h.Importer.Import(r.Context(), req.Rows)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.Created(w, result)
}

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

func (h *Handlers) enrichBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.Enrich.EnrichImported(r.Context(), limitParam(r))
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) retryRateLimited(w http.ResponseWriter, r *http.Request) {
	result, err := h.Enrich.RetryRateLimited(r.Context(), limitParam(r))
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) enrichContact(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "contactID")
	if !ok {
		httputil.BadRequest(w, "invalid contact id")
		return
	}
	contact, err := h.Store.ContactByID(r.Context(), id)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	if err := h.Enrich.EnrichContact(r.Context(), contact); err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, contact)
}

func (h *Handlers) embedContacts(w http.ResponseWriter, r *http.Request) {
	result, err := h.Cluster.EmbedPending(r.Context(), limitParam(r))
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) clusterContacts(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Cluster.Run(r.Context(), limitParam(r))
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"clusters": groups})
}

func (h *Handlers) mergeContacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrimaryID   uuid.UUID `json:"primary_id"`
		DuplicateID uuid.UUID `json:"duplicate_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}

	primary, err := h.Store.ContactByID(r.Context(), req.PrimaryID)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	duplicate, err := h.Store.ContactByID(r.Context(), req.DuplicateID)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}

	merged, err := h.Dedup.Merge(r.Context(), primary, duplicate)
	if err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.OK(w, merged)
}

func (h *Handlers) eraseContact(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "contactID")
	if !ok {
		httputil.BadRequest(w, "invalid contact id")
		return
	}
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		actor = "api"
	}
	if err := h.Export.Erase(r.Context(), id, actor); err != nil {
		httputil.WorkflowError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) exportContactsCSV(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="contacts.csv"`)
	if err := h.Export.ContactsCSV(r.Context(), w, includeDeleted); err != nil {
		httputil.InternalError(w, err)
	}
}

func (h *Handlers) exportContactsJSON(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := h.Export.ContactsJSON(r.Context(), w, includeDeleted); err != nil {
		httputil.InternalError(w, err)
	}
}
