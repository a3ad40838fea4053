package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contextlabs/ragway/internal/httputil"
	"github.com/contextlabs/ragway/internal/metadata"
)

// RegistryStore is the metadata-store surface the collection endpoints use.
type RegistryStore interface {
	ListCollections(ctx context.Context) ([]metadata.Collection, error)
	RenameCollection(ctx context.Context, id, newName string) error
	DeleteCollection(ctx context.Context, id string) error
	GetUsageSummary(ctx context.Context, from, to time.Time) (*metadata.UsageSummary, error)
}

// AdminHandler serves the collection registry and usage endpoints. Ingestion
// itself happens elsewhere; the gateway only manages registry entries.
type AdminHandler struct {
	store RegistryStore
}

func NewAdminHandler(store RegistryStore) *AdminHandler {
	return &AdminHandler{store: store}
}

// ListCollections handles GET /v1/collections.
func (h *AdminHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	collections, err := h.store.ListCollections(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Failed to list collections")
		return
	}
	if collections == nil {
		collections = []metadata.Collection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   collections,
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameCollection handles PATCH /admin/v1/collections/{id}.
func (h *AdminHandler) RenameCollection(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.WriteBadRequestError(w, reqID, "name is required")
		return
	}

	if err := h.store.RenameCollection(r.Context(), id, req.Name); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			httputil.WriteNotFoundError(w, reqID, "Unknown collection: "+id)
			return
		}
		httputil.WriteInternalError(w, reqID, "Failed to rename collection")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "name": req.Name})
}

// DeleteCollection handles DELETE /admin/v1/collections/{id}. Only the
// registry entry is removed; the vector data belongs to the vector store.
func (h *AdminHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteCollection(r.Context(), id); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			httputil.WriteNotFoundError(w, reqID, "Unknown collection: "+id)
			return
		}
		httputil.WriteInternalError(w, reqID, "Failed to delete collection")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UsageSummary handles GET /admin/v1/usage?from=...&to=... (RFC3339, default
// last 30 days).
func (h *AdminHandler) UsageSummary(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if s := r.URL.Query().Get("from"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.WriteBadRequestError(w, reqID, "invalid 'from' date format (use RFC3339)")
			return
		}
		from = parsed
	}
	if s := r.URL.Query().Get("to"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.WriteBadRequestError(w, reqID, "invalid 'to' date format (use RFC3339)")
			return
		}
		to = parsed
	}

	summary, err := h.store.GetUsageSummary(r.Context(), from, to)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Failed to read usage summary")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"from":    from,
		"to":      to,
		"summary": summary,
	})
}
