package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ListModels handles GET /v1/models, reporting one model per configured
// backend so OpenAI-compatible clients can discover what to send.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	cfg := h.backendsCfg()
	now := time.Now().Unix()

	models := make([]modelInfo, 0, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		id := bc.Model
		if id == "" {
			id = name
		}
		models = append(models, modelInfo{
			ID:      id,
			Object:  "model",
			Created: now,
			OwnedBy: name,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   models,
	})
}

// Health handles GET /ragway/v1/health. The gateway is "degraded" when any
// backend circuit is open or the vector store is unreachable, but it accepts
// traffic either way — retrieval failures only cost context, not answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	states := h.health.States()

	status := "ok"
	for _, state := range states {
		if state == "open" {
			status = "degraded"
			break
		}
	}

	vectorStore := map[string]interface{}{"status": "ok"}
	if h.vectors != nil {
		if collections, err := h.vectors.ListCollections(r.Context()); err != nil {
			status = "degraded"
			vectorStore["status"] = "unreachable"
		} else {
			vectorStore["collections"] = len(collections)
		}
	}

	cfg := h.backendsCfg()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       status,
		"active":       cfg.Active,
		"backends":     states,
		"vector_store": vectorStore,
	})
}
