package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/canvas/internal/catalog"
	"github.com/matthewbaird/canvas/internal/types"
)

// KindHandler serves the component kind catalog.
type KindHandler struct {
	catalog *catalog.Registry
}

// NewKindHandler creates a new KindHandler.
func NewKindHandler(c *catalog.Registry) *KindHandler {
	return &KindHandler{catalog: c}
}

type kindSummary struct {
	Name     string         `json:"name"`
	Group    string         `json:"group,omitempty"`
	Icon     string         `json:"icon,omitempty"`
	Width    float64        `json:"width,omitempty"`
	Height   float64        `json:"height,omitempty"`
	DataMode types.DataMode `json:"dataMode,omitempty"`
}

type listKindsResponse struct {
	Kinds []kindSummary `json:"kinds"`
}

func (h *KindHandler) ListKinds(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	out := []kindSummary{}
	for _, k := range h.catalog.All() {
		if group != "" && k.Group != group {
			continue
		}
		out = append(out, kindSummary{
			Name:     k.Name,
			Group:    k.Group,
			Icon:     k.Icon,
			Width:    k.Width,
			Height:   k.Height,
			DataMode: k.DataMode,
		})
	}
	writeJSON(w, http.StatusOK, listKindsResponse{Kinds: out})
}

func (h *KindHandler) GetKind(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	k, ok := h.catalog.Kind(name)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown kind: "+name)
		return
	}
	writeJSON(w, http.StatusOK, k)
}
