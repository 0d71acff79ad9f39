package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/component"
	"github.com/matthewbaird/canvas/internal/event"
	"github.com/matthewbaird/canvas/internal/live"
	"github.com/matthewbaird/canvas/internal/store"
	"github.com/matthewbaird/canvas/internal/types"
)

const (
	defaultChangeLimit = 50
	maxChangeLimit     = 500
)

// DocumentHandler implements HTTP handlers for documents and their live
// previews.
type DocumentHandler struct {
	store   store.Store
	kinds   component.KindResolver
	bus     event.Publisher
	history *event.History
	live    *live.Handler
	log     *zap.Logger
}

// DocumentConfig holds the dependencies of a DocumentHandler. Bus, History
// and Live are optional.
type DocumentConfig struct {
	Store   store.Store
	Kinds   component.KindResolver
	Bus     event.Publisher
	History *event.History
	Live    *live.Handler
	Logger  *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(cfg DocumentConfig) *DocumentHandler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentHandler{
		store:   cfg.Store,
		kinds:   cfg.Kinds,
		bus:     cfg.Bus,
		history: cfg.History,
		live:    cfg.Live,
		log:     log.Named("documents"),
	}
}

type documentRequest struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name"`
	Components []types.NodeRecord `json:"components"`
}

type listDocumentsResponse struct {
	Documents []types.DocumentSummary `json:"documents"`
}

type listChangesResponse struct {
	Changes []event.Change `json:"changes"`
}

// prepare validates and normalizes the components of req.
func (h *DocumentHandler) prepare(w http.ResponseWriter, req documentRequest) ([]types.NodeRecord, bool) {
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "MISSING_NAME", "name is required")
		return nil, false
	}
	if err := component.ValidateRecords(req.Components, h.kinds); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return nil, false
	}
	recs, err := component.Normalize(req.Components, h.kinds)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return nil, false
	}
	return recs, true
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.ID != "" {
		if !store.ValidID(req.ID) {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid document id: "+req.ID)
			return
		}
		_, err := h.store.Get(r.Context(), req.ID)
		if err == nil {
			writeError(w, http.StatusConflict, "ALREADY_EXISTS", "document "+req.ID+" already exists")
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			storeErrorToHTTP(w, h.log, err)
			return
		}
	}
	recs, ok := h.prepare(w, req)
	if !ok {
		return
	}

	doc, err := h.store.Save(r.Context(), types.Document{ID: req.ID, Name: req.Name, Components: recs})
	if err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	h.publish(r, event.NewDocumentSaved(doc.ID, doc.Summary().ComponentCount))
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.List(r.Context())
	if err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listDocumentsResponse{Documents: docs})
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, http.StatusBadRequest, "ID_MISMATCH", "body id does not match path")
		return
	}
	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	recs, ok := h.prepare(w, req)
	if !ok {
		return
	}

	existing.Name = req.Name
	existing.Components = recs
	doc, err := h.store.Save(r.Context(), existing)
	if err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	h.publish(r, event.NewDocumentSaved(doc.ID, doc.Summary().ComponentCount))
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	h.publish(r, event.NewDocumentDeleted(id))
	w.WriteHeader(http.StatusNoContent)
}

// ListChanges returns the recent change history of a document, newest first.
func (h *DocumentHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.Get(r.Context(), id); err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	changes := []event.Change{}
	if h.history != nil {
		changes = append(changes, h.history.Recent(id, parseLimit(r, defaultChangeLimit, maxChangeLimit))...)
	}
	writeJSON(w, http.StatusOK, listChangesResponse{Changes: changes})
}

// Live opens a preview session and hands the connection to the live
// handler. Load and decode errors are reported before the upgrade.
func (h *DocumentHandler) Live(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeError(w, http.StatusNotImplemented, "LIVE_DISABLED", "live preview is not enabled")
		return
	}
	sess, err := h.live.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		storeErrorToHTTP(w, h.log, err)
		return
	}
	h.live.Run(w, r, sess)
}

func (h *DocumentHandler) publish(r *http.Request, c event.Change) {
	if h.bus != nil {
		h.bus.Publish(r.Context(), c)
	}
}
