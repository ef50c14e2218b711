package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/service"
)

// SnipeHandler serves the snipe lifecycle endpoints.
type SnipeHandler struct {
	snipes *service.SnipeService
	logger *slog.Logger
}

// NewSnipeHandler creates a SnipeHandler.
func NewSnipeHandler(snipes *service.SnipeService, logger *slog.Logger) *SnipeHandler {
	return &SnipeHandler{snipes: snipes, logger: logger}
}

type createSnipeRequest struct {
	SniperID string `json:"sniperId"`
	TargetID string `json:"targetId"`
	GroupID  string `json:"groupId"`
	PhotoRef string `json:"photoRef"`
}

// HandleCreate handles POST /api/snipes.
func (h *SnipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSnipeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	snipe, err := h.snipes.Create(r.Context(), req.SniperID, req.TargetID, req.GroupID, req.PhotoRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snipe)
}

type dodgeRequest struct {
	UserID string `json:"userId"`
}

// HandleDodge handles POST /api/snipes/{id}/dodge.
func (h *SnipeHandler) HandleDodge(w http.ResponseWriter, r *http.Request) {
	var req dodgeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	snipe, err := h.snipes.Dodge(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snipe)
}

// HandleResolve handles POST /api/snipes/{id}/resolve. Clients call this when
// their local countdown runs out; the janitor sweep catches anything they
// miss.
func (h *SnipeHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	snipe, err := h.snipes.ResolveExpired(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snipe)
}

// HandlePending handles GET /api/snipes/pending?targetId=.
func (h *SnipeHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	snipes, err := h.snipes.PendingForTarget(r.Context(), r.URL.Query().Get("targetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if snipes == nil {
		snipes = []model.Snipe{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snipes": snipes})
}
