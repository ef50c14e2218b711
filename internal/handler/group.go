package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipetag/internal/service"
)

// GroupHandler serves groups, membership, and the accusation protocol.
type GroupHandler struct {
	groups *service.GroupService
	logger *slog.Logger
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(groups *service.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

type createGroupRequest struct {
	Name      string `json:"name"`
	CreatorID string `json:"creatorId"`
}

// HandleCreate handles POST /api/groups.
func (h *GroupHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := h.groups.Create(r.Context(), req.Name, req.CreatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

type joinGroupRequest struct {
	InviteCode string `json:"inviteCode"`
	UserID     string `json:"userId"`
}

// HandleJoin handles POST /api/groups/join.
func (h *GroupHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := h.groups.Join(r.Context(), req.InviteCode, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

type memberRequest struct {
	UserID string `json:"userId"`
}

// HandleLeave handles POST /api/groups/{id}/leave.
func (h *GroupHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.groups.Leave(r.Context(), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet handles GET /api/groups/{id}.
func (h *GroupHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	group, err := h.groups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// HandleUserGroups handles GET /api/users/{id}/groups.
func (h *GroupHandler) HandleUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.UserGroups(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

type accuseRequest struct {
	AccuserID string `json:"accuserId"`
	AccusedID string `json:"accusedId"`
}

// HandleAccuse handles POST /api/groups/{id}/accuse.
func (h *GroupHandler) HandleAccuse(w http.ResponseWriter, r *http.Request) {
	var req accuseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.groups.Accuse(r.Context(), chi.URLParam(r, "id"), req.AccuserID, req.AccusedID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type voteRequest struct {
	VoterID string `json:"voterId"`
	Vote    bool   `json:"vote"`
}

// HandleVote handles POST /api/groups/{id}/vote.
func (h *GroupHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.groups.Vote(r.Context(), chi.URLParam(r, "id"), req.VoterID, req.Vote); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
