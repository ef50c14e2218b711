package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipetag/internal/service"
)

// UserHandler serves player accounts and their powerup state.
type UserHandler struct {
	users    *service.UserService
	powerups *service.PowerupEngine
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, powerups *service.PowerupEngine, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, powerups: powerups, logger: logger}
}

type createUserRequest struct {
	Name string `json:"name"`
}

// HandleCreate handles POST /api/users.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleGet handles GET /api/users/{id}.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandlePowerups handles GET /api/users/{id}/powerups.
func (h *UserHandler) HandlePowerups(w http.ResponseWriter, r *http.Request) {
	active, err := h.powerups.ActiveFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activePowerups": active})
}
