package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipetag/internal/catalog"
	"github.com/sakif/snipetag/internal/service"
)

// StoreHandler serves the catalog and the purchase/use/inventory endpoints.
type StoreHandler struct {
	store   *service.StoreService
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewStoreHandler creates a StoreHandler.
func NewStoreHandler(store *service.StoreService, cat *catalog.Catalog, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{store: store, catalog: cat, logger: logger}
}

// HandleCatalog handles GET /api/store/items.
func (h *StoreHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": h.catalog.Items()})
}

type itemRequest struct {
	ItemID string `json:"itemId"`
}

// HandlePurchase handles POST /api/users/{id}/purchase.
func (h *StoreHandler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.store.Purchase(r.Context(), chi.URLParam(r, "id"), req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUse handles POST /api/users/{id}/use.
func (h *StoreHandler) HandleUse(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.store.Use(r.Context(), chi.URLParam(r, "id"), req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleResetLogo handles POST /api/users/{id}/logo/reset.
func (h *StoreHandler) HandleResetLogo(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.ResetLogo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleInventory handles GET /api/users/{id}/inventory.
func (h *StoreHandler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	points, items, err := h.store.Inventory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"points":    points,
		"inventory": items,
	})
}
