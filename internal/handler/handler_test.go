package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/snipetag/internal/catalog"
	"github.com/sakif/snipetag/internal/handler"
	"github.com/sakif/snipetag/internal/ledger"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
	sqliteRepo "github.com/sakif/snipetag/internal/repository/sqlite"
	"github.com/sakif/snipetag/internal/service"
)

// harness wires the handlers over a real sqlite store, the same way the
// server package does, and keeps the repositories reachable for seeding.
type harness struct {
	router *chi.Mux
	users  *sqliteRepo.Users
	groups *sqliteRepo.Groups
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := db.Users()
	groups := db.Groups()
	snipes := db.Snipes()
	bus := notify.NewBus()
	cat := catalog.Default()

	lgr := ledger.New(users, groups, bus, logger)
	lgr.Start()
	t.Cleanup(lgr.Stop)

	powerups := service.NewPowerupEngine(users, cat, logger)
	userHandler := handler.NewUserHandler(service.NewUserService(users, bus, logger), powerups, logger)
	storeHandler := handler.NewStoreHandler(service.NewStoreService(users, cat, lgr, bus, logger), cat, logger)
	groupHandler := handler.NewGroupHandler(service.NewGroupService(groups, users, lgr, bus, logger), logger)
	snipeHandler := handler.NewSnipeHandler(service.NewSnipeService(snipes, groups, powerups, lgr, bus, logger), logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Post("/users", userHandler.HandleCreate)
		r.Get("/users/{id}", userHandler.HandleGet)
		r.Get("/users/{id}/powerups", userHandler.HandlePowerups)
		r.Get("/users/{id}/groups", groupHandler.HandleUserGroups)

		r.Get("/store/items", storeHandler.HandleCatalog)
		r.Post("/users/{id}/purchase", storeHandler.HandlePurchase)
		r.Post("/users/{id}/use", storeHandler.HandleUse)
		r.Post("/users/{id}/logo/reset", storeHandler.HandleResetLogo)
		r.Get("/users/{id}/inventory", storeHandler.HandleInventory)

		r.Post("/groups", groupHandler.HandleCreate)
		r.Post("/groups/join", groupHandler.HandleJoin)
		r.Get("/groups/{id}", groupHandler.HandleGet)
		r.Post("/groups/{id}/leave", groupHandler.HandleLeave)
		r.Post("/groups/{id}/accuse", groupHandler.HandleAccuse)
		r.Post("/groups/{id}/vote", groupHandler.HandleVote)

		r.Post("/snipes", snipeHandler.HandleCreate)
		r.Get("/snipes/pending", snipeHandler.HandlePending)
		r.Post("/snipes/{id}/dodge", snipeHandler.HandleDodge)
		r.Post("/snipes/{id}/resolve", snipeHandler.HandleResolve)
	})

	return &harness{router: router, users: users, groups: groups}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

// seedUser creates a player and optionally tops up the balance.
func (h *harness) seedUser(t *testing.T, name string, points int) *model.User {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/users", map[string]string{"name": name})
	assert.Equal(t, http.StatusCreated, rr.Code)

	var user model.User
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))

	if points != 0 {
		_, err := h.users.Mutate(context.Background(), user.ID, func(u *model.User) error {
			u.Points = points
			return nil
		})
		assert.NoError(t, err)
		user.Points = points
	}
	return &user
}

func TestUserEndpoints(t *testing.T) {
	h := newHarness(t)

	t.Run("create and fetch", func(t *testing.T) {
		user := h.seedUser(t, "Alice", 0)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "Alice", user.Name)
		assert.Equal(t, model.DefaultLogoID, user.ActiveLogoID)

		rr := h.do(t, http.MethodGet, "/api/users/"+user.ID, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/users", map[string]string{"name": "  "})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var res handler.ErrorResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "validation_error", res.Error)
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/users/nope", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(`{"name":`))
		rr := httptest.NewRecorder()
		h.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestStoreEndpoints(t *testing.T) {
	h := newHarness(t)

	t.Run("catalog", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/store/items", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var res struct {
			Items []model.CatalogItem `json:"items"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.NotEmpty(t, res.Items)
	})

	t.Run("purchase logo then inventory", func(t *testing.T) {
		user := h.seedUser(t, "Buyer", 100)

		rr := h.do(t, http.MethodPost, "/api/users/"+user.ID+"/purchase", map[string]string{"itemId": "logo_skull"})
		assert.Equal(t, http.StatusOK, rr.Code)

		var updated model.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&updated))
		assert.Equal(t, 70, updated.Points)
		assert.Equal(t, "logo_skull", updated.ActiveLogoID)

		rr = h.do(t, http.MethodGet, "/api/users/"+user.ID+"/inventory", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var inv struct {
			Points    int                   `json:"points"`
			Inventory []model.InventoryItem `json:"inventory"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&inv))
		assert.Equal(t, 70, inv.Points)
		assert.Len(t, inv.Inventory, 1)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		user := h.seedUser(t, "Broke", 0)

		rr := h.do(t, http.MethodPost, "/api/users/"+user.ID+"/purchase", map[string]string{"itemId": "logo_skull"})
		assert.Equal(t, http.StatusPaymentRequired, rr.Code)

		var res handler.ErrorResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "insufficient_funds", res.Error)
	})

	t.Run("use powerup and reset logo", func(t *testing.T) {
		user := h.seedUser(t, "Gadget", 1000)

		rr := h.do(t, http.MethodPost, "/api/users/"+user.ID+"/purchase", map[string]string{"itemId": "powerup_shield"})
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = h.do(t, http.MethodPost, "/api/users/"+user.ID+"/use", map[string]string{"itemId": "powerup_shield"})
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = h.do(t, http.MethodGet, "/api/users/"+user.ID+"/powerups", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		var res struct {
			ActivePowerups []model.ActivePowerup `json:"activePowerups"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Len(t, res.ActivePowerups, 1)
		assert.Equal(t, model.PowerupShield, res.ActivePowerups[0].Type)

		rr = h.do(t, http.MethodPost, "/api/users/"+user.ID+"/logo/reset", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestGroupEndpoints(t *testing.T) {
	h := newHarness(t)
	alice := h.seedUser(t, "Alice", 0)
	bob := h.seedUser(t, "Bob", 0)
	carol := h.seedUser(t, "Carol", 5)

	// Alice creates; the others join by invite code.
	rr := h.do(t, http.MethodPost, "/api/groups", map[string]string{"name": "Office", "creatorId": alice.ID})
	assert.Equal(t, http.StatusCreated, rr.Code)
	var group model.Group
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&group))
	assert.NotEmpty(t, group.InviteCode)

	for _, u := range []*model.User{bob, carol} {
		rr = h.do(t, http.MethodPost, "/api/groups/join", map[string]string{"inviteCode": group.InviteCode, "userId": u.ID})
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	t.Run("bad invite code", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/groups/join", map[string]string{"inviteCode": "ZZZZZZ", "userId": bob.ID})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("user groups listing", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/users/"+bob.ID+"/groups", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		var res struct {
			Groups []model.Group `json:"groups"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Len(t, res.Groups, 1)
	})

	t.Run("accusation lifecycle", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/groups/"+group.ID+"/accuse",
			map[string]string{"accuserId": alice.ID, "accusedId": carol.ID})
		assert.Equal(t, http.StatusNoContent, rr.Code)

		// Second accusation is blocked while the slot is taken.
		rr = h.do(t, http.MethodPost, "/api/groups/"+group.ID+"/accuse",
			map[string]string{"accuserId": bob.ID, "accusedId": alice.ID})
		assert.Equal(t, http.StatusConflict, rr.Code)

		// The accused cannot vote.
		rr = h.do(t, http.MethodPost, "/api/groups/"+group.ID+"/vote",
			map[string]interface{}{"voterId": carol.ID, "vote": false})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		// Bob's guilty vote completes the unanimous verdict.
		rr = h.do(t, http.MethodPost, "/api/groups/"+group.ID+"/vote",
			map[string]interface{}{"voterId": bob.ID, "vote": true})
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = h.do(t, http.MethodGet, "/api/users/"+carol.ID, nil)
		var convicted model.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&convicted))
		assert.Equal(t, 4, convicted.Points)

		rr = h.do(t, http.MethodGet, "/api/groups/"+group.ID, nil)
		var after model.Group
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&after))
		assert.Nil(t, after.ActiveAccusation)
	})

	t.Run("leave", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/groups/"+group.ID+"/leave", map[string]string{"userId": carol.ID})
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = h.do(t, http.MethodPost, "/api/groups/"+group.ID+"/leave", map[string]string{"userId": carol.ID})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestSnipeEndpoints(t *testing.T) {
	h := newHarness(t)
	sniper := h.seedUser(t, "Sniper", 0)
	target := h.seedUser(t, "Target", 0)

	rr := h.do(t, http.MethodPost, "/api/groups", map[string]string{"name": "Arena", "creatorId": sniper.ID})
	assert.Equal(t, http.StatusCreated, rr.Code)
	var group model.Group
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&group))
	rr = h.do(t, http.MethodPost, "/api/groups/join", map[string]string{"inviteCode": group.InviteCode, "userId": target.ID})
	assert.Equal(t, http.StatusOK, rr.Code)

	t.Run("create dodge and repeat-dodge", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/snipes", map[string]string{
			"sniperId": sniper.ID, "targetId": target.ID, "groupId": group.ID, "photoRef": "p1",
		})
		assert.Equal(t, http.StatusCreated, rr.Code)
		var snipe model.Snipe
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&snipe))
		assert.Equal(t, model.SnipePending, snipe.Status)
		assert.Equal(t, 1, snipe.Points)

		// Listed while pending.
		rr = h.do(t, http.MethodGet, "/api/snipes/pending?targetId="+target.ID, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		var pending struct {
			Snipes []model.Snipe `json:"snipes"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&pending))
		assert.Len(t, pending.Snipes, 1)

		// Only the target may dodge.
		rr = h.do(t, http.MethodPost, "/api/snipes/"+snipe.ID+"/dodge", map[string]string{"userId": sniper.ID})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = h.do(t, http.MethodPost, "/api/snipes/"+snipe.ID+"/dodge", map[string]string{"userId": target.ID})
		assert.Equal(t, http.StatusOK, rr.Code)
		var dodged model.Snipe
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&dodged))
		assert.Equal(t, model.SnipeDodged, dodged.Status)

		rr = h.do(t, http.MethodPost, "/api/snipes/"+snipe.ID+"/dodge", map[string]string{"userId": target.ID})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("resolve while window open", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/snipes", map[string]string{
			"sniperId": sniper.ID, "targetId": target.ID, "groupId": group.ID,
		})
		assert.Equal(t, http.StatusCreated, rr.Code)
		var snipe model.Snipe
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&snipe))

		rr = h.do(t, http.MethodPost, "/api/snipes/"+snipe.ID+"/resolve", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("self snipe", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/api/snipes", map[string]string{
			"sniperId": sniper.ID, "targetId": sniper.ID, "groupId": group.ID,
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
