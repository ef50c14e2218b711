package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/catalog"
	"github.com/sakif/snipetag/internal/ledger"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
)

// In-memory repository fakes. They guard every record behind one mutex so
// Mutate is genuinely atomic — the concurrency tests below depend on the
// fakes honouring the same contract as the sqlite store.

type mockUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := cloneUser(user)
	m.users[user.ID] = stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return cloneUser(u), nil
}

func (m *mockUserRepo) Mutate(_ context.Context, id string, fn func(*model.User) error) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	working := cloneUser(u)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	m.users[id] = working
	return cloneUser(working), nil
}

// seed inserts a user directly, bypassing id generation.
func (m *mockUserRepo) seed(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ActiveLogoID == "" {
		u.ActiveLogoID = model.DefaultLogoID
	}
	m.users[u.ID] = cloneUser(u)
}

type mockGroupRepo struct {
	mu     sync.Mutex
	groups map[string]*model.Group
	nextID int

	// mutateErrs lets tests inject transient failures for the fan-out
	// retry test; each call pops one error.
	mutateErrs []error
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[string]*model.Group)}
}

func (m *mockGroupRepo) Create(_ context.Context, group *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.InviteCode == group.InviteCode {
			return fmt.Errorf("constraint failed: UNIQUE constraint failed: groups.invite_code")
		}
	}
	m.nextID++
	group.ID = fmt.Sprintf("group-%d", m.nextID)
	group.CreatedAt = time.Now()
	m.groups[group.ID] = cloneGroup(group)
	return nil
}

func (m *mockGroupRepo) GetByID(_ context.Context, id string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, apperror.NotFound("group", id)
	}
	return cloneGroup(g), nil
}

func (m *mockGroupRepo) GetByInviteCode(_ context.Context, code string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.InviteCode == code {
			return cloneGroup(g), nil
		}
	}
	return nil, apperror.NotFound("group with invite code", code)
}

func (m *mockGroupRepo) Mutate(_ context.Context, id string, fn func(*model.Group) error) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.mutateErrs) > 0 {
		err := m.mutateErrs[0]
		m.mutateErrs = m.mutateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	g, ok := m.groups[id]
	if !ok {
		return nil, apperror.NotFound("group", id)
	}
	working := cloneGroup(g)
	if err := fn(working); err != nil {
		return nil, err
	}
	m.groups[id] = working
	return cloneGroup(working), nil
}

func (m *mockGroupRepo) seed(g *model.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = cloneGroup(g)
}

type mockSnipeRepo struct {
	mu     sync.Mutex
	snipes map[string]*model.Snipe
	nextID int
}

func newMockSnipeRepo() *mockSnipeRepo {
	return &mockSnipeRepo{snipes: make(map[string]*model.Snipe)}
}

func (m *mockSnipeRepo) Create(_ context.Context, snipe *model.Snipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	snipe.ID = fmt.Sprintf("snipe-%d", m.nextID)
	snipe.Status = model.SnipePending
	if snipe.Timestamp.IsZero() {
		snipe.Timestamp = time.Now()
	}
	stored := *snipe
	m.snipes[snipe.ID] = &stored
	return nil
}

func (m *mockSnipeRepo) GetByID(_ context.Context, id string) (*model.Snipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snipes[id]
	if !ok {
		return nil, apperror.NotFound("snipe", id)
	}
	out := *s
	return &out, nil
}

func (m *mockSnipeRepo) ListPendingForTarget(_ context.Context, targetID string) ([]model.Snipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Snipe
	for _, s := range m.snipes {
		if s.TargetID == targetID && s.Status == model.SnipePending {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSnipeRepo) ListExpiredPending(_ context.Context, cutoff time.Time) ([]model.Snipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Snipe
	for _, s := range m.snipes {
		if s.Status == model.SnipePending && !s.Timestamp.After(cutoff) {
			out = append(out, *s)
		}
	}
	return out, nil
}

// Resolve mirrors the sqlite conditional-update semantics: the transition
// only happens while the snipe is still pending, and losers observe
// ErrAlreadyResolved.
func (m *mockSnipeRepo) Resolve(_ context.Context, id string, status model.SnipeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snipes[id]
	if !ok {
		return apperror.NotFound("snipe", id)
	}
	if s.Status != model.SnipePending {
		return apperror.New(apperror.ErrAlreadyResolved, "snipe %s is already resolved", id)
	}
	s.Status = status
	return nil
}

func cloneUser(u *model.User) *model.User {
	out := *u
	out.Inventory = append([]model.InventoryItem(nil), u.Inventory...)
	out.ActivePowerups = append([]model.ActivePowerup(nil), u.ActivePowerups...)
	out.GroupIDs = append([]string(nil), u.GroupIDs...)
	return &out
}

func cloneGroup(g *model.Group) *model.Group {
	out := *g
	out.Members = append([]model.Member(nil), g.Members...)
	if g.ActiveAccusation != nil {
		a := *g.ActiveAccusation
		a.Votes = make(map[string]bool, len(g.ActiveAccusation.Votes))
		for k, v := range g.ActiveAccusation.Votes {
			a.Votes[k] = v
		}
		out.ActiveAccusation = &a
	}
	return &out
}

// env bundles everything a service test needs. The ledger is the real one
// running over the fakes; tests that care about fan-out poll with
// waitForPoints instead of assuming immediate consistency.
type env struct {
	users   *mockUserRepo
	groups  *mockGroupRepo
	snipes  *mockSnipeRepo
	catalog *catalog.Catalog
	bus     *notify.Bus
	ledger  *ledger.Ledger
	logger  *slog.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		users:   newMockUserRepo(),
		groups:  newMockGroupRepo(),
		snipes:  newMockSnipeRepo(),
		catalog: catalog.Default(),
		bus:     notify.NewBus(),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	e.ledger = ledger.New(e.users, e.groups, e.bus, e.logger)
	e.ledger.Start()
	t.Cleanup(e.ledger.Stop)
	return e
}

func (e *env) powerups() *PowerupEngine {
	return NewPowerupEngine(e.users, e.catalog, e.logger)
}

func (e *env) snipeService() *SnipeService {
	return NewSnipeService(e.snipes, e.groups, e.powerups(), e.ledger, e.bus, e.logger)
}

func (e *env) storeService() *StoreService {
	return NewStoreService(e.users, e.catalog, e.ledger, e.bus, e.logger)
}

func (e *env) groupService() *GroupService {
	return NewGroupService(e.groups, e.users, e.ledger, e.bus, e.logger)
}

// waitForPoints polls until the user's cached points in the group match
// want, or the deadline passes. Fan-out is asynchronous by design, so tests
// observe convergence rather than immediate consistency.
func (e *env) waitForPoints(t *testing.T, groupID, userID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g, err := e.groups.GetByID(context.Background(), groupID)
		if err == nil {
			if idx := g.MemberIndex(userID); idx >= 0 && g.Members[idx].Points == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	g, _ := e.groups.GetByID(context.Background(), groupID)
	t.Fatalf("group %s cache never converged to %d for %s (group: %+v)", groupID, want, userID, g)
}
