package service

import (
	"context"
	"errors"
	"path/filepath"
	"starterlock/internal/audit"
	"starterlock/internal/bridge"
	"starterlock/internal/clock"
	"starterlock/internal/config"
	"starterlock/internal/database"
	"starterlock/internal/db"
	"starterlock/internal/domain"
	"starterlock/internal/repository"
	"starterlock/internal/state"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type starterHost struct {
	mu       sync.Mutex
	selected map[uuid.UUID]bool
	requests []uuid.UUID
}

func (h *starterHost) SetStarterSelected(id uuid.UUID, selected bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selected[id] = selected
	return nil
}

func (h *starterHost) RequestStarterSelection(id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, id)
	return nil
}

type onlinePlayer struct {
	id   uuid.UUID
	name string
}

func (p onlinePlayer) UUID() uuid.UUID { return p.id }
func (p onlinePlayer) Name() string    { return p.name }

// world stands in for both the executor and the session registry.
type world struct {
	mu       sync.Mutex
	players  map[uuid.UUID]onlinePlayer
	passes   int
	messages map[uuid.UUID][]string
}

func (w *world) join(name string) domain.PlayerIdentity {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := onlinePlayer{id: uuid.New(), name: name}
	w.players[p.id] = p
	return domain.PlayerIdentity{ID: p.id, Name: name}
}

func (w *world) Exec(id uuid.UUID, fn func(p bridge.Player)) bool {
	w.mu.Lock()
	p, ok := w.players[id]
	if ok {
		w.passes++
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	fn(p)
	return true
}

func (w *world) Online() []domain.PlayerIdentity {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.PlayerIdentity, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, domain.PlayerIdentity{ID: p.id, Name: p.name})
	}
	return out
}

func (w *world) Lookup(name string) (domain.PlayerIdentity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.players {
		if strings.EqualFold(p.name, name) {
			return domain.PlayerIdentity{ID: p.id, Name: p.name}, true
		}
	}
	return domain.PlayerIdentity{}, false
}

func (w *world) Notify(id uuid.UUID, message string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.players[id]; !ok {
		return false
	}
	w.messages[id] = append(w.messages[id], message)
	return true
}

type reloader struct {
	calls int
	err   error
}

func (r *reloader) Reload() error {
	r.calls++
	return r.err
}

type AdminServiceSuite struct {
	suite.Suite
	ctx      context.Context
	actions  *repository.ActionLogRepository
	players  *repository.PlayerRepository
	cache    *state.Cache
	host     *starterHost
	world    *world
	reloader *reloader
	audit    *audit.Log
	svc      *AdminService
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	cfg := &config.Config{
		DB: config.DBConfig{
			Driver:      config.DriverSQLite,
			Path:        filepath.Join(s.T().TempDir(), "starter.db"),
			PoolMaxSize: 1,
			ConnTimeout: 5 * time.Second,
		},
		Starter: config.StarterConfig{BlockEnabled: true, AutoLockNewPlayers: false},
	}

	sqlDB, err := database.New(cfg, zerolog.Nop())
	s.Require().NoError(err)
	s.T().Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB)
	s.ctx = context.Background()
	s.players = repository.NewPlayerRepository(sqlDB, queries, database.DialectFor(cfg), zerolog.Nop())
	s.actions = repository.NewActionLogRepository(queries, zerolog.Nop())

	clk := clock.NewMock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	policy := config.NewPolicy(cfg, zerolog.Nop())

	s.cache = state.New(s.players, s.actions, nil, policy, clk, state.Options{Duration: time.Minute, MaxSize: 100}, zerolog.Nop())
	s.host = &starterHost{selected: make(map[uuid.UUID]bool)}
	s.world = &world{players: make(map[uuid.UUID]onlinePlayer), messages: make(map[uuid.UUID][]string)}
	s.reloader = &reloader{}
	s.audit = audit.New(s.T().TempDir(), clk, zerolog.Nop())

	reconciler := bridge.NewReconciler(bridge.Detect(s.host, zerolog.Nop()), s.cache, policy, s.world, nil, bridge.Options{}, zerolog.Nop())
	s.svc = NewAdminService(s.cache, reconciler, s.world, s.reloader, s.audit, zerolog.Nop())
}

func (s *AdminServiceSuite) joined(name string) domain.PlayerIdentity {
	who := s.world.join(name)
	_, err := s.cache.GetOrCreate(s.ctx, who)
	s.Require().NoError(err)
	return who
}

func (s *AdminServiceSuite) TestLockOnlinePlayer() {
	who := s.joined("Steve")

	record, err := s.svc.Lock(s.ctx, Console, "steve", "griefing")

	s.Require().NoError(err)
	s.True(record.Locked)
	s.Equal("griefing", record.LockReason)
	s.True(s.host.selected[who.ID])
	s.Equal(1, s.world.passes)
	s.Len(s.world.messages[who.ID], 1)

	count, err := s.actions.Count(s.ctx, who.ID, domain.ActionLock)
	s.Require().NoError(err)
	s.Equal(1, count)

	stored, err := s.players.Get(s.ctx, who.ID)
	s.Require().NoError(err)
	s.True(stored.Locked)
}

func (s *AdminServiceSuite) TestUnlockPromptsSelection() {
	who := s.joined("Steve")
	_, err := s.svc.Lock(s.ctx, Console, "Steve", "")
	s.Require().NoError(err)

	record, err := s.svc.Unlock(s.ctx, Console, "Steve")

	s.Require().NoError(err)
	s.False(record.Locked)
	s.False(s.host.selected[who.ID])
	s.Equal([]uuid.UUID{who.ID}, s.host.requests)

	count, err := s.actions.Count(s.ctx, who.ID, domain.ActionUnlock)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *AdminServiceSuite) TestLockOfflinePlayerByName() {
	who := s.joined("Alex")
	s.world.mu.Lock()
	delete(s.world.players, who.ID)
	s.world.mu.Unlock()

	status, err := s.svc.Status(s.ctx, "ALEX")
	s.Require().NoError(err)
	s.False(status.Online)

	record, err := s.svc.Lock(s.ctx, Console, "alex", "")
	s.Require().NoError(err)
	s.True(record.Locked)
	s.Zero(s.world.passes)
}

func (s *AdminServiceSuite) TestUnknownPlayer() {
	_, err := s.svc.Lock(s.ctx, Console, "ghost", "")
	s.True(errors.Is(err, ErrPlayerNotFound))

	_, err = s.svc.Status(s.ctx, "ghost")
	s.True(errors.Is(err, ErrPlayerNotFound))
}

func (s *AdminServiceSuite) TestLockAllCountsOnlinePlayers() {
	a := s.joined("A")
	b := s.joined("B")

	result, err := s.svc.LockAll(s.ctx, Console, "event")

	s.Require().NoError(err)
	s.Equal(BulkResult{Total: 2, Succeeded: 2}, result)
	s.True(s.host.selected[a.ID])
	s.True(s.host.selected[b.ID])

	result, err = s.svc.UnlockAll(s.ctx, Console)
	s.Require().NoError(err)
	s.Equal(2, result.Succeeded)
	s.False(s.cache.IsLocked(s.ctx, a.ID))
}

func (s *AdminServiceSuite) TestLockAllSkipsUnknownOnlinePlayer() {
	s.joined("A")
	s.world.join("NotLoaded")

	result, err := s.svc.LockAll(s.ctx, Console, "")

	s.Require().NoError(err)
	s.Equal(BulkResult{Total: 2, Succeeded: 1}, result)
}

func (s *AdminServiceSuite) TestSelectedPlayerNotBlocked() {
	who := s.joined("Steve")
	_, err := s.cache.MarkSelected(s.ctx, who.ID)
	s.Require().NoError(err)

	_, err = s.svc.Lock(s.ctx, Console, "Steve", "")
	s.Require().NoError(err)

	_, pushed := s.host.selected[who.ID]
	s.False(pushed)
}

func (s *AdminServiceSuite) TestReloadRecordsAudit() {
	s.Require().NoError(s.svc.Reload(s.ctx, Console))
	s.Equal(1, s.reloader.calls)
	s.Equal(1, s.audit.Pending())

	s.reloader.err = errors.New("bad env")
	s.Error(s.svc.Reload(s.ctx, Console))
	s.Equal(1, s.audit.Pending())
}

func (s *AdminServiceSuite) TestListAndFlush() {
	s.joined("A")
	s.joined("B")
	s.joined("C")

	page, err := s.svc.List(s.ctx, 2, 0)
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Len(page.Players, 2)

	result := s.svc.Flush(s.ctx)
	s.Zero(result.Failed)
}
