package bridge

import (
	"context"
	"errors"
	"starterlock/internal/domain"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlayer struct {
	id   uuid.UUID
	name string
}

func (p *testPlayer) UUID() uuid.UUID { return p.id }
func (p *testPlayer) Name() string    { return p.name }

type call struct {
	id       uuid.UUID
	selected bool
}

type typedHost struct {
	mu       sync.Mutex
	sets     []call
	requests []uuid.UUID
	chosen   func(uuid.UUID)
	synced   func(uuid.UUID)
}

func (h *typedHost) SetStarterSelected(id uuid.UUID, selected bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets = append(h.sets, call{id: id, selected: selected})
	return nil
}

func (h *typedHost) RequestStarterSelection(id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, id)
	return nil
}

func (h *typedHost) OnStarterChosen(fn func(uuid.UUID))    { h.chosen = fn }
func (h *typedHost) OnDataSynchronized(fn func(uuid.UUID)) { h.synced = fn }

type fakeCache struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*domain.PlayerRecord
	autoLock bool
	marked   []uuid.UUID
}

func newFakeCache() *fakeCache {
	return &fakeCache{records: make(map[uuid.UUID]*domain.PlayerRecord), autoLock: true}
}

func (c *fakeCache) Get(_ context.Context, id uuid.UUID) (*domain.PlayerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[id]; ok {
		return r.Clone(), nil
	}
	return nil, nil
}

func (c *fakeCache) Peek(id uuid.UUID) (*domain.PlayerRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (c *fakeCache) IsLocked(ctx context.Context, id uuid.UUID) bool {
	r, _ := c.Get(ctx, id)
	if r == nil {
		return c.autoLock
	}
	return r.Locked
}

func (c *fakeCache) MarkSelected(_ context.Context, id uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marked = append(c.marked, id)
	r, ok := c.records[id]
	if !ok {
		return false, domain.ErrPlayerNotFound
	}
	return r.MarkSelected(time.Now()), nil
}

type fakePolicy struct {
	blockEnabled bool
	bypass       map[uuid.UUID]bool
}

func (p *fakePolicy) BlockEnabled() bool                    { return p.blockEnabled }
func (p *fakePolicy) HasBypass(id uuid.UUID, _ string) bool { return p.bypass[id] }

// fakeExecutor runs fn in place, like a world transaction. Calling Exec
// from inside fn would deadlock dragonfly, so it is recorded as reentry.
type fakeExecutor struct {
	online  map[uuid.UUID]Player
	passes  int
	inTx    bool
	reentry int
}

func (e *fakeExecutor) Exec(id uuid.UUID, fn func(p Player)) bool {
	if e.inTx {
		e.reentry++
		return false
	}
	p, ok := e.online[id]
	if !ok {
		return false
	}
	e.passes++
	e.inTx = true
	defer func() { e.inTx = false }()
	fn(p)
	return true
}

type recordingDispatcher struct {
	jobs []func(ctx context.Context)
}

func (d *recordingDispatcher) Submit(_ string, fn func(ctx context.Context)) bool {
	d.jobs = append(d.jobs, fn)
	return true
}

type reconcilerFixture struct {
	host     *typedHost
	cache    *fakeCache
	policy   *fakePolicy
	executor *fakeExecutor
	rec      *Reconciler
	player   *testPlayer
}

func newFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	f := &reconcilerFixture{
		host:     &typedHost{},
		cache:    newFakeCache(),
		policy:   &fakePolicy{blockEnabled: true, bypass: map[uuid.UUID]bool{}},
		executor: &fakeExecutor{online: map[uuid.UUID]Player{}},
		player:   &testPlayer{id: uuid.New(), name: "Ash"},
	}
	f.executor.online[f.player.id] = f.player

	adapter := Detect(f.host, zerolog.Nop())
	require.Equal(t, "typed", adapter.Name())

	f.rec = NewReconciler(adapter, f.cache, f.policy, f.executor, nil, Options{SettleDelay: time.Second}, zerolog.Nop())
	f.rec.after = func(_ time.Duration, fn func()) { fn() }
	return f
}

func (f *reconcilerFixture) record(locked, selected bool) {
	r := domain.NewPlayerRecord(f.player.id, f.player.name, locked, time.Now())
	r.Selected = selected
	f.cache.records[f.player.id] = r
}

func TestDetect(t *testing.T) {
	logger := zerolog.Nop()

	assert.Equal(t, "noop", Detect(nil, logger).Name())
	assert.Equal(t, "typed", Detect(&typedHost{}, logger).Name())
	assert.Equal(t, "reflect", Detect(&directHost{}, logger).Name())
	assert.Equal(t, "reflect", Detect(&accessorHost{data: map[uuid.UUID]*starterData{}}, logger).Name())
	assert.Equal(t, "noop", Detect(struct{ Name string }{"x"}, logger).Name())
}

func TestNoopAdapterIsUnsupported(t *testing.T) {
	a := NewNoop()
	p := &testPlayer{id: uuid.New()}

	assert.ErrorIs(t, a.SetSelectionBlocked(p, true), ErrUnsupported)
	assert.ErrorIs(t, a.RequestSelection(p), ErrUnsupported)
	assert.ErrorIs(t, a.Subscribe(Hooks{}), ErrUnsupported)
}

func TestOnJoinBlocksLockedPlayer(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)

	f.rec.OnJoin(f.player)

	require.Len(t, f.host.sets, 1)
	assert.Equal(t, call{id: f.player.id, selected: true}, f.host.sets[0])
	assert.Empty(t, f.host.requests)
}

func TestOnJoinAllowsUnlockedPlayer(t *testing.T) {
	f := newFixture(t)
	f.record(false, false)

	f.rec.OnJoin(f.player)

	require.Len(t, f.host.sets, 1)
	assert.False(t, f.host.sets[0].selected)
	assert.Empty(t, f.host.requests)
}

func TestOnJoinUsesDefaultForUnknownPlayer(t *testing.T) {
	f := newFixture(t)

	f.rec.OnJoin(f.player)

	require.Len(t, f.host.sets, 1)
	assert.True(t, f.host.sets[0].selected)
}

func TestOnJoinLeavesSelectedPlayerAlone(t *testing.T) {
	f := newFixture(t)
	f.record(true, true)

	f.rec.OnJoin(f.player)

	assert.Empty(t, f.host.sets)
}

func TestOnJoinSkipsPlayerWhoLeft(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)
	delete(f.executor.online, f.player.id)

	f.rec.OnJoin(f.player)

	assert.Empty(t, f.host.sets)
}

func TestBypassNeverBlocks(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)
	f.policy.bypass[f.player.id] = true

	f.rec.OnJoin(f.player)
	f.rec.LockPlayer(context.Background(), f.player.id)

	assert.Empty(t, f.host.sets)
}

func TestDisabledBlockingPushesNothing(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)
	f.policy.blockEnabled = false

	f.rec.OnJoin(f.player)
	f.rec.LockPlayer(context.Background(), f.player.id)
	f.rec.UnlockPlayer(context.Background(), f.player.id)

	assert.Empty(t, f.host.sets)
	assert.Empty(t, f.host.requests)
}

func TestLockAndUnlockPlayer(t *testing.T) {
	f := newFixture(t)
	f.record(false, false)
	ctx := context.Background()

	var blocked []string
	f.rec.OnBlocked(func(p Player) { blocked = append(blocked, p.Name()) })

	f.rec.LockPlayer(ctx, f.player.id)
	f.rec.UnlockPlayer(ctx, f.player.id)

	require.Len(t, f.host.sets, 2)
	assert.True(t, f.host.sets[0].selected)
	assert.False(t, f.host.sets[1].selected)
	assert.Equal(t, []uuid.UUID{f.player.id}, f.host.requests)
	assert.Equal(t, []string{"Ash"}, blocked)
	assert.Equal(t, 2, f.executor.passes)
}

func TestSelectionCompletedMarksSelected(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)
	f.rec.Start()

	require.NotNil(t, f.host.chosen)
	f.host.chosen(f.player.id)

	assert.Equal(t, []uuid.UUID{f.player.id}, f.cache.marked)
	assert.True(t, f.cache.records[f.player.id].Selected)

	f.rec.LockPlayer(context.Background(), f.player.id)
	assert.Empty(t, f.host.sets)
}

func TestDataSynchronizedPushesImmediately(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)
	f.rec.Start()

	require.NotNil(t, f.host.synced)
	f.host.synced(f.player.id)

	require.Len(t, f.host.sets, 1)
	assert.True(t, f.host.sets[0].selected)
	assert.Zero(t, f.executor.passes)
}

func TestDataSynchronizedInsideWorldTransaction(t *testing.T) {
	f := newFixture(t)
	f.record(true, false)
	f.rec.Start()

	f.executor.Exec(f.player.id, func(p Player) {
		f.host.synced(p.UUID())
	})

	assert.Zero(t, f.executor.reentry)
	require.Len(t, f.host.sets, 1)
	assert.True(t, f.host.sets[0].selected)
}

func TestDataSynchronizedCacheMissGoesToWorker(t *testing.T) {
	f := newFixture(t)
	d := &recordingDispatcher{}
	f.rec.dispatcher = d
	f.rec.Start()

	f.executor.Exec(f.player.id, func(p Player) {
		f.host.synced(p.UUID())
	})

	assert.Zero(t, f.executor.reentry)
	assert.Empty(t, f.host.sets)
	require.Len(t, d.jobs, 1)

	d.jobs[0](context.Background())
	require.Len(t, f.host.sets, 1)
	assert.True(t, f.host.sets[0].selected)
}

func TestDataSynchronizedCacheMissWithoutWorker(t *testing.T) {
	f := newFixture(t)
	f.rec.Start()

	f.executor.Exec(f.player.id, func(p Player) {
		f.host.synced(p.UUID())
	})

	assert.Zero(t, f.executor.reentry)
	assert.Empty(t, f.host.sets)
}

func TestDataSynchronizedLeavesSelectedPlayerAlone(t *testing.T) {
	f := newFixture(t)
	f.record(true, true)

	f.rec.DataSynchronized(f.player)

	assert.Empty(t, f.host.sets)
}

// directHost exposes the setter on itself and takes the player object.
type directHost struct {
	selected map[uuid.UUID]bool
	prompted []string
}

func (h *directHost) SetStarterSelected(p Player, selected bool) {
	if h.selected == nil {
		h.selected = map[uuid.UUID]bool{}
	}
	h.selected[p.UUID()] = selected
}

func (h *directHost) PromptStarterSelection(id string) error {
	if id == "" {
		return errors.New("empty id")
	}
	h.prompted = append(h.prompted, id)
	return nil
}

type starterData struct {
	chosen bool
}

func (d *starterData) SetSelectedStarter(v bool) { d.chosen = v }

type chosenEvent struct {
	player *testPlayer
}

func (e chosenEvent) UUID() uuid.UUID { return e.player.id }

// accessorHost hands out per-player data objects and event subscriptions.
type accessorHost struct {
	data   map[uuid.UUID]*starterData
	chosen func(chosenEvent) bool
	synced func(string)
}

func (h *accessorHost) GenericData(id uuid.UUID) *starterData { return h.data[id] }

func (h *accessorHost) SubscribeStarterChosen(fn func(chosenEvent) bool) { h.chosen = fn }

func (h *accessorHost) OnDataSynchronized(fn func(string)) { h.synced = fn }

func TestReflectAdapterDirectSetter(t *testing.T) {
	host := &directHost{}
	a := Detect(host, zerolog.Nop())
	p := &testPlayer{id: uuid.New(), name: "Brock"}

	require.NoError(t, a.SetSelectionBlocked(p, true))
	assert.True(t, host.selected[p.id])

	require.NoError(t, a.RequestSelection(p))
	assert.Equal(t, []string{p.id.String()}, host.prompted)

	assert.ErrorIs(t, a.Subscribe(Hooks{SelectionCompleted: func(uuid.UUID) {}}), ErrUnsupported)
}

func TestReflectAdapterDataAccessor(t *testing.T) {
	p := &testPlayer{id: uuid.New(), name: "Misty"}
	host := &accessorHost{data: map[uuid.UUID]*starterData{p.id: {}}}
	a := Detect(host, zerolog.Nop())

	require.NoError(t, a.SetSelectionBlocked(p, true))
	assert.True(t, host.data[p.id].chosen)
	require.NoError(t, a.SetSelectionBlocked(p, false))
	assert.False(t, host.data[p.id].chosen)

	missing := &testPlayer{id: uuid.New()}
	assert.ErrorIs(t, a.SetSelectionBlocked(missing, true), ErrUnsupported)

	assert.ErrorIs(t, a.RequestSelection(p), ErrUnsupported)
}

func TestReflectAdapterHooks(t *testing.T) {
	p := &testPlayer{id: uuid.New(), name: "Misty"}
	host := &accessorHost{data: map[uuid.UUID]*starterData{}}
	a := Detect(host, zerolog.Nop())

	var chosen, synced []uuid.UUID
	require.NoError(t, a.Subscribe(Hooks{
		SelectionCompleted: func(id uuid.UUID) { chosen = append(chosen, id) },
		DataSynchronized:   func(p Player) { synced = append(synced, p.UUID()) },
	}))

	require.NotNil(t, host.chosen)
	require.NotNil(t, host.synced)

	assert.False(t, host.chosen(chosenEvent{player: p}))
	host.synced(p.id.String())
	host.synced("not-a-uuid")

	assert.Equal(t, []uuid.UUID{p.id}, chosen)
	assert.Equal(t, []uuid.UUID{p.id}, synced)
}

// playerHost passes the live player to its sync callback.
type playerHost struct {
	directHost
	synced func(Player)
}

func (h *playerHost) OnDataSynchronized(fn func(Player)) { h.synced = fn }

func TestReflectAdapterPassesLivePlayer(t *testing.T) {
	host := &playerHost{}
	a := Detect(host, zerolog.Nop())
	p := &testPlayer{id: uuid.New(), name: "Brock"}

	var got Player
	require.NoError(t, a.Subscribe(Hooks{DataSynchronized: func(pl Player) { got = pl }}))
	require.NotNil(t, host.synced)

	host.synced(p)
	assert.Same(t, p, got)
}

type panickyHost struct{}

func (panickyHost) SetStarterSelected(id uuid.UUID, _ bool) {
	panic("boom")
}

func TestReflectAdapterRecoversPanics(t *testing.T) {
	a := Detect(panickyHost{}, zerolog.Nop())
	require.Equal(t, "reflect", a.Name())

	err := a.SetSelectionBlocked(&testPlayer{id: uuid.New()}, true)
	assert.Error(t, err)
}
