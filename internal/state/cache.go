// Package state keeps the in-memory view of every known player and batches
// writes back to the store.
//
// Each identifier maps to a single entry holding the record, the time it was
// cached, a dirty flag and the time of the last successful write. Mutations of
// one player are serialised by a striped lock; the map itself has its own
// RWMutex, held only for short, non-blocking sections.
package state

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"starterlock/internal/clock"
	"starterlock/internal/domain"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var ErrNotFound = domain.ErrPlayerNotFound

const stripeCount = 64

// PlayerStore is the durable side of the cache.
type PlayerStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.PlayerRecord, error)
	GetByName(ctx context.Context, name string) (*domain.PlayerRecord, error)
	Upsert(ctx context.Context, record *domain.PlayerRecord) error
	UpsertBatch(ctx context.Context, records []*domain.PlayerRecord) error
	UpdateLockState(ctx context.Context, id uuid.UUID, locked bool, actor uuid.UUID, reason string, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]*domain.PlayerRecord, error)
	Count(ctx context.Context) (int, error)
}

type ActionLog interface {
	Append(ctx context.Context, entry domain.ActionLogEntry) error
}

// Dispatcher runs fire-and-forget work off the caller's goroutine.
type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

type Policy interface {
	AutoLockNewPlayers() bool
}

// Listener is told about every action that reached the store.
type Listener func(entry domain.ActionLogEntry)

type Options struct {
	Duration time.Duration
	MaxSize  int
}

type Stats struct {
	Entries int `json:"entries"`
	Dirty   int `json:"dirty"`
}

type entry struct {
	record    *domain.PlayerRecord
	cachedAt  time.Time
	dirty     bool
	lastWrite time.Time
}

type Cache struct {
	store      PlayerStore
	actions    ActionLog
	dispatcher Dispatcher
	policy     Policy
	clock      clock.Clock
	opts       Options
	logger     zerolog.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	stripes [stripeCount]sync.Mutex
	loads   singleflight.Group

	listenersMu sync.RWMutex
	listeners   []Listener
}

func New(
	store PlayerStore,
	actions ActionLog,
	dispatcher Dispatcher,
	policy Policy,
	clk clock.Clock,
	opts Options,
	logger zerolog.Logger,
) *Cache {
	return &Cache{
		store:      store,
		actions:    actions,
		dispatcher: dispatcher,
		policy:     policy,
		clock:      clk,
		opts:       opts,
		logger:     logger.With().Str("component", "state").Logger(),
		entries:    make(map[uuid.UUID]*entry),
	}
}

// OnAction registers fn to be called after every appended action.
func (c *Cache) OnAction(fn Listener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

func (c *Cache) lockID(id uuid.UUID) func() {
	m := &c.stripes[binary.BigEndian.Uint64(id[8:])%stripeCount]
	m.Lock()
	return m.Unlock
}

// Get returns the cached record, loading it from the store when it is missing
// or expired. Dirty entries are always served from memory. It returns
// (nil, nil) for unknown players.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) (*domain.PlayerRecord, error) {
	if record, ok := c.lookup(id); ok {
		return record, nil
	}

	v, err, _ := c.loads.Do(id.String(), func() (interface{}, error) {
		record, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, nil
		}
		return c.install(record), nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("uuid", id.String()).Msg("failed to load player")
		return nil, fmt.Errorf("failed to load player %s: %w", id, err)
	}
	if v == nil {
		return nil, nil
	}
	return v.(*domain.PlayerRecord).Clone(), nil
}

// Peek returns the cached record for id without loading it. Expired clean
// entries count as absent.
func (c *Cache) Peek(id uuid.UUID) (*domain.PlayerRecord, bool) {
	return c.lookup(id)
}

func (c *Cache) lookup(id uuid.UUID) (*domain.PlayerRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if !e.dirty && c.expired(e, c.clock.Now()) {
		return nil, false
	}
	return e.record.Clone(), true
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return c.opts.Duration > 0 && now.Sub(e.cachedAt) > c.opts.Duration
}

// install caches a freshly loaded record. An entry that appeared while the
// store was being read is newer and wins; a clean expired entry is refreshed.
func (c *Cache) install(record *domain.PlayerRecord) *domain.PlayerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.entries[record.ID]; ok {
		if !e.dirty && c.expired(e, now) {
			*e.record = *record
			e.cachedAt = now
		}
		return e.record.Clone()
	}

	c.entries[record.ID] = &entry{record: record.Clone(), cachedAt: now}
	return record
}

// current returns the entry for id, loading it if needed. The caller must
// hold the stripe for id.
func (c *Cache) current(ctx context.Context, id uuid.UUID) (*domain.PlayerRecord, error) {
	record, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// put stores record as the single cached instance for its ID.
func (c *Cache) put(record *domain.PlayerRecord, dirty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.entries[record.ID]; ok {
		*e.record = *record
		e.cachedAt = now
		e.dirty = e.dirty || dirty
		return
	}
	c.entries[record.ID] = &entry{record: record.Clone(), cachedAt: now, dirty: dirty}
}

// GetOrCreate resolves the record of a joining player. Known players get their
// name and last-seen time refreshed through a queued write; unknown players
// get a default record that is persisted right away.
func (c *Cache) GetOrCreate(ctx context.Context, who domain.PlayerIdentity) (*domain.PlayerRecord, error) {
	unlock := c.lockID(who.ID)
	defer unlock()

	now := c.clock.Now()

	c.mu.Lock()
	if e, ok := c.entries[who.ID]; ok {
		e.record.Touch(who.Name, now)
		e.cachedAt = now
		e.dirty = true
		record := e.record.Clone()
		c.mu.Unlock()
		return record, nil
	}
	c.mu.Unlock()

	record, err := c.store.Get(ctx, who.ID)
	if err != nil {
		c.logger.Error().Err(err).Str("uuid", who.ID.String()).Msg("failed to load player on join")
		return nil, fmt.Errorf("failed to load player %s: %w", who.ID, err)
	}

	if record != nil {
		record.Touch(who.Name, now)
		c.put(record, true)
		return record.Clone(), nil
	}

	record = domain.NewPlayerRecord(who.ID, who.Name, c.policy.AutoLockNewPlayers(), now)
	if err := c.store.Upsert(ctx, record); err != nil {
		// Kept dirty so the next flush retries the insert.
		c.logger.Error().Err(err).Str("uuid", who.ID.String()).Msg("failed to persist new player")
		c.put(record, true)
		return record.Clone(), nil
	}

	c.put(record, false)
	c.markWritten(who.ID, now)

	c.logger.Info().
		Str("uuid", who.ID.String()).
		Str("name", who.Name).
		Bool("locked", record.Locked).
		Msg("new player registered")
	return record.Clone(), nil
}

// SetLocked writes the lock state to the store and only then to the cache, so
// a failed write leaves memory untouched.
func (c *Cache) SetLocked(ctx context.Context, id uuid.UUID, locked bool, actor uuid.UUID, reason string) error {
	unlock := c.lockID(id)
	defer unlock()

	record, err := c.current(ctx, id)
	if err != nil {
		return err
	}

	now := c.clock.Now()
	if locked {
		record.Lock(actor, reason, now)
	} else {
		record.Unlock(now)
	}

	err = c.store.UpdateLockState(ctx, id, locked, actor, reason, now)
	if errors.Is(err, ErrNotFound) {
		// Cached but never reached the store; write the whole row instead.
		err = c.store.Upsert(ctx, record)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("uuid", id.String()).Bool("locked", locked).Msg("failed to update lock state")
		return fmt.Errorf("failed to update lock state for %s: %w", id, err)
	}

	c.put(record, false)

	c.appendAction(domain.ActionLogEntry{
		PlayerID:  id,
		Kind:      domain.LockAction(locked),
		Actor:     actor,
		Payload:   reason,
		Timestamp: now,
	})
	return nil
}

// MarkSelected records that the player chose a starter. It reports false when
// the flag was already set, in which case nothing is written or logged.
func (c *Cache) MarkSelected(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := c.lockID(id)
	defer unlock()

	record, err := c.current(ctx, id)
	if err != nil {
		return false, err
	}

	now := c.clock.Now()
	if !record.MarkSelected(now) {
		return false, nil
	}
	c.put(record, true)

	c.appendAction(domain.ActionLogEntry{
		PlayerID:  id,
		Kind:      domain.ActionStarterSelected,
		Timestamp: now,
	})
	return true, nil
}

// IsLocked falls back to the auto-lock default when no record exists or the
// store cannot be read.
func (c *Cache) IsLocked(ctx context.Context, id uuid.UUID) bool {
	record, err := c.Get(ctx, id)
	if err != nil || record == nil {
		return c.policy.AutoLockNewPlayers()
	}
	return record.Locked
}

// FindByName scans the cache first and falls back to the store.
func (c *Cache) FindByName(ctx context.Context, name string) (*domain.PlayerRecord, error) {
	c.mu.RLock()
	var found *domain.PlayerRecord
	for _, e := range c.entries {
		if !strings.EqualFold(e.record.Name, name) {
			continue
		}
		if found == nil || e.record.LastSeen.After(found.LastSeen) {
			found = e.record
		}
	}
	if found != nil {
		found = found.Clone()
	}
	c.mu.RUnlock()

	if found != nil {
		return found, nil
	}

	record, err := c.store.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find player %q: %w", name, err)
	}
	if record == nil {
		return nil, nil
	}
	return c.install(record).Clone(), nil
}

// FlushPending writes every dirty entry. Entries whose write fails are marked
// dirty again and retried on the next cycle.
func (c *Cache) FlushPending(ctx context.Context) (flushed, failed int) {
	c.mu.RLock()
	ids := make([]uuid.UUID, 0)
	for id, e := range c.entries {
		if e.dirty {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range ids {
		if c.flushOne(ctx, id) {
			flushed++
		} else {
			failed++
		}
	}

	if flushed > 0 || failed > 0 {
		c.logger.Debug().Int("flushed", flushed).Int("failed", failed).Msg("pending writes flushed")
	}
	return flushed, failed
}

func (c *Cache) flushOne(ctx context.Context, id uuid.UUID) bool {
	unlock := c.lockID(id)
	defer unlock()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || !e.dirty {
		c.mu.Unlock()
		return true
	}
	snapshot := e.record.Clone()
	e.dirty = false
	c.mu.Unlock()

	if err := c.store.Upsert(ctx, snapshot); err != nil {
		c.logger.Warn().Err(err).Str("uuid", id.String()).Msg("failed to flush player")
		c.mu.Lock()
		if e, ok := c.entries[id]; ok {
			e.dirty = true
		} else {
			c.entries[id] = &entry{record: snapshot, cachedAt: c.clock.Now(), dirty: true}
		}
		c.mu.Unlock()
		return false
	}

	c.markWritten(id, c.clock.Now())
	return true
}

func (c *Cache) markWritten(id uuid.UUID, at time.Time) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		e.lastWrite = at
	}
	c.mu.Unlock()
}

// EvictExpired drops clean entries past the cache duration, then the oldest
// clean entries until the cache fits its maximum size. Dirty entries stay.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0

	for id, e := range c.entries {
		if !e.dirty && c.expired(e, now) {
			delete(c.entries, id)
			evicted++
		}
	}

	if c.opts.MaxSize > 0 && len(c.entries) > c.opts.MaxSize {
		clean := make([]uuid.UUID, 0, len(c.entries))
		for id, e := range c.entries {
			if !e.dirty {
				clean = append(clean, id)
			}
		}
		sort.Slice(clean, func(i, j int) bool {
			return c.entries[clean[i]].cachedAt.Before(c.entries[clean[j]].cachedAt)
		})

		excess := len(c.entries) - c.opts.MaxSize
		for i := 0; i < excess && i < len(clean); i++ {
			delete(c.entries, clean[i])
			evicted++
		}
	}

	if evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Int("remaining", len(c.entries)).Msg("cache entries evicted")
	}
	return evicted
}

// SaveAll flushes pending writes and then writes every cached record in one
// batch, holding every stripe so no lock update can interleave. If the batch
// fails each record is retried on its own.
func (c *Cache) SaveAll(ctx context.Context) error {
	c.FlushPending(ctx)

	for i := range c.stripes {
		c.stripes[i].Lock()
	}
	defer func() {
		for i := range c.stripes {
			c.stripes[i].Unlock()
		}
	}()

	c.mu.RLock()
	records := make([]*domain.PlayerRecord, 0, len(c.entries))
	for _, e := range c.entries {
		records = append(records, e.record.Clone())
	}
	c.mu.RUnlock()

	if len(records) == 0 {
		return nil
	}

	now := c.clock.Now()
	err := c.store.UpsertBatch(ctx, records)
	if err == nil {
		c.mu.Lock()
		for _, record := range records {
			if e, ok := c.entries[record.ID]; ok {
				e.dirty = false
				e.lastWrite = now
			}
		}
		c.mu.Unlock()
		c.logger.Info().Int("players", len(records)).Msg("all players saved")
		return nil
	}
	c.logger.Warn().Err(err).Msg("batch save failed, saving players one by one")

	var failed []uuid.UUID
	for _, record := range records {
		if err := c.store.Upsert(ctx, record); err != nil {
			c.logger.Error().Err(err).Str("uuid", record.ID.String()).Msg("failed to save player")
			failed = append(failed, record.ID)
			c.mu.Lock()
			if e, ok := c.entries[record.ID]; ok {
				e.dirty = true
			}
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		if e, ok := c.entries[record.ID]; ok {
			e.dirty = false
			e.lastWrite = now
		}
		c.mu.Unlock()
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to save %d of %d players", len(failed), len(records))
	}
	c.logger.Info().Int("players", len(records)).Msg("all players saved")
	return nil
}

// Save writes one entry now if it has pending changes.
func (c *Cache) Save(ctx context.Context, id uuid.UUID) error {
	if !c.flushOne(ctx, id) {
		return fmt.Errorf("failed to save player %s", id)
	}
	return nil
}

// Invalidate drops one entry, writing it first if it is dirty. A dirty entry
// whose write fails is kept.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) {
	if !c.flushOne(ctx, id) {
		return
	}

	unlock := c.lockID(id)
	defer unlock()

	c.mu.Lock()
	if e, ok := c.entries[id]; ok && !e.dirty {
		delete(c.entries, id)
	}
	c.mu.Unlock()
}

func (c *Cache) List(ctx context.Context, limit, offset int) ([]*domain.PlayerRecord, error) {
	records, err := c.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	// Pending changes are newer than what the store returned.
	c.mu.RLock()
	for i, record := range records {
		if e, ok := c.entries[record.ID]; ok && e.dirty {
			records[i] = e.record.Clone()
		}
	}
	c.mu.RUnlock()
	return records, nil
}

func (c *Cache) Count(ctx context.Context) (int, error) {
	count, err := c.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.dirty {
			s.Dirty++
		}
	}
	return s
}

// Run flushes and evicts every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.FlushPending(ctx)
			c.EvictExpired()
		}
	}
}

func (c *Cache) appendAction(e domain.ActionLogEntry) {
	c.listenersMu.RLock()
	for _, fn := range c.listeners {
		fn(e)
	}
	c.listenersMu.RUnlock()

	write := func(ctx context.Context) {
		if err := c.actions.Append(ctx, e); err != nil {
			c.logger.Warn().
				Err(err).
				Str("uuid", e.PlayerID.String()).
				Str("action", string(e.Kind)).
				Msg("failed to append action log")
		}
	}

	if c.dispatcher == nil || !c.dispatcher.Submit("action_log", write) {
		write(context.Background())
	}
}
