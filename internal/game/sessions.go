// Package game connects the dragonfly server to the lock state: it tracks
// online players, runs the join and quit pipeline and registers the
// operator command.
package game

import (
	"starterlock/internal/bridge"
	"starterlock/internal/domain"
	"strings"
	"sync"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
)

type session struct {
	identity domain.PlayerIdentity
	exec     func(fn func(p *player.Player)) bool
}

// Sessions is the registry of online players. Player objects are only ever
// reached through Exec, on the world transaction.
type Sessions struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[uuid.UUID]*session)}
}

func (s *Sessions) Add(p *player.Player) {
	h := p.H()
	s.add(domain.PlayerIdentity{ID: p.UUID(), Name: p.Name()}, func(fn func(p *player.Player)) bool {
		return h.ExecWorld(func(tx *world.Tx, e world.Entity) {
			if p, ok := e.(*player.Player); ok {
				fn(p)
			}
		})
	})
}

func (s *Sessions) add(who domain.PlayerIdentity, exec func(fn func(p *player.Player)) bool) {
	s.mu.Lock()
	s.byID[who.ID] = &session{identity: who, exec: exec}
	s.mu.Unlock()
}

func (s *Sessions) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func (s *Sessions) Online() []domain.PlayerIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PlayerIdentity, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, sess.identity)
	}
	return out
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Lookup finds an online player by name, ignoring case.
func (s *Sessions) Lookup(name string) (domain.PlayerIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.byID {
		if strings.EqualFold(sess.identity.Name, name) {
			return sess.identity, true
		}
	}
	return domain.PlayerIdentity{}, false
}

// NameOf returns the online name for id, or the ID itself when offline.
func (s *Sessions) NameOf(id uuid.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.byID[id]; ok {
		return sess.identity.Name
	}
	return id.String()
}

// Exec runs fn on the player's world transaction. It reports false when the
// player is offline.
func (s *Sessions) Exec(id uuid.UUID, fn func(p bridge.Player)) bool {
	return s.execPlayer(id, func(p *player.Player) { fn(p) })
}

func (s *Sessions) execPlayer(id uuid.UUID, fn func(p *player.Player)) bool {
	s.mu.RLock()
	sess, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return sess.exec(fn)
}

func (s *Sessions) Notify(id uuid.UUID, message string) bool {
	return s.execPlayer(id, func(p *player.Player) {
		p.Message(message)
	})
}
