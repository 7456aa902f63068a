// internal/lobby/roster.go
package lobby

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blanks/internal/models"
)

// Secret is a lobby-scoped bearer credential: valid iff the token matches the
// one minted for a still-present roster entry.
type Secret struct {
	Player uuid.UUID `json:"player"`
	Token  uuid.UUID `json:"token"`
}

// Roster is the player identity table for one lobby. It is mutated only by
// the owning lobby while holding the lobby's lock.
type Roster struct {
	players []*models.Player
	byID    map[uuid.UUID]*models.Player
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[uuid.UUID]*models.Player)}
}

// Add creates a roster entry and mints its secret. Names are unique per lobby
// (case-insensitive).
func (r *Roster) Add(name string, ai bool) (*models.Player, error) {
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return nil, failedCtx(ReasonNameInUse, map[string]interface{}{"name": name})
		}
	}
	p := &models.Player{
		ID:       uuid.New(),
		Name:     name,
		Secret:   uuid.New(),
		Status:   models.StatusNeutral,
		AI:       ai,
		JoinedAt: time.Now(),
	}
	r.players = append(r.players, p)
	r.byID[p.ID] = p
	return p, nil
}

// Resolve authenticates a secret against the roster.
func (r *Roster) Resolve(s Secret) (*models.Player, error) {
	p, ok := r.byID[s.Player]
	if !ok || p.Secret != s.Token {
		return nil, ErrUnauthenticated
	}
	return p, nil
}

// Get returns the entry for id, or nil.
func (r *Roster) Get(id uuid.UUID) *models.Player {
	return r.byID[id]
}

// Remove deletes the entry for id and reports whether it existed. The secret
// dies with the entry.
func (r *Roster) Remove(id uuid.UUID) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, p := range r.players {
		if p.ID == id {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
	return true
}

// SetStatus updates a present player's status.
func (r *Roster) SetStatus(id uuid.UUID, status models.PlayerStatus) {
	if p, ok := r.byID[id]; ok {
		p.Status = status
	}
}

// List returns the players in join order.
func (r *Roster) List() []*models.Player {
	out := make([]*models.Player, len(r.players))
	copy(out, r.players)
	return out
}

// ActiveCount is the number of players not marked Disconnected. A running
// game ends when it drops below the configured minimum.
func (r *Roster) ActiveCount() int {
	n := 0
	for _, p := range r.players {
		if p.Status != models.StatusDisconnected {
			n++
		}
	}
	return n
}

// Len is the roster size, AI entries included.
func (r *Roster) Len() int { return len(r.players) }
