// internal/lobby/snapshot.go
package lobby

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/blanks/internal/models"
	"github.com/jason-s-yu/blanks/internal/round"
)

// Event labels what a snapshot broadcast announces.
const (
	EventState     = "state"
	EventGameStart = "game_start"
	EventGameEnd   = "game_end"
)

// PlayerView is one roster entry as clients see it.
type PlayerView struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	Status    models.PlayerStatus `json:"status"`
	Connected bool                `json:"connected"`
	AI        bool                `json:"ai"`
	Points    int                 `json:"points"`
	Czar      bool                `json:"czar"`
}

// DeckView summarizes an added deck without shipping every card.
type DeckView struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Calls     int    `json:"calls"`
	Responses int    `json:"responses"`
}

// GameView is the current round projection included while a game is active.
// Board is only populated once judging begins.
type GameView struct {
	Round int                     `json:"round"`
	Call  models.CallCard         `json:"call"`
	Phase round.Phase             `json:"phase"`
	Czar  uuid.UUID               `json:"czar"`
	Plays int                     `json:"plays"`
	Board [][]models.ResponseCard `json:"board,omitempty"`
}

// Snapshot is the full externally visible lobby state at one version. It is
// always recomputed from live state, never stored. Hand is recipient-specific.
type Snapshot struct {
	Event   string                `json:"event"`
	Version int                   `json:"version"`
	Lobby   string                `json:"lobby"`
	Players []PlayerView          `json:"players"`
	Decks   []DeckView            `json:"decks"`
	Rules   []models.HouseRule    `json:"rules"`
	Game    *GameView             `json:"game,omitempty"`
	Hand    []models.ResponseCard `json:"hand,omitempty"`
}

// snapshotLocked computes the current snapshot for one recipient. Assumes the
// lobby lock is held.
func (l *Lobby) snapshotLocked(event string, recipient uuid.UUID) *Snapshot {
	snap := &Snapshot{
		Event:   event,
		Version: l.version,
		Lobby:   l.Code,
		Rules:   l.config.HouseRules(),
	}
	for _, d := range l.config.Decks() {
		snap.Decks = append(snap.Decks, DeckView{
			Code:      d.Code,
			Name:      d.Name,
			Calls:     len(d.Calls),
			Responses: len(d.Responses),
		})
	}

	var czar uuid.UUID
	if l.session != nil {
		czar = l.session.CzarID()
		snap.Game = &GameView{
			Round: l.session.RoundIndex(),
			Call:  l.session.Call(),
			Phase: l.session.Phase(),
			Czar:  czar,
			Plays: l.session.PlayCount(),
			Board: l.session.Board(),
		}
		if hand, err := l.session.Hand(recipient); err == nil {
			snap.Hand = hand
		}
	}

	for _, p := range l.roster.List() {
		_, live := l.conns[p.ID]
		view := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Status:    p.Status,
			Connected: live,
			AI:        p.AI,
			Czar:      l.session != nil && p.ID == czar,
		}
		if l.session != nil {
			view.Points = l.session.Points(p.ID)
		}
		snap.Players = append(snap.Players, view)
	}
	return snap
}
