// internal/round/round.go
package round

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blanks/internal/models"
)

// HandSize is how many response cards each player holds at the top of a round.
const HandSize = 10

var (
	ErrNotInRound      = errors.New("player is not in the current round")
	ErrAlreadyPlayed   = errors.New("player already submitted a play this round")
	ErrAlreadyJudging  = errors.New("round is already being judged")
	ErrInvalidCardID   = errors.New("card is not in the player's hand")
	ErrNotCzar         = errors.New("player is not the czar")
	ErrNotJudging      = errors.New("round is not being judged")
	ErrNoSuchPlay      = errors.New("no play at that index")
	ErrAlreadyJudged   = errors.New("round winner already chosen")
	ErrNotEnoughPoints = errors.New("not enough points")
	ErrNoCards         = errors.New("configured decks have too few cards")
)

// WrongCardCountError reports a play whose size does not match the call's
// pick count.
type WrongCardCountError struct {
	Got      int
	Expected int
}

func (e *WrongCardCountError) Error() string {
	return fmt.Sprintf("played %d card(s), call needs %d", e.Got, e.Expected)
}

// Phase is the state of the current round.
type Phase string

const (
	PhasePlaying Phase = "playing"
	PhaseJudging Phase = "judging"
)

// Rules is the view of the lobby configuration the engine consults. The lobby
// owns the configuration; the engine only reads it.
type Rules interface {
	Enabled(models.HouseRule) bool
}

// Seat tracks one player's in-game state.
type Seat struct {
	PlayerID uuid.UUID
	Hand     []models.ResponseCard
	Points   int
	Skipped  bool
	AI       bool
}

// Play is one player's submission for the current round. Plays are kept in a
// shuffled order once judging begins so the czar cannot tell who played what.
type Play struct {
	PlayerID uuid.UUID             `json:"-"`
	Cards    []models.ResponseCard `json:"cards"`
}

// FinishedRound is a completed round kept in the session history.
type FinishedRound struct {
	Index  int             `json:"index"`
	Call   models.CallCard `json:"call"`
	Czar   uuid.UUID       `json:"czar"`
	Winner uuid.UUID       `json:"winner"`
	Plays  []Play          `json:"plays"`
}

// Session is the in-game round state machine for one lobby. It performs no
// locking of its own: the owning lobby serializes every call into it.
type Session struct {
	seats        []*Seat
	czarIdx      int
	phase        Phase
	call         models.CallCard
	callPile     []models.CallCard
	pile         []models.ResponseCard
	discards     []models.ResponseCard
	plays        []*Play
	winnerChosen bool
	roundIdx     int
	history      []FinishedRound
	rules        Rules
	rng          *rand.Rand
}

// New builds a session from the lobby's roster and decks and begins the first
// round. aiIDs marks which of the given players are AI entries.
func New(playerIDs []uuid.UUID, aiIDs map[uuid.UUID]bool, decks []models.Deck, rules Rules) (*Session, error) {
	s := &Session{
		phase: PhasePlaying,
		rules: rules,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, d := range decks {
		s.callPile = append(s.callPile, d.Calls...)
		s.pile = append(s.pile, d.Responses...)
	}
	if len(s.callPile) == 0 || len(s.pile) < len(playerIDs)*HandSize {
		return nil, ErrNoCards
	}
	s.rng.Shuffle(len(s.callPile), func(i, j int) {
		s.callPile[i], s.callPile[j] = s.callPile[j], s.callPile[i]
	})
	s.rng.Shuffle(len(s.pile), func(i, j int) {
		s.pile[i], s.pile[j] = s.pile[j], s.pile[i]
	})

	for _, id := range playerIDs {
		s.seats = append(s.seats, &Seat{PlayerID: id, AI: aiIDs[id]})
	}
	s.czarIdx = s.rng.Intn(len(s.seats))
	s.beginRound(false)
	return s, nil
}

// AddPlayer seats a newcomer mid-game with a fresh hand. They may play in the
// current round if it is still open.
func (s *Session) AddPlayer(id uuid.UUID, ai bool) {
	if s.seat(id) != nil {
		return
	}
	seat := &Seat{PlayerID: id, AI: ai}
	seat.Hand = s.draw(HandSize)
	s.seats = append(s.seats, seat)
}

// BeginRound retires a judged round into history and starts the next one:
// advance the czar, reveal a new call, top up hands, let Rando players play.
func (s *Session) BeginRound() {
	s.beginRound(true)
}

func (s *Session) beginRound(advanceCzar bool) {
	if s.winnerChosen {
		s.history = append(s.history, FinishedRound{
			Index:  s.roundIdx,
			Call:   s.call,
			Czar:   s.czar().PlayerID,
			Winner: s.winnerID(),
			Plays:  s.snapshotPlays(),
		})
		for _, p := range s.plays {
			s.discards = append(s.discards, p.Cards...)
		}
	}
	if advanceCzar {
		s.advanceCzar()
	}

	s.roundIdx++
	s.call = s.drawCall()
	s.plays = nil
	s.winnerChosen = false
	s.phase = PhasePlaying

	target := HandSize
	if s.rules.Enabled(models.RulePackingHeat) && s.call.Pick >= 2 {
		target++
	}
	for _, seat := range s.seats {
		if need := target - len(seat.Hand); need > 0 {
			seat.Hand = append(seat.Hand, s.draw(need)...)
		}
	}

	// Rando players submit immediately; without the rule AI seats sit out.
	if s.rules.Enabled(models.RuleRando) {
		for _, seat := range s.seats {
			if seat.AI && !seat.Skipped && seat != s.czar() {
				s.playRandom(seat)
			}
		}
	}
	s.maybeStartJudging()
}

// Play submits cardIDs for the current round and returns the updated hand.
func (s *Session) Play(id uuid.UUID, cardIDs []uuid.UUID) ([]models.ResponseCard, error) {
	if s.phase == PhaseJudging {
		return nil, ErrAlreadyJudging
	}
	seat := s.seat(id)
	if seat == nil || seat.Skipped || seat == s.czar() || (seat.AI && !s.rules.Enabled(models.RuleRando)) {
		return nil, ErrNotInRound
	}
	if s.playBy(id) != nil {
		return nil, ErrAlreadyPlayed
	}
	if len(cardIDs) != s.call.Pick {
		return nil, &WrongCardCountError{Got: len(cardIDs), Expected: s.call.Pick}
	}

	picked := make([]models.ResponseCard, 0, len(cardIDs))
	remaining := make([]models.ResponseCard, 0, len(seat.Hand))
	remaining = append(remaining, seat.Hand...)
	for _, cid := range cardIDs {
		idx := -1
		for i, c := range remaining {
			if c.ID == cid {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrInvalidCardID
		}
		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	seat.Hand = remaining
	s.plays = append(s.plays, &Play{PlayerID: id, Cards: picked})
	s.maybeStartJudging()
	return seat.Hand, nil
}

// Choose records the czar's pick, awards the point, and retires the round to
// history. BeginRound starts the next one.
func (s *Session) Choose(id uuid.UUID, winnerIdx int) error {
	if s.phase != PhaseJudging {
		return ErrNotJudging
	}
	if s.czar().PlayerID != id {
		return ErrNotCzar
	}
	if s.winnerChosen {
		return ErrAlreadyJudged
	}
	if winnerIdx < 0 || winnerIdx >= len(s.plays) {
		return ErrNoSuchPlay
	}

	winner := s.plays[winnerIdx]
	if seat := s.seat(winner.PlayerID); seat != nil {
		seat.Points++
	}
	s.winnerChosen = true
	// Move the winning play to the front so winnerID is cheap to derive.
	s.plays[0], s.plays[winnerIdx] = s.plays[winnerIdx], s.plays[0]
	return nil
}

// Skip marks the given players as sitting out. Their pending plays stand;
// the round may close if everyone left has played.
func (s *Session) Skip(ids []uuid.UUID) {
	for _, id := range ids {
		if seat := s.seat(id); seat != nil {
			seat.Skipped = true
		}
	}
	if s.czar().Skipped {
		s.advanceCzar()
	}
	s.maybeStartJudging()
}

// Unskip returns a previously skipped player to the game from the next round.
func (s *Session) Unskip(id uuid.UUID) {
	if seat := s.seat(id); seat != nil {
		seat.Skipped = false
	}
}

// Redraw discards the player's hand for a fresh one at the cost of
// models.RebootCost points. The lobby checks the house rule; the engine only
// enforces the price.
func (s *Session) Redraw(id uuid.UUID) ([]models.ResponseCard, error) {
	seat := s.seat(id)
	if seat == nil {
		return nil, ErrNotInRound
	}
	if seat.Points < models.RebootCost {
		return nil, ErrNotEnoughPoints
	}
	seat.Points -= models.RebootCost
	s.discards = append(s.discards, seat.Hand...)
	seat.Hand = s.draw(HandSize)
	return seat.Hand, nil
}

// Hand returns the player's current hand.
func (s *Session) Hand(id uuid.UUID) ([]models.ResponseCard, error) {
	seat := s.seat(id)
	if seat == nil {
		return nil, ErrNotInRound
	}
	out := make([]models.ResponseCard, len(seat.Hand))
	copy(out, seat.Hand)
	return out, nil
}

// History returns the finished rounds in play order.
func (s *Session) History() []FinishedRound {
	out := make([]FinishedRound, len(s.history))
	copy(out, s.history)
	return out
}

// PlayerLeft removes a seat. A departing czar abandons the round: plays are
// returned to their owners and a fresh round begins with the next czar.
func (s *Session) PlayerLeft(id uuid.UUID) {
	idx := -1
	for i, seat := range s.seats {
		if seat.PlayerID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	wasCzar := idx == s.czarIdx
	leaving := s.seats[idx]
	s.discards = append(s.discards, leaving.Hand...)
	s.seats = append(s.seats[:idx], s.seats[idx+1:]...)
	if len(s.seats) == 0 {
		return
	}
	if idx < s.czarIdx {
		s.czarIdx--
	}
	if s.czarIdx >= len(s.seats) {
		s.czarIdx = 0
	}

	if wasCzar {
		// Abandon the round: hand plays back and redeal the call.
		for _, p := range s.plays {
			if seat := s.seat(p.PlayerID); seat != nil {
				seat.Hand = append(seat.Hand, p.Cards...)
			}
		}
		s.plays = nil
		s.winnerChosen = false
		s.roundIdx--
		s.beginRound(false)
		return
	}

	if p := s.playBy(id); p != nil {
		s.removePlay(id)
	}
	s.maybeStartJudging()
}

// --- read accessors for snapshots ---

// RoundIndex is the 1-based number of the current round.
func (s *Session) RoundIndex() int { return s.roundIdx }

// Call is the current call card.
func (s *Session) Call() models.CallCard { return s.call }

// Phase reports whether the round is collecting plays or being judged.
func (s *Session) Phase() Phase { return s.phase }

// CzarID is the current judge.
func (s *Session) CzarID() uuid.UUID { return s.czar().PlayerID }

// PlayCount is how many plays have been submitted this round.
func (s *Session) PlayCount() int { return len(s.plays) }

// Board returns the submitted plays' cards once judging has begun, in the
// shuffled judging order. It is empty while plays are still coming in.
func (s *Session) Board() [][]models.ResponseCard {
	if s.phase != PhaseJudging {
		return nil
	}
	out := make([][]models.ResponseCard, len(s.plays))
	for i, p := range s.plays {
		cards := make([]models.ResponseCard, len(p.Cards))
		copy(cards, p.Cards)
		out[i] = cards
	}
	return out
}

// Points returns the player's score, or 0 for unknown players.
func (s *Session) Points(id uuid.UUID) int {
	if seat := s.seat(id); seat != nil {
		return seat.Points
	}
	return 0
}

// Has reports whether the player is seated in this session.
func (s *Session) Has(id uuid.UUID) bool { return s.seat(id) != nil }

// SeatCount is the number of seated players, czar included.
func (s *Session) SeatCount() int { return len(s.seats) }

// --- internals ---

func (s *Session) seat(id uuid.UUID) *Seat {
	for _, seat := range s.seats {
		if seat.PlayerID == id {
			return seat
		}
	}
	return nil
}

func (s *Session) czar() *Seat { return s.seats[s.czarIdx] }

func (s *Session) advanceCzar() {
	for i := 1; i <= len(s.seats); i++ {
		idx := (s.czarIdx + i) % len(s.seats)
		if !s.seats[idx].Skipped {
			s.czarIdx = idx
			return
		}
	}
	s.czarIdx = (s.czarIdx + 1) % len(s.seats)
}

func (s *Session) playBy(id uuid.UUID) *Play {
	for _, p := range s.plays {
		if p.PlayerID == id {
			return p
		}
	}
	return nil
}

func (s *Session) removePlay(id uuid.UUID) {
	for i, p := range s.plays {
		if p.PlayerID == id {
			s.discards = append(s.discards, p.Cards...)
			s.plays = append(s.plays[:i], s.plays[i+1:]...)
			return
		}
	}
}

// maybeStartJudging closes the round once every eligible seat has played.
func (s *Session) maybeStartJudging() {
	if s.phase == PhaseJudging {
		return
	}
	for _, seat := range s.seats {
		if seat == s.czar() || seat.Skipped {
			continue
		}
		if seat.AI && !s.rules.Enabled(models.RuleRando) {
			continue
		}
		if s.playBy(seat.PlayerID) == nil {
			return
		}
	}
	if len(s.plays) == 0 {
		return
	}
	s.phase = PhaseJudging
	s.rng.Shuffle(len(s.plays), func(i, j int) {
		s.plays[i], s.plays[j] = s.plays[j], s.plays[i]
	})
}

func (s *Session) playRandom(seat *Seat) {
	if s.playBy(seat.PlayerID) != nil || len(seat.Hand) < s.call.Pick {
		return
	}
	picked := make([]models.ResponseCard, 0, s.call.Pick)
	for i := 0; i < s.call.Pick; i++ {
		idx := s.rng.Intn(len(seat.Hand))
		picked = append(picked, seat.Hand[idx])
		seat.Hand = append(seat.Hand[:idx], seat.Hand[idx+1:]...)
	}
	s.plays = append(s.plays, &Play{PlayerID: seat.PlayerID, Cards: picked})
}

func (s *Session) draw(n int) []models.ResponseCard {
	out := make([]models.ResponseCard, 0, n)
	for i := 0; i < n; i++ {
		if len(s.pile) == 0 {
			if len(s.discards) == 0 {
				break
			}
			s.pile = s.discards
			s.discards = nil
			s.rng.Shuffle(len(s.pile), func(i, j int) {
				s.pile[i], s.pile[j] = s.pile[j], s.pile[i]
			})
		}
		out = append(out, s.pile[0])
		s.pile = s.pile[1:]
	}
	return out
}

func (s *Session) drawCall() models.CallCard {
	if len(s.callPile) == 0 {
		// Recycle calls from finished rounds.
		for _, fr := range s.history {
			s.callPile = append(s.callPile, fr.Call)
		}
		s.rng.Shuffle(len(s.callPile), func(i, j int) {
			s.callPile[i], s.callPile[j] = s.callPile[j], s.callPile[i]
		})
	}
	if len(s.callPile) == 0 {
		return s.call
	}
	c := s.callPile[0]
	s.callPile = s.callPile[1:]
	return c
}

func (s *Session) winnerID() uuid.UUID {
	if !s.winnerChosen || len(s.plays) == 0 {
		return uuid.Nil
	}
	return s.plays[0].PlayerID
}

func (s *Session) snapshotPlays() []Play {
	out := make([]Play, len(s.plays))
	for i, p := range s.plays {
		out[i] = *p
	}
	return out
}
