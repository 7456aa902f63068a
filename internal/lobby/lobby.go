// internal/lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/blanks/internal/deck"
	"github.com/jason-s-yu/blanks/internal/journal"
	"github.com/jason-s-yu/blanks/internal/models"
	"github.com/jason-s-yu/blanks/internal/round"
)

// Options carries the per-lobby tunables wired in from service config.
type Options struct {
	// GracePeriod is the window a player may be connectionless before being
	// marked disconnected.
	GracePeriod time.Duration

	// MinPlayers is the active-player floor below which a running game ends.
	MinPlayers int
}

// Lobby is the single authoritative mutator for one lobby: roster, deck and
// rule configuration, the optional game session, and live update delivery.
// Every state-changing request is serialized through its mutex; collaborators
// never mutate lobby state except through calls made while it is held.
type Lobby struct {
	Code string

	mu      sync.Mutex
	roster  *Roster
	config  *Config
	session *round.Session
	conns   map[uuid.UUID]*Connection
	version int

	// gracePending coalesces disconnect checks to one timer per player.
	gracePending map[uuid.UUID]bool

	catalog deck.Catalog
	journal *journal.Journal
	opts    Options
	log     *logrus.Entry

	// OnEmpty is called (outside the lock) when the roster empties, typically
	// wired by the store to delete the lobby.
	OnEmpty func(code string)
}

// New builds an empty lobby.
func New(code string, catalog deck.Catalog, j *journal.Journal, opts Options, logger *logrus.Logger) *Lobby {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Lobby{
		Code:         code,
		roster:       NewRoster(),
		config:       NewConfig(),
		conns:        make(map[uuid.UUID]*Connection),
		gracePending: make(map[uuid.UUID]bool),
		catalog:      catalog,
		journal:      j,
		opts:         opts,
		log:          logger.WithField("lobby", code),
	}
}

// resolve authenticates a secret and optionally demands an active session.
// Every handler runs through it before touching any state.
func (l *Lobby) resolve(s Secret, needSession bool) (*models.Player, *round.Session, error) {
	p, err := l.roster.Resolve(s)
	if err != nil {
		return nil, nil, err
	}
	if needSession && l.session == nil {
		return nil, nil, failed(ReasonNoGame)
	}
	return p, l.session, nil
}

// Join adds a named player to the roster and mints their secret. If a game is
// running the newcomer is dealt in. A grace timer starts immediately: players
// who never open a connection end up marked disconnected.
func (l *Lobby) Join(name string) (Secret, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.roster.Add(name, false)
	if err != nil {
		return Secret{}, err
	}
	if l.session != nil {
		l.session.AddPlayer(p.ID, false)
	}
	l.scheduleGraceCheckLocked(p.ID)
	l.journal.Record(l.Code, "player_join", map[string]interface{}{"player": p.ID, "name": name})
	l.log.Infof("player %s (%s) joined", name, p.ID)
	l.broadcastLocked(EventState)
	return Secret{Player: p.ID, Token: p.Secret}, nil
}

// AddAI adds a roster entry not backed by a live connection.
func (l *Lobby) AddAI(s Secret, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, _, err := l.resolve(s, false); err != nil {
		return err
	}
	p, err := l.roster.Add(name, true)
	if err != nil {
		return err
	}
	if l.session != nil {
		l.session.AddPlayer(p.ID, true)
	}
	l.log.Infof("ai player %s (%s) added", name, p.ID)
	l.broadcastLocked(EventState)
	return nil
}

// AddDeck looks up a deck by code and appends it to the configuration. The
// lookup runs off the lobby lock so a slow catalog never stalls other
// operations; a timeout fails with ErrUpstreamTimeout and mutates nothing.
func (l *Lobby) AddDeck(s Secret, code string) error {
	l.mu.Lock()
	if _, _, err := l.resolve(s, false); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	d, err := l.catalog.Fetch(context.Background(), code)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return ErrUpstreamTimeout
		case errors.Is(err, deck.ErrNotFound):
			return failedCtx(ReasonDeckNotFound, map[string]interface{}{"code": code})
		}
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// The caller may have left while the lookup was in flight.
	if _, _, err := l.resolve(s, false); err != nil {
		return err
	}
	l.config.AddDeck(*d)
	l.journal.Record(l.Code, "deck_added", map[string]interface{}{"code": code, "name": d.Name})
	l.log.Infof("deck %q (%s) added", d.Name, code)
	l.broadcastLocked(EventState)
	return nil
}

// EnableRule turns a house rule on. Unknown identifiers are rejected;
// re-enabling is a no-op.
func (l *Lobby) EnableRule(s Secret, r models.HouseRule) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, _, err := l.resolve(s, false); err != nil {
		return err
	}
	if !r.Valid() {
		return failedCtx(ReasonUnknownRule, map[string]interface{}{"rule": string(r)})
	}
	if l.config.AddHouseRule(r) {
		l.broadcastLocked(EventState)
	}
	return nil
}

// DisableRule turns a house rule off. Idempotent, like EnableRule.
func (l *Lobby) DisableRule(s Secret, r models.HouseRule) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, _, err := l.resolve(s, false); err != nil {
		return err
	}
	if !r.Valid() {
		return failedCtx(ReasonUnknownRule, map[string]interface{}{"rule": string(r)})
	}
	if l.config.RemoveHouseRule(r) {
		l.broadcastLocked(EventState)
	}
	return nil
}

// StartGame creates the game session and returns the caller's opening hand.
func (l *Lobby) StartGame(s Secret) ([]models.ResponseCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, _, err := l.resolve(s, false)
	if err != nil {
		return nil, err
	}
	if l.session != nil {
		return nil, failed(ReasonGameInProgress)
	}
	if l.roster.ActiveCount() < l.opts.MinPlayers {
		return nil, failedCtx(ReasonNotEnoughPlayers, map[string]interface{}{
			"active":  l.roster.ActiveCount(),
			"minimum": l.opts.MinPlayers,
		})
	}

	ids := make([]uuid.UUID, 0, l.roster.Len())
	ai := make(map[uuid.UUID]bool)
	for _, pl := range l.roster.List() {
		ids = append(ids, pl.ID)
		if pl.AI {
			ai[pl.ID] = true
		}
	}
	sess, err := round.New(ids, ai, l.config.Decks(), l.config)
	if err != nil {
		return nil, mapRoundErr(err)
	}
	l.session = sess
	l.journal.Record(l.Code, "game_start", map[string]interface{}{"players": len(ids)})
	l.log.Infof("game started with %d players", len(ids))
	l.broadcastLocked(EventGameStart)
	hand, err := sess.Hand(p.ID)
	return hand, mapRoundErr(err)
}

// PlayCards submits the caller's play for the current round and returns the
// updated hand.
func (l *Lobby) PlayCards(s Secret, cardIDs []uuid.UUID) ([]models.ResponseCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, sess, err := l.resolve(s, true)
	if err != nil {
		return nil, err
	}
	hand, err := sess.Play(p.ID, cardIDs)
	if err != nil {
		return nil, mapRoundErr(err)
	}
	l.broadcastLocked(EventState)
	return hand, nil
}

// ChooseWinner records the czar's pick and advances to the next round.
func (l *Lobby) ChooseWinner(s Secret, winnerIdx int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, sess, err := l.resolve(s, true)
	if err != nil {
		return err
	}
	if err := sess.Choose(p.ID, winnerIdx); err != nil {
		return mapRoundErr(err)
	}
	l.journal.Record(l.Code, "round_winner", map[string]interface{}{
		"round": sess.RoundIndex(),
		"czar":  p.ID,
	})
	sess.BeginRound()
	l.broadcastLocked(EventState)
	return nil
}

// Hand returns the caller's current hand without mutating anything.
func (l *Lobby) Hand(s Secret) ([]models.ResponseCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, sess, err := l.resolve(s, true)
	if err != nil {
		return nil, err
	}
	hand, err := sess.Hand(p.ID)
	return hand, mapRoundErr(err)
}

// History returns the finished rounds of the active session.
func (l *Lobby) History(s Secret) ([]round.FinishedRound, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, sess, err := l.resolve(s, true)
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}

// Redraw trades models.RebootCost points for a fresh hand. Only available
// under RuleReboot.
func (l *Lobby) Redraw(s Secret) ([]models.ResponseCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, _, err := l.resolve(s, false)
	if err != nil {
		return nil, err
	}
	if !l.config.Enabled(models.RuleReboot) {
		return nil, failedCtx(ReasonRuleNotEnabled, map[string]interface{}{"rule": string(models.RuleReboot)})
	}
	if l.session == nil {
		return nil, failed(ReasonNoGame)
	}
	hand, err := l.session.Redraw(p.ID)
	if err != nil {
		return nil, mapRoundErr(err)
	}
	l.broadcastLocked(EventState)
	return hand, nil
}

// Skip marks disconnected players as sitting out so rounds stop waiting for
// them. It refuses to shrink the playing group below the minimum.
func (l *Lobby) Skip(s Secret, targets []uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, sess, err := l.resolve(s, true)
	if err != nil {
		return err
	}

	targeted := make(map[uuid.UUID]bool, len(targets))
	for _, id := range targets {
		targeted[id] = true
	}
	remaining := 0
	for _, p := range l.roster.List() {
		if sess.Has(p.ID) && p.Status == models.StatusNeutral && !targeted[p.ID] {
			remaining++
		}
	}
	if remaining < l.opts.MinPlayers {
		return failed(ReasonNotEnoughToSkip)
	}
	for _, id := range targets {
		p := l.roster.Get(id)
		if p == nil || p.Status != models.StatusDisconnected {
			return failedCtx(ReasonMustBeSkippable, map[string]interface{}{"player": id})
		}
	}

	for _, id := range targets {
		l.roster.SetStatus(id, models.StatusSkipping)
	}
	sess.Skip(targets)
	l.log.Infof("skipped %d player(s)", len(targets))
	if !l.endCheckLocked() {
		l.broadcastLocked(EventState)
	}
	return nil
}

// Back clears the caller's skip status.
func (l *Lobby) Back(s Secret) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, _, err := l.resolve(s, false)
	if err != nil {
		return err
	}
	if p.Status != models.StatusSkipping {
		return failed(ReasonNotBeingSkipped)
	}
	l.roster.SetStatus(p.ID, models.StatusNeutral)
	if l.session != nil {
		l.session.Unskip(p.ID)
	}
	l.broadcastLocked(EventState)
	return nil
}

// Leave removes the caller from the roster. If a game is running the session
// is told; dropping below the active minimum ends it.
func (l *Lobby) Leave(s Secret) error {
	l.mu.Lock()

	p, _, err := l.resolve(s, false)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.removePlayerLocked(p.ID)
	empty := l.roster.Len() == 0
	onEmpty := l.OnEmpty
	l.mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty(l.Code)
	}
	return nil
}

// removePlayerLocked removes id from roster, session and connection set, then
// runs the session-minimum check and broadcasts. Assumes the lock is held.
func (l *Lobby) removePlayerLocked(id uuid.UUID) {
	if !l.roster.Remove(id) {
		return
	}
	if conn, ok := l.conns[id]; ok {
		delete(l.conns, id)
		close(conn.OutChan)
		if conn.Cancel != nil {
			conn.Cancel()
		}
	}
	if l.session != nil {
		l.session.PlayerLeft(id)
	}
	l.journal.Record(l.Code, "player_leave", map[string]interface{}{"player": id})
	l.log.Infof("player %s left", id)
	if !l.endCheckLocked() {
		l.broadcastLocked(EventState)
	}
}

// endCheckLocked destroys the session when the active-player count has fallen
// below the minimum: statuses reset to Neutral and exactly one game-end event
// goes out. Reports whether the session ended. Assumes the lock is held.
func (l *Lobby) endCheckLocked() bool {
	if l.session == nil || l.roster.ActiveCount() >= l.opts.MinPlayers {
		return false
	}
	l.session = nil
	for _, p := range l.roster.List() {
		if p.Status != models.StatusNeutral {
			l.roster.SetStatus(p.ID, models.StatusNeutral)
		}
	}
	l.journal.Record(l.Code, "game_end", map[string]interface{}{"reason": "not_enough_players"})
	l.log.Info("game ended: not enough active players")
	l.broadcastLocked(EventGameEnd)
	return true
}

// RegisterConnection authenticates the secret, marks the player live,
// subscribes the connection to the broadcast stream and returns it together
// with the current snapshot (the caller's hand included).
func (l *Lobby) RegisterConnection(s Secret, cancel func()) (*Connection, *Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, _, err := l.resolve(s, false)
	if err != nil {
		return nil, nil, err
	}
	if old, ok := l.conns[p.ID]; ok {
		// Replacing a connection that died silently or is being superseded.
		delete(l.conns, p.ID)
		close(old.OutChan)
		if old.Cancel != nil {
			old.Cancel()
		}
	}
	conn := &Connection{
		PlayerID: p.ID,
		OutChan:  make(chan *Snapshot, 16),
		Cancel:   cancel,
	}
	l.conns[p.ID] = conn
	if p.Status == models.StatusDisconnected {
		l.roster.SetStatus(p.ID, models.StatusNeutral)
	}
	l.log.Infof("player %s connected", p.ID)
	l.broadcastLocked(EventState)
	return conn, l.snapshotLocked(EventState, p.ID), nil
}

// UnregisterConnection removes the player's live connection and schedules the
// grace-period check. conn guards against racing a replacement connection.
func (l *Lobby) UnregisterConnection(playerID uuid.UUID, conn *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.conns[playerID]
	if !ok || current != conn {
		return
	}
	delete(l.conns, playerID)
	close(current.OutChan)
	if l.roster.Get(playerID) == nil {
		return
	}
	l.scheduleGraceCheckLocked(playerID)
	l.log.Infof("player %s disconnected, grace period started", playerID)
	l.broadcastLocked(EventState)
}

// scheduleGraceCheckLocked arms the fire-and-check disconnect timer. The
// effect is derived fresh from the live-connection set at fire time, so
// overlapping timers would be harmless; they are coalesced anyway to bound
// outstanding timers under rapid connect/disconnect cycling.
func (l *Lobby) scheduleGraceCheckLocked(id uuid.UUID) {
	p := l.roster.Get(id)
	if p == nil || p.AI {
		return
	}
	if l.gracePending[id] {
		return
	}
	l.gracePending[id] = true
	time.AfterFunc(l.opts.GracePeriod, func() { l.graceCheck(id) })
}

// graceCheck runs at grace-period expiry. It must never resurrect a removed
// player and is a no-op whenever a live connection exists.
func (l *Lobby) graceCheck(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.gracePending, id)
	p := l.roster.Get(id)
	if p == nil {
		return
	}
	if _, live := l.conns[id]; live {
		return
	}
	if p.Status != models.StatusNeutral {
		return
	}
	l.roster.SetStatus(id, models.StatusDisconnected)
	l.log.Infof("player %s marked disconnected after grace period", id)
	if !l.endCheckLocked() {
		l.broadcastLocked(EventState)
	}
}

// broadcastLocked commits a new snapshot version and fans it out to every
// subscribed connection. Writes are non-blocking; delivery order per
// subscriber follows commit order. Assumes the lock is held.
func (l *Lobby) broadcastLocked(event string) {
	l.version++
	for _, conn := range l.conns {
		conn.Write(l.snapshotLocked(event, conn.PlayerID))
	}
}

// Version returns the current snapshot version.
func (l *Lobby) Version() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// GameActive reports whether a session currently exists.
func (l *Lobby) GameActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session != nil
}

// Players returns the roster as clients would see it.
func (l *Lobby) Players() []PlayerView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(EventState, uuid.Nil).Players
}
