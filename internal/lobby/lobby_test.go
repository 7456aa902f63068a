// internal/lobby/lobby_test.go
package lobby

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/blanks/internal/deck"
	"github.com/jason-s-yu/blanks/internal/journal"
	"github.com/jason-s-yu/blanks/internal/models"
	"github.com/jason-s-yu/blanks/internal/round"
)

// stubCatalog serves canned decks. The "slow" code simulates a lookup that
// blew its deadline.
type stubCatalog struct {
	decks map[string]*models.Deck
}

func (c *stubCatalog) Fetch(ctx context.Context, code string) (*models.Deck, error) {
	if code == "slow" {
		return nil, fmt.Errorf("fetching deck %q: %w", code, context.DeadlineExceeded)
	}
	d, ok := c.decks[code]
	if !ok {
		return nil, deck.ErrNotFound
	}
	return d, nil
}

func testDeck(code string) *models.Deck {
	d := &models.Deck{Code: code, Name: "Deck " + code}
	for i := 0; i < 30; i++ {
		d.Calls = append(d.Calls, models.CallCard{ID: uuid.New(), Text: "call ____", Pick: 1})
	}
	for i := 0; i < 200; i++ {
		d.Responses = append(d.Responses, models.ResponseCard{ID: uuid.New(), Text: "response"})
	}
	return d
}

func newTestLobby(t *testing.T, opts Options) *Lobby {
	t.Helper()
	if opts.GracePeriod == 0 {
		opts.GracePeriod = time.Hour
	}
	if opts.MinPlayers == 0 {
		opts.MinPlayers = 3
	}
	j, err := journal.New("")
	require.NoError(t, err)
	cat := &stubCatalog{decks: map[string]*models.Deck{"base": testDeck("base")}}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New("ABCD", cat, j, opts, logger)
}

func join(t *testing.T, l *Lobby, names ...string) map[string]Secret {
	t.Helper()
	secrets := make(map[string]Secret, len(names))
	for _, name := range names {
		s, err := l.Join(name)
		require.NoError(t, err)
		secrets[name] = s
	}
	return secrets
}

func startGame(t *testing.T, l *Lobby, s Secret) {
	t.Helper()
	require.NoError(t, l.AddDeck(s, "base"))
	_, err := l.StartGame(s)
	require.NoError(t, err)
}

// czarSecret finds the current czar among the joined players.
func czarSecret(t *testing.T, l *Lobby, secrets map[string]Secret) Secret {
	t.Helper()
	for _, v := range l.Players() {
		if v.Czar {
			for _, s := range secrets {
				if s.Player == v.ID {
					return s
				}
			}
		}
	}
	t.Fatal("no czar found")
	return Secret{}
}

func playOne(t *testing.T, l *Lobby, s Secret) {
	t.Helper()
	hand, err := l.Hand(s)
	require.NoError(t, err)
	_, err = l.PlayCards(s, []uuid.UUID{hand[0].ID})
	require.NoError(t, err)
}

func drain(ch chan *Snapshot) []*Snapshot {
	var out []*Snapshot
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestJoinMintsDistinctSecrets(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob")

	assert.NotEqual(t, secrets["alice"].Player, secrets["bob"].Player)
	assert.NotEqual(t, secrets["alice"].Token, secrets["bob"].Token)

	_, err := l.Join("ALICE")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNameInUse, ve.Reason)
}

func TestBadSecretIsUnauthenticated(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice")

	forged := Secret{Player: secrets["alice"].Player, Token: uuid.New()}
	err := l.AddDeck(forged, "base")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = l.AddDeck(Secret{Player: uuid.New(), Token: uuid.New()}, "base")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAddDeck(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice")
	alice := secrets["alice"]

	before := l.Version()
	require.NoError(t, l.AddDeck(alice, "base"))
	assert.Greater(t, l.Version(), before)

	var ve *ValidationError
	err := l.AddDeck(alice, "nope")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonDeckNotFound, ve.Reason)

	err = l.AddDeck(alice, "slow")
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
}

func TestHouseRuleToggles(t *testing.T) {
	l := newTestLobby(t, Options{})
	alice := join(t, l, "alice")["alice"]

	require.NoError(t, l.EnableRule(alice, models.RuleReboot))
	v := l.Version()
	// Re-enabling changes nothing and broadcasts nothing.
	require.NoError(t, l.EnableRule(alice, models.RuleReboot))
	assert.Equal(t, v, l.Version())

	require.NoError(t, l.DisableRule(alice, models.RuleReboot))
	assert.Greater(t, l.Version(), v)

	var ve *ValidationError
	err := l.EnableRule(alice, models.HouseRule("beer_pong"))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonUnknownRule, ve.Reason)
}

func TestStartGamePreconditions(t *testing.T) {
	l := newTestLobby(t, Options{})
	alice := join(t, l, "alice", "bob")["alice"]
	require.NoError(t, l.AddDeck(alice, "base"))

	var ve *ValidationError
	_, err := l.StartGame(alice)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotEnoughPlayers, ve.Reason)

	join(t, l, "carol")
	hand, err := l.StartGame(alice)
	require.NoError(t, err)
	assert.Len(t, hand, round.HandSize)
	assert.True(t, l.GameActive())

	_, err = l.StartGame(alice)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonGameInProgress, ve.Reason)
}

func TestStartGameNeedsCards(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob", "carol")

	var ve *ValidationError
	_, err := l.StartGame(secrets["alice"])
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotEnoughCards, ve.Reason)
}

func TestOperationsBeforeGame(t *testing.T) {
	l := newTestLobby(t, Options{})
	alice := join(t, l, "alice")["alice"]

	var ve *ValidationError
	_, err := l.PlayCards(alice, nil)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNoGame, ve.Reason)

	err = l.ChooseWinner(alice, 0)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNoGame, ve.Reason)
}

func TestPlayAndJudgeRound(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob", "carol")
	startGame(t, l, secrets["alice"])

	czar := czarSecret(t, l, secrets)
	player := secretsOther(secrets, czar)

	var ve *ValidationError
	hand, err := l.Hand(player)
	require.NoError(t, err)
	_, err = l.PlayCards(player, []uuid.UUID{hand[0].ID, hand[1].ID})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonWrongCardCount, ve.Reason)
	assert.Equal(t, 2, ve.Context["got"])
	assert.Equal(t, 1, ve.Context["expected"])

	err = l.ChooseWinner(czar, 0)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotJudging, ve.Reason)

	for _, s := range secrets {
		if s == czar {
			continue
		}
		playOne(t, l, s)
	}

	err = l.ChooseWinner(secretsOther(secrets, czar), 0)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotCzar, ve.Reason)

	require.NoError(t, l.ChooseWinner(czar, 0))

	hist, err := l.History(czar)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Index)
}

// secretsOther picks any secret that is not the given one.
func secretsOther(secrets map[string]Secret, not Secret) Secret {
	for _, s := range secrets {
		if s != not {
			return s
		}
	}
	return Secret{}
}

func TestRedrawRequiresRule(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob", "carol")
	startGame(t, l, secrets["alice"])

	var ve *ValidationError
	_, err := l.Redraw(secrets["alice"])
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonRuleNotEnabled, ve.Reason)

	// The secret is resolved before any rule check.
	_, err = l.Redraw(Secret{Player: secrets["alice"].Player, Token: uuid.New()})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLeaveBelowMinimumEndsGame(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob", "carol")
	startGame(t, l, secrets["alice"])

	conn, _, err := l.RegisterConnection(secrets["bob"], func() {})
	require.NoError(t, err)
	drain(conn.OutChan)

	require.NoError(t, l.Leave(secrets["carol"]))

	assert.False(t, l.GameActive())
	snaps := drain(conn.OutChan)
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.Equal(t, EventGameEnd, last.Event)
	assert.Nil(t, last.Game)

	// A dead secret stays dead.
	_, err = l.Hand(secrets["carol"])
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLeaveEmptiesLobby(t *testing.T) {
	l := newTestLobby(t, Options{})
	var emptied []string
	l.OnEmpty = func(code string) { emptied = append(emptied, code) }

	secrets := join(t, l, "alice")
	require.NoError(t, l.Leave(secrets["alice"]))
	assert.Equal(t, []string{"ABCD"}, emptied)
}

func TestGraceMarksSilentPlayersDisconnected(t *testing.T) {
	l := newTestLobby(t, Options{GracePeriod: 30 * time.Millisecond})
	secrets := join(t, l, "alice", "bob", "carol")

	// Alice opens a connection; the others never do.
	_, _, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, v := range l.Players() {
			if v.Name != "alice" && v.Status != models.StatusDisconnected {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	for _, v := range l.Players() {
		if v.Name == "alice" {
			assert.Equal(t, models.StatusNeutral, v.Status)
		}
	}
}

func TestReconnectWithinGraceStaysNeutral(t *testing.T) {
	l := newTestLobby(t, Options{GracePeriod: 80 * time.Millisecond})
	secrets := join(t, l, "alice")

	conn, _, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)
	l.UnregisterConnection(secrets["alice"].Player, conn)

	// Reconnect before the grace period runs out.
	_, snap, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeutral, snap.Players[0].Status)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, models.StatusNeutral, l.Players()[0].Status)
}

func TestReconnectRestoresDisconnected(t *testing.T) {
	l := newTestLobby(t, Options{GracePeriod: 20 * time.Millisecond})
	secrets := join(t, l, "alice")

	require.Eventually(t, func() bool {
		return l.Players()[0].Status == models.StatusDisconnected
	}, time.Second, 5*time.Millisecond)

	_, snap, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeutral, snap.Players[0].Status)
}

// TestGraceExpiryBelowMinimumEndsGame covers the session ending through the
// grace timer rather than an explicit leave.
func TestGraceExpiryBelowMinimumEndsGame(t *testing.T) {
	l := newTestLobby(t, Options{GracePeriod: 40 * time.Millisecond})
	secrets := join(t, l, "alice", "bob", "carol")

	connA, _, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)
	_, _, err = l.RegisterConnection(secrets["bob"], func() {})
	require.NoError(t, err)

	// Carol never connects; her grace timer fires mid-game.
	startGame(t, l, secrets["alice"])

	require.Eventually(t, func() bool {
		return !l.GameActive()
	}, time.Second, 10*time.Millisecond)

	ends := 0
	for _, s := range drain(connA.OutChan) {
		if s.Event == EventGameEnd {
			ends++
		}
	}
	assert.Equal(t, 1, ends)
	for _, v := range l.Players() {
		assert.Equal(t, models.StatusNeutral, v.Status)
	}
}

func TestAIEntriesNeverGetGraceTimers(t *testing.T) {
	l := newTestLobby(t, Options{GracePeriod: 20 * time.Millisecond})
	secrets := join(t, l, "alice")
	require.NoError(t, l.AddAI(secrets["alice"], "rando"))

	time.Sleep(80 * time.Millisecond)
	for _, v := range l.Players() {
		if v.AI {
			assert.Equal(t, models.StatusNeutral, v.Status)
		}
	}
}

func TestSkipFlow(t *testing.T) {
	l := newTestLobby(t, Options{GracePeriod: 20 * time.Millisecond})
	secrets := join(t, l, "alice", "bob", "carol", "dave", "erin")

	// Everyone but dave connects; dave drops out after the grace period.
	for name, s := range secrets {
		if name == "dave" {
			continue
		}
		_, _, err := l.RegisterConnection(s, func() {})
		require.NoError(t, err)
	}
	startGame(t, l, secrets["alice"])
	require.Eventually(t, func() bool {
		for _, v := range l.Players() {
			if v.Name == "dave" {
				return v.Status == models.StatusDisconnected
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	var ve *ValidationError

	// Targeting a connected player fails the skippable check.
	err := l.Skip(secrets["alice"], []uuid.UUID{secrets["bob"].Player})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMustBeSkippable, ve.Reason)

	// Skipping too many would leave fewer than the minimum playing.
	err = l.Skip(secrets["alice"], []uuid.UUID{
		secrets["dave"].Player, secrets["bob"].Player, secrets["carol"].Player,
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotEnoughToSkip, ve.Reason)

	require.NoError(t, l.Skip(secrets["alice"], []uuid.UUID{secrets["dave"].Player}))
	for _, v := range l.Players() {
		if v.Name == "dave" {
			assert.Equal(t, models.StatusSkipping, v.Status)
		}
	}

	// A player who is not being skipped has nothing to come back from.
	err = l.Back(secrets["alice"])
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotBeingSkipped, ve.Reason)

	// Dave returns.
	require.NoError(t, l.Back(secrets["dave"]))
	for _, v := range l.Players() {
		if v.Name == "dave" {
			assert.Equal(t, models.StatusNeutral, v.Status)
		}
	}
}

func TestSnapshotsAreVersionedAndPerRecipient(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob", "carol")
	startGame(t, l, secrets["alice"])

	connA, snapA, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)
	connB, snapB, err := l.RegisterConnection(secrets["bob"], func() {})
	require.NoError(t, err)

	assert.NotEqual(t, snapA.Hand, snapB.Hand)
	drain(connA.OutChan)
	drain(connB.OutChan)

	czar := czarSecret(t, l, secrets)
	player := secretsOther(secrets, czar)
	playOne(t, l, player)

	snapsA := drain(connA.OutChan)
	require.NotEmpty(t, snapsA)
	last := snapsA[len(snapsA)-1]
	require.NotNil(t, last.Game)
	assert.Equal(t, 1, last.Game.Plays)

	// Versions strictly increase per subscriber.
	prev := snapA.Version
	for _, s := range snapsA {
		assert.Greater(t, s.Version, prev)
		prev = s.Version
	}

	// Each recipient sees their own hand only.
	aliceHand, err := l.Hand(secrets["alice"])
	require.NoError(t, err)
	assert.Equal(t, aliceHand, last.Hand)
	snapsB := drain(connB.OutChan)
	require.NotEmpty(t, snapsB)
	bobHand, err := l.Hand(secrets["bob"])
	require.NoError(t, err)
	assert.Equal(t, bobHand, snapsB[len(snapsB)-1].Hand)
}

func TestRegisterReplacesStaleConnection(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice")

	old, _, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)
	replacement, _, err := l.RegisterConnection(secrets["alice"], func() {})
	require.NoError(t, err)

	// The old channel is closed; unregistering it must not disturb the new one.
	_, open := <-old.OutChan
	for open {
		_, open = <-old.OutChan
	}
	l.UnregisterConnection(secrets["alice"].Player, old)

	assert.True(t, l.Players()[0].Connected)
	drain(replacement.OutChan)
}

// TestFullLobbyLifecycle walks a lobby from join through a botched round to a
// game ended by departure.
func TestFullLobbyLifecycle(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "a", "b", "c")

	connA, _, err := l.RegisterConnection(secrets["a"], func() {})
	require.NoError(t, err)
	connB, _, err := l.RegisterConnection(secrets["b"], func() {})
	require.NoError(t, err)
	drain(connA.OutChan)
	drain(connB.OutChan)

	startGame(t, l, secrets["a"])

	// Exactly one game-start broadcast per subscriber.
	starts := 0
	for _, s := range drain(connA.OutChan) {
		if s.Event == EventGameStart {
			starts++
		}
	}
	assert.Equal(t, 1, starts)

	czar := czarSecret(t, l, secrets)
	player := secretsOther(secrets, czar)

	// A wrong-sized play leaves the hand untouched.
	before, err := l.Hand(player)
	require.NoError(t, err)
	var ve *ValidationError
	_, err = l.PlayCards(player, []uuid.UUID{before[0].ID, before[1].ID})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonWrongCardCount, ve.Reason)
	after, err := l.Hand(player)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Judging has not begun, so any pick is premature.
	err = l.ChooseWinner(czar, 0)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNotJudging, ve.Reason)

	for _, s := range secrets {
		if s == czar {
			continue
		}
		playOne(t, l, s)
	}
	err = l.ChooseWinner(czar, 99)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNoSuchPlay, ve.Reason)

	// Losing one of three players ends the game with a single game-end event.
	drain(connA.OutChan)
	require.NoError(t, l.Leave(secrets["c"]))
	assert.False(t, l.GameActive())
	ends := 0
	for _, s := range drain(connA.OutChan) {
		if s.Event == EventGameEnd {
			ends++
		}
	}
	assert.Equal(t, 1, ends)
	for _, v := range l.Players() {
		assert.Equal(t, models.StatusNeutral, v.Status)
	}
}

func TestMidGameJoinIsDealtIn(t *testing.T) {
	l := newTestLobby(t, Options{})
	secrets := join(t, l, "alice", "bob", "carol")
	startGame(t, l, secrets["alice"])

	s, err := l.Join("dave")
	require.NoError(t, err)
	hand, err := l.Hand(s)
	require.NoError(t, err)
	assert.Len(t, hand, round.HandSize)
}
