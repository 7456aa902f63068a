// internal/lobby/errors.go
package lobby

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/blanks/internal/round"
)

// Reason is a stable machine-readable code for a rejected precondition.
// Clients localize their own messages from it.
type Reason string

const (
	ReasonNameInUse        Reason = "name_in_use"
	ReasonGameInProgress   Reason = "game_in_progress"
	ReasonNoGame           Reason = "no_game"
	ReasonNotInRound       Reason = "not_in_round"
	ReasonAlreadyPlayed    Reason = "already_played"
	ReasonAlreadyJudging   Reason = "already_judging"
	ReasonWrongCardCount   Reason = "wrong_card_count"
	ReasonInvalidCardID    Reason = "invalid_card_id"
	ReasonNotCzar          Reason = "not_czar"
	ReasonNotJudging       Reason = "not_judging"
	ReasonNoSuchPlay       Reason = "no_such_play"
	ReasonAlreadyJudged    Reason = "already_judged"
	ReasonNotEnoughToSkip  Reason = "not_enough_to_skip"
	ReasonMustBeSkippable  Reason = "must_be_skippable"
	ReasonNotBeingSkipped  Reason = "not_being_skipped"
	ReasonRuleNotEnabled   Reason = "rule_not_enabled"
	ReasonNotEnoughPoints  Reason = "not_enough_points"
	ReasonNotEnoughCards   Reason = "not_enough_cards"
	ReasonNotEnoughPlayers Reason = "not_enough_players"
	ReasonDeckNotFound     Reason = "deck_not_found"
	ReasonUnknownRule      Reason = "unknown_rule"
)

var (
	// ErrUnauthenticated rejects a missing or invalid secret. It is an
	// authorization failure, not a validation one.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUpstreamTimeout reports that the deck catalog lookup blew its
	// budget. Configuration is left untouched when it occurs.
	ErrUpstreamTimeout = errors.New("deck catalog lookup timed out")
)

// ValidationError is a failed domain precondition, surfaced verbatim to the
// client. Context carries structured detail (e.g. got/expected card counts).
type ValidationError struct {
	Reason  Reason                 `json:"reason"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Context) > 0 {
		return fmt.Sprintf("validation failed: %s %v", e.Reason, e.Context)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func failed(reason Reason) *ValidationError {
	return &ValidationError{Reason: reason}
}

func failedCtx(reason Reason, ctx map[string]interface{}) *ValidationError {
	return &ValidationError{Reason: reason, Context: ctx}
}

// mapRoundErr translates engine errors into the client-visible taxonomy.
// Anything unrecognized passes through unchanged.
func mapRoundErr(err error) error {
	if err == nil {
		return nil
	}
	var wcc *round.WrongCardCountError
	if errors.As(err, &wcc) {
		return failedCtx(ReasonWrongCardCount, map[string]interface{}{
			"got":      wcc.Got,
			"expected": wcc.Expected,
		})
	}
	switch {
	case errors.Is(err, round.ErrNotInRound):
		return failed(ReasonNotInRound)
	case errors.Is(err, round.ErrAlreadyPlayed):
		return failed(ReasonAlreadyPlayed)
	case errors.Is(err, round.ErrAlreadyJudging):
		return failed(ReasonAlreadyJudging)
	case errors.Is(err, round.ErrInvalidCardID):
		return failed(ReasonInvalidCardID)
	case errors.Is(err, round.ErrNotCzar):
		return failed(ReasonNotCzar)
	case errors.Is(err, round.ErrNotJudging):
		return failed(ReasonNotJudging)
	case errors.Is(err, round.ErrNoSuchPlay):
		return failed(ReasonNoSuchPlay)
	case errors.Is(err, round.ErrAlreadyJudged):
		return failed(ReasonAlreadyJudged)
	case errors.Is(err, round.ErrNotEnoughPoints):
		return failed(ReasonNotEnoughPoints)
	case errors.Is(err, round.ErrNoCards):
		return failed(ReasonNotEnoughCards)
	}
	return err
}
