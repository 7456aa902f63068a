// internal/models/card.go
package models

import "github.com/google/uuid"

// CallCard is a prompt card. Pick is how many response cards a play needs to
// fill its blanks.
type CallCard struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Pick int       `json:"pick"`
}

// ResponseCard is a single answer card held in a player's hand.
type ResponseCard struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// Deck is a named set of call and response cards, looked up from the deck
// catalog by its public code.
type Deck struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Calls     []CallCard     `json:"calls"`
	Responses []ResponseCard `json:"responses"`
}
