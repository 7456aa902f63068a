// internal/lobby/config.go
package lobby

import "github.com/jason-s-yu/blanks/internal/models"

// Config is the deck list and house-rule set for one lobby. Pure data: only
// the orchestrator mutates it, under the lobby lock. It implements
// round.Rules so the engine can consult the live rule set.
type Config struct {
	decks []models.Deck
	rules map[models.HouseRule]bool
}

func NewConfig() *Config {
	return &Config{rules: make(map[models.HouseRule]bool)}
}

// AddDeck appends a fetched deck.
func (c *Config) AddDeck(d models.Deck) {
	c.decks = append(c.decks, d)
}

// Decks returns the added decks in insertion order.
func (c *Config) Decks() []models.Deck {
	out := make([]models.Deck, len(c.decks))
	copy(out, c.decks)
	return out
}

// AddHouseRule enables a rule. Idempotent; reports whether anything changed.
func (c *Config) AddHouseRule(r models.HouseRule) bool {
	if c.rules[r] {
		return false
	}
	c.rules[r] = true
	return true
}

// RemoveHouseRule disables a rule. Idempotent; reports whether anything
// changed.
func (c *Config) RemoveHouseRule(r models.HouseRule) bool {
	if !c.rules[r] {
		return false
	}
	delete(c.rules, r)
	return true
}

// Enabled reports whether a rule is on. Satisfies round.Rules.
func (c *Config) Enabled(r models.HouseRule) bool {
	return c.rules[r]
}

// HouseRules lists the enabled rules.
func (c *Config) HouseRules() []models.HouseRule {
	out := make([]models.HouseRule, 0, len(c.rules))
	for r := range c.rules {
		out = append(out, r)
	}
	return out
}
