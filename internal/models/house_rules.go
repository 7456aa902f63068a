// internal/models/house_rules.go
package models

// HouseRule identifies an optional gameplay-modifying toggle. The universe of
// recognized rules is fixed here; free-form identifiers are rejected at the
// edge.
type HouseRule string

const (
	// RuleReboot lets a player spend a point to discard and redraw their
	// entire hand.
	RuleReboot HouseRule = "reboot"

	// RulePackingHeat deals one extra response card for calls that pick two
	// or more, so multi-card plays aren't starved.
	RulePackingHeat HouseRule = "packing_heat"

	// RuleRando makes AI roster entries submit a random play every round.
	// While disabled, AI players sit rounds out.
	RuleRando HouseRule = "rando"
)

// RebootCost is the number of points a redraw costs under RuleReboot.
const RebootCost = 1

// KnownHouseRules is the full set of togglable rules.
var KnownHouseRules = map[HouseRule]bool{
	RuleReboot:      true,
	RulePackingHeat: true,
	RuleRando:       true,
}

// Valid reports whether r names a rule from the fixed universe.
func (r HouseRule) Valid() bool {
	return KnownHouseRules[r]
}
