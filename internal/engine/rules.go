// internal/engine/rules.go
package engine

// Validation is the result of a pure legality check. Reason is only
// set when IsValid is false and is safe to relay to the player.
type Validation struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}

func valid() Validation {
	return Validation{IsValid: true}
}

func invalid(reason string) Validation {
	return Validation{IsValid: false, Reason: reason}
}

// CanDefend decides whether defense beats attack under the trump
// suit. A non-trump attack falls to any trump or to a higher card of
// its own suit; a trump attack only falls to a higher trump.
func CanDefend(attack, defense Card, trumpSuit Suit) Validation {
	attackIsTrump := IsTrump(attack, trumpSuit)
	defenseIsTrump := IsTrump(defense, trumpSuit)

	if attackIsTrump && defenseIsTrump {
		if Compare(defense, attack) > 0 {
			return valid()
		}
		return invalid("higher trump required")
	}

	if !attackIsTrump && defenseIsTrump {
		return valid()
	}

	if attackIsTrump && !defenseIsTrump {
		return invalid("trump required against trump")
	}

	if attack.Suit == defense.Suit {
		if Compare(defense, attack) > 0 {
			return valid()
		}
		return invalid("higher card required")
	}

	return invalid("same suit or trump required")
}

// CanAttackAppend decides whether newCards may be thrown as attacks
// on top of the existing table. All new cards must share one rank;
// once the table is nonempty that rank must already be on it; and the
// total number of attacks may never exceed the defender's hand size.
func CanAttackAppend(existingAttacks, newCards []Card, defenderHandSize int) Validation {
	if len(newCards) == 0 {
		return invalid("at least one card required")
	}

	firstRank := newCards[0].Rank
	for _, c := range newCards[1:] {
		if c.Rank != firstRank {
			return invalid("all cards must be same rank")
		}
	}

	if len(existingAttacks) > 0 {
		onTable := false
		for _, c := range existingAttacks {
			if c.Rank == firstRank {
				onTable = true
				break
			}
		}
		if !onTable {
			return invalid("must match a rank already on the table")
		}
	}

	if len(existingAttacks)+len(newCards) > defenderHandSize {
		return invalid("cannot exceed defender's hand size")
	}

	return valid()
}

// IsPlayerAttacker reports whether the player currently attacks.
func IsPlayerAttacker(state *GameState, playerID string) bool {
	return state.Turn.AttackerID == playerID
}

// IsPlayerDefender reports whether the player currently defends.
func IsPlayerDefender(state *GameState, playerID string) bool {
	return state.Turn.DefenderID == playerID
}

// AllAttacksDefended reports whether every table pair is resolved.
func AllAttacksDefended(state *GameState) bool {
	for _, pair := range state.Table {
		if !pair.Resolved() {
			return false
		}
	}
	return true
}

// NextTurn computes the attacker/defender pair for the next round.
// A defender who took the table is skipped (the player after them
// attacks); a defender who repelled every attack becomes the next
// attacker. Empty-handed players are skipped for both roles. The
// second return value is false when no live attacker/defender pair
// exists; the previous turn is then returned unchanged. That branch
// should only ever be reached once the game is already over, so
// callers treat ok == false on a live game as a bug signal.
func NextTurn(state *GameState, players Players, defenderTookCards bool) (Turn, bool) {
	order := state.PlayersOrder
	defenderIndex := indexOf(order, state.Turn.DefenderID)

	attackerIndex := defenderIndex
	if defenderTookCards {
		attackerIndex = (defenderIndex + 1) % len(order)
	}

	for range order {
		attackerID := order[attackerIndex]
		if p, ok := players[attackerID]; ok && len(p.Hand) > 0 {
			nextIndex := (attackerIndex + 1) % len(order)
			for nextIndex != attackerIndex {
				defenderID := order[nextIndex]
				if d, ok := players[defenderID]; ok && len(d.Hand) > 0 {
					return Turn{AttackerID: attackerID, DefenderID: defenderID}, true
				}
				nextIndex = (nextIndex + 1) % len(order)
			}
		}
		attackerIndex = (attackerIndex + 1) % len(order)
	}

	return state.Turn, false
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return 0
}
