// internal/engine/actions.go
package engine

import "time"

// Every action handler validates fully before touching any state, so
// a failing call leaves the state, hands and deck byte-for-byte
// unchanged.

// playAttack throws one or more same-ranked cards from the attacker's
// hand onto the table as new unresolved pairs.
func playAttack(state *GameState, players Players, action PlayAttack) GameResult {
	if state.Phase != PhaseAttacking {
		return failure("not in attacking phase")
	}
	if state.Turn.AttackerID != action.PlayerID {
		return failure("not your turn to attack")
	}

	player, ok := players[action.PlayerID]
	if !ok {
		return failure("player not found")
	}
	defender, ok := players[state.Turn.DefenderID]
	if !ok {
		return failure("defender not found")
	}

	// Resolve the claimed cards against the hand: the hand's copies
	// are authoritative, and a card may not be named twice.
	cards := make([]Card, 0, len(action.Cards))
	seen := make(map[string]bool, len(action.Cards))
	for _, claimed := range action.Cards {
		if seen[claimed.ID] {
			return failure("duplicate card in attack")
		}
		seen[claimed.ID] = true
		c, ok := player.cardByID(claimed.ID)
		if !ok {
			return failure("you do not own this card")
		}
		cards = append(cards, c)
	}

	existing := make([]Card, len(state.Table))
	for i, pair := range state.Table {
		existing[i] = pair.Attack
	}
	if v := CanAttackAppend(existing, cards, len(defender.Hand)); !v.IsValid {
		return failure(v.Reason)
	}

	for _, c := range cards {
		player.removeCard(c.ID)
		state.Table = append(state.Table, TablePair{Attack: c})
	}
	state.Phase = PhaseDefending
	state.LastActionAt = time.Now().UnixMilli()

	return success(state)
}

// playDefense beats one specific attack with a card from the
// defender's hand. Once every pair is resolved the attacker may throw
// again, so the phase flips back to attacking.
func playDefense(state *GameState, players Players, action PlayDefense) GameResult {
	if state.Phase != PhaseDefending {
		return failure("not in defending phase")
	}
	if state.Turn.DefenderID != action.PlayerID {
		return failure("not your turn to defend")
	}

	player, ok := players[action.PlayerID]
	if !ok {
		return failure("player not found")
	}
	card, ok := player.cardByID(action.Card.ID)
	if !ok {
		return failure("you do not own this card")
	}

	if action.AttackIndex < 0 || action.AttackIndex >= len(state.Table) {
		return failure("invalid attack index")
	}
	pair := &state.Table[action.AttackIndex]
	if pair.Resolved() {
		return failure("already defended")
	}

	if v := CanDefend(pair.Attack, card, state.TrumpSuit); !v.IsValid {
		return failure(v.Reason)
	}

	player.removeCard(card.ID)
	pair.Defense = &card

	if AllAttacksDefended(state) {
		state.Phase = PhaseAttacking
	}
	state.LastActionAt = time.Now().UnixMilli()

	return success(state)
}

// takeCards makes the defender absorb the entire table, resolved
// pairs included, and hands the round to the draw phase.
func takeCards(state *GameState, players Players, action Take) GameResult {
	if state.Phase != PhaseDefending {
		return failure("not in defending phase")
	}
	if state.Turn.DefenderID != action.PlayerID {
		return failure("not your turn to defend")
	}

	player, ok := players[action.PlayerID]
	if !ok {
		return failure("player not found")
	}

	for _, pair := range state.Table {
		player.addCards(pair.Attack)
		if pair.Defense != nil {
			player.addCards(*pair.Defense)
		}
	}
	state.Table = []TablePair{}
	state.Phase = PhaseDraw
	state.LastActionAt = time.Now().UnixMilli()

	return success(state)
}

// endTurn closes a fully-defended round: every table card goes to the
// discard pile (tracked only as a count) and the draw phase begins.
func endTurn(state *GameState, players Players, action EndTurn) GameResult {
	if state.Phase != PhaseAttacking {
		return failure("not in attacking phase")
	}
	if state.Turn.AttackerID != action.PlayerID {
		return failure("not your turn to attack")
	}
	if !AllAttacksDefended(state) {
		return failure("unresolved attacks remain")
	}

	state.DiscardCount += len(state.Table) * 2 // attack + defense per pair
	state.Table = []TablePair{}
	state.Phase = PhaseDraw
	state.LastActionAt = time.Now().UnixMilli()

	return success(state)
}
