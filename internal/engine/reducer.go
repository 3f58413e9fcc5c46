// internal/engine/reducer.go
package engine

// Action is the tagged union of everything a player can submit. Each
// variant carries only the acting player's claimed identity and its
// payload; Apply is the sole authority on legality.
type Action interface {
	// ActorID is the player the action claims to come from. The
	// caller is responsible for authenticating the claim.
	ActorID() string
	isAction()
}

// PlayAttack throws cards onto the table as new attacks.
type PlayAttack struct {
	PlayerID string `json:"playerId"`
	Cards    []Card `json:"cards"`
}

// PlayDefense beats the attack at AttackIndex with Card.
type PlayDefense struct {
	PlayerID    string `json:"playerId"`
	AttackIndex int    `json:"attackIndex"`
	Card        Card   `json:"card"`
}

// Take absorbs the whole table into the defender's hand.
type Take struct {
	PlayerID string `json:"playerId"`
}

// EndTurn discards a fully-defended table and ends the round.
type EndTurn struct {
	PlayerID string `json:"playerId"`
}

func (a PlayAttack) ActorID() string  { return a.PlayerID }
func (a PlayDefense) ActorID() string { return a.PlayerID }
func (a Take) ActorID() string        { return a.PlayerID }
func (a EndTurn) ActorID() string     { return a.PlayerID }

func (PlayAttack) isAction()  {}
func (PlayDefense) isAction() {}
func (Take) isAction()        {}
func (EndTurn) isAction()     {}

// GameResult is the discriminated outcome of one Apply call: either
// NewState is set, or Error carries a reason the caller can relay
// verbatim to the offending player.
type GameResult struct {
	Success  bool       `json:"success"`
	NewState *GameState `json:"newState,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func success(state *GameState) GameResult {
	return GameResult{Success: true, NewState: state}
}

func failure(reason string) GameResult {
	return GameResult{Success: false, Error: reason}
}

// Apply is the single entry point of the state machine: it dispatches
// one action against the state/hands/deck triple and returns either
// the updated state or a typed failure. Failed calls never mutate
// anything. The engine performs no locking; callers must serialize
// Apply calls per game. Draw refill and turn rotation are the
// caller's job once the phase reaches draw.
func Apply(state *GameState, players Players, deck *Deck, action Action) GameResult {
	if state.Phase == PhaseFinished {
		return failure("game is already finished")
	}
	_ = deck // no current action consumes the deck directly

	switch a := action.(type) {
	case PlayAttack:
		return playAttack(state, players, a)
	case PlayDefense:
		return playDefense(state, players, a)
	case Take:
		return takeCards(state, players, a)
	case EndTurn:
		return endTurn(state, players, a)
	default:
		return failure("unknown action type")
	}
}
