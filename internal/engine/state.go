// internal/engine/state.go
package engine

import (
	"fmt"
	"time"
)

// InitialHandSize is the number of cards dealt to every player and
// the level hands refill to during the draw phase.
const InitialHandSize = 6

// MinPlayers is the smallest legal table.
const MinPlayers = 2

// DeckSize selects which physical deck a game is played with.
const (
	DeckSize36 = "36"
	DeckSize52 = "52"
)

// Phase tags the game state machine. The engine only ever produces
// attacking, defending, draw and finished; lobby exists for rooms
// that have not started a game yet.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseAttacking Phase = "attacking"
	PhaseDefending Phase = "defending"
	PhaseDraw      Phase = "draw"
	PhaseFinished  Phase = "finished"
)

// GameSettings are fixed at game creation. AllowReinforceFromOthers
// and UseJokers are reserved for rule variants and not enforced by
// any current rule.
type GameSettings struct {
	AllowReinforceFromOthers bool   `json:"allowReinforceFromOthers"`
	UseJokers                bool   `json:"useJokers"`
	DeckSize                 string `json:"deckSize"`
}

// DefaultSettings returns the standard 36-card configuration.
func DefaultSettings() GameSettings {
	return GameSettings{
		AllowReinforceFromOthers: false,
		UseJokers:                false,
		DeckSize:                 DeckSize36,
	}
}

// TablePair is one attack on the table and, once beaten, its defense.
type TablePair struct {
	Attack  Card  `json:"attack"`
	Defense *Card `json:"defense,omitempty"`
}

// Resolved reports whether the attack has been beaten.
func (p TablePair) Resolved() bool {
	return p.Defense != nil
}

// Turn names the two active roles.
type Turn struct {
	AttackerID string `json:"attackerId"`
	DefenderID string `json:"defenderId"`
}

// GameState is the public, shareable state of one game. Hands live
// separately in the Players map so this struct can be broadcast
// without leaking card identities.
type GameState struct {
	RoomID       string       `json:"roomId"`
	PlayersOrder []string     `json:"playersOrder"`
	Turn         Turn         `json:"turn"`
	TrumpSuit    Suit         `json:"trumpSuit"`
	DeckCount    int          `json:"deckCount"`
	DiscardCount int          `json:"discardCount"`
	Table        []TablePair  `json:"table"`
	Phase        Phase        `json:"phase"`
	LastActionAt int64        `json:"lastActionAt"`
	WinnerIDs    []string     `json:"winnerIds,omitempty"`
	LoserID      string       `json:"loserId,omitempty"`
	Settings     GameSettings `json:"settings"`
}

// Clone returns a deep copy of the state, safe to hand to another
// goroutine while the original keeps mutating under its room lock.
func (s *GameState) Clone() *GameState {
	c := *s
	c.PlayersOrder = append([]string(nil), s.PlayersOrder...)
	c.WinnerIDs = append([]string(nil), s.WinnerIDs...)
	c.Table = make([]TablePair, len(s.Table))
	for i, pair := range s.Table {
		c.Table[i] = pair
		if pair.Defense != nil {
			d := *pair.Defense
			c.Table[i].Defense = &d
		}
	}
	return &c
}

// PrivatePlayer is one player's full view of themselves, including
// the hand. HandCount is kept in sync with len(Hand) so collaborators
// that only see the public projection still learn hand sizes.
type PrivatePlayer struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	Hand        []Card `json:"hand"`
	HandCount   int    `json:"handCount"`
	IsConnected bool   `json:"isConnected"`
}

// Players maps player id to their private state. The map is owned by
// the room layer and passed by reference into every engine call; the
// engine holds no state of its own between calls.
type Players map[string]*PrivatePlayer

// cardByID returns the hand's own copy of the card with the given id.
func (p *PrivatePlayer) cardByID(cardID string) (Card, bool) {
	for _, c := range p.Hand {
		if c.ID == cardID {
			return c, true
		}
	}
	return Card{}, false
}

// removeCard deletes the card with the given id from the hand and
// refreshes HandCount.
func (p *PrivatePlayer) removeCard(cardID string) {
	for i, c := range p.Hand {
		if c.ID == cardID {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			break
		}
	}
	p.HandCount = len(p.Hand)
}

// addCards appends cards to the hand and refreshes HandCount.
func (p *PrivatePlayer) addCards(cards ...Card) {
	p.Hand = append(p.Hand, cards...)
	p.HandCount = len(p.Hand)
}

// CreateGame builds a fresh game: shuffles the deck with the given
// seed (or a newly generated one when seed is empty), designates the
// trump from the bottom card, deals six cards to every player in
// playerIDs order, and picks the first attacker as the holder of the
// lowest trump. Returns an error only on precondition violations the
// caller should have prevented: fewer than two distinct players, or
// a deck too small for the deal.
func CreateGame(roomID string, playerIDs []string, settings GameSettings, seed string) (*GameState, Players, *Deck, error) {
	if len(playerIDs) < MinPlayers {
		return nil, nil, nil, fmt.Errorf("need at least %d players, got %d", MinPlayers, len(playerIDs))
	}
	seen := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		if seen[id] {
			return nil, nil, nil, fmt.Errorf("duplicate player id %q", id)
		}
		seen[id] = true
	}

	if seed == "" {
		seed = GenerateSeed()
	}
	deck := Deck(Shuffle(NewDeck(settings), seed))
	if len(deck) < len(playerIDs)*InitialHandSize {
		return nil, nil, nil, fmt.Errorf("deck of %d cannot deal %d players", len(deck), len(playerIDs))
	}

	// The bottom card stays in the deck but fixes the trump suit; it
	// is simply the last card dealt out.
	trumpSuit := deck[len(deck)-1].Suit

	players := make(Players, len(playerIDs))
	for i, id := range playerIDs {
		hand := deck.Draw(InitialHandSize)
		players[id] = &PrivatePlayer{
			ID:          id,
			Nickname:    fmt.Sprintf("Player %d", i+1), // room layer overwrites
			Hand:        hand,
			HandCount:   len(hand),
			IsConnected: true,
		}
	}

	attackerID := findFirstAttacker(playerIDs, players, trumpSuit)
	attackerIndex := 0
	for i, id := range playerIDs {
		if id == attackerID {
			attackerIndex = i
			break
		}
	}
	defenderID := playerIDs[(attackerIndex+1)%len(playerIDs)]

	order := make([]string, len(playerIDs))
	copy(order, playerIDs)

	state := &GameState{
		RoomID:       roomID,
		PlayersOrder: order,
		Turn:         Turn{AttackerID: attackerID, DefenderID: defenderID},
		TrumpSuit:    trumpSuit,
		DeckCount:    len(deck),
		DiscardCount: 0,
		Table:        []TablePair{},
		Phase:        PhaseAttacking,
		LastActionAt: time.Now().UnixMilli(),
		Settings:     settings,
	}
	return state, players, &deck, nil
}

// findFirstAttacker picks the holder of the lowest trump across all
// hands, scanning in playerIDs order so ties resolve
// deterministically. With no trump in play, the first listed player
// attacks.
func findFirstAttacker(playerIDs []string, players Players, trumpSuit Suit) string {
	best := ""
	var bestCard Card
	for _, id := range playerIDs {
		c, ok := FindLowestTrump(players[id].Hand, trumpSuit)
		if !ok {
			continue
		}
		if best == "" || Compare(c, bestCard) < 0 {
			best = id
			bestCard = c
		}
	}
	if best == "" {
		return playerIDs[0]
	}
	return best
}

// DrawUpToSix refills hands from the deck front in drawOrder
// (attacker first, then defender) until each hand holds six cards or
// the deck runs out, whichever comes first.
func DrawUpToSix(players Players, deck *Deck, drawOrder []string) {
	for _, id := range drawOrder {
		p, ok := players[id]
		if !ok {
			continue
		}
		needed := InitialHandSize - len(p.Hand)
		if needed > 0 {
			p.addCards(deck.Draw(needed)...)
		}
		if len(*deck) == 0 {
			break
		}
	}
}

// IsGameOver reports whether play can no longer continue: the deck is
// empty and at most one player still holds cards. While the deck is
// nonempty, refills always keep play possible.
func IsGameOver(state *GameState, players Players) bool {
	if state.DeckCount != 0 {
		return false
	}
	withCards := 0
	for _, p := range players {
		if len(p.Hand) > 0 {
			withCards++
		}
	}
	return withCards <= 1
}

// FinishGame records the outcome: the one player still holding cards
// is the durak (LoserID), everyone else wins. Phase becomes Finished,
// which is terminal.
func FinishGame(state *GameState, players Players) {
	state.Phase = PhaseFinished
	state.WinnerIDs = nil
	state.LoserID = ""
	for _, id := range state.PlayersOrder {
		p, ok := players[id]
		if ok && len(p.Hand) > 0 {
			state.LoserID = id
		} else {
			state.WinnerIDs = append(state.WinnerIDs, id)
		}
	}
	state.LastActionAt = time.Now().UnixMilli()
}
