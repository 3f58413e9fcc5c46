// internal/engine/card.go
package engine

// Suit is one of the four French suits, encoded as a single letter.
type Suit string

const (
	SuitSpades   Suit = "S"
	SuitHearts   Suit = "H"
	SuitDiamonds Suit = "D"
	SuitClubs    Suit = "C"
)

// Suits lists every suit in deck-construction order.
var Suits = []Suit{SuitSpades, SuitHearts, SuitDiamonds, SuitClubs}

// Rank is the face value of a card. A 36-card deck runs 6..A; a
// 52-card deck adds 2..5.
type Rank string

const (
	Rank2     Rank = "2"
	Rank3     Rank = "3"
	Rank4     Rank = "4"
	Rank5     Rank = "5"
	Rank6     Rank = "6"
	Rank7     Rank = "7"
	Rank8     Rank = "8"
	Rank9     Rank = "9"
	Rank10    Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
	RankAce   Rank = "A"
)

// ranks36 covers the standard short deck, lowest first.
var ranks36 = []Rank{Rank6, Rank7, Rank8, Rank9, Rank10, RankJack, RankQueen, RankKing, RankAce}

// ranks52 covers the full deck, lowest first.
var ranks52 = []Rank{Rank2, Rank3, Rank4, Rank5, Rank6, Rank7, Rank8, Rank9, Rank10, RankJack, RankQueen, RankKing, RankAce}

// rankValues maps every rank to its strength (2..14, ace highest).
var rankValues = map[Rank]int{
	Rank2: 2, Rank3: 3, Rank4: 4, Rank5: 5,
	Rank6: 6, Rank7: 7, Rank8: 8, Rank9: 9, Rank10: 10,
	RankJack: 11, RankQueen: 12, RankKing: 13, RankAce: 14,
}

// Card is an immutable card identity. ID is derived from suit and
// rank, so the same logical card always carries the same ID; no two
// cards in one deck share an ID.
type Card struct {
	ID   string `json:"id"`
	Suit Suit   `json:"suit"`
	Rank Rank   `json:"rank"`
}

// NewCard builds a card with its canonical suit-rank ID (e.g. "S-6").
func NewCard(suit Suit, rank Rank) Card {
	return Card{
		ID:   string(suit) + "-" + string(rank),
		Suit: suit,
		Rank: rank,
	}
}

// RankValue returns the numeric strength of the card (6..14 in a
// 36-card game, ace highest). Suit never contributes to ordering.
func RankValue(c Card) int {
	return rankValues[c.Rank]
}

// Compare orders two cards by rank value only: -1 if a < b, 1 if
// a > b, 0 on equal rank.
func Compare(a, b Card) int {
	va, vb := RankValue(a), RankValue(b)
	switch {
	case va < vb:
		return -1
	case va > vb:
		return 1
	default:
		return 0
	}
}

// IsTrump reports whether the card belongs to the trump suit.
func IsTrump(c Card, trumpSuit Suit) bool {
	return c.Suit == trumpSuit
}

// FindLowestTrump returns the lowest-ranked trump card in the hand,
// or false if the hand holds no trump.
func FindLowestTrump(hand []Card, trumpSuit Suit) (Card, bool) {
	var lowest Card
	found := false
	for _, c := range hand {
		if !IsTrump(c, trumpSuit) {
			continue
		}
		if !found || Compare(c, lowest) < 0 {
			lowest = c
			found = true
		}
	}
	return lowest, found
}

// Deck is an ordered sequence of cards. Cards leave from the front
// (the "top" of the physical stack); the last card is the trump
// indicator at the bottom.
type Deck []Card

// NewDeck builds a full, unshuffled deck for the given settings.
// UseJokers is a reserved setting and is ignored here.
func NewDeck(settings GameSettings) Deck {
	ranks := ranks36
	if settings.DeckSize == DeckSize52 {
		ranks = ranks52
	}
	deck := make(Deck, 0, len(Suits)*len(ranks))
	for _, suit := range Suits {
		for _, rank := range ranks {
			deck = append(deck, NewCard(suit, rank))
		}
	}
	return deck
}

// Draw removes and returns up to n cards from the front of the deck.
func (d *Deck) Draw(n int) []Card {
	if n > len(*d) {
		n = len(*d)
	}
	if n <= 0 {
		return nil
	}
	drawn := make([]Card, n)
	copy(drawn, (*d)[:n])
	*d = (*d)[n:]
	return drawn
}
