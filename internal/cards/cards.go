package cards

import (
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// Suit order doubles as the tiebreak order for auto-played cards:
// Clubs < Diamonds < Hearts < Spades.
type Suit int

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

var suitNames = map[Suit]string{
	Clubs:    "Clubs",
	Diamonds: "Diamonds",
	Hearts:   "Hearts",
	Spades:   "Spades",
}

var suitValues = map[string]Suit{
	"Clubs":    Clubs,
	"Diamonds": Diamonds,
	"Hearts":   Hearts,
	"Spades":   Spades,
}

func (s Suit) String() string {
	return suitNames[s]
}

func (s Suit) MarshalJSON() ([]byte, error) {
	name, ok := suitNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown suit %d", int(s))
	}
	return json.Marshal(name)
}

func (s *Suit) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := suitValues[name]
	if !ok {
		return fmt.Errorf("unknown suit %q", name)
	}
	*s = v
	return nil
}

type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankNames = map[Rank]string{
	Two:   "Two",
	Three: "Three",
	Four:  "Four",
	Five:  "Five",
	Six:   "Six",
	Seven: "Seven",
	Eight: "Eight",
	Nine:  "Nine",
	Ten:   "Ten",
	Jack:  "Jack",
	Queen: "Queen",
	King:  "King",
	Ace:   "Ace",
}

var rankValues = map[string]Rank{}

func init() {
	for r, name := range rankNames {
		rankValues[name] = r
	}
}

func (r Rank) String() string {
	return rankNames[r]
}

func (r Rank) MarshalJSON() ([]byte, error) {
	name, ok := rankNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown rank %d", int(r))
	}
	return json.Marshal(name)
}

func (r *Rank) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := rankValues[name]
	if !ok {
		return fmt.Errorf("unknown rank %q", name)
	}
	*r = v
	return nil
}

type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}

// Less orders cards by rank, suit as tiebreak. Used to pick the
// deterministic auto-play card on turn timeout.
func (c Card) Less(other Card) bool {
	if c.Rank != other.Rank {
		return c.Rank < other.Rank
	}
	return c.Suit < other.Suit
}

type Deck []Card

// NewShuffledDeck builds all 52 cards and applies a Fisher-Yates shuffle
// driven by a ChaCha8 source seeded from crypto/rand.
func NewShuffledDeck() Deck {
	deck := make(Deck, 0, 52)
	for _, suit := range []Suit{Clubs, Diamonds, Hearts, Spades} {
		for rank := Two; rank <= Ace; rank++ {
			deck = append(deck, Card{Suit: suit, Rank: rank})
		}
	}

	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("cards: reading shuffle seed: %v", err))
	}
	rng := rand.New(rand.NewChaCha8(seed))
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	return deck
}

// Deal distributes k cards to each of n players in rotation from the top
// of the deck. hands[0] belongs to whoever receives the first card.
// The undealt remainder is returned alongside.
func Deal(deck Deck, n, k int) (hands [][]Card, remainder Deck) {
	hands = make([][]Card, n)
	for i := range hands {
		hands[i] = make([]Card, 0, k)
	}
	for c := range k {
		for p := range n {
			hands[p] = append(hands[p], deck[c*n+p])
		}
	}
	return hands, deck[n*k:]
}

// Beats reports whether a wins over b given the trick's lead suit and the
// round's trump suit. A trump beats any non-trump; a lead-suit card beats
// any non-lead non-trump; within a suit, higher rank wins. A card that is
// neither trump nor lead suit cannot win.
func Beats(a, b Card, lead Suit, trump *Suit) bool {
	if trump != nil {
		aTrump := a.Suit == *trump
		bTrump := b.Suit == *trump
		if aTrump != bTrump {
			return aTrump
		}
		if aTrump && bTrump {
			return a.Rank > b.Rank
		}
	}

	aLead := a.Suit == lead
	bLead := b.Suit == lead
	if aLead != bLead {
		return aLead
	}
	if aLead && bLead {
		return a.Rank > b.Rank
	}
	return false
}

// Play is one card laid into the current trick. It marshals as the
// two-element array [player_id, card] used by the wire protocol.
type Play struct {
	Player string
	Card   Card
}

func (p Play) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Player, p.Card})
}

func (p *Play) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("play entry must have 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Player); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Card)
}

// TrickWinner resolves a completed trick to the winning player. Ties are
// impossible: every card in a round is unique.
func TrickWinner(plays []Play, lead Suit, trump *Suit) string {
	winner := plays[0]
	for _, play := range plays[1:] {
		if Beats(play.Card, winner.Card, lead, trump) {
			winner = play
		}
	}
	return winner.Player
}

// ScoreRound applies the German Bridge scoring formula: an exact bid is
// worth 10 + bid², a missed bid costs the squared distance.
func ScoreRound(bid, tricksWon int) int {
	if bid == tricksWon {
		return 10 + bid*bid
	}
	diff := tricksWon - bid
	return -(diff * diff)
}
