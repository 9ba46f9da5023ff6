package cards

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewShuffledDeck_Complete(t *testing.T) {
	assert := assert.New(t)

	deck := NewShuffledDeck()
	assert.Equal(52, len(deck))

	// All 52 cards distinct
	seen := make(map[Card]bool)
	for _, c := range deck {
		assert.False(seen[c], "duplicate card %s", c)
		seen[c] = true
	}
}

func TestNewShuffledDeck_Shuffled(t *testing.T) {
	// Two decks agreeing on every position would mean the shuffle is broken
	// (probability ~1/52! otherwise).
	a := NewShuffledDeck()
	b := NewShuffledDeck()

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	assert.False(t, same, "two shuffles produced identical decks")
}

func TestDeal_Rotation(t *testing.T) {
	assert := assert.New(t)

	deck := NewShuffledDeck()
	hands, remainder := Deal(deck, 4, 3)

	assert.Equal(4, len(hands))
	for _, h := range hands {
		assert.Equal(3, len(h))
	}
	assert.Equal(52-12, len(remainder))

	// Cards are dealt one at a time around the table.
	assert.Equal(deck[0], hands[0][0])
	assert.Equal(deck[1], hands[1][0])
	assert.Equal(deck[4], hands[0][1])
	assert.Equal(deck[12], remainder[0])
}

func TestDeal_FullDeck(t *testing.T) {
	deck := NewShuffledDeck()
	hands, remainder := Deal(deck, 4, 13)

	assert.Empty(t, remainder)
	for _, h := range hands {
		assert.Equal(t, 13, len(h))
	}
}

func TestBeats_SameSuit(t *testing.T) {
	assert := assert.New(t)

	ace := Card{Hearts, Ace}
	king := Card{Hearts, King}

	assert.True(Beats(ace, king, Hearts, nil))
	assert.False(Beats(king, ace, Hearts, nil))
}

func TestBeats_LeadBeatsOffsuit(t *testing.T) {
	assert := assert.New(t)

	leadTwo := Card{Hearts, Two}
	offAce := Card{Spades, Ace}

	assert.True(Beats(leadTwo, offAce, Hearts, nil))
	assert.False(Beats(offAce, leadTwo, Hearts, nil))
}

func TestBeats_TrumpBeatsLead(t *testing.T) {
	assert := assert.New(t)

	trump := Diamonds
	trumpTwo := Card{Diamonds, Two}
	leadAce := Card{Hearts, Ace}

	assert.True(Beats(trumpTwo, leadAce, Hearts, &trump))
	assert.False(Beats(leadAce, trumpTwo, Hearts, &trump))
}

func TestBeats_HigherTrumpWins(t *testing.T) {
	trump := Clubs
	assert.True(t, Beats(Card{Clubs, King}, Card{Clubs, Two}, Hearts, &trump))
	assert.False(t, Beats(Card{Clubs, Two}, Card{Clubs, King}, Hearts, &trump))
}

func TestBeats_OffsuitNeverWins(t *testing.T) {
	trump := Clubs
	assert.False(t, Beats(Card{Spades, Ace}, Card{Diamonds, Three}, Hearts, &trump))
}

func TestTrickWinner_TrumpOverLead(t *testing.T) {
	// trump=Diamonds, lead=Hearts: the low trump takes it over both hearts
	// and the offsuit ace.
	trump := Diamonds
	plays := []Play{
		{"P1", Card{Hearts, King}},
		{"P2", Card{Hearts, Ace}},
		{"P3", Card{Diamonds, Two}},
		{"P4", Card{Clubs, Ace}},
	}

	assert.Equal(t, "P3", TrickWinner(plays, Hearts, &trump))
}

func TestTrickWinner_NoTrump(t *testing.T) {
	plays := []Play{
		{"P1", Card{Hearts, Ten}},
		{"P2", Card{Hearts, Ace}},
		{"P3", Card{Spades, King}},
	}

	assert.Equal(t, "P2", TrickWinner(plays, Hearts, nil))
}

func TestTrickWinner_LeadHolds(t *testing.T) {
	trump := Clubs
	plays := []Play{
		{"P1", Card{Hearts, Two}},
		{"P2", Card{Spades, Ace}},
		{"P3", Card{Diamonds, Ace}},
	}

	assert.Equal(t, "P1", TrickWinner(plays, Hearts, &trump))
}

func TestScoreRound(t *testing.T) {
	assert := assert.New(t)

	// Exact bid: 10 + bid²
	assert.Equal(10, ScoreRound(0, 0))
	assert.Equal(11, ScoreRound(1, 1))
	assert.Equal(14, ScoreRound(2, 2))
	assert.Equal(19, ScoreRound(3, 3))
	assert.Equal(35, ScoreRound(5, 5))

	// Missed bid: -(diff)²
	assert.Equal(-4, ScoreRound(2, 0))
	assert.Equal(-1, ScoreRound(2, 1))
	assert.Equal(-1, ScoreRound(2, 3))
	assert.Equal(-9, ScoreRound(2, 5))
	assert.Equal(-9, ScoreRound(5, 2))
	assert.Equal(-1, ScoreRound(1, 0))
}

func TestCardLess_SuitTiebreak(t *testing.T) {
	assert := assert.New(t)

	assert.True(Card{Spades, Two}.Less(Card{Clubs, Three}))
	assert.True(Card{Clubs, Five}.Less(Card{Diamonds, Five}))
	assert.True(Card{Diamonds, Five}.Less(Card{Hearts, Five}))
	assert.True(Card{Hearts, Five}.Less(Card{Spades, Five}))
	assert.False(Card{Spades, Five}.Less(Card{Clubs, Five}))
}

func TestCardJSON(t *testing.T) {
	assert := assert.New(t)

	data, err := json.Marshal(Card{Hearts, Five})
	assert.NoError(err)
	assert.JSONEq(`{"suit":"Hearts","rank":"Five"}`, string(data))

	var c Card
	assert.NoError(json.Unmarshal([]byte(`{"suit":"Spades","rank":"Ace"}`), &c))
	assert.Equal(Card{Spades, Ace}, c)

	assert.Error(json.Unmarshal([]byte(`{"suit":"Stars","rank":"Ace"}`), &c))
	assert.Error(json.Unmarshal([]byte(`{"suit":"Spades","rank":"Eleven"}`), &c))
}

func TestPlayJSON(t *testing.T) {
	assert := assert.New(t)

	play := Play{Player: "p-1", Card: Card{Diamonds, Queen}}
	data, err := json.Marshal(play)
	assert.NoError(err)
	assert.JSONEq(`["p-1",{"suit":"Diamonds","rank":"Queen"}]`, string(data))

	var back Play
	assert.NoError(json.Unmarshal(data, &back))
	assert.Equal(play, back)

	assert.Error(json.Unmarshal([]byte(`["p-1"]`), &back))
}
