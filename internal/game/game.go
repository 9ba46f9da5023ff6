package game

import (
	"errors"
	"fmt"

	"gbridge-server/internal/cards"
)

type Phase string

const (
	PhaseBidding       Phase = "Bidding"
	PhasePlaying       Phase = "Playing"
	PhaseRoundComplete Phase = "RoundComplete"
	PhaseGameComplete  Phase = "GameComplete"
)

// Errors surfaced verbatim to the offending client. None of them mutate
// game state.
var (
	ErrNotInGame      = errors.New("Player not in game")
	ErrNotYourTurn    = errors.New("Not your turn")
	ErrWrongPhase     = errors.New("Action not allowed in current phase")
	ErrInvalidBid     = errors.New("Invalid bid")
	ErrIllegalCard    = errors.New("Card not in hand")
	ErrMustFollowSuit = errors.New("Must follow suit")
)

type Settings struct {
	PlayerCount     int  `json:"player_count"`
	TurnTimeoutSecs int  `json:"turn_timeout_secs"`
	AllowReconnect  bool `json:"allow_reconnect"`
}

// Game is a single German Bridge game. It is a pure state machine: the
// owning manager serializes every call under the game's lock, and no
// method here blocks or spawns goroutines.
type Game struct {
	ID                 string         `json:"id"`
	Seating            []string       `json:"seating"`
	Settings           Settings       `json:"settings"`
	Phase              Phase          `json:"phase"`
	RoundNumber        int            `json:"round_number"`
	Round              *Round         `json:"round"`
	TotalScores        map[string]int `json:"total_scores"`
	History            []RoundResult  `json:"history"`
	CurrentPlayerIndex int            `json:"current_player_index"`
}

type Round struct {
	CardsPerPlayer   int                     `json:"cards_per_player"`
	DealerIndex      int                     `json:"dealer_index"`
	FirstBidderIndex int                     `json:"first_bidder_index"`
	TrumpSuit        *cards.Suit             `json:"trump_suit"`
	Hands            map[string][]cards.Card `json:"hands"`
	Bids             map[string]int          `json:"bids"`
	TricksWon        map[string]int          `json:"tricks_won"`
	CurrentTrick     []cards.Play            `json:"current_trick"`
	LeadSuit         *cards.Suit             `json:"lead_suit"`
	TricksPlayed     int                     `json:"tricks_played"`
}

type RoundResult struct {
	RoundNumber int                     `json:"round_number"`
	Players     map[string]PlayerResult `json:"players"`
}

type PlayerResult struct {
	Bid        int `json:"bid"`
	TricksWon  int `json:"tricks_won"`
	ScoreDelta int `json:"score_delta"`
}

// Outcome describes what a successful operation did, so the owning
// manager can translate it into broadcasts without re-inspecting state.
type Outcome struct {
	Action         Action
	TrickWinner    string // set when the action completed a trick
	RoundCompleted bool
	GameCompleted  bool
	NextPlayer     string // whose turn the game moved to, "" if none
}

// New creates a game with round 1 dealt (k=1, dealer at seat 0). Seating
// order is fixed for the lifetime of the game.
func New(id string, seating []string, settings Settings) (*Game, error) {
	if len(seating) != settings.PlayerCount {
		return nil, fmt.Errorf("seating has %d players, settings want %d", len(seating), settings.PlayerCount)
	}
	if settings.PlayerCount < 3 || settings.PlayerCount > 4 {
		return nil, fmt.Errorf("unsupported player count %d", settings.PlayerCount)
	}

	g := &Game{
		ID:          id,
		Seating:     append([]string(nil), seating...),
		Settings:    settings,
		RoundNumber: 1,
		TotalScores: make(map[string]int, len(seating)),
		History:     make([]RoundResult, 0),
	}
	for _, p := range seating {
		g.TotalScores[p] = 0
	}

	g.startRound(1, 0)
	return g, nil
}

// startRound deals k cards per player in rotation starting left of the
// dealer and flips the next undealt card for trump (no trump when the
// deal consumes the whole deck).
func (g *Game) startRound(k, dealer int) {
	n := len(g.Seating)
	deck := cards.NewShuffledDeck()
	hands, remainder := cards.Deal(deck, n, k)

	round := &Round{
		CardsPerPlayer:   k,
		DealerIndex:      dealer,
		FirstBidderIndex: (dealer + 1) % n,
		Hands:            make(map[string][]cards.Card, n),
		Bids:             make(map[string]int, n),
		TricksWon:        make(map[string]int, n),
		CurrentTrick:     make([]cards.Play, 0, n),
	}

	for i, hand := range hands {
		seat := (dealer + 1 + i) % n
		round.Hands[g.Seating[seat]] = hand
	}
	for _, p := range g.Seating {
		round.TricksWon[p] = 0
	}

	if len(remainder) > 0 {
		trump := remainder[0].Suit
		round.TrumpSuit = &trump
	}

	g.Round = round
	g.Phase = PhaseBidding
	g.CurrentPlayerIndex = round.FirstBidderIndex
}

func (g *Game) CurrentPlayer() string {
	return g.Seating[g.CurrentPlayerIndex]
}

func (g *Game) seatOf(session string) int {
	for i, p := range g.Seating {
		if p == session {
			return i
		}
	}
	return -1
}

func (g *Game) IsSeated(session string) bool {
	return g.seatOf(session) >= 0
}

// StartNextRound advances past RoundComplete. Only the winner of the
// round's last trick (the current player) may trigger it; this is the
// rendezvous point clients wait on after seeing the round scores.
func (g *Game) StartNextRound(session string) (Outcome, error) {
	if g.seatOf(session) < 0 {
		return Outcome{}, ErrNotInGame
	}
	if g.Phase != PhaseRoundComplete {
		return Outcome{}, ErrWrongPhase
	}
	if session != g.CurrentPlayer() {
		return Outcome{}, ErrNotYourTurn
	}

	n := len(g.Seating)
	nextK := g.Round.CardsPerPlayer + 1
	if nextK*n > 52 {
		g.Phase = PhaseGameComplete
		return Outcome{GameCompleted: true}, nil
	}

	g.RoundNumber++
	g.startRound(nextK, (g.Round.DealerIndex+1)%n)
	return Outcome{NextPlayer: g.CurrentPlayer()}, nil
}

// finishRound scores every player, appends the round to history and
// leaves the last-trick winner as current player.
func (g *Game) finishRound() {
	round := g.Round
	result := RoundResult{
		RoundNumber: g.RoundNumber,
		Players:     make(map[string]PlayerResult, len(g.Seating)),
	}

	for _, p := range g.Seating {
		bid := round.Bids[p]
		won := round.TricksWon[p]
		delta := cards.ScoreRound(bid, won)
		result.Players[p] = PlayerResult{Bid: bid, TricksWon: won, ScoreDelta: delta}
		g.TotalScores[p] += delta
	}

	g.History = append(g.History, result)
	g.Phase = PhaseRoundComplete
}
