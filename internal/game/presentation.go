package game

import (
	"gbridge-server/internal/cards"
)

// Snapshot is the per-player view sent in GameState payloads. your_hand
// is filled only for the viewer; nobody ever sees another hand.
type Snapshot struct {
	GameID        string         `json:"game_id"`
	Phase         Phase          `json:"phase"`
	YourHand      []cards.Card   `json:"your_hand"`
	CurrentTrick  []cards.Play   `json:"current_trick"`
	Scores        map[string]int `json:"scores"`
	History       []RoundResult  `json:"history"`
	RoundNumber   int            `json:"round_number"`
	TrumpSuit     *cards.Suit    `json:"trump_suit"`
	CurrentPlayer string         `json:"current_player"`
	YourTurn      bool           `json:"your_turn"`
}

// Snapshot builds the viewer's copy of the game state. Everything is
// copied so the caller can serialize it after releasing the game lock.
func (g *Game) Snapshot(viewer string) Snapshot {
	snap := Snapshot{
		GameID:        g.ID,
		Phase:         g.Phase,
		YourHand:      make([]cards.Card, 0),
		CurrentTrick:  append([]cards.Play(nil), g.Round.CurrentTrick...),
		Scores:        make(map[string]int, len(g.TotalScores)),
		History:       append([]RoundResult(nil), g.History...),
		RoundNumber:   g.RoundNumber,
		CurrentPlayer: g.CurrentPlayer(),
		YourTurn:      viewer == g.CurrentPlayer() && g.Phase != PhaseGameComplete,
	}

	if hand, ok := g.Round.Hands[viewer]; ok {
		snap.YourHand = append(snap.YourHand, hand...)
	}
	for p, s := range g.TotalScores {
		snap.Scores[p] = s
	}
	if g.Round.TrumpSuit != nil {
		trump := *g.Round.TrumpSuit
		snap.TrumpSuit = &trump
	}

	return snap
}
