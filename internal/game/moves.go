package game

import (
	"slices"

	"gbridge-server/internal/cards"
)

// Action is the tagged union carried in valid_actions and PlayerAction
// payloads: exactly one of the fields is set, producing {"PlayCard": ...}
// or {"Bid": {"tricks": n}} on the wire.
type Action struct {
	PlayCard *cards.Card `json:"PlayCard,omitempty"`
	Bid      *Bid        `json:"Bid,omitempty"`
}

type Bid struct {
	Tricks int `json:"tricks"`
}

func BidAction(tricks int) Action {
	return Action{Bid: &Bid{Tricks: tricks}}
}

func PlayAction(c cards.Card) Action {
	return Action{PlayCard: &c}
}

// SubmitBid places the current player's bid. The dealer bids last and may
// not pick a value that makes the bid sum equal the trick count, so at
// least one player always misses.
func (g *Game) SubmitBid(session string, tricks int) (Outcome, error) {
	if g.seatOf(session) < 0 {
		return Outcome{}, ErrNotInGame
	}
	if g.Phase != PhaseBidding {
		return Outcome{}, ErrWrongPhase
	}
	if session != g.CurrentPlayer() {
		return Outcome{}, ErrNotYourTurn
	}

	round := g.Round
	if tricks < 0 || tricks > round.CardsPerPlayer {
		return Outcome{}, ErrInvalidBid
	}
	if g.bidForbidden(tricks) {
		return Outcome{}, ErrInvalidBid
	}

	round.Bids[session] = tricks
	outcome := Outcome{Action: BidAction(tricks)}

	if len(round.Bids) == len(g.Seating) {
		g.Phase = PhasePlaying
		g.CurrentPlayerIndex = round.FirstBidderIndex
	} else {
		g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.Seating)
	}
	outcome.NextPlayer = g.CurrentPlayer()

	return outcome, nil
}

// bidForbidden applies the last-bidder rule for the current bid attempt.
func (g *Game) bidForbidden(tricks int) bool {
	round := g.Round
	if len(round.Bids) != len(g.Seating)-1 {
		return false
	}
	sum := tricks
	for _, b := range round.Bids {
		sum += b
	}
	return sum == round.CardsPerPlayer
}

// PlayCard plays a card for the current player, enforcing follow-suit,
// and resolves the trick (and possibly the round) when it completes.
func (g *Game) PlayCard(session string, card cards.Card) (Outcome, error) {
	if g.seatOf(session) < 0 {
		return Outcome{}, ErrNotInGame
	}
	if g.Phase != PhasePlaying {
		return Outcome{}, ErrWrongPhase
	}
	if session != g.CurrentPlayer() {
		return Outcome{}, ErrNotYourTurn
	}

	round := g.Round
	hand := round.Hands[session]
	cardIndex := slices.Index(hand, card)
	if cardIndex < 0 {
		return Outcome{}, ErrIllegalCard
	}
	if round.LeadSuit != nil && card.Suit != *round.LeadSuit && holdsSuit(hand, *round.LeadSuit) {
		return Outcome{}, ErrMustFollowSuit
	}

	round.Hands[session] = slices.Delete(hand, cardIndex, cardIndex+1)
	if round.LeadSuit == nil {
		lead := card.Suit
		round.LeadSuit = &lead
	}
	round.CurrentTrick = append(round.CurrentTrick, cards.Play{Player: session, Card: card})

	outcome := Outcome{Action: PlayAction(card)}

	if len(round.CurrentTrick) < len(g.Seating) {
		g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.Seating)
		outcome.NextPlayer = g.CurrentPlayer()
		return outcome, nil
	}

	// Trick complete: resolve, winner leads the next one.
	winner := cards.TrickWinner(round.CurrentTrick, *round.LeadSuit, round.TrumpSuit)
	round.TricksWon[winner]++
	round.TricksPlayed++
	round.CurrentTrick = round.CurrentTrick[:0]
	round.LeadSuit = nil
	g.CurrentPlayerIndex = g.seatOf(winner)

	outcome.TrickWinner = winner
	outcome.NextPlayer = winner

	if round.TricksPlayed == round.CardsPerPlayer {
		g.finishRound()
		outcome.RoundCompleted = true
	}

	return outcome, nil
}

func holdsSuit(hand []cards.Card, suit cards.Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

// ValidActions lists the legal moves for a session: bids in Bidding,
// follow-suit-respecting cards in Playing, and nothing for everyone else.
func (g *Game) ValidActions(session string) []Action {
	if session != g.CurrentPlayer() {
		return nil
	}

	round := g.Round
	switch g.Phase {
	case PhaseBidding:
		actions := make([]Action, 0, round.CardsPerPlayer+1)
		for n := 0; n <= round.CardsPerPlayer; n++ {
			if !g.bidForbidden(n) {
				actions = append(actions, BidAction(n))
			}
		}
		return actions

	case PhasePlaying:
		hand := round.Hands[session]
		actions := make([]Action, 0, len(hand))
		for _, c := range hand {
			if round.LeadSuit != nil && c.Suit != *round.LeadSuit && holdsSuit(hand, *round.LeadSuit) {
				continue
			}
			actions = append(actions, PlayAction(c))
		}
		return actions

	default:
		return nil
	}
}

// AutoAction picks the deterministic default applied when the current
// player's turn deadline fires: bid 0 when legal (1 otherwise, the only
// remaining dealer choice), or the lowest legal card.
func (g *Game) AutoAction() (Action, bool) {
	switch g.Phase {
	case PhaseBidding:
		if !g.bidForbidden(0) {
			return BidAction(0), true
		}
		return BidAction(1), true

	case PhasePlaying:
		legal := g.ValidActions(g.CurrentPlayer())
		if len(legal) == 0 {
			return Action{}, false
		}
		lowest := *legal[0].PlayCard
		for _, a := range legal[1:] {
			if a.PlayCard.Less(lowest) {
				lowest = *a.PlayCard
			}
		}
		return PlayAction(lowest), true

	default:
		return Action{}, false
	}
}

// Apply dispatches an Action through the normal validation path. Used by
// the turn scheduler so auto-played actions follow the same rules.
func (g *Game) Apply(session string, action Action) (Outcome, error) {
	switch {
	case action.Bid != nil:
		return g.SubmitBid(session, action.Bid.Tricks)
	case action.PlayCard != nil:
		return g.PlayCard(session, *action.PlayCard)
	default:
		return Outcome{}, ErrWrongPhase
	}
}
