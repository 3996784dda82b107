package rules

import (
	"fmt"
	"slices"

	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/state"
)

// Shuffler returns a permutation of its input. Production passes a seeded dealer, tests pass stubs.
type Shuffler func([]card.ID) []card.ID

// ShopResult 商店阶段转换结果
type ShopResult struct {
	Discarded []card.ID `json:"discarded"`
	// Unknown 目录中查不到类别的卡，保留在棋盘上
	Unknown []card.ID `json:"unknown,omitempty"`
}

// PrepareShopTransition moves the player from the active round into the shop phase:
// deck becomes shuffle(deck ++ hand), hand is emptied, and BUFF/ECONOMY cards leave the board for
// the discard pile. ATTACK/DEFENSE slots keep their card and stack. On error p is left untouched.
func PrepareShopTransition(p *state.Player, catalog card.Catalog, shuffle Shuffler) (ShopResult, error) {
	var res ShopResult
	if catalog == nil {
		return res, ErrNoCatalog
	}
	if shuffle == nil {
		return res, ErrNoShuffler
	}

	pool := make([]card.ID, 0, len(p.Deck)+len(p.Hand))
	pool = append(pool, p.Deck...)
	pool = append(pool, p.Hand...)

	deck := shuffle(slices.Clone(pool))
	if !sameMultiset(pool, deck) {
		return res, fmt.Errorf("%w: %d cards in, %d out", ErrBadShuffle, len(pool), len(deck))
	}

	board := p.Board
	discard := slices.Clone(p.Discard)
	for i, s := range board {
		if s.Empty() {
			continue
		}
		a, ok := catalog.Archetype(s.Card)
		if !ok {
			res.Unknown = append(res.Unknown, s.Card)
			continue
		}
		if a.Consumable() {
			discard = append(discard, s.Card)
			res.Discarded = append(res.Discarded, s.Card)
			board[i] = state.Slot{}
		}
	}

	if deck == nil {
		deck = []card.ID{}
	}
	p.Deck = deck
	p.Hand = []card.ID{}
	p.Board = board
	p.Discard = discard
	return res, nil
}

func sameMultiset(a, b []card.ID) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[card.ID]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}
