package rules

import (
	"fmt"
	"slices"

	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/state"
)

// Merge 一次三合一：Slot 为保留的格子，Stack 为合成后的等级
type Merge struct {
	Slot  int     `json:"slot"`
	Card  card.ID `json:"card"`
	Stack int     `json:"stack"`
}

// PlaceCardAndMaybeMerge plays hand[fromHandIndex] onto board[slot] and resolves merges until no
// three slots share the same (card, stack).
//
// Stack is the tier, not a merge count: a freshly merged slot holds stack 2.
// An empty target receives the card at stack 1. An occupied target is only accepted when it holds the
// same card at stack 1 and another slot does too: the played card completes that triple in place.
// When several triples exist the one with the lowest starting slot merges first, keeping its lowest
// slot and clearing the other two. On error p is left untouched.
func PlaceCardAndMaybeMerge(p *state.Player, fromHandIndex, slot int, id card.ID) ([]Merge, error) {
	if fromHandIndex < 0 || fromHandIndex >= len(p.Hand) {
		return nil, fmt.Errorf("%w: hand index %d out of range (hand size %d)", ErrInvalidPlacement, fromHandIndex, len(p.Hand))
	}
	if p.Hand[fromHandIndex] != id {
		return nil, fmt.Errorf("%w: hand[%d] is %q, not %q", ErrInvalidPlacement, fromHandIndex, p.Hand[fromHandIndex], id)
	}
	if slot < 0 || slot >= state.BoardSize {
		return nil, fmt.Errorf("%w: slot %d out of range", ErrInvalidPlacement, slot)
	}

	board := p.Board
	var merges []Merge

	target := board[slot]
	if target.Empty() {
		board[slot] = state.Slot{Card: id, Stack: 1}
	} else {
		if target.Card != id || target.Stack != 1 {
			return nil, fmt.Errorf("%w: slot %d holds %q at stack %d", ErrInvalidPlacement, slot, target.Card, target.Stack)
		}
		other := -1
		for i := range board {
			if i != slot && board[i] == target {
				other = i
				break
			}
		}
		if other < 0 {
			return nil, fmt.Errorf("%w: slot %d is occupied and no merge path exists", ErrInvalidPlacement, slot)
		}
		keep, drop := min(slot, other), max(slot, other)
		board[drop] = state.Slot{}
		board[keep] = state.Slot{Card: id, Stack: 2}
		merges = append(merges, Merge{Slot: keep, Card: id, Stack: 2})
	}

	merges = append(merges, resolveMerges(&board)...)

	p.Hand = slices.Delete(slices.Clone(p.Hand), fromHandIndex, fromHandIndex+1)
	p.Board = board
	return merges, nil
}

// resolveMerges cascades: each merge frees two slots, so it runs at most BoardSize/2 times.
func resolveMerges(b *state.Board) []Merge {
	var out []Merge
	for {
		idx, ok := findTriple(b)
		if !ok {
			return out
		}
		s := b[idx[0]]
		b[idx[1]] = state.Slot{}
		b[idx[2]] = state.Slot{}
		b[idx[0]] = state.Slot{Card: s.Card, Stack: s.Stack + 1}
		out = append(out, Merge{Slot: idx[0], Card: s.Card, Stack: s.Stack + 1})
	}
}

func findTriple(b *state.Board) ([3]int, bool) {
	var idx [3]int
	for i := range b {
		if b[i].Empty() {
			continue
		}
		n := 0
		for j := i; j < len(b); j++ {
			if b[j] == b[i] {
				idx[n] = j
				n++
				if n == 3 {
					return idx, true
				}
			}
		}
	}
	return idx, false
}
