package rules

import "errors"

var (
	// ErrInvalidPlacement hand index out of range, card mismatch, or occupied slot without a merge path.
	ErrInvalidPlacement = errors.New("invalid placement")
	// ErrUnknownArchetype is non-fatal: such cards stay on the board at the shop transition.
	ErrUnknownArchetype = errors.New("unknown archetype")
	ErrBadShuffle       = errors.New("shuffler changed the card multiset")
	ErrNoCatalog        = errors.New("card catalog not available")
	ErrNoShuffler       = errors.New("shuffler not provided")
)
