package dealer

import (
	"math/rand"
	"sync"

	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/state"
)

// Dealer 只负责洗牌与抽牌（无规则判断）
type Dealer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDealer(seed int64) *Dealer {
	return &Dealer{rnd: rand.New(rand.NewSource(seed))}
}

// Shuffle returns a shuffled copy; it satisfies rules.Shuffler.
func (d *Dealer) Shuffle(cards []card.ID) []card.ID {
	out := make([]card.ID, len(cards))
	copy(out, cards)
	d.mu.Lock()
	d.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	d.mu.Unlock()
	return out
}

// Deal 开局：起始牌组洗牌后放入 deck，再从顶部抽 handSize 张
func (d *Dealer) Deal(p *state.Player, startingDeck []card.ID, handSize int) {
	p.Deck = d.Shuffle(startingDeck)
	p.Hand = []card.ID{}
	Draw(p, handSize)
}

// Draw moves up to n cards from the front of the deck to the end of the hand and returns how
// many were drawn. An exhausted deck is not refilled: discarded cards are gone for the match.
func Draw(p *state.Player, n int) int {
	n = max(0, min(n, len(p.Deck)))
	p.Hand = append(p.Hand, p.Deck[:n]...)
	rest := make([]card.ID, len(p.Deck)-n)
	copy(rest, p.Deck[n:])
	p.Deck = rest
	return n
}
