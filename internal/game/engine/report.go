package engine

// Stat names recorded per player.
const (
	StatCardsPlayed    = "cards_played"
	StatMerges         = "merges"
	StatHighestStack   = "highest_stack"
	StatCardsDiscarded = "cards_discarded"
	StatTowerLevel     = "tower_level"
	StatGoldSpent      = "gold_spent"
)

// Report 对局结束时的统计；Stats 为 统计名 -> 数值
type Report struct {
	MatchID string                        `json:"matchId"`
	Winner  string                        `json:"winner,omitempty"`
	Rounds  int                           `json:"rounds"`
	Stats   map[string]map[string]float64 `json:"stats"` // player -> stat -> value
}

type statBook map[string]map[string]float64

func newStatBook(players []string) statBook {
	b := make(statBook, len(players))
	for _, p := range players {
		b[p] = map[string]float64{}
	}
	return b
}

func (b statBook) add(player, stat string, v float64) {
	b[player][stat] += v
}

func (b statBook) raise(player, stat string, v float64) {
	if v > b[player][stat] {
		b[player][stat] = v
	}
}

func (b statBook) set(player, stat string, v float64) {
	b[player][stat] = v
}

func (b statBook) snapshot() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(b))
	for p, stats := range b {
		m := make(map[string]float64, len(stats))
		for k, v := range stats {
			m[k] = v
		}
		out[p] = m
	}
	return out
}
