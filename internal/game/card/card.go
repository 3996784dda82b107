package card

import (
	"fmt"
	"strings"
)

// ID 卡牌标识，例如 "archer"、"gold_mine"
type ID string

// Archetype 卡牌类别，决定商店阶段是否从棋盘清除
type Archetype int

const (
	Attack Archetype = iota + 1
	Defense
	Buff
	Economy
)

func (a Archetype) String() string {
	switch a {
	case Attack:
		return "ATTACK"
	case Defense:
		return "DEFENSE"
	case Buff:
		return "BUFF"
	case Economy:
		return "ECONOMY"
	}
	return "UNKNOWN"
}

// Consumable reports whether the archetype is purged from the board at the shop transition.
func (a Archetype) Consumable() bool {
	return a == Buff || a == Economy
}

// ParseArchetype accepts the upper- or lower-case name.
func ParseArchetype(s string) (Archetype, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ATTACK":
		return Attack, nil
	case "DEFENSE":
		return Defense, nil
	case "BUFF":
		return Buff, nil
	case "ECONOMY":
		return Economy, nil
	}
	return 0, fmt.Errorf("unknown archetype %q", s)
}

func (a Archetype) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Archetype) UnmarshalText(b []byte) error {
	v, err := ParseArchetype(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
