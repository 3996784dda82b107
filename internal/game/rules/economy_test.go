package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTowerUpgradeCostForRound(t *testing.T) {
	cases := []struct {
		current, last, want int
	}{
		{1, 0, DefaultTowerCost},
		{5, 0, DefaultTowerCost - 4},
		{2, 1, DefaultTowerCost - 1},
		{100, 1, TowerCostFloor},
		{3, 5, DefaultTowerCost},
		{5, 5, DefaultTowerCost},
		{0, 0, DefaultTowerCost},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TowerUpgradeCostForRound(c.current, c.last),
			"cost(current=%d, last=%d)", c.current, c.last)
	}
}

func TestTowerCostMonotoneAndFloored(t *testing.T) {
	for last := 1; last <= 10; last++ {
		prev := TowerUpgradeCostForRound(1, last)
		for round := 1; round <= 40; round++ {
			cost := TowerUpgradeCostForRound(round, last)
			assert.GreaterOrEqual(t, cost, TowerCostFloor)
			assert.LessOrEqual(t, cost, prev, "cost rose at round %d (last=%d)", round, last)
			if round <= last {
				assert.Equal(t, DefaultTowerCost, cost)
			}
			prev = cost
		}
	}
}

func TestCostScheduleCustom(t *testing.T) {
	s := CostSchedule{Default: 20, Floor: 5}
	assert.Equal(t, 20, s.Cost(1, 0))
	assert.Equal(t, 15, s.Cost(9, 4))
	assert.Equal(t, 5, s.Cost(50, 4))
}
