package rules

const (
	DefaultTowerCost = 10
	TowerCostFloor   = 3
)

// CostSchedule 塔升级价格表
type CostSchedule struct {
	Default int
	Floor   int
}

var DefaultSchedule = CostSchedule{Default: DefaultTowerCost, Floor: TowerCostFloor}

// Cost prices a tower upgrade in currentRound. lastUpgradeRound == 0 means never upgraded, in
// which case the price decays from round 1. Otherwise it is Default up to and including the last
// upgrade round and drops by one per round after it, never below Floor.
func (s CostSchedule) Cost(currentRound, lastUpgradeRound int) int {
	var decay int
	if lastUpgradeRound == 0 {
		decay = max(0, currentRound-1)
	} else if currentRound > lastUpgradeRound {
		decay = currentRound - lastUpgradeRound
	}
	return max(s.Floor, s.Default-decay)
}

func TowerUpgradeCostForRound(currentRound, lastUpgradeRound int) int {
	return DefaultSchedule.Cost(currentRound, lastUpgradeRound)
}
