package careerquest

// Per level-up bonus.
const (
	LevelUpCoins = 120
	LevelUpGems  = 10
)

// XPToNextLevel is the XP needed to leave level.
func XPToNextLevel(level int) int {
	return 900 + 250*max(0, level-1)
}

// Reward is what completing a task pays.
type Reward struct {
	XP    int `yaml:"xp" json:"xp"`
	Coins int `yaml:"coins" json:"coins"`
}

// ApplyReward adds r to p and performs level-ups. It touches only level,
// xp, coins and gems. At MaxLevel XP keeps accumulating.
func ApplyReward(p Progress, r Reward) Progress {
	p.XP += r.XP
	p.Coins += r.Coins
	for p.XP >= XPToNextLevel(p.Level) && p.Level < MaxLevel {
		p.XP -= XPToNextLevel(p.Level)
		p.Level++
		p.Coins += LevelUpCoins
		p.Gems += LevelUpGems
	}
	return p
}

// LevelProgress returns the XP earned in the current level and the XP the
// level requires.
func LevelProgress(p Progress) (have, need int) {
	return p.XP, XPToNextLevel(p.Level)
}
