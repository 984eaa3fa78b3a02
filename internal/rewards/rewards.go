// Package rewards derives progression numbers from backend-owned XP. The
// backend is the only writer of XP and coin balances; everything here is a
// pure read-side computation.
package rewards

// XPPerLevel is the amount of XP one level spans.
const XPPerLevel = 100

// Level computes the level implied by a total XP balance. Levels start at 1.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// Progress computes the XP earned inside the current level.
func Progress(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp % XPPerLevel
}

// NextLevelXP computes the total XP at which the next level is reached.
func NextLevelXP(xp int) int {
	return Level(xp) * XPPerLevel
}
