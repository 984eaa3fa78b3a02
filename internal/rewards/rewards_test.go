package rewards

import "testing"

func TestLevelAndProgress(t *testing.T) {
	cases := []struct {
		xp          int
		level       int
		progress    int
		nextLevelXP int
	}{
		{0, 1, 0, 100},
		{42, 1, 42, 100},
		{99, 1, 99, 100},
		{100, 2, 0, 200},
		{250, 3, 50, 300},
		{-5, 1, 0, 100},
	}
	for _, tc := range cases {
		if got := Level(tc.xp); got != tc.level {
			t.Fatalf("Level(%d) = %d, want %d", tc.xp, got, tc.level)
		}
		if got := Progress(tc.xp); got != tc.progress {
			t.Fatalf("Progress(%d) = %d, want %d", tc.xp, got, tc.progress)
		}
		if got := NextLevelXP(tc.xp); got != tc.nextLevelXP {
			t.Fatalf("NextLevelXP(%d) = %d, want %d", tc.xp, got, tc.nextLevelXP)
		}
	}
}
