// Package ranking defines the leaderboard total order and the rank resolver
// that answers page, top-N and single-player queries over a store snapshot.
package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/mathboard/internal/domain/model"
)

// Compare orders two records for the leaderboard: score desc, current streak
// desc, games won desc, player id asc. It returns a negative number when a
// ranks ahead of b. Two distinct players never compare equal.
func Compare(a, b model.PlayerStats) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.CurrentStreak, a.CurrentStreak); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GamesWon, a.GamesWon); c != 0 {
		return c
	}
	return cmp.Compare(a.PlayerID, b.PlayerID)
}

// Less reports whether a ranks ahead of b.
func Less(a, b model.PlayerStats) bool { return Compare(a, b) < 0 }

// Sort orders records in place by the leaderboard order.
func Sort(records []model.PlayerStats) {
	slices.SortFunc(records, Compare)
}
