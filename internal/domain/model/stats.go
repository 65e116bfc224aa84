// Package model contains the domain records shared between layers: the
// incoming GameResult, the folded PlayerStats, and the error taxonomy.
package model

import (
	"fmt"
	"math"
)

// PlayerStats is the accumulated record for one player. Every counter is a
// fold over the GameResults applied to that player in arrival order; nothing
// else writes it.
type PlayerStats struct {
	PlayerID       string `json:"player_id"`
	DisplayName    string `json:"display_name"`
	Score          int64  `json:"score"`
	GamesPlayed    int64  `json:"games_played"`
	GamesWon       int64  `json:"games_won"`
	CorrectAnswers int64  `json:"correct_answers"`
	TotalAnswers   int64  `json:"total_answers"`
	CurrentStreak  int64  `json:"current_streak"`
	BestStreak     int64  `json:"best_streak"`
}

// UpdateFunc computes a player's next record from the current one. exists is
// false on the player's first update, when prev holds only the id. Returning
// an error aborts the update and leaves the record unchanged.
type UpdateFunc func(prev PlayerStats, exists bool) (PlayerStats, error)

// Apply returns the record after folding r into s. s is not modified.
func (s PlayerStats) Apply(r GameResult) PlayerStats {
	s.Score += r.PointsEarned
	s.GamesPlayed++
	s.CorrectAnswers += r.CorrectCount
	s.TotalAnswers += r.TotalCount
	if r.Won {
		s.GamesWon++
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 0
	}
	if s.CurrentStreak > s.BestStreak {
		s.BestStreak = s.CurrentStreak
	}
	return s
}

// Next is Apply with overflow checks. A result that would push any counter
// past math.MaxInt64 is rejected with ErrInvalidResult and s is returned
// unchanged, so a stored score never wraps and never decreases.
func (s PlayerStats) Next(r GameResult) (PlayerStats, error) {
	switch {
	case r.PointsEarned > math.MaxInt64-s.Score:
		return s, fmt.Errorf("%w: score of %q would overflow", ErrInvalidResult, s.PlayerID)
	case r.TotalCount > math.MaxInt64-s.TotalAnswers:
		return s, fmt.Errorf("%w: answer count of %q would overflow", ErrInvalidResult, s.PlayerID)
	case s.GamesPlayed == math.MaxInt64:
		return s, fmt.Errorf("%w: game count of %q would overflow", ErrInvalidResult, s.PlayerID)
	}
	return s.Apply(r), nil
}

// Fold replays results from the empty record for playerID.
func Fold(playerID string, results ...GameResult) PlayerStats {
	s := PlayerStats{PlayerID: playerID}
	for _, r := range results {
		s = s.Apply(r)
	}
	return s
}

// Accuracy is the rounded percentage of correct answers, 0 when nothing was answered.
// It is derived on read so rounding never accumulates.
func (s PlayerStats) Accuracy() int64 {
	return percent(s.CorrectAnswers, s.TotalAnswers)
}

// WinRate is the rounded percentage of games won, 0 before the first game.
func (s PlayerStats) WinRate() int64 {
	return percent(s.GamesWon, s.GamesPlayed)
}

// percent rounds 100*part/whole half away from zero using integer math.
func percent(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	if part > math.MaxInt64/200 {
		return int64(math.Round(100 * float64(part) / float64(whole)))
	}
	return (200*part + whole) / (2 * whole)
}
