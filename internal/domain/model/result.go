package model

import (
	"fmt"
	"strings"
)

const (
	// MaxPlayerIDLength bounds player identifiers accepted from clients.
	MaxPlayerIDLength = 128

	// MaxPointsPerResult bounds points_earned for a single game.
	MaxPointsPerResult = 1_000_000

	// MaxAnswersPerResult bounds total_count for a single game.
	MaxAnswersPerResult = 10_000
)

// GameResult is one finished game as reported by the game-session collaborator.
// ResultID and DisplayName are delivery metadata and do not take part in the fold.
type GameResult struct {
	ResultID     string `json:"result_id,omitempty"`
	PlayerID     string `json:"player_id"`
	DisplayName  string `json:"display_name,omitempty"`
	PointsEarned int64  `json:"points_earned"`
	Won          bool   `json:"won"`
	CorrectCount int64  `json:"correct_count"`
	TotalCount   int64  `json:"total_count"`
}

// Validate rejects results that are malformed. It does not judge whether a score is plausible.
func (r GameResult) Validate() error {
	if err := ValidatePlayerID(r.PlayerID); err != nil {
		return err
	}
	switch {
	case r.PointsEarned < 0:
		return fmt.Errorf("%w: points_earned must be >= 0", ErrInvalidResult)
	case r.CorrectCount < 0 || r.TotalCount < 0:
		return fmt.Errorf("%w: answer counts must be >= 0", ErrInvalidResult)
	case r.PointsEarned > MaxPointsPerResult:
		return fmt.Errorf("%w: points_earned above %d", ErrInvalidResult, MaxPointsPerResult)
	case r.TotalCount > MaxAnswersPerResult:
		return fmt.Errorf("%w: total_count above %d", ErrInvalidResult, MaxAnswersPerResult)
	case r.CorrectCount > r.TotalCount:
		return fmt.Errorf("%w: correct_count %d exceeds total_count %d", ErrInvalidResult, r.CorrectCount, r.TotalCount)
	}
	return nil
}

// ValidatePlayerID rejects blank or oversized player identifiers.
func ValidatePlayerID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: player_id is required", ErrInvalidResult)
	case len(id) > MaxPlayerIDLength:
		return fmt.Errorf("%w: player_id longer than %d", ErrInvalidResult, MaxPlayerIDLength)
	}
	return nil
}
