// Package types holds the response records served to clients.
package types

import (
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
)

// Entry is one row of a leaderboard page.
type Entry struct {
	Rank          int    `json:"rank"`
	PlayerID      string `json:"player_id"`
	DisplayName   string `json:"display_name"`
	Score         int64  `json:"score"`
	GamesWon      int64  `json:"games_won"`
	GamesPlayed   int64  `json:"games_played"`
	Accuracy      int64  `json:"accuracy"`
	WinRate       int64  `json:"win_rate"`
	CurrentStreak int64  `json:"current_streak"`
	BestStreak    int64  `json:"best_streak"`
}

// PlayerRank answers "where am I".
type PlayerRank struct {
	Rank         int    `json:"rank"`
	TotalPlayers int    `json:"total_players"`
	PlayerID     string `json:"player_id"`
	Score        int64  `json:"score"`
	DisplayName  string `json:"display_name"`
}

// NewEntry converts a ranked record.
func NewEntry(rank int, s model.PlayerStats) Entry {
	return Entry{
		Rank:          rank,
		PlayerID:      s.PlayerID,
		DisplayName:   s.DisplayName,
		Score:         s.Score,
		GamesWon:      s.GamesWon,
		GamesPlayed:   s.GamesPlayed,
		Accuracy:      s.Accuracy(),
		WinRate:       s.WinRate(),
		CurrentStreak: s.CurrentStreak,
		BestStreak:    s.BestStreak,
	}
}

// Entries converts a resolver page. The result is never nil so it encodes as [].
func Entries(page []ranking.Entry) []Entry {
	out := make([]Entry, 0, len(page))
	for _, e := range page {
		out = append(out, NewEntry(e.Rank, e.Stats))
	}
	return out
}

// NewPlayerRank converts a resolver rank.
func NewPlayerRank(pr ranking.PlayerRank) PlayerRank {
	return PlayerRank{
		Rank:         pr.Rank,
		TotalPlayers: pr.TotalPlayers,
		PlayerID:     pr.Stats.PlayerID,
		Score:        pr.Stats.Score,
		DisplayName:  pr.Stats.DisplayName,
	}
}
