package loadgen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/mathboard/internal/domain/model"
)

// Constants for result generation.
const (
	maxQuestions   = 20
	pointsPerRight = 10
	winThreshold   = 0.7
)

// Plan is a generated workload and the stats it must produce.
type Plan struct {
	Games    []model.GameResult
	Expected map[string]model.PlayerStats
}

// Generate creates games spread over cfg.Players players. Expected is the
// fold of each player's games in slice order.
func Generate(cfg Config) Plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	players := make([]string, cfg.Players)
	names := make(map[string]string, cfg.Players)
	for i := range players {
		players[i] = uuid.NewString()
		names[players[i]] = fmt.Sprintf("player-%d", i)
	}

	plan := Plan{
		Games:    make([]model.GameResult, 0, cfg.Games),
		Expected: make(map[string]model.PlayerStats, cfg.Players),
	}
	for i := 0; i < cfg.Games; i++ {
		id := players[i%len(players)]
		if i >= len(players) {
			id = players[rng.IntN(len(players))]
		}
		g := generateGame(rng, id, names[id])

		prev, ok := plan.Expected[id]
		if !ok {
			prev = model.PlayerStats{PlayerID: id}
		}
		next := prev.Apply(g)
		next.DisplayName = g.DisplayName
		plan.Expected[id] = next
		plan.Games = append(plan.Games, g)
	}
	return plan
}

func generateGame(rng *rand.Rand, playerID, name string) model.GameResult {
	total := int64(rng.IntN(maxQuestions) + 1)
	correct := int64(rng.IntN(int(total) + 1))
	won := float64(correct)/float64(total) >= winThreshold

	return model.GameResult{
		ResultID:     uuid.NewString(),
		PlayerID:     playerID,
		DisplayName:  name,
		PointsEarned: correct * pointsPerRight,
		Won:          won,
		CorrectCount: correct,
		TotalCount:   total,
	}
}
