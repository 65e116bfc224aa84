package model_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/mathboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func win(points int64) model.GameResult {
	return model.GameResult{PlayerID: "p", PointsEarned: points, Won: true, CorrectCount: 5, TotalCount: 5}
}

func loss(points int64) model.GameResult {
	return model.GameResult{PlayerID: "p", PointsEarned: points, Won: false, CorrectCount: 2, TotalCount: 5}
}

func randomResults(rng *rand.Rand, n int) []model.GameResult {
	out := make([]model.GameResult, n)
	for i := range out {
		total := rng.Int63n(20)
		var correct int64
		if total > 0 {
			correct = rng.Int63n(total + 1)
		}
		out[i] = model.GameResult{
			PlayerID:     "p",
			PointsEarned: rng.Int63n(100),
			Won:          rng.Intn(2) == 0,
			CorrectCount: correct,
			TotalCount:   total,
		}
	}
	return out
}

func TestPlayerStatsApply(t *testing.T) {
	Convey("Given an empty player record", t, func() {
		s := model.PlayerStats{PlayerID: "p"}

		Convey("When a win is applied", func() {
			next := s.Apply(win(30))

			Convey("Then every counter moves by one game", func() {
				So(next.Score, ShouldEqual, 30)
				So(next.GamesPlayed, ShouldEqual, 1)
				So(next.GamesWon, ShouldEqual, 1)
				So(next.CorrectAnswers, ShouldEqual, 5)
				So(next.TotalAnswers, ShouldEqual, 5)
				So(next.CurrentStreak, ShouldEqual, 1)
				So(next.BestStreak, ShouldEqual, 1)
			})

			Convey("And the receiver is untouched", func() {
				So(s.GamesPlayed, ShouldEqual, 0)
			})
		})

		Convey("When the sequence win, win, loss, win is applied", func() {
			got := model.Fold("p", win(10), win(10), loss(0), win(10))

			Convey("Then the current streak is 1 and the best streak is 2", func() {
				So(got.CurrentStreak, ShouldEqual, 1)
				So(got.BestStreak, ShouldEqual, 2)
				So(got.GamesPlayed, ShouldEqual, 4)
				So(got.GamesWon, ShouldEqual, 3)
			})
		})

		Convey("When a loss is applied after a streak", func() {
			got := model.Fold("p", win(1), win(1), win(1), loss(1))

			Convey("Then the streak resets but the best is kept", func() {
				So(got.CurrentStreak, ShouldEqual, 0)
				So(got.BestStreak, ShouldEqual, 3)
			})
		})
	})
}

func TestFoldEquivalence(t *testing.T) {
	Convey("Given random result sequences", t, func() {
		rng := rand.New(rand.NewSource(7))

		for round := 0; round < 50; round++ {
			results := randomResults(rng, 1+rng.Intn(40))

			var points, won, correct, total, streak, best int64
			for _, r := range results {
				points += r.PointsEarned
				correct += r.CorrectCount
				total += r.TotalCount
				if r.Won {
					won++
					streak++
				} else {
					streak = 0
				}
				best = max(best, streak)
			}

			got := model.Fold("p", results...)

			So(got.Score, ShouldEqual, points)
			So(got.GamesPlayed, ShouldEqual, int64(len(results)))
			So(got.GamesWon, ShouldEqual, won)
			So(got.CorrectAnswers, ShouldEqual, correct)
			So(got.TotalAnswers, ShouldEqual, total)
			So(got.CurrentStreak, ShouldEqual, streak)
			So(got.BestStreak, ShouldEqual, best)
		}
	})
}

func TestInvariantsHoldAfterEveryStep(t *testing.T) {
	Convey("Given a long random sequence", t, func() {
		rng := rand.New(rand.NewSource(11))
		s := model.PlayerStats{PlayerID: "p"}

		for _, r := range randomResults(rng, 500) {
			prev := s
			s = s.Apply(r)

			So(s.Score, ShouldBeGreaterThanOrEqualTo, prev.Score)
			So(s.GamesWon, ShouldBeLessThanOrEqualTo, s.GamesPlayed)
			So(s.CorrectAnswers, ShouldBeLessThanOrEqualTo, s.TotalAnswers)
			So(s.BestStreak, ShouldBeGreaterThanOrEqualTo, s.CurrentStreak)
		}
	})
}

func TestNextRefusesOverflow(t *testing.T) {
	Convey("Given a record close to the score ceiling", t, func() {
		s := model.PlayerStats{PlayerID: "p", Score: math.MaxInt64 - 5, GamesPlayed: 3, GamesWon: 3, CurrentStreak: 3, BestStreak: 3}

		Convey("When a result fits below the ceiling", func() {
			next, err := s.Next(win(5))

			Convey("Then it is folded like Apply", func() {
				So(err, ShouldBeNil)
				So(next, ShouldResemble, s.Apply(win(5)))
				So(next.Score, ShouldEqual, int64(math.MaxInt64))
			})
		})

		Convey("When a result would wrap the score", func() {
			next, err := s.Next(win(6))

			Convey("Then it is rejected and the record is unchanged", func() {
				So(errors.Is(err, model.ErrInvalidResult), ShouldBeTrue)
				So(next, ShouldResemble, s)
				So(next.Score, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the answer total would wrap", func() {
			full := model.PlayerStats{PlayerID: "p", TotalAnswers: math.MaxInt64}
			_, err := full.Next(loss(0))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidResult), ShouldBeTrue)
			})
		})
	})

	Convey("Given a long random sequence folded with Next", t, func() {
		rng := rand.New(rand.NewSource(13))
		s := model.PlayerStats{PlayerID: "p"}

		Convey("Then it matches Fold when nothing overflows", func() {
			results := randomResults(rng, 200)
			for _, r := range results {
				var err error
				s, err = s.Next(r)
				So(err, ShouldBeNil)
			}
			So(s, ShouldResemble, model.Fold("p", results...))
		})
	})
}

func TestPercentagesOnHugeCounters(t *testing.T) {
	Convey("Given counters too large for integer rounding", t, func() {
		s := model.PlayerStats{CorrectAnswers: math.MaxInt64 / 2, TotalAnswers: math.MaxInt64}

		Convey("Then accuracy stays a percentage", func() {
			So(s.Accuracy(), ShouldEqual, 50)
		})
	})
}

func TestDerivedPercentages(t *testing.T) {
	Convey("Given records with answers and games", t, func() {
		Convey("Then accuracy is 0 with no answers", func() {
			So(model.PlayerStats{}.Accuracy(), ShouldEqual, 0)
			So(model.PlayerStats{}.WinRate(), ShouldEqual, 0)
		})

		Convey("Then accuracy rounds half up", func() {
			So(model.PlayerStats{CorrectAnswers: 1, TotalAnswers: 3}.Accuracy(), ShouldEqual, 33)
			So(model.PlayerStats{CorrectAnswers: 2, TotalAnswers: 3}.Accuracy(), ShouldEqual, 67)
			So(model.PlayerStats{CorrectAnswers: 1, TotalAnswers: 8}.Accuracy(), ShouldEqual, 13)
			So(model.PlayerStats{CorrectAnswers: 7, TotalAnswers: 7}.Accuracy(), ShouldEqual, 100)
		})

		Convey("Then win rate uses games won over games played", func() {
			So(model.PlayerStats{GamesWon: 1, GamesPlayed: 2}.WinRate(), ShouldEqual, 50)
		})
	})
}

func TestGameResultValidate(t *testing.T) {
	Convey("Given game results", t, func() {
		Convey("Then a well formed result passes", func() {
			So(win(10).Validate(), ShouldBeNil)
			So(model.GameResult{PlayerID: "p"}.Validate(), ShouldBeNil)
			So(model.GameResult{PlayerID: "p", PointsEarned: model.MaxPointsPerResult, CorrectCount: 1, TotalCount: model.MaxAnswersPerResult}.Validate(), ShouldBeNil)
		})

		bad := map[string]model.GameResult{
			"missing player":   {PointsEarned: 1},
			"blank player":     {PlayerID: "  "},
			"negative points":  {PlayerID: "p", PointsEarned: -1},
			"negative counts":  {PlayerID: "p", CorrectCount: -1, TotalCount: 1},
			"correct > total":  {PlayerID: "p", CorrectCount: 4, TotalCount: 3},
			"points too large": {PlayerID: "p", PointsEarned: model.MaxPointsPerResult + 1},
			"points at max":    {PlayerID: "p", PointsEarned: math.MaxInt64},
			"answers too many": {PlayerID: "p", TotalCount: model.MaxAnswersPerResult + 1},
		}
		for name, r := range bad {
			Convey("Then "+name+" is rejected", func() {
				err := r.Validate()
				So(errors.Is(err, model.ErrInvalidResult), ShouldBeTrue)
			})
		}
	})
}
