package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/okian/mathboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockRedis keeps hashes in a map and can be told to fail.
type mockRedis struct {
	hashes map[string]map[string]string
	err    error
}

func (m *mockRedis) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.hashes[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	for i := 0; i+1 < len(values); i += 2 {
		m.hashes[key][values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func TestRedisDirectory(t *testing.T) {
	Convey("Given a redis directory with one player", t, func() {
		ctx := context.Background()
		m := &mockRedis{hashes: map[string]map[string]string{
			"player:p1:info": {"username": "Ada"},
		}}
		d := NewRedisDirectory(m, nil)

		Convey("Then a known player resolves with its username", func() {
			id, err := d.Resolve(ctx, "p1")
			So(err, ShouldBeNil)
			So(id.PlayerID, ShouldEqual, "p1")
			So(id.DisplayName, ShouldEqual, "Ada")
		})

		Convey("Then a missing hash is an unknown player", func() {
			_, err := d.Resolve(ctx, "p2")
			So(errors.Is(err, model.ErrUnknownPlayer), ShouldBeTrue)
		})

		Convey("When a player registers", func() {
			So(d.Register(ctx, "p2", "Grace"), ShouldBeNil)

			Convey("Then the player resolves", func() {
				id, err := d.Resolve(ctx, "p2")
				So(err, ShouldBeNil)
				So(id.DisplayName, ShouldEqual, "Grace")
			})
		})

		Convey("When redis is down", func() {
			m.err = errors.New("dial tcp: connection refused")

			Convey("Then lookups and writes report the store unavailable", func() {
				_, err := d.Resolve(ctx, "p1")
				So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
				err = d.Register(ctx, "p3", "Linus")
				So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
			})
		})

		Convey("When the caller's deadline has passed", func() {
			m.err = context.DeadlineExceeded

			Convey("Then the deadline error passes through", func() {
				_, err := d.Resolve(ctx, "p1")
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeFalse)
			})
		})
	})
}
