package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"

	service "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	got      []model.GameResult
	fullFor  int
	failFor  int
	err      error
	seen     map[string]bool
	attempts int
}

func (f *fakeSubmitter) Enqueue(_ context.Context, r model.GameResult) (service.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failFor > 0 {
		f.failFor--
		return service.Receipt{}, model.ErrStoreUnavailable
	}
	if f.err != nil {
		return service.Receipt{}, f.err
	}
	if f.fullFor > 0 {
		f.fullFor--
		return service.Receipt{}, model.ErrBackpressure
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[r.ResultID] {
		return service.Receipt{ResultID: r.ResultID, Duplicate: true}, nil
	}
	f.seen[r.ResultID] = true
	f.got = append(f.got, r)
	return service.Receipt{ResultID: r.ResultID}, nil
}

// fakeSession records marked offsets.
type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct{ msgs chan *sarama.ConsumerMessage }

func (c *fakeClaim) Topic() string                            { return "game-results" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return int64(len(c.msgs)) }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func message(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "game-results", Partition: 0, Offset: offset, Value: []byte(value)}
}

func TestDecode(t *testing.T) {
	Convey("Given consumed messages", t, func() {
		Convey("When the payload carries a result_id", func() {
			r, err := decode(message(7, `{"result_id":"g-1","player_id":"p1","points_earned":30,"won":true,"correct_count":3,"total_count":4}`))

			Convey("Then every field is decoded", func() {
				So(err, ShouldBeNil)
				So(r, ShouldResemble, model.GameResult{ResultID: "g-1", PlayerID: "p1", PointsEarned: 30, Won: true, CorrectCount: 3, TotalCount: 4})
			})
		})

		Convey("When the payload has no result_id", func() {
			r, err := decode(message(42, `{"player_id":"p1"}`))

			Convey("Then the log position becomes the ID", func() {
				So(err, ShouldBeNil)
				So(r.ResultID, ShouldEqual, "game-results-0-42")
			})
		})

		Convey("When the payload is not JSON", func() {
			_, err := decode(message(1, `not json`))

			Convey("Then it is an invalid result", func() {
				So(errors.Is(err, model.ErrInvalidResult), ShouldBeTrue)
			})
		})
	})
}

func TestConsumeClaim(t *testing.T) {
	Convey("Given a handler over a claim with good, bad and duplicate messages", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub := &fakeSubmitter{fullFor: 2}
		h := newHandler(sub, logger.Nop())
		h.minBackoff, h.maxBackoff = time.Millisecond, 2*time.Millisecond

		claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 4)}
		claim.msgs <- message(0, `{"result_id":"g-1","player_id":"p1","points_earned":5}`)
		claim.msgs <- message(1, `garbage`)
		claim.msgs <- message(2, `{"result_id":"g-1","player_id":"p1","points_earned":5}`)
		claim.msgs <- message(3, `{"result_id":"g-2","player_id":"p2","points_earned":1}`)
		close(claim.msgs)
		session := &fakeSession{ctx: ctx}

		So(h.ConsumeClaim(session, claim), ShouldBeNil)

		Convey("Then every message is marked in order", func() {
			So(session.marked, ShouldResemble, []int64{0, 1, 2, 3})
		})

		Convey("Then only distinct well-formed results reach the queue", func() {
			So(len(sub.got), ShouldEqual, 2)
			So(sub.got[0].ResultID, ShouldEqual, "g-1")
			So(sub.got[1].ResultID, ShouldEqual, "g-2")
		})

		Convey("Then a full queue was retried rather than dropped", func() {
			So(sub.attempts, ShouldEqual, 5)
		})
	})

	Convey("Given a submitter that fails for a while and then recovers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub := &fakeSubmitter{failFor: 3}
		h := newHandler(sub, logger.Nop())
		h.minBackoff, h.maxBackoff = time.Millisecond, 2*time.Millisecond

		claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 2)}
		claim.msgs <- message(0, `{"result_id":"g-1","player_id":"p1"}`)
		claim.msgs <- message(1, `{"result_id":"g-2","player_id":"p2"}`)
		close(claim.msgs)
		session := &fakeSession{ctx: ctx}

		So(h.ConsumeClaim(session, claim), ShouldBeNil)

		Convey("Then the partition keeps flowing past the failure", func() {
			So(session.marked, ShouldResemble, []int64{0, 1})
			So(len(sub.got), ShouldEqual, 2)
			So(sub.attempts, ShouldEqual, 5)
		})
	})

	Convey("Given a submitter that fails until the session ends", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		sub := &fakeSubmitter{err: model.ErrStoreUnavailable}
		h := newHandler(sub, logger.Nop())
		h.minBackoff, h.maxBackoff = time.Millisecond, 2*time.Millisecond

		claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 1)}
		claim.msgs <- message(0, `{"player_id":"p1"}`)
		close(claim.msgs)
		session := &fakeSession{ctx: ctx}

		So(h.ConsumeClaim(session, claim), ShouldBeNil)

		Convey("Then it was retried and left unmarked for redelivery", func() {
			So(sub.attempts, ShouldBeGreaterThan, 1)
			So(session.marked, ShouldBeEmpty)
		})
	})

	Convey("Given a queue that stays full until the session ends", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		sub := &fakeSubmitter{fullFor: 1 << 30}
		h := newHandler(sub, logger.Nop())

		claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 1)}
		claim.msgs <- message(0, `{"player_id":"p1"}`)
		session := &fakeSession{ctx: ctx}

		So(h.ConsumeClaim(session, claim), ShouldBeNil)

		Convey("Then the message is not marked", func() {
			So(session.marked, ShouldBeEmpty)
		})
	})
}
