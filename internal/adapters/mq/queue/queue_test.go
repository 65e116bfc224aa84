package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/mathboard/internal/domain/model"
)

func result(id string) model.GameResult {
	return model.GameResult{ResultID: id, PlayerID: "p-" + id, PointsEarned: 1}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, result("r1")) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ResultID != "r1" {
		t.Errorf("expected r1, got %s", got.ResultID)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, result("r1")) || !q.Enqueue(ctx, result("r2")) {
		t.Fatal("expected enqueue to succeed below capacity")
	}
	if q.Enqueue(ctx, result("r3")) {
		t.Error("expected enqueue to fail when full")
	}
	if q.Len(ctx) != 2 || q.Cap() != 2 {
		t.Errorf("expected len 2 cap 2, got len %d cap %d", q.Len(ctx), q.Cap())
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		q.Enqueue(ctx, result(fmt.Sprintf("r%03d", i)))
	}
	_ = q.Close()

	i := 0
	for r := range q.Dequeue(ctx) {
		if want := fmt.Sprintf("r%03d", i); r.ResultID != want {
			t.Fatalf("position %d: got %s, want %s", i, r.ResultID, want)
		}
		i++
	}
	if i != 100 {
		t.Errorf("drained %d results after close, want 100", i)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, result("late")) {
		t.Error("expected enqueue after close to fail")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, result("r1")) {
		t.Error("expected enqueue with cancelled context to fail")
	}

	// Dequeue stops forwarding once its context is done, even on an open queue.
	ch := NewInMemoryQueue(WithCapacity(4)).Dequeue(ctx)
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no result from an empty queue")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel did not close after cancellation")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !q.Enqueue(ctx, result(fmt.Sprintf("g%d-%d", g, i))) {
					t.Errorf("enqueue g%d-%d failed", g, i)
				}
			}
		}(g)
	}
	wg.Wait()
	if l := q.Len(ctx); l != 1000 {
		t.Errorf("expected 1000 queued results, got %d", l)
	}
}
