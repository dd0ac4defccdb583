package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTryPublishBounds(t *testing.T) {
	q := NewQueue[int](2)

	if err := q.TryPublish(1); err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if err := q.TryPublish(2); err != nil {
		t.Fatalf("publish 2: %v", err)
	}
	if err := q.TryPublish(3); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("full queue should refuse, got %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
}

func TestTryPollDrains(t *testing.T) {
	q := NewQueue[string](4)
	q.TryPublish("a")
	q.TryPublish("b")

	v, ok := q.TryPoll()
	if !ok || v != "a" {
		t.Fatalf("first poll = %q ok=%t, want a", v, ok)
	}
	v, ok = q.TryPoll()
	if !ok || v != "b" {
		t.Fatalf("second poll = %q ok=%t, want b", v, ok)
	}
	if _, ok := q.TryPoll(); ok {
		t.Fatalf("empty queue should not poll")
	}
}

func TestCloseRefusesAndDrains(t *testing.T) {
	q := NewQueue[int](2)
	q.TryPublish(7)
	q.Close()
	q.Close() // second close is a no-op

	if err := q.TryPublish(8); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("closed queue should refuse, got %v", err)
	}
	if v, ok := q.TryPoll(); !ok || v != 7 {
		t.Fatalf("queued item should survive close, got %d ok=%t", v, ok)
	}
	if _, ok := q.Poll(context.Background()); ok {
		t.Fatalf("drained closed queue should report not ok")
	}
}

func TestCloseDuringConcurrentPublish(t *testing.T) {
	q := NewQueue[int](1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			if err := q.TryPublish(i); errors.Is(err, ErrQueueClosed) {
				return
			}
			q.TryPoll()
		}
	}()

	time.Sleep(time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher did not observe the close")
	}
	if err := q.TryPublish(99); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("closed queue should refuse, got %v", err)
	}
}

func TestPollHonorsContext(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := q.Poll(ctx); ok {
		t.Fatalf("poll on empty queue should fail when the context ends")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("poll did not return promptly after cancellation")
	}
}

func TestRunConsumesUntilClosed(t *testing.T) {
	q := NewQueue[int](8)
	for i := 1; i <= 3; i++ {
		q.TryPublish(i)
	}
	q.Close()

	var got []int
	q.Run(context.Background(), func(v int) { got = append(got, v) })

	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("run consumed %v, want [1 2 3]", got)
	}
}
