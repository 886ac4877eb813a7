package learning

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueDrainsFIFO(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 3; i++ {
		q.Enqueue(DetectionPayload{Type: "tool_error", FailureDesc: string(rune('a' + i))})
	}

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, p DetectionPayload) {
			mu.Lock()
			got = append(got, p.FailureDesc)
			mu.Unlock()
			if len(got) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("drain order = %v, want [a b c]", got)
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(DetectionPayload{FailureDesc: "first"})
	q.Enqueue(DetectionPayload{FailureDesc: "second"})
	q.Enqueue(DetectionPayload{FailureDesc: "third"}) // should evict "first"

	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 2; i++ {
		select {
		case p := <-q.ch:
			got = append(got, p.FailureDesc)
		case <-time.After(time.Second):
			t.Fatal("timed out draining queue")
		}
	}

	if len(got) != 2 || got[0] != "second" || got[1] != "third" {
		t.Fatalf("got %v, want [second third] (oldest dropped)", got)
	}
}

func TestQueueRecoversFromHandlerPanic(t *testing.T) {
	q := NewQueue(4)
	q.Enqueue(DetectionPayload{FailureDesc: "boom"})
	q.Enqueue(DetectionPayload{FailureDesc: "survives"})

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, p DetectionPayload) {
			if p.FailureDesc == "boom" {
				panic("simulated handler failure")
			}
			mu.Lock()
			got = append(got, p.FailureDesc)
			mu.Unlock()
			cancel()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "survives" {
		t.Fatalf("got %v, want the panicking item dropped and the next one processed", got)
	}
}
