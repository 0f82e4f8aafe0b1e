package discord

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSequencerDeliversSameKeyInOrder(t *testing.T) {
	seq := newSequencer()
	const n = 64

	var mu sync.Mutex
	var got []int
	var running int32
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		i := i
		seq.Do("dm-user1", func() {
			defer wg.Done()
			if atomic.AddInt32(&running, 1) != 1 {
				t.Error("two functions for the same key ran at once")
			}
			// Give trailing enqueues time to pile up behind the drain.
			time.Sleep(time.Millisecond)
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			atomic.AddInt32(&running, -1)
		})
	}
	wg.Wait()

	if len(got) != n {
		t.Fatalf("expected %d deliveries, got %d", n, len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("delivery %d out of order: got %d", i, v)
		}
	}
}

func TestSequencerKeysRunConcurrently(t *testing.T) {
	seq := newSequencer()
	release := make(chan struct{})
	started := make(chan struct{})
	seq.Do("channel-a", func() {
		close(started)
		<-release
	})
	<-started
	defer close(release)

	done := make(chan struct{})
	seq.Do("channel-b", func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("function for an unrelated key waited on channel-a")
	}
}

func TestSequencerRestartsAfterIdle(t *testing.T) {
	seq := newSequencer()
	for round := 0; round < 3; round++ {
		done := make(chan struct{})
		seq.Do("dm-user1", func() { close(done) })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d never ran", round)
		}
	}
}

func TestSequencerConcurrentProducers(t *testing.T) {
	seq := newSequencer()
	const n = 200

	var delivered int32
	var running int32
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go seq.Do("dm-user1", func() {
			defer wg.Done()
			if atomic.AddInt32(&running, 1) != 1 {
				t.Error("two functions for the same key ran at once")
			}
			atomic.AddInt32(&delivered, 1)
			atomic.AddInt32(&running, -1)
		})
	}
	wg.Wait()

	if got := atomic.LoadInt32(&delivered); got != n {
		t.Fatalf("expected %d deliveries, got %d", n, got)
	}
}
