package discord

import "sync"

// sequencer runs functions submitted under the same key one at a time, in
// submission order, while functions under different keys proceed
// concurrently. The gateway dispatches every event on its own goroutine,
// so without it two quick messages on the same channel could reach the
// engine out of order.
type sequencer struct {
	mu     sync.Mutex
	queues map[string][]func()
}

func newSequencer() *sequencer {
	return &sequencer{queues: make(map[string][]func())}
}

// Do enqueues fn under key and returns immediately. The first enqueue for
// an idle key starts a drain goroutine, which exits once the key's queue
// empties.
func (s *sequencer) Do(key string, fn func()) {
	s.mu.Lock()
	queue, active := s.queues[key]
	s.queues[key] = append(queue, fn)
	s.mu.Unlock()

	if !active {
		go s.drain(key)
	}
}

func (s *sequencer) drain(key string) {
	for {
		s.mu.Lock()
		queue := s.queues[key]
		if len(queue) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		fn := queue[0]
		s.queues[key] = queue[1:]
		s.mu.Unlock()

		fn()
	}
}
