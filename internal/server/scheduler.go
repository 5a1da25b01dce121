package server

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// deadlineEntry is one pending deadline. Entries are never removed early:
// when a deadline moves, the stale entry stays in the heap and the fire
// callback discards it because the game's current deadline no longer matches.
type deadlineEntry struct {
	when   time.Time
	gameID string
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if !h[i].when.Equal(h[j].when) {
		return h[i].when.Before(h[j].when)
	}
	return h[i].gameID < h[j].gameID
}
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)        { *h = append(*h, x.(deadlineEntry)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler drives game deadlines from a single goroutine over a min-heap.
// One timer serves every game; pushing an earlier deadline wakes the loop so
// the timer can be re-armed.
type Scheduler struct {
	log  zerolog.Logger
	fire func(gameID string, when time.Time)

	mu   sync.Mutex
	h    deadlineHeap
	wake chan struct{}
}

// NewScheduler creates a scheduler. The fire callback runs on the scheduler
// goroutine and must hand work off quickly.
func NewScheduler(log zerolog.Logger, fire func(gameID string, when time.Time)) *Scheduler {
	return &Scheduler{
		log:  log,
		fire: fire,
		wake: make(chan struct{}, 1),
	}
}

// Schedule registers a deadline for a game. Superseded deadlines for the same
// game need not be cancelled; they are discarded when they pop.
func (s *Scheduler) Schedule(gameID string, when time.Time) {
	s.mu.Lock()
	heap.Push(&s.h, deadlineEntry{when: when, gameID: gameID})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks, firing deadlines as they expire, until the context is done.
func (s *Scheduler) Run(ctx context.Context) {
	const idleWait = time.Hour

	for {
		now := time.Now()

		s.mu.Lock()
		for len(s.h) > 0 && !s.h[0].when.After(now) {
			e := heap.Pop(&s.h).(deadlineEntry)
			s.mu.Unlock()
			s.log.Debug().Str("gameId", e.gameID).Time("deadline", e.when).Msg("Deadline expired")
			s.fire(e.gameID, e.when)
			s.mu.Lock()
			now = time.Now()
		}
		wait := idleWait
		if len(s.h) > 0 {
			wait = s.h[0].when.Sub(now)
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}
