// Package scheduler fires per-word callbacks at their offsets from a playback
// start instant, using a single goroutine and timer.
package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/willwade/tts-wrapper-sub000/internal/logger"
	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("scheduler is closed")

// WordCallback receives a word and its bounds in seconds.
type WordCallback func(word string, start, end float64)

type entry struct {
	due   time.Time
	seq   uint64
	gen   uint64
	word  timing.WordTiming
	fn    WordCallback
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler dispatches word callbacks in due order. Callbacks run one at a
// time on the scheduler goroutine.
type Scheduler struct {
	mu     sync.Mutex
	queue  entryHeap
	seq    uint64
	gen    uint64
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New starts a scheduler goroutine. Call Close to stop it.
func New() *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Schedule queues one callback per timing entry, due at start plus the
// entry's start offset. Entries already in the past fire immediately.
func (s *Scheduler) Schedule(start time.Time, timings []timing.WordTiming, fn WordCallback) error {
	if fn == nil || len(timings) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for _, t := range timings {
		s.seq++
		heap.Push(&s.queue, &entry{
			due:  start.Add(secondsToDuration(t.Start)),
			seq:  s.seq,
			gen:  s.gen,
			word: t,
			fn:   fn,
		})
	}
	pending := len(s.queue)
	s.mu.Unlock()

	logger.Debugf("Scheduled %d word callbacks (%d pending)", len(timings), pending)
	s.signal()
	return nil
}

// Cancel drops every pending callback. A callback already dispatched runs to
// completion.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.gen++
	s.mu.Unlock()

	if dropped > 0 {
		logger.Debugf("Cancelled %d pending word callbacks", dropped)
	}
	s.signal()
}

// Pending returns the number of callbacks not yet dispatched.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close cancels pending callbacks and stops the goroutine. It is idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.queue = nil
	s.gen++
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		var due <-chan time.Time
		if len(s.queue) > 0 {
			next := s.queue[0]
			if wait := time.Until(next.due); wait > 0 {
				timer.Reset(wait)
				due = timer.C
			} else {
				heap.Pop(&s.queue)
				current := next.gen == s.gen
				s.mu.Unlock()
				if current {
					invoke(next)
				}
				continue
			}
		}
		s.mu.Unlock()

		select {
		case <-due:
		case <-s.wake:
			timer.Stop()
		case <-s.quit:
			return
		}
	}
}

func invoke(e *entry) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("Word callback for %q failed", e.word.Word), fmt.Errorf("panic: %v", r))
		}
	}()
	e.fn(e.word.Word, e.word.Start, e.word.End)
}

func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
