// Package persist writes annotation state back to the metadata store and
// restores it when a page is created.
package persist

import (
	"sync"
	"time"
)

// Scheduler combines two triggers: a per-key quiescence timer that fires
// once a key has been quiet for the debounce window, and a hard interval
// that fires regardless of activity.
type Scheduler struct {
	clock    Clock
	debounce time.Duration
	interval time.Duration
	onQuiet  func(key int)
	onTick   func()

	mu      sync.Mutex
	pending map[int]*pendingKey
	ticker  Timer
	started bool
	stopped bool
}

type pendingKey struct {
	timer Timer
	gen   int
}

// NewScheduler builds a stopped scheduler. A zero interval disables the
// periodic trigger.
func NewScheduler(clock Clock, debounce, interval time.Duration, onQuiet func(key int), onTick func()) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock:    clock,
		debounce: debounce,
		interval: interval,
		onQuiet:  onQuiet,
		onTick:   onTick,
		pending:  make(map[int]*pendingKey),
	}
}

// Start arms the periodic trigger.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.armTick()
}

func (s *Scheduler) armTick() {
	if s.interval <= 0 || s.onTick == nil {
		return
	}
	s.ticker = s.clock.AfterFunc(s.interval, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.armTick()
		s.mu.Unlock()
		s.onTick()
	})
}

// Touch restarts key's quiescence window. Only the last Touch in a window
// leads to a callback.
func (s *Scheduler) Touch(key int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	p := s.pending[key]
	if p == nil {
		p = &pendingKey{}
		s.pending[key] = p
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = s.clock.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		cur := s.pending[key]
		if s.stopped || cur == nil || cur.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		s.onQuiet(key)
	})
}

// Cancel drops a pending quiescence timer for key.
func (s *Scheduler) Cancel(key int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.pending[key]; p != nil {
		p.timer.Stop()
		delete(s.pending, key)
	}
}

// Pending reports whether key has an armed quiescence timer.
func (s *Scheduler) Pending(key int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[key] != nil
}

// Stop cancels every timer. A stopped scheduler ignores further calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
