package engine

import "sync"

// Viewport is the scroll container's logical size and pixel density.
type Viewport struct {
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

// ViewportObserver reports the container size and notifies on change.
type ViewportObserver interface {
	Current() Viewport
	// Subscribe registers fn for size changes and returns a function that
	// removes it.
	Subscribe(fn func(Viewport)) (unsubscribe func())
}

// StaticViewport is a ViewportObserver for headless use. Resize notifies
// subscribers synchronously.
type StaticViewport struct {
	mu   sync.Mutex
	v    Viewport
	next int
	subs map[int]func(Viewport)
}

func NewStaticViewport(width, height, dpr float64) *StaticViewport {
	return &StaticViewport{v: Viewport{Width: width, Height: height, DevicePixelRatio: dpr}, subs: make(map[int]func(Viewport))}
}

func (s *StaticViewport) Current() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *StaticViewport) Subscribe(fn func(Viewport)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Resize changes the size and notifies every subscriber.
func (s *StaticViewport) Resize(v Viewport) {
	s.mu.Lock()
	s.v = v
	subs := make([]func(Viewport), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Subscribers is the number of live subscriptions.
func (s *StaticViewport) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
