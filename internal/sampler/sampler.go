// Package sampler produces the bounded-rate position stream a
// publishing client feeds into location:update events.
package sampler

import (
	"context"
	"sync"
	"time"
)

// Position is one geolocation fix. Time is when the fix was taken by
// the underlying source, not when it was observed here.
type Position struct {
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   float64
	Accuracy  float64
	Time      time.Time
}

// Source supplies position fixes. Implementations may return a cached
// fix; the sampler discards fixes older than its staleness ceiling.
type Source interface {
	Position(ctx context.Context) (Position, error)
}

// Sampler polls a Source at a minimum refresh interval and emits fresh
// fixes on a channel. One sampling session is active at a time; Start
// while running and Stop while stopped are no-ops. On a source failure
// the sampler records the error state, keeps the last known fix, and
// keeps polling.
type Sampler struct {
	source   Source
	interval time.Duration
	maxAge   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	out     chan Position
	last    Position
	hasLast bool
	lastErr error
}

// New creates a sampler. maxAge is the staleness ceiling; when zero it
// defaults to the refresh interval, so a fix older than one interval is
// never reused.
func New(source Source, interval, maxAge time.Duration) *Sampler {
	if maxAge <= 0 {
		maxAge = interval
	}
	return &Sampler{
		source:   source,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start begins a sampling session. Calling Start while a session is
// running has no additional effect.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.out = make(chan Position, 1)
	s.running = true

	go s.loop(ctx, s.out)
}

// Stop halts sampling. Safe to call when already stopped.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}

// Samples returns the channel for the current session. It is closed
// when the session ends; a new Start yields a new channel.
func (s *Sampler) Samples() <-chan Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

// Last returns the most recent accepted fix, surviving source errors.
func (s *Sampler) Last() (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Err returns the current error state, nil while sampling is healthy.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Sampler) loop(ctx context.Context, out chan Position) {
	defer func() {
		close(out)
		// The loop can also exit through the parent context; mark the
		// session over so a later Start opens a new one, unless Stop
		// and Start already did.
		s.mu.Lock()
		if s.out == out {
			s.running = false
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx, out)
		}
	}
}

func (s *Sampler) sample(ctx context.Context, out chan Position) {
	pos, err := s.source.Position(ctx)

	s.mu.Lock()
	if err != nil {
		// Keep the last known fix; the error state stands until a
		// read succeeds.
		s.lastErr = err
		s.mu.Unlock()
		return
	}
	if !pos.Time.IsZero() && time.Since(pos.Time) > s.maxAge {
		// Stale cached fix, not reused.
		s.mu.Unlock()
		return
	}
	s.last = pos
	s.hasLast = true
	s.lastErr = nil
	s.mu.Unlock()

	// Never block on a slow consumer: displace an unread fix so the
	// channel always holds the freshest one.
	for {
		select {
		case out <- pos:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
