// Package playback drives frame delivery for high-FPS time-series
// viewing. A Player pops frames from a ring buffer at a configured
// frame rate while a prefetcher keeps the buffer filled ahead of the
// cursor.
package playback

import (
	"sync"
	"time"

	"github.com/phagelab/go-playback/frame"
	"github.com/phagelab/go-playback/logger"
	"github.com/phagelab/go-playback/prefetch"
	"github.com/phagelab/go-playback/ringbuf"
)

// FrameFunc receives each delivered frame. It runs on the playback
// goroutine; slow handlers eat into the frame interval.
type FrameFunc func(f frame.Frame)

// UnderrunFunc is notified whenever the buffer is empty on a tick.
// Underruns are recoverable: the player retries on its next tick.
type UnderrunFunc func()

// Config holds the playback parameters for one session.
type Config struct {
	// FPS is the target frame rate. Values below 1 are clamped to 1.
	FPS int
	// UpperBound is the inclusive last valid frame index.
	UpperBound int
	// Selection is the active depth/z index.
	Selection int
	// Loop restarts playback from frame 0 after the upper bound.
	Loop bool
}

// Stats is a snapshot of playback progress.
type Stats struct {
	Delivered int64
	Underruns int64
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the player's logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithFrameFunc sets the frame delivery callback.
func WithFrameFunc(fn FrameFunc) Option {
	return func(p *Player) { p.frameFunc = fn }
}

// WithUnderrunFunc sets the underrun notification callback.
func WithUnderrunFunc(fn UnderrunFunc) Option {
	return func(p *Player) { p.underrunFunc = fn }
}

// Player owns the playback tick loop. It never blocks waiting on the
// prefetcher: an empty buffer is an underrun, handled by retrying a
// tick later.
type Player struct {
	ring         *ringbuf.FrameRingBuffer
	pf           *prefetch.BlockPrefetcher
	logger       logger.Logger
	frameFunc    FrameFunc
	underrunFunc UnderrunFunc

	mu        sync.Mutex
	cfg       Config
	lastIndex int
	delivered int64
	underruns int64

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a Player that pops from ring while pf fills it.
func New(ring *ringbuf.FrameRingBuffer, pf *prefetch.BlockPrefetcher, cfg Config, opts ...Option) *Player {
	if cfg.FPS < 1 {
		cfg.FPS = 1
	}
	p := &Player{
		ring:   ring,
		pf:     pf,
		logger: logger.Discard,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins playback from the given cursor position. The prefetcher
// is pointed at the frame after from. Idempotent while running.
func (p *Player) Start(from int) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return
	}
	p.mu.Lock()
	p.lastIndex = from
	cfg := p.cfg
	p.mu.Unlock()

	p.ring.Reset()
	p.pf.Start(from, cfg.UpperBound, cfg.Selection, cfg.Loop)
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.logger.Debug("playback started at frame %d, %d fps", from, cfg.FPS)
	go p.tick(p.stop, p.done)
}

// Stop ends playback, stops the prefetcher, and clears the buffer.
// Safe to call when not running.
func (p *Player) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	stop := p.stop
	done := p.done
	p.runMu.Unlock()

	close(stop)
	<-done
	p.pf.Stop()
	p.ring.Reset()
	p.logger.Debug("playback stopped")
}

// Done returns a channel closed when the tick loop exits, either via
// Stop or because a non-looping session played out.
func (p *Player) Done() <-chan struct{} {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

// SetFPS changes the frame rate, effective on the next tick. Values
// below 1 are clamped to 1.
func (p *Player) SetFPS(fps int) {
	if fps < 1 {
		fps = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.FPS = fps
}

// SetLoop enables or disables loop mode, effective immediately. While
// playback is running the prefetcher is retargeted from the last
// delivered frame, so enabling looping resumes read-ahead on an
// already-exhausted source and disabling it lets the current pass play
// out to the upper bound.
func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	if p.cfg.Loop == loop {
		p.mu.Unlock()
		return
	}
	p.cfg.Loop = loop
	cfg := p.cfg
	last := p.lastIndex
	p.mu.Unlock()

	p.runMu.Lock()
	running := p.running
	p.runMu.Unlock()
	if running {
		p.pf.Start(last, cfg.UpperBound, cfg.Selection, loop)
	}
}

// Stats returns delivery and underrun counts.
func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Delivered: p.delivered, Underruns: p.underruns}
}

func (p *Player) tick(stop, done chan struct{}) {
	defer func() {
		p.runMu.Lock()
		p.running = false
		p.runMu.Unlock()
		close(done)
	}()
	for {
		p.mu.Lock()
		fps := p.cfg.FPS
		p.mu.Unlock()
		interval := time.Second / time.Duration(fps)

		select {
		case <-stop:
			return
		default:
		}

		f, ok := p.ring.Pop()
		if !ok {
			if err := p.pf.Err(); err != nil {
				p.logger.Error("playback halted: %v", err)
				return
			}
			if !p.pf.IsRunning() && p.ring.Stats().Filled == 0 {
				// Non-looping session played out.
				p.logger.Debug("playback finished")
				return
			}
			p.mu.Lock()
			p.underruns++
			p.mu.Unlock()
			if p.underrunFunc != nil {
				p.underrunFunc()
			}
			p.logger.Trace("buffer underrun")
			wait(stop, interval)
			continue
		}

		if p.frameFunc != nil {
			p.frameFunc(f)
		}
		p.mu.Lock()
		p.delivered++
		p.lastIndex = f.Index
		p.mu.Unlock()
		wait(stop, interval)
	}
}

func wait(stop chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
	case <-t.C:
	}
}
