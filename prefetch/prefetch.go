// Package prefetch runs a background read-ahead loop that keeps a ring
// buffer populated with contiguous blocks of upcoming frames.
// Contiguous block reads reduce seek cost on memmap-backed stacks and
// absorb read latency so high-FPS playback does not stall.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/phagelab/go-playback/frame"
	"github.com/phagelab/go-playback/logger"
	"github.com/phagelab/go-playback/ringbuf"
)

const (
	// DefaultBlockSize is the number of frames fetched per read.
	DefaultBlockSize = 64
	// DefaultMaxInflightBlocks caps read-ahead at this many blocks
	// worth of frames.
	DefaultMaxInflightBlocks = 2

	idleSleep       = 10 * time.Millisecond
	throttleSleep   = 2 * time.Millisecond
	postPushSleep   = time.Millisecond
	defaultJoinWait = 200 * time.Millisecond
)

// cursor is the prefetcher's read position. Mutated by Start and
// RequestJump on the caller side and advanced by the read loop.
type cursor struct {
	next       int
	upperBound int
	selection  int
	loop       bool
	valid      bool
	reset      bool
}

// BlockPrefetcher reads contiguous blocks ahead of the playback cursor
// and pushes them into a ring buffer. At most one background loop runs
// per instance.
type BlockPrefetcher struct {
	read   frame.BlockReader
	ring   *ringbuf.FrameRingBuffer
	logger logger.Logger

	mu          sync.Mutex // guards cursor, tuning, and err
	cur         cursor
	blockSize   int
	maxInflight int
	err         error

	runMu    sync.Mutex // guards the worker lifecycle fields
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	joinWait time.Duration
}

// Option configures a BlockPrefetcher.
type Option func(*BlockPrefetcher)

// WithLogger sets the logger for loop lifecycle and read failures.
func WithLogger(l logger.Logger) Option {
	return func(p *BlockPrefetcher) { p.logger = l }
}

// WithTuning sets the initial block size and in-flight block limit.
// Equivalent to calling Configure before the first Start.
func WithTuning(blockSize, maxInflightBlocks int) Option {
	return func(p *BlockPrefetcher) {
		p.blockSize = clampMin1(blockSize)
		p.maxInflight = clampMin1(maxInflightBlocks)
	}
}

// WithJoinWait bounds how long Stop waits for the loop to observe the
// stop signal before proceeding without it.
func WithJoinWait(d time.Duration) Option {
	return func(p *BlockPrefetcher) { p.joinWait = d }
}

// New returns a BlockPrefetcher that reads via read and fills ring. The
// loop is not started until Start is called.
func New(read frame.BlockReader, ring *ringbuf.FrameRingBuffer, opts ...Option) *BlockPrefetcher {
	p := &BlockPrefetcher{
		read:        read,
		ring:        ring,
		logger:      logger.Discard,
		blockSize:   DefaultBlockSize,
		maxInflight: DefaultMaxInflightBlocks,
		joinWait:    defaultJoinWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func clampMin1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// Configure adjusts the tuning parameters. Takes effect on the next
// loop iteration. Non-positive values are clamped to 1.
func (p *BlockPrefetcher) Configure(blockSize, maxInflightBlocks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockSize = clampMin1(blockSize)
	p.maxInflight = clampMin1(maxInflightBlocks)
}

// Start points the prefetcher at the frame after current and launches
// the background loop if it is not already running. When a loop is
// already active this only retargets it, it never spawns a second one.
func (p *BlockPrefetcher) Start(current, upperBound, selection int, loop bool) {
	p.RequestJump(current, upperBound, selection, loop)
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// RequestJump resets the prefetch cursor without spawning a loop. The
// ring buffer is cleared by the loop before any post-jump block is
// pushed, so no pre-jump frame can leak past a seek.
func (p *BlockPrefetcher) RequestJump(current, upperBound, selection int, loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if upperBound < 0 {
		upperBound = 0
	}
	if selection < 0 {
		selection = 0
	}
	p.cur = cursor{
		next:       current + 1,
		upperBound: upperBound,
		selection:  selection,
		loop:       loop,
		valid:      true,
		reset:      true,
	}
	p.err = nil
}

// Stop signals the loop to terminate and waits for it, bounded by the
// configured join wait. If the loop is stuck inside a slow read it is
// left to finish naturally. Safe to call when not running.
func (p *BlockPrefetcher) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.runMu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(p.joinWait):
		p.logger.Warn("prefetch loop did not stop within %s, abandoning join", p.joinWait)
	}
}

// IsRunning reports whether the background loop is active. The loop
// exits on Stop, on a terminal read failure, and when the cursor is
// exhausted with looping disabled.
func (p *BlockPrefetcher) IsRunning() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.running
}

// Err returns the terminal read error that stopped the loop, if any.
// Cleared by the next Start or RequestJump.
func (p *BlockPrefetcher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *BlockPrefetcher) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.runMu.Lock()
		// A Start that raced this loop's wind-down may already have
		// spawned a successor; only this generation's flag is lowered.
		if p.done == done {
			p.running = false
		}
		p.runMu.Unlock()
		close(done)
	}()
	p.logger.Debug("prefetch loop started")
	for {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		cur := p.cur
		p.cur.reset = false
		blockSize := p.blockSize
		maxInflight := p.maxInflight
		p.mu.Unlock()

		if !cur.valid {
			sleep(ctx, idleSleep)
			continue
		}
		if cur.reset {
			p.ring.Reset()
		}

		stats := p.ring.Stats()
		targetFill := min(stats.Capacity, blockSize*maxInflight)
		if stats.Filled >= targetFill {
			sleep(ctx, throttleSleep)
			continue
		}

		next := cur.next
		if next > cur.upperBound {
			if !cur.loop {
				if p.exhausted(cur) {
					return
				}
				// A jump arrived while we were deciding; go around.
				continue
			}
			next = 0
		}
		stop := min(next+blockSize, cur.upperBound+1)

		// The read happens outside any lock so a slow disk read never
		// blocks cursor updates from the playback driver.
		block, err := p.read(next, stop, cur.selection)
		if err != nil {
			// One immediate retry; a second consecutive failure is
			// terminal.
			p.logger.Debug("block read [%d,%d) failed, retrying once: %v", next, stop, err)
			block, err = p.read(next, stop, cur.selection)
		}
		if err != nil {
			p.fail(next, stop, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if p.jumpedSince(cur) {
			// The block belongs to an abandoned cursor position; drop
			// it so nothing stale lands after the pending reset.
			continue
		}

		p.ring.PushBlock(next, block)
		next = stop
		if cur.loop && next > cur.upperBound {
			next = 0
		}
		p.advance(cur, next)
		sleep(ctx, postPushSleep)
	}
}

// jumpedSince reports whether a jump retargeted the cursor after the
// given snapshot was taken.
func (p *BlockPrefetcher) jumpedSince(seen cursor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur.reset || p.cur.next != seen.next
}

// advance moves the cursor forward, unless a jump arrived while the
// block was being read, in which case the fresher cursor wins.
func (p *BlockPrefetcher) advance(seen cursor, next int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur.reset || p.cur.next != seen.next {
		return
	}
	p.cur.next = next
}

// exhausted invalidates the cursor and reports whether the loop should
// end. A jump that arrived concurrently keeps the loop alive. The
// running flag is lowered in the same critical section as the cursor
// check, so a Start racing the wind-down either retargets this loop or
// spawns a fresh one, never neither.
func (p *BlockPrefetcher) exhausted(seen cursor) bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur.reset || p.cur.next != seen.next {
		return false
	}
	p.cur.valid = false
	p.running = false
	p.logger.Debug("prefetch cursor exhausted at upper bound %d", seen.upperBound)
	return true
}

// fail records a terminal read error and ends the loop. As with
// exhausted, the running flag is lowered here so a Start issued right
// after observing Err spawns a fresh loop instead of being swallowed.
func (p *BlockPrefetcher) fail(start, stop int, err error) {
	wrapped := errors.Wrapf(err, "reading block [%d,%d)", start, stop)
	p.runMu.Lock()
	p.mu.Lock()
	p.cur.valid = false
	p.err = wrapped
	p.running = false
	p.mu.Unlock()
	p.runMu.Unlock()
	p.logger.Error("prefetch stopped: %v", wrapped)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
