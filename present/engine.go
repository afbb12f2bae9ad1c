package present

import (
	"fmt"
	"time"
)

// DefaultDepth is how many buffers may sit in the swapchain before the
// engine starts flipping them out.
const DefaultDepth = 3

// VsyncInfo is the rolling presentation-timing state exposed to the player.
type VsyncInfo struct {
	// Duration is the measured time between vblanks, 0 until known.
	Duration time.Duration
	// Skipped counts vblanks the last frame missed, -1 until known.
	Skipped int64
	// LastDisplay is when the last frame reached the screen, zero until
	// known.
	LastDisplay time.Time
}

// Config tunes the engine.
type Config struct {
	// Depth bounds the swapchain; 0 means DefaultDepth.
	Depth int
	VRR   VRRMode
	// DrawWidth/DrawHeight override the plane source rectangle; 0 means
	// the mode size. The plane scales the difference.
	DrawWidth, DrawHeight int
}

// Engine drives the steady-state presentation cycle: render, lock, enqueue,
// and flip-or-drain under the depth and pause constraints. All state is
// owned by the calling goroutine; there are no internal workers.
type Engine struct {
	display  Display
	producer Producer
	renderer Renderer
	registry *Registry
	session  *session

	chain  *swapchain
	fences *fenceFIFO

	// Exactly one transaction is live at a time; consumed on commit and
	// replaced immediately.
	tx         *Transaction
	completion func(FlipEvent)

	flipPending bool
	paused      bool
	still       bool

	depth int

	vsync VsyncStamp
	info  VsyncInfo

	fbWidth, fbHeight uint32
}

// NewEngine wires the engine to its collaborators. Start must run before
// the first frame.
func NewEngine(display Display, producer Producer, renderer Renderer, cfg Config) *Engine {
	depth := cfg.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	e := &Engine{
		display:  display,
		producer: producer,
		renderer: renderer,
		chain:    newSwapchain(producer),
		fences:   newFenceFIFO(renderer),
		tx:       NewTransaction(),
		depth:    depth,
		info:     VsyncInfo{Skipped: -1},
	}
	e.registry = NewRegistry(display)
	e.producer.OnDestroy(e.registry.Evict)

	srcW, srcH := cfg.DrawWidth, cfg.DrawHeight
	dstW, dstH := display.ModeSize()
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = dstW, dstH
	}
	e.session = newSession(display, sessionConfig{
		srcW: uint32(srcW), srcH: uint32(srcH),
		dstW: uint32(dstW), dstH: uint32(dstH),
		vrr: cfg.VRR,
	})
	return e
}

// Start primes the swapchain with one rendered buffer and takes over the
// display with it on screen. Fatal on any failure; nothing is presentable
// without the first framebuffer and an active session.
func (e *Engine) Start() error {
	if err := e.renderer.Swap(); err != nil {
		return fmt.Errorf("priming swap: %w", err)
	}
	buf, err := e.producer.LockFront()
	if err != nil {
		return fmt.Errorf("locking first buffer: %w", err)
	}

	rec := e.registry.RegisterOrGet(buf)
	if rec.ID == 0 {
		e.producer.Release(buf)
		return fmt.Errorf("first buffer has no framebuffer")
	}
	e.fbWidth, e.fbHeight = rec.Width, rec.Height

	e.vsync.SBC++
	e.chain.enqueue(buf, e.vsync)

	e.session.cfg.fbID = rec.ID
	if err := e.session.establish(); err != nil {
		return fmt.Errorf("establishing display session: %w", err)
	}
	return nil
}

// liveTx returns the live transaction, creating one when none exists.
func (e *Engine) liveTx() *Transaction {
	if e.tx == nil {
		e.tx = NewTransaction()
	}
	return e.tx
}

// BeginFrame makes sure a live transaction exists for the coming frame.
func (e *Engine) BeginFrame() {
	e.liveTx()
}

// SubmitFrame records whether the frame just rendered is a still; stills
// force the next swap to drain.
func (e *Engine) SubmitFrame(still bool) {
	e.still = still
}

// SwapBuffers runs one presentation cycle: bound GPU run-ahead, finish the
// frame, enqueue the new front buffer, then flip or drain until the queue
// respects depth and the producer has room again. While the session is
// inactive (VT switched away) the frame is dropped.
func (e *Engine) SwapBuffers() {
	if !e.session.active {
		return
	}
	drain := e.paused || e.still

	e.fences.drainDue(e.chain.len())

	if err := e.renderer.Swap(); err != nil {
		logger().Error("swap failed", "err", err)
		return
	}
	buf, err := e.producer.LockFront()
	if err != nil {
		logger().Error("couldn't lock front buffer", "err", err)
		return
	}
	e.vsync.SBC++
	e.chain.enqueue(buf, e.vsync)
	e.fences.record()

	for drain || e.chain.len() > e.depth || !e.producer.HasFreeBuffers() {
		if e.flipPending {
			e.waitForFlip()
			e.chain.retireOldest()
		}
		if e.chain.len() <= 1 {
			break
		}
		next := e.chain.second()
		if next.buf == nil {
			logger().Error("hole in swapchain")
			e.chain.retireOldest()
			continue
		}
		if !e.queueFlip(next) {
			// The frame can't be presented; retire the head so the
			// drain still terminates.
			e.chain.retireOldest()
		}
	}
}

// Pause forces subsequent swaps to drain the queue down to the frame on
// display.
func (e *Engine) Pause() {
	e.paused = true
}

// Resume clears pause and resets vsync accounting to an unknown baseline.
func (e *Engine) Resume() {
	e.paused = false
	e.vsync.UST = 0
	e.vsync.MSC = 0
	e.info.Skipped = 0
	e.info.LastDisplay = time.Time{}
}

// VsyncInfo returns the current presentation-timing counters.
func (e *Engine) VsyncInfo() VsyncInfo {
	return e.info
}

// DisplayFPS is the configured mode's true refresh rate.
func (e *Engine) DisplayFPS() float64 {
	return e.display.Refresh()
}

// DisplaySize is the configured mode's resolution.
func (e *Engine) DisplaySize() (int, int) {
	return e.display.ModeSize()
}

// FramebufferSize is the geometry of the primed framebuffer, reported for
// layout.
func (e *Engine) FramebufferSize() (int, int) {
	return int(e.fbWidth), int(e.fbHeight)
}

// ReleaseVT hands the display back around a VT switch-away: the session is
// torn down immediately, without waiting for an in-flight flip.
func (e *Engine) ReleaseVT() {
	e.session.teardown()
	if err := e.display.DropMaster(); err != nil {
		logger().Warn("dropping display master failed", "err", err)
	}
}

// AcquireVT retakes the display after a VT switch-back.
func (e *Engine) AcquireVT() {
	if err := e.display.SetMaster(); err != nil {
		logger().Warn("acquiring display master failed", "err", err)
	}
	if err := e.session.establish(); err != nil {
		logger().Error("re-establishing display session failed", "err", err)
	}
}

// Shutdown submits any leftover transaction, restores the display and
// returns every queued buffer to the producer. Runs to completion no matter
// what fails.
func (e *Engine) Shutdown() {
	if e.flipPending {
		e.waitForFlip()
	}
	if e.tx != nil && !e.tx.Empty() {
		if err := e.display.Commit(e.tx, 0, 0); err != nil {
			logger().Warn("final commit failed", "err", err)
		}
		e.tx = NewTransaction()
	}
	e.session.teardown()
	e.fences.releaseAll()
	e.chain.drainAll()
}
