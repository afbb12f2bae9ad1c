package present

import "time"

// flipPollTimeout bounds one wait for the device becoming readable. There is
// no escalation beyond repeated bounded polling; a genuinely stuck driver
// means unbounded retry.
const flipPollTimeout = 3 * time.Second

// queueFlip merges entry's framebuffer into the live transaction and submits
// it non-blocking with a completion event. The live transaction is replaced
// with a fresh one whether the commit succeeds or not. Returns whether a
// flip is now in flight.
func (e *Engine) queueFlip(entry queueEntry) bool {
	rec := e.registry.RegisterOrGet(entry.buf)
	if rec.ID == 0 {
		logger().Error("no framebuffer for queued buffer, dropping frame", "buffer", entry.buf.ID())
		return false
	}

	plane := e.display.PlaneID()
	tx := e.liveTx()
	tx.Set(plane, "FB_ID", uint64(rec.ID))
	tx.Set(plane, "CRTC_ID", uint64(e.display.CrtcID()))
	tx.Set(plane, "ZPOS", 1)

	stamp := entry.stamp
	e.completion = func(ev FlipEvent) {
		e.completeFlip(stamp, ev)
	}

	err := e.display.Commit(tx, CommitNonblock|CommitPageFlipEvent, 0)
	e.tx = NewTransaction()
	if err != nil {
		logger().Warn("flip commit failed", "err", err)
		e.completion = nil
		return false
	}
	e.flipPending = true
	return true
}

// waitForFlip blocks until the pending flip completes, polling the device in
// bounded slices and dispatching events synchronously. A dispatch error
// aborts the wait early.
func (e *Engine) waitForFlip() {
	for e.flipPending {
		ready, err := e.display.WaitEvent(flipPollTimeout)
		if err != nil {
			logger().Error("waiting for flip event failed", "err", err)
			return
		}
		if !ready {
			continue
		}
		if err := e.display.DispatchEvents(e.onFlip); err != nil {
			logger().Error("dispatching flip events failed", "err", err)
			return
		}
	}
}

func (e *Engine) onFlip(ev FlipEvent) {
	if e.completion == nil {
		return
	}
	cb := e.completion
	e.completion = nil
	cb(ev)
}

// completeFlip is the completion callback: it rolls the vsync counters
// forward to the event's timestamp and counter, derives the skipped-vsync
// count and vsync duration from the deltas since the entry was enqueued, and
// clears the pending flag. Deltas are only meaningful once both the rolling
// tuple and the entry's stamp have a known vblank baseline.
func (e *Engine) completeFlip(stamp VsyncStamp, ev FlipEvent) {
	ready := e.vsync.MSC != 0 && stamp.MSC != 0

	e.vsync.UST = ev.UST
	e.vsync.MSC = ev.MSC

	if ready {
		ustDelta := ev.UST - stamp.UST
		mscDelta := ev.MSC - stamp.MSC
		sbcDelta := e.vsync.SBC - stamp.SBC
		if mscDelta > 0 {
			e.info.Duration = time.Duration(ustDelta/int64(mscDelta)) * time.Microsecond
		}
		e.info.Skipped = int64(mscDelta) - int64(sbcDelta)
	}
	e.info.LastDisplay = time.UnixMicro(ev.UST)

	e.flipPending = false
}
