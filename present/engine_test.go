package present

import (
	"fmt"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, depth, buffers int) (*Engine, *fakeDisplay, *fakeSurface) {
	t.Helper()
	d := newFakeDisplay()
	s := newFakeSurface(buffers)
	e := NewEngine(d, s, s, Config{Depth: depth})
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return e, d, s
}

func step(e *Engine) {
	e.BeginFrame()
	e.SubmitFrame(false)
	e.SwapBuffers()
}

func TestEngine_StartEstablishesSession(t *testing.T) {
	e, d, _ := newTestEngine(t, 1, 3)

	if !e.session.active {
		t.Error("session not active after Start")
	}
	if len(d.commits) != 1 || d.commits[0]&CommitAllowModeset == 0 {
		t.Fatalf("expected exactly one modeset commit, got %v", d.commits)
	}
	if d.saveCalls != 1 {
		t.Errorf("state saved %d times, want 1", d.saveCalls)
	}
	if w, h := e.FramebufferSize(); w != 1920 || h != 1080 {
		t.Errorf("framebuffer size %dx%d, want 1920x1080", w, h)
	}
	if e.chain.len() != 1 {
		t.Errorf("swapchain primed with %d entries, want 1", e.chain.len())
	}

	// The setup transaction routes the pipeline and sets the geometry.
	want := map[string]bool{}
	for _, ch := range d.setupCommit {
		want[fmt.Sprintf("%d/%s", ch.ObjectID, ch.Name)] = true
	}
	for _, key := range []string{"1/CRTC_ID", "2/MODE_ID", "2/ACTIVE", "3/FB_ID", "3/SRC_W", "3/CRTC_W"} {
		if !want[key] {
			t.Errorf("setup commit missing %s", key)
		}
	}
}

func TestEngine_RetiresInSubmissionOrder(t *testing.T) {
	e, _, s := newTestEngine(t, 1, 3)

	for i := 0; i < 4; i++ {
		step(e)
	}

	if len(s.released) < 3 {
		t.Fatalf("only %d buffers retired", len(s.released))
	}
	want := []uint64{1, 2, 3}
	for i, id := range want {
		if s.released[i] != id {
			t.Errorf("retirement %d: got buffer %d, want %d (order %v)", i, s.released[i], id, s.released)
		}
	}
}

func TestEngine_BoundedQueueDepth2(t *testing.T) {
	e, d, s := newTestEngine(t, 2, 4)

	// B2: fills the queue to depth, no flip needed yet.
	step(e)
	if e.chain.len() != 2 {
		t.Errorf("queue length %d after second frame, want 2", e.chain.len())
	}
	if d.flipCommits != 0 {
		t.Errorf("%d flips before depth was exceeded", d.flipCommits)
	}

	// B3: exceeds depth, so B2 flips and B1 retires within this cycle.
	step(e)
	if e.chain.len() > 2 {
		t.Errorf("queue length %d after third frame, want <= 2", e.chain.len())
	}
	if len(s.released) == 0 || s.released[0] != 1 {
		t.Errorf("first buffer not retired before the third cycle completed: %v", s.released)
	}
}

func TestEngine_AtMostOneFlipInFlight(t *testing.T) {
	e, d, _ := newTestEngine(t, 1, 3)

	for i := 0; i < 8; i++ {
		step(e)
	}
	if d.maxOutstanding > 1 {
		t.Errorf("%d flip commits were outstanding at once", d.maxOutstanding)
	}
	if d.flipCommits == 0 {
		t.Error("no flips happened at all")
	}
}

func TestEngine_FenceCountBoundedByQueue(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, 4)

	for i := 0; i < 6; i++ {
		step(e)
		if e.fences.len() > e.chain.len() {
			t.Fatalf("frame %d: %d fences for %d queued buffers", i, e.fences.len(), e.chain.len())
		}
	}
}

func TestEngine_DrainCompleteness(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, 5)

	// Fill the queue without triggering flips.
	step(e)
	step(e)
	if e.chain.len() != 3 {
		t.Fatalf("queue length %d before drain, want 3", e.chain.len())
	}

	e.Pause()
	step(e)

	if e.chain.len() > 1 {
		t.Errorf("queue length %d after drain, want <= 1", e.chain.len())
	}
	if e.flipPending {
		t.Error("flip still pending after drain")
	}
}

func TestEngine_StillFrameDrains(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, 5)

	step(e)
	e.BeginFrame()
	e.SubmitFrame(true)
	e.SwapBuffers()

	if e.chain.len() > 1 {
		t.Errorf("queue length %d after a still frame, want <= 1", e.chain.len())
	}
	if e.flipPending {
		t.Error("flip still pending after a still frame")
	}
}

func TestEngine_HoleRetiredWithoutFlip(t *testing.T) {
	e, d, s := newTestEngine(t, 3, 5)

	step(e)
	step(e)
	if e.chain.len() != 3 {
		t.Fatalf("queue length %d, want 3", e.chain.len())
	}
	// Punch a hole behind the displayed buffer.
	holed := e.chain.entries[1].buf.ID()
	e.chain.entries[1].buf = nil

	e.Pause()
	step(e)

	if e.chain.len() > 1 {
		t.Errorf("queue length %d after drain, want <= 1", e.chain.len())
	}
	// The hole was never flipped and never handed back to the producer.
	if d.flipCommits != 2 {
		t.Errorf("%d flips, want 2 (hole skipped)", d.flipCommits)
	}
	for _, id := range s.released {
		if id == holed {
			t.Errorf("holed buffer %d was returned to the producer", id)
		}
	}
}

func TestEngine_RegistrationFailureDropsFrame(t *testing.T) {
	e, d, s := newTestEngine(t, 1, 3)

	d.addFBErr = fmt.Errorf("scanout rejected")
	step(e)

	if d.flipCommits != 0 {
		t.Errorf("%d flips despite failed registration", d.flipCommits)
	}
	if e.flipPending {
		t.Error("flip pending despite failed registration")
	}
	// The head still retired so the cycle terminated.
	if len(s.released) != 1 || s.released[0] != 1 {
		t.Errorf("unexpected retirements %v", s.released)
	}
}

func TestEngine_CommitFailureLeavesNoPendingFlip(t *testing.T) {
	e, d, _ := newTestEngine(t, 1, 3)

	d.commitErr = fmt.Errorf("device busy")
	step(e)

	if e.flipPending {
		t.Error("flip pending after failed commit")
	}
	if e.completion != nil {
		t.Error("completion closure kept after failed commit")
	}
}

func TestEngine_TransactionReplacedAfterSubmit(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, 3)

	before := e.liveTx()
	step(e)

	if e.tx == before {
		t.Error("live transaction not replaced after submission")
	}
	if !before.consumed {
		t.Error("submitted transaction not marked consumed")
	}

	// Replacement happens on failure too.
	e2, d2, _ := newTestEngine(t, 1, 3)
	d2.commitErr = fmt.Errorf("device busy")
	before = e2.liveTx()
	step(e2)
	if e2.tx == before {
		t.Error("live transaction not replaced after failed submission")
	}
}

func TestEngine_InactiveSessionSkipsSwap(t *testing.T) {
	e, d, s := newTestEngine(t, 1, 3)
	flipsBefore := d.flipCommits

	e.ReleaseVT()
	step(e)

	if d.flipCommits != flipsBefore {
		t.Error("flip issued while the session was inactive")
	}
	if len(s.released) != 0 {
		t.Errorf("buffers retired while inactive: %v", s.released)
	}
	if d.restoreCalls != 1 {
		t.Errorf("state restored %d times on release, want 1", d.restoreCalls)
	}

	e.AcquireVT()
	if !e.session.active {
		t.Error("session not active after VT reacquire")
	}
	step(e)
	if d.flipCommits == flipsBefore {
		t.Error("no flip after VT reacquire")
	}
}

func TestEngine_ResumeResetsVsyncAccounting(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, 3)
	for i := 0; i < 3; i++ {
		step(e)
	}
	if e.info.LastDisplay.IsZero() {
		t.Fatal("no display time recorded after flips")
	}

	e.Pause()
	if !e.paused {
		t.Error("Pause did not set the paused flag")
	}
	e.Resume()

	if e.paused {
		t.Error("Resume left the engine paused")
	}
	if e.vsync.UST != 0 || e.vsync.MSC != 0 {
		t.Errorf("rolling vsync tuple not reset: %+v", e.vsync)
	}
	info := e.VsyncInfo()
	if info.Skipped != 0 || !info.LastDisplay.IsZero() {
		t.Errorf("vsync info not reset: %+v", info)
	}
}

func TestEngine_VsyncInfoStartsUnknown(t *testing.T) {
	d := newFakeDisplay()
	s := newFakeSurface(3)
	e := NewEngine(d, s, s, Config{})

	info := e.VsyncInfo()
	if info.Duration != 0 || info.Skipped != -1 || !info.LastDisplay.IsZero() {
		t.Errorf("initial vsync info %+v, want {0, -1, zero}", info)
	}
}

func TestCompleteFlip_Math(t *testing.T) {
	d := newFakeDisplay()
	s := newFakeSurface(3)
	e := NewEngine(d, s, s, Config{})

	e.vsync = VsyncStamp{SBC: 10, UST: 2_000_000, MSC: 100}
	e.flipPending = true

	stamp := VsyncStamp{SBC: 8, UST: 1_950_000, MSC: 97}
	e.completeFlip(stamp, FlipEvent{UST: 2_000_000, MSC: 100})

	if e.flipPending {
		t.Error("pending flag not cleared")
	}
	// Three vblanks and 50ms elapsed for two submissions.
	if want := time.Duration(50_000/3) * time.Microsecond; e.info.Duration != want {
		t.Errorf("duration %v, want %v", e.info.Duration, want)
	}
	if e.info.Skipped != 1 {
		t.Errorf("skipped %d, want 1", e.info.Skipped)
	}
	if want := time.UnixMicro(2_000_000); !e.info.LastDisplay.Equal(want) {
		t.Errorf("last display %v, want %v", e.info.LastDisplay, want)
	}
}

func TestCompleteFlip_UnknownBaseline(t *testing.T) {
	d := newFakeDisplay()
	s := newFakeSurface(3)
	e := NewEngine(d, s, s, Config{})
	e.flipPending = true

	// No vblank has been observed yet; only the rolling tuple may move.
	e.completeFlip(VsyncStamp{SBC: 1}, FlipEvent{UST: 1_000_000, MSC: 5})

	if e.flipPending {
		t.Error("pending flag not cleared")
	}
	if e.info.Duration != 0 || e.info.Skipped != -1 {
		t.Errorf("accounting updated without a baseline: %+v", e.info)
	}
	if e.vsync.MSC != 5 || e.vsync.UST != 1_000_000 {
		t.Errorf("rolling tuple not advanced: %+v", e.vsync)
	}
}

func TestEngine_ShutdownRestoresAndDrains(t *testing.T) {
	e, d, _ := newTestEngine(t, 3, 5)
	step(e)
	step(e)

	e.liveTx().Set(e.display.PlaneID(), "ZPOS", 1)
	e.Shutdown()

	if e.chain.len() != 0 {
		t.Errorf("queue not drained on shutdown: %d entries", e.chain.len())
	}
	if e.fences.len() != 0 {
		t.Errorf("fences not released on shutdown: %d", e.fences.len())
	}
	if d.restoreCalls != 1 {
		t.Errorf("state restored %d times, want 1", d.restoreCalls)
	}
	// The leftover transaction went out as a final blocking commit.
	last := d.commits[len(d.commits)-1]
	if last != 0 {
		t.Errorf("final commit had flags %#x, want none", last)
	}
}
