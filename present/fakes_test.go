package present

import (
	"fmt"
	"time"
)

const testFormat = 0x34325258 // XR24

// fakeDisplay implements Display in-memory. Every successful page-flip
// commit queues a completion event one vblank later; WaitEvent fails when no
// event is queued so a stuck wait breaks the test instead of hanging it.
type fakeDisplay struct {
	commits     []CommitFlags
	flipCommits int
	setupCommit []PropChange

	// in-flight flips, to verify at most one is ever outstanding
	outstanding    int
	maxOutstanding int

	events []FlipEvent
	msc    uint64
	ust    int64

	saveCalls    int
	restoreCalls int
	saveErr      error
	commitErr    error
	addFBErr     error

	nextFB     uint32
	addFBCalls int
	removedFBs []uint32

	vrrCapable bool
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{nextFB: 100, ust: 1_000_000, msc: 0}
}

func (d *fakeDisplay) ConnectorID() uint32 { return 1 }
func (d *fakeDisplay) CrtcID() uint32      { return 2 }
func (d *fakeDisplay) PlaneID() uint32     { return 3 }

func (d *fakeDisplay) ModeSize() (int, int)      { return 1920, 1080 }
func (d *fakeDisplay) Refresh() float64          { return 60.0 }
func (d *fakeDisplay) ModeBlobID() (uint32, error) { return 77, nil }
func (d *fakeDisplay) VRRCapable() bool          { return d.vrrCapable }

func (d *fakeDisplay) SaveState() error {
	d.saveCalls++
	return d.saveErr
}

func (d *fakeDisplay) RestoreState() error {
	d.restoreCalls++
	return nil
}

func (d *fakeDisplay) Commit(tx *Transaction, flags CommitFlags, userData uint64) error {
	changes := tx.Consume()
	if d.commitErr != nil {
		return d.commitErr
	}
	d.commits = append(d.commits, flags)
	if flags&CommitAllowModeset != 0 {
		d.setupCommit = changes
	}
	if flags&CommitPageFlipEvent != 0 {
		d.flipCommits++
		d.outstanding++
		if d.outstanding > d.maxOutstanding {
			d.maxOutstanding = d.outstanding
		}
		d.msc++
		d.ust += 16667
		d.events = append(d.events, FlipEvent{UserData: userData, UST: d.ust, MSC: d.msc})
	}
	return nil
}

func (d *fakeDisplay) AddFramebuffer(cfg FramebufferConfig) (uint32, error) {
	d.addFBCalls++
	if d.addFBErr != nil {
		return 0, d.addFBErr
	}
	d.nextFB++
	return d.nextFB, nil
}

func (d *fakeDisplay) RemoveFramebuffer(id uint32) error {
	d.removedFBs = append(d.removedFBs, id)
	return nil
}

func (d *fakeDisplay) WaitEvent(time.Duration) (bool, error) {
	if len(d.events) == 0 {
		return false, fmt.Errorf("waiting with no event queued")
	}
	return true, nil
}

func (d *fakeDisplay) DispatchEvents(onFlip func(FlipEvent)) error {
	for len(d.events) > 0 {
		ev := d.events[0]
		d.events = d.events[1:]
		d.outstanding--
		onFlip(ev)
	}
	return nil
}

func (d *fakeDisplay) SetMaster() error  { return nil }
func (d *fakeDisplay) DropMaster() error { return nil }

type fakeBuffer struct {
	id   uint64
	w, h uint32
}

func (b *fakeBuffer) ID() uint64             { return b.id }
func (b *fakeBuffer) Size() (uint32, uint32) { return b.w, b.h }
func (b *fakeBuffer) Format() uint32         { return testFormat }
func (b *fakeBuffer) Modifier() uint64       { return ModifierInvalid }
func (b *fakeBuffer) Planes() []PlaneLayout {
	return []PlaneLayout{{Handle: uint32(b.id), Pitch: b.w * 4}}
}

// fakeSurface implements Producer and Renderer over a fixed buffer pool.
type fakeSurface struct {
	free    []*fakeBuffer
	pending *fakeBuffer

	released []uint64 // retirement order by buffer id

	swapErr error
	lockErr error

	fencesMade     int
	fencesReleased int
	fenceErr       error

	destroy func(Buffer)
}

func newFakeSurface(buffers int) *fakeSurface {
	s := &fakeSurface{}
	for i := 1; i <= buffers; i++ {
		s.free = append(s.free, &fakeBuffer{id: uint64(i), w: 1920, h: 1080})
	}
	return s
}

func (s *fakeSurface) Swap() error {
	if s.swapErr != nil {
		return s.swapErr
	}
	if len(s.free) == 0 {
		return fmt.Errorf("no free buffer to render")
	}
	if s.pending != nil {
		s.free = append(s.free, s.pending)
	}
	s.pending = s.free[0]
	s.free = s.free[1:]
	return nil
}

func (s *fakeSurface) LockFront() (Buffer, error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	if s.pending == nil {
		return nil, fmt.Errorf("nothing swapped")
	}
	b := s.pending
	s.pending = nil
	return b, nil
}

func (s *fakeSurface) Release(buf Buffer) {
	s.released = append(s.released, buf.ID())
	s.free = append(s.free, buf.(*fakeBuffer))
}

func (s *fakeSurface) HasFreeBuffers() bool {
	return len(s.free) > 0
}

func (s *fakeSurface) OnDestroy(fn func(Buffer)) {
	s.destroy = fn
}

type fakeFence struct {
	surface *fakeSurface
	waited  bool
}

func (f *fakeFence) Wait(time.Duration) error { f.waited = true; return nil }
func (f *fakeFence) Release()                 { f.surface.fencesReleased++ }

func (s *fakeSurface) NewFence() (Fence, error) {
	if s.fenceErr != nil {
		return nil, s.fenceErr
	}
	s.fencesMade++
	return &fakeFence{surface: s}, nil
}
