// Package present is the presentation engine: a bounded buffer swapchain,
// framebuffer registry, fence synchronizer, atomic-commit session manager and
// flip scheduler, orchestrated single-threaded by an Engine. It talks to the
// display through the Display interface and owns no syscalls itself.
package present

import "time"

// CommitFlags select how an atomic commit is applied. The values follow the
// kernel's atomic flag encoding.
type CommitFlags uint32

const (
	CommitPageFlipEvent CommitFlags = 0x0001
	CommitTestOnly      CommitFlags = 0x0100
	CommitNonblock      CommitFlags = 0x0200
	CommitAllowModeset  CommitFlags = 0x0400
)

// FlipEvent is a page-flip completion delivered by the display.
// UST is the vblank timestamp in microseconds, MSC the vblank counter.
type FlipEvent struct {
	UserData uint64
	UST      int64
	MSC      uint64
}

// FramebufferConfig describes a buffer's memory planes for kernel scanout
// registration. Modifier is ModifierInvalid when the layout is implicit.
type FramebufferConfig struct {
	Width, Height uint32
	Format        uint32
	Modifier      uint64
	Planes        []PlaneLayout
}

// Display is the kernel display device as the engine sees it: one
// connector/CRTC/plane pipeline with a configured mode.
type Display interface {
	// Object ids of the selected pipeline.
	ConnectorID() uint32
	CrtcID() uint32
	PlaneID() uint32

	// Configured mode.
	ModeSize() (width, height int)
	Refresh() float64
	ModeBlobID() (uint32, error)
	VRRCapable() bool

	// Pre-takeover state, captured by SaveState and reapplied by
	// RestoreState as a synchronous modeset.
	SaveState() error
	RestoreState() error

	Commit(tx *Transaction, flags CommitFlags, userData uint64) error

	AddFramebuffer(cfg FramebufferConfig) (uint32, error)
	RemoveFramebuffer(id uint32) error

	// WaitEvent reports whether a completion event became readable within
	// timeout. DispatchEvents reads pending events and invokes onFlip
	// synchronously on the calling goroutine.
	WaitEvent(timeout time.Duration) (bool, error)
	DispatchEvents(onFlip func(FlipEvent)) error

	// Display master control, dropped and reacquired around VT switches.
	SetMaster() error
	DropMaster() error
}

// PropChange is one pending property change on a display object. Property
// names are resolved to ids by the Display at commit time; names the object
// does not have are skipped.
type PropChange struct {
	ObjectID uint32
	Name     string
	Value    uint64
}

// Transaction accumulates property changes for one atomic commit. It is
// consumed by exactly one commit and then replaced with a fresh instance;
// touching a consumed transaction is a programming error.
type Transaction struct {
	changes  []PropChange
	consumed bool
}

func NewTransaction() *Transaction {
	return &Transaction{}
}

// Set appends a property change. Later sets of the same property on the same
// object win, matching the kernel's left-to-right application order.
func (t *Transaction) Set(objectID uint32, name string, value uint64) {
	if t.consumed {
		panic("present: Set on a consumed transaction")
	}
	t.changes = append(t.changes, PropChange{ObjectID: objectID, Name: name, Value: value})
}

// Empty reports whether the transaction carries no changes.
func (t *Transaction) Empty() bool {
	return len(t.changes) == 0
}

// Consume returns the accumulated changes and marks the transaction spent.
// Display implementations call this from Commit.
func (t *Transaction) Consume() []PropChange {
	if t.consumed {
		panic("present: transaction consumed twice")
	}
	t.consumed = true
	return t.changes
}
