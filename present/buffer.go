package present

import "time"

// ModifierInvalid marks a buffer without an explicit memory-layout modifier.
const ModifierInvalid uint64 = 0x00ffffffffffffff

// PlaneLayout describes one memory plane of a buffer object.
type PlaneLayout struct {
	Handle uint32
	Pitch  uint32
	Offset uint32
}

// Buffer is an allocated scanout-capable render target, owned by its
// Producer and borrowed by the swapchain while queued for display.
type Buffer interface {
	// ID is a stable identity used to key cached framebuffer records.
	ID() uint64
	Size() (width, height uint32)
	Format() uint32
	Modifier() uint64
	Planes() []PlaneLayout
}

// Producer yields lockable render-target buffers and reclaims retired ones.
type Producer interface {
	// LockFront locks the most recently swapped buffer for display. The
	// buffer stays unavailable for rendering until Release.
	LockFront() (Buffer, error)
	Release(Buffer)
	HasFreeBuffers() bool
	// OnDestroy registers a hook fired once per buffer when the producer
	// physically frees it.
	OnDestroy(func(Buffer))
}

// Renderer is the rendering context: a swap primitive finishing the current
// frame, and completion fences for prior rendering work.
type Renderer interface {
	Swap() error
	NewFence() (Fence, error)
}

// Fence is a GPU-side marker that signals when prior rendering completed.
// It is waited and released exactly once, in creation order.
type Fence interface {
	Wait(timeout time.Duration) error
	Release()
}
