// Package render is the software buffer producer: a triple-buffered surface
// of CPU-mapped scanout buffers with a drawing canvas, standing in where a
// GPU swapchain would sit.
package render

import (
	"fmt"

	"drmplay/kms"
	"drmplay/present"
)

// allocator abstracts scanout-buffer allocation so the surface can be
// exercised without a device.
type allocator interface {
	alloc(width, height uint32) (backing, error)
}

// backing is the mapped memory behind one buffer. *kms.DumbBuffer satisfies
// it.
type backing interface {
	Handle() uint32
	Pitch() uint32
	Bytes() []byte
	Destroy() error
}

type cardAllocator struct {
	card *kms.Card
}

func (a cardAllocator) alloc(width, height uint32) (backing, error) {
	return a.card.CreateDumb(width, height, 32)
}

type bufferState int

const (
	stateFree bufferState = iota
	stateBack             // being drawn into
	statePending          // swapped, awaiting lock
	stateLocked           // borrowed for display
)

// Buffer is one scanout buffer of the surface.
type Buffer struct {
	id       uint64
	mem      backing
	w, h     uint32
	format   uint32
	modifier uint64
	state    bufferState
}

func (b *Buffer) ID() uint64 { return b.id }

func (b *Buffer) Size() (uint32, uint32) { return b.w, b.h }

func (b *Buffer) Format() uint32 { return b.format }

func (b *Buffer) Modifier() uint64 { return b.modifier }

func (b *Buffer) Planes() []present.PlaneLayout {
	return []present.PlaneLayout{{Handle: b.mem.Handle(), Pitch: b.mem.Pitch()}}
}

const surfaceBuffers = 3

// Surface cycles three buffers between drawing, pending display and
// on-display. A frame swapped before the previous one was ever locked
// replaces it and counts as dropped.
type Surface struct {
	alloc     allocator
	bufs      []*Buffer
	back      *Buffer
	pending   *Buffer
	order     pixelOrder
	onDestroy func(present.Buffer)

	swapped uint64
	dropped uint64
}

// NewSurface allocates a triple-buffered surface of dumb buffers on card.
// The format must be one the software canvas can draw; modifiers narrows the
// negotiated memory layouts — dumb buffers are linear, so the explicit path
// is taken only when linear is among them.
func NewSurface(card *kms.Card, width, height, format uint32, modifiers []uint64) (*Surface, error) {
	return newSurface(cardAllocator{card: card}, width, height, format, modifiers)
}

func newSurface(alloc allocator, width, height, format uint32, modifiers []uint64) (*Surface, error) {
	order, ok := orderFor(format)
	if err := validateSize(width, height); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("format %s not drawable in software", kms.FormatName(format))
	}

	modifier := present.ModifierInvalid
	for _, m := range modifiers {
		if m == kms.FormatModLinear {
			modifier = kms.FormatModLinear
			break
		}
	}

	s := &Surface{alloc: alloc, order: order}
	for i := 0; i < surfaceBuffers; i++ {
		mem, err := alloc.alloc(width, height)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("allocating surface buffer %d: %w", i, err)
		}
		s.bufs = append(s.bufs, &Buffer{
			id:       uint64(i + 1),
			mem:      mem,
			w:        width,
			h:        height,
			format:   format,
			modifier: modifier,
		})
	}
	return s, nil
}

func validateSize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("bad surface size %dx%d", width, height)
	}
	return nil
}

// Canvas returns a drawing canvas over the current back buffer, claiming a
// free buffer when none is being drawn.
func (s *Surface) Canvas() (*Canvas, error) {
	if s.back == nil {
		b := s.takeFree()
		if b == nil {
			return nil, fmt.Errorf("no free buffer to draw into")
		}
		b.state = stateBack
		s.back = b
	}
	return newCanvas(s.back.mem.Bytes(), int(s.back.mem.Pitch()),
		int(s.back.w), int(s.back.h), s.order), nil
}

func (s *Surface) takeFree() *Buffer {
	for _, b := range s.bufs {
		if b.state == stateFree {
			return b
		}
	}
	return nil
}

// Swap finishes the current frame: the back buffer becomes the pending
// front. A pending frame nobody locked is dropped back to the free pool.
func (s *Surface) Swap() error {
	if s.back == nil {
		// Nothing was drawn; resubmit the pending frame if any.
		if s.pending != nil {
			return nil
		}
		return fmt.Errorf("no frame drawn")
	}
	if s.pending != nil {
		s.pending.state = stateFree
		s.pending = nil
		s.dropped++
	}
	s.back.state = statePending
	s.pending = s.back
	s.back = nil
	s.swapped++
	return nil
}

// LockFront locks the most recently swapped buffer for display.
func (s *Surface) LockFront() (present.Buffer, error) {
	if s.pending == nil {
		return nil, fmt.Errorf("no swapped frame to lock")
	}
	b := s.pending
	s.pending = nil
	b.state = stateLocked
	return b, nil
}

// Release returns a locked buffer to the free pool.
func (s *Surface) Release(buf present.Buffer) {
	for _, b := range s.bufs {
		if b.id == buf.ID() {
			b.state = stateFree
			return
		}
	}
}

// HasFreeBuffers reports whether a buffer is available for drawing.
func (s *Surface) HasFreeBuffers() bool {
	return s.takeFree() != nil
}

// OnDestroy registers the hook fired once per buffer when Close frees it.
func (s *Surface) OnDestroy(fn func(present.Buffer)) {
	s.onDestroy = fn
}

// Stats returns how many frames were swapped and how many were dropped
// before display.
func (s *Surface) Stats() (swapped, dropped uint64) {
	return s.swapped, s.dropped
}

// Close frees every buffer, firing the destroy hook first so cached
// framebuffer registrations are evicted.
func (s *Surface) Close() error {
	var err error
	for _, b := range s.bufs {
		if s.onDestroy != nil {
			s.onDestroy(b)
		}
		if derr := b.mem.Destroy(); err == nil {
			err = derr
		}
	}
	s.bufs = nil
	s.back = nil
	s.pending = nil
	return err
}
