package kms

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type sysCreateDumb struct {
	height, width uint32
	bpp           uint32
	flags         uint32

	// filled in by the kernel
	handle uint32
	pitch  uint32
	size   uint64
}

type sysMapDumb struct {
	handle uint32
	pad    uint32

	// fake offset for the subsequent mmap
	offset uint64
}

type sysDestroyDumb struct {
	handle uint32
}

var (
	ioctlModeCreateDumb  = drmIOWR(0xB2, unsafe.Sizeof(sysCreateDumb{}))
	ioctlModeMapDumb     = drmIOWR(0xB3, unsafe.Sizeof(sysMapDumb{}))
	ioctlModeDestroyDumb = drmIOWR(0xB4, unsafe.Sizeof(sysDestroyDumb{}))
)

// DumbBuffer is a CPU-mapped scanout buffer with implicit (linear) layout.
type DumbBuffer struct {
	card   *Card
	handle uint32
	pitch  uint32
	size   uint64
	data   []byte
}

// CreateDumb allocates and maps a dumb scanout buffer.
func (c *Card) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	create := sysCreateDumb{width: width, height: height, bpp: bpp}
	if err := doIoctl(c.Fd(), ioctlModeCreateDumb, unsafe.Pointer(&create)); err != nil {
		return nil, fmt.Errorf("create dumb buffer %dx%d: %w", width, height, err)
	}

	b := &DumbBuffer{
		card:   c,
		handle: create.handle,
		pitch:  create.pitch,
		size:   create.size,
	}

	mapReq := sysMapDumb{handle: create.handle}
	if err := doIoctl(c.Fd(), ioctlModeMapDumb, unsafe.Pointer(&mapReq)); err != nil {
		b.destroyHandle()
		return nil, fmt.Errorf("map dumb buffer: %w", err)
	}

	data, err := unix.Mmap(int(c.Fd()), int64(mapReq.offset), int(create.size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		b.destroyHandle()
		return nil, fmt.Errorf("mmap dumb buffer: %w", err)
	}
	b.data = data
	return b, nil
}

// Handle returns the kernel buffer handle for framebuffer registration.
func (b *DumbBuffer) Handle() uint32 { return b.handle }

// Pitch returns the row stride in bytes.
func (b *DumbBuffer) Pitch() uint32 { return b.pitch }

// Bytes returns the mapped pixel memory.
func (b *DumbBuffer) Bytes() []byte { return b.data }

// Destroy unmaps and frees the buffer.
func (b *DumbBuffer) Destroy() error {
	var err error
	if b.data != nil {
		err = unix.Munmap(b.data)
		b.data = nil
	}
	if derr := b.destroyHandle(); err == nil {
		err = derr
	}
	return err
}

func (b *DumbBuffer) destroyHandle() error {
	if b.handle == 0 {
		return nil
	}
	destroy := sysDestroyDumb{handle: b.handle}
	err := doIoctl(b.card.Fd(), ioctlModeDestroyDumb, unsafe.Pointer(&destroy))
	b.handle = 0
	return err
}
