package kms

import "unsafe"

// ModeFBModifiers requests the modifier-aware AddFramebuffer path.
const ModeFBModifiers uint32 = 0x02

type sysFBCmd2 struct {
	fbID          uint32
	width, height uint32
	pixelFormat   uint32
	flags         uint32
	handles       [4]uint32
	pitches       [4]uint32
	offsets       [4]uint32
	modifier      [4]uint64
}

var (
	ioctlModeAddFB2 = drmIOWR(0xB8, unsafe.Sizeof(sysFBCmd2{}))
	ioctlModeRmFB   = drmIOWR(0xAF, unsafe.Sizeof(uint32(0)))
)

// AddFramebuffer registers a buffer's planes as a scanout framebuffer
// without memory-layout modifiers.
func (c *Card) AddFramebuffer(width, height, format uint32, handles, pitches, offsets [4]uint32) (uint32, error) {
	cmd := sysFBCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
		handles:     handles,
		pitches:     pitches,
		offsets:     offsets,
	}
	if err := doIoctl(c.Fd(), ioctlModeAddFB2, unsafe.Pointer(&cmd)); err != nil {
		return 0, err
	}
	return cmd.fbID, nil
}

// AddFramebufferWithModifiers registers a multi-plane framebuffer with an
// explicit memory-layout modifier per plane.
func (c *Card) AddFramebufferWithModifiers(width, height, format uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64) (uint32, error) {
	cmd := sysFBCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
		flags:       ModeFBModifiers,
		handles:     handles,
		pitches:     pitches,
		offsets:     offsets,
		modifier:    modifiers,
	}
	if err := doIoctl(c.Fd(), ioctlModeAddFB2, unsafe.Pointer(&cmd)); err != nil {
		return 0, err
	}
	return cmd.fbID, nil
}

// RemoveFramebuffer drops a framebuffer registration.
func (c *Card) RemoveFramebuffer(id uint32) error {
	return doIoctl(c.Fd(), ioctlModeRmFB, unsafe.Pointer(&id))
}
