// Package kms drives a DRM/KMS display device through raw ioctls: object
// enumeration, property access, atomic commits, page-flip events, dumb
// scanout buffers and virtual-terminal switching.
package kms

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device capabilities (DRM_CAP_*).
const (
	CapDumbBuffer uint64 = 0x1
)

// Client capabilities (DRM_CLIENT_CAP_*).
const (
	ClientCapUniversalPlanes uint64 = 2
	ClientCapAtomic          uint64 = 3
)

const DefaultCardPath = "/dev/dri/card0"

type sysGetCap struct {
	capability uint64
	value      uint64
}

type sysSetClientCap struct {
	capability uint64
	value      uint64
}

var (
	ioctlGetCap       = drmIOWR(0x0C, unsafe.Sizeof(sysGetCap{}))
	ioctlSetClientCap = drmIOW(0x0D, unsafe.Sizeof(sysSetClientCap{}))
	ioctlSetMaster    = drmIO(0x1E)
	ioctlDropMaster   = drmIO(0x1F)
)

// Card is an open DRM device node.
type Card struct {
	file *os.File
}

// Open opens the DRM device at path (DefaultCardPath if empty) and enables
// the universal-planes and atomic client capabilities. Atomic support is
// required; devices without it are rejected.
func Open(path string) (*Card, error) {
	if path == "" {
		path = DefaultCardPath
	}
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open drm device: %w", err)
	}
	c := &Card{file: file}

	if err := c.SetClientCap(ClientCapUniversalPlanes, 1); err != nil {
		c.Close()
		return nil, fmt.Errorf("enable universal planes on %s: %w", path, err)
	}
	if err := c.SetClientCap(ClientCapAtomic, 1); err != nil {
		c.Close()
		return nil, fmt.Errorf("%s does not support atomic modesetting: %w", path, err)
	}
	return c, nil
}

// Fd returns the device file descriptor, pollable for completion events.
func (c *Card) Fd() uintptr {
	return c.file.Fd()
}

// Path returns the device node path.
func (c *Card) Path() string {
	return c.file.Name()
}

func (c *Card) Close() error {
	return c.file.Close()
}

// GetCap queries a device capability value.
func (c *Card) GetCap(capability uint64) (uint64, error) {
	arg := sysGetCap{capability: capability}
	if err := doIoctl(c.Fd(), ioctlGetCap, unsafe.Pointer(&arg)); err != nil {
		return 0, err
	}
	return arg.value, nil
}

// SetClientCap enables or disables a client capability.
func (c *Card) SetClientCap(capability, value uint64) error {
	arg := sysSetClientCap{capability: capability, value: value}
	return doIoctl(c.Fd(), ioctlSetClientCap, unsafe.Pointer(&arg))
}

// SetMaster acquires DRM master rights on the device.
func (c *Card) SetMaster() error {
	return doIoctl(c.Fd(), ioctlSetMaster, nil)
}

// DropMaster relinquishes DRM master rights.
func (c *Card) DropMaster() error {
	return doIoctl(c.Fd(), ioctlDropMaster, nil)
}
