package kms

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Kernel event types (DRM_EVENT_*).
const (
	eventVBlank       = 0x01
	eventFlipComplete = 0x02
)

// struct drm_event header: type + length, both u32.
const eventHeaderLen = 8

// struct drm_event_vblank payload after the header:
// user_data u64, tv_sec u32, tv_usec u32, sequence u32, crtc_id u32.
const vblankPayloadLen = 24

// FlipEvent is a page-flip completion notification.
type FlipEvent struct {
	UserData uint64
	Sequence uint32
	CrtcID   uint32
	When     time.Time
}

// WaitReadable polls the device fd for pending events, up to timeout.
func (c *Card) WaitReadable(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(c.Fd()), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

// DispatchEvents reads pending kernel events and invokes onFlip synchronously
// for each page-flip completion, on the calling goroutine.
func (c *Card) DispatchEvents(onFlip func(FlipEvent)) error {
	buf := make([]byte, 1024)
	n, err := unix.Read(int(c.Fd()), buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return fmt.Errorf("read drm events: %w", err)
	}
	return parseEvents(buf[:n], onFlip)
}

// parseEvents walks a raw event buffer. Unknown event types are skipped by
// their self-reported length.
func parseEvents(buf []byte, onFlip func(FlipEvent)) error {
	for len(buf) > 0 {
		if len(buf) < eventHeaderLen {
			return fmt.Errorf("truncated drm event header (%d bytes)", len(buf))
		}
		typ := binary.NativeEndian.Uint32(buf[0:4])
		length := int(binary.NativeEndian.Uint32(buf[4:8]))
		if length < eventHeaderLen || length > len(buf) {
			return fmt.Errorf("bad drm event length %d", length)
		}

		if typ == eventFlipComplete || typ == eventVBlank {
			if length < eventHeaderLen+vblankPayloadLen {
				return fmt.Errorf("short vblank event (%d bytes)", length)
			}
			p := buf[eventHeaderLen:]
			ev := FlipEvent{
				UserData: binary.NativeEndian.Uint64(p[0:8]),
				Sequence: binary.NativeEndian.Uint32(p[16:20]),
				CrtcID:   binary.NativeEndian.Uint32(p[20:24]),
				When: time.Unix(
					int64(binary.NativeEndian.Uint32(p[8:12])),
					int64(binary.NativeEndian.Uint32(p[12:16]))*1000,
				),
			}
			if typ == eventFlipComplete && onFlip != nil {
				onFlip(ev)
			}
		}

		buf = buf[length:]
	}
	return nil
}
