package kms

import (
	"fmt"
	"os"
	"os/signal"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// VT ioctls and modes.
const (
	vtGetMode = 0x5601
	vtSetMode = 0x5602
	vtRelDisp = 0x5605

	vtAuto    = 0x00
	vtProcess = 0x01
	vtAckAcq  = 0x02
)

// struct vt_mode.
type vtMode struct {
	mode   int8
	waitv  int8
	relsig int16
	acqsig int16
	frsig  int16
}

// VTSwitcher arbitrates virtual-terminal handoff. While installed, the
// kernel delivers SIGUSR1 before switching away and SIGUSR2 after switching
// back; the hooks run from Poll on the calling goroutine.
type VTSwitcher struct {
	tty       *os.File
	saved     vtMode
	sigs      chan os.Signal
	interrupt chan struct{}
	acquire   func()
	release   func()
}

// NewVTSwitcher takes over VT switch arbitration on the controlling
// terminal.
func NewVTSwitcher() (*VTSwitcher, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open controlling tty: %w", err)
	}

	v := &VTSwitcher{
		tty:       tty,
		sigs:      make(chan os.Signal, 4),
		interrupt: make(chan struct{}, 1),
	}

	if err := doIoctl(tty.Fd(), vtGetMode, unsafe.Pointer(&v.saved)); err != nil {
		tty.Close()
		return nil, fmt.Errorf("VT_GETMODE: %w", err)
	}

	mode := vtMode{
		mode:   vtProcess,
		relsig: int16(unix.SIGUSR1),
		acqsig: int16(unix.SIGUSR2),
	}
	if err := doIoctl(tty.Fd(), vtSetMode, unsafe.Pointer(&mode)); err != nil {
		tty.Close()
		return nil, fmt.Errorf("VT_SETMODE: %w", err)
	}

	signal.Notify(v.sigs, unix.SIGUSR1, unix.SIGUSR2)
	return v, nil
}

// OnAcquire sets the hook run after the VT is switched back to us.
func (v *VTSwitcher) OnAcquire(fn func()) { v.acquire = fn }

// OnRelease sets the hook run before the VT is switched away.
func (v *VTSwitcher) OnRelease(fn func()) { v.release = fn }

// Poll waits up to timeout for a VT switch request or an Interrupt, and runs
// the matching hook synchronously. A switch-away is acknowledged to the
// kernel only after the release hook has finished, so display control is
// relinquished first.
func (v *VTSwitcher) Poll(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-v.sigs:
		switch sig {
		case unix.SIGUSR1:
			logger().Info("releasing VT")
			if v.release != nil {
				v.release()
			}
			if err := doIoctlInt(v.tty.Fd(), vtRelDisp, 1); err != nil {
				logger().Warn("VT_RELDISP release failed", "err", err)
			}
		case unix.SIGUSR2:
			logger().Info("acquiring VT")
			if err := doIoctlInt(v.tty.Fd(), vtRelDisp, vtAckAcq); err != nil {
				logger().Warn("VT_RELDISP ack failed", "err", err)
			}
			if v.acquire != nil {
				v.acquire()
			}
		}
	case <-v.interrupt:
	case <-timer.C:
	}
}

// Interrupt wakes a concurrent or subsequent Poll immediately.
func (v *VTSwitcher) Interrupt() {
	select {
	case v.interrupt <- struct{}{}:
	default:
	}
}

// Destroy restores the saved VT mode and stops signal delivery.
func (v *VTSwitcher) Destroy() {
	signal.Stop(v.sigs)
	if err := doIoctl(v.tty.Fd(), vtSetMode, unsafe.Pointer(&v.saved)); err != nil {
		logger().Warn("restoring VT mode failed", "err", err)
	}
	v.tty.Close()
}
