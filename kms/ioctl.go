package kms

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux _IOC request encoding.
const (
	iocWrite = 0x1
	iocRead  = 0x2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	// All DRM ioctls live under the 'd' type.
	drmIoctlType = 'd'
)

func iocCode(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | typ<<iocTypeShift | nr<<iocNrShift
}

func drmIO(nr uintptr) uintptr {
	return iocCode(0, drmIoctlType, nr, 0)
}

func drmIOW(nr, size uintptr) uintptr {
	return iocCode(iocWrite, drmIoctlType, nr, size)
}

func drmIOWR(nr, size uintptr) uintptr {
	return iocCode(iocRead|iocWrite, drmIoctlType, nr, size)
}

// doIoctl issues a single ioctl, retrying when the kernel asks us to.
func doIoctl(fd uintptr, request uintptr, arg unsafe.Pointer) error {
	return doIoctlInt(fd, request, uintptr(arg))
}

// doIoctlInt is doIoctl for requests whose argument is a plain integer.
func doIoctlInt(fd uintptr, request uintptr, arg uintptr) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, arg)
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return errno
	}
}
