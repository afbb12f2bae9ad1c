package kms

import (
	"slices"
	"unsafe"
)

// Atomic commit flags (DRM_MODE_ATOMIC_* / DRM_MODE_PAGE_FLIP_*).
const (
	PageFlipEvent      uint32 = 0x01
	AtomicTestOnly     uint32 = 0x0100
	AtomicNonblock     uint32 = 0x0200
	AtomicAllowModeset uint32 = 0x0400
)

type sysAtomic struct {
	flags         uint32
	countObjs     uint32
	objsPtr       uint64
	countPropsPtr uint64
	propsPtr      uint64
	propValuesPtr uint64
	reserved      uint64
	userData      uint64
}

var ioctlModeAtomic = drmIOWR(0xBC, unsafe.Sizeof(sysAtomic{}))

// AtomicProp is one property change in an atomic request.
type AtomicProp struct {
	ObjectID   uint32
	PropertyID uint32
	Value      uint64
}

// atomicPayload is the kernel's parallel-array layout for an atomic commit:
// object ids, per-object property counts, and flat property id/value arrays.
type atomicPayload struct {
	objs       []uint32
	countProps []uint32
	props      []uint32
	propValues []uint64
}

// buildAtomicPayload groups changes by object id. Grouping must be stable so
// that a later Set of the same property on the same object wins in the
// kernel's left-to-right application order.
func buildAtomicPayload(changes []AtomicProp) atomicPayload {
	sorted := make([]AtomicProp, len(changes))
	copy(sorted, changes)
	slices.SortStableFunc(sorted, func(a, b AtomicProp) int {
		switch {
		case a.ObjectID < b.ObjectID:
			return -1
		case a.ObjectID > b.ObjectID:
			return 1
		default:
			return 0
		}
	})

	p := atomicPayload{
		countProps: make([]uint32, 0, 4),
		props:      make([]uint32, len(sorted)),
		propValues: make([]uint64, len(sorted)),
	}
	for i, change := range sorted {
		if len(p.objs) == 0 || p.objs[len(p.objs)-1] != change.ObjectID {
			p.objs = append(p.objs, change.ObjectID)
			p.countProps = append(p.countProps, 0)
		}
		p.countProps[len(p.countProps)-1]++
		p.props[i] = change.PropertyID
		p.propValues[i] = change.Value
	}
	return p
}

// CommitAtomic submits an atomic request. An empty change set is a no-op.
// userData is echoed back in the completion event when PageFlipEvent is set.
func (c *Card) CommitAtomic(changes []AtomicProp, flags uint32, userData uint64) error {
	if len(changes) == 0 {
		return nil
	}

	p := buildAtomicPayload(changes)
	arg := sysAtomic{
		flags:         flags,
		countObjs:     uint32(len(p.objs)),
		objsPtr:       uint64(uintptr(unsafe.Pointer(&p.objs[0]))),
		countPropsPtr: uint64(uintptr(unsafe.Pointer(&p.countProps[0]))),
		propsPtr:      uint64(uintptr(unsafe.Pointer(&p.props[0]))),
		propValuesPtr: uint64(uintptr(unsafe.Pointer(&p.propValues[0]))),
		userData:      userData,
	}
	return doIoctl(c.Fd(), ioctlModeAtomic, unsafe.Pointer(&arg))
}
