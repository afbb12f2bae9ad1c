package kms

import "unsafe"

// Plane type property values (DRM_PLANE_TYPE_*).
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

type sysGetPlaneRes struct {
	planeIDPtr  uint64
	countPlanes uint32
}

type sysGetPlane struct {
	planeID          uint32
	crtcID           uint32
	fbID             uint32
	possibleCrtcs    uint32
	gammaSize        uint32
	countFormatTypes uint32
	formatTypePtr    uint64
}

var (
	ioctlModeGetPlaneResources = drmIOWR(0xB5, unsafe.Sizeof(sysGetPlaneRes{}))
	ioctlModeGetPlane          = drmIOWR(0xB6, unsafe.Sizeof(sysGetPlane{}))
)

// Plane composites one buffer onto a CRTC.
type Plane struct {
	ID            uint32
	CrtcID        uint32
	FbID          uint32
	PossibleCrtcs uint32
	Formats       []uint32
}

// GetPlaneResources lists all plane ids on the device. Requires the
// universal-planes client cap for primary/cursor planes to show up.
func (c *Card) GetPlaneResources() ([]uint32, error) {
	var res sysGetPlaneRes
	if err := doIoctl(c.Fd(), ioctlModeGetPlaneResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	var ids []uint32
	if res.countPlanes > 0 {
		ids = make([]uint32, res.countPlanes)
		res.planeIDPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	}

	if err := doIoctl(c.Fd(), ioctlModeGetPlaneResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetPlane fetches one plane and its supported formats.
func (c *Card) GetPlane(id uint32) (*Plane, error) {
	plane := sysGetPlane{planeID: id}
	if err := doIoctl(c.Fd(), ioctlModeGetPlane, unsafe.Pointer(&plane)); err != nil {
		return nil, err
	}

	var formats []uint32
	if plane.countFormatTypes > 0 {
		formats = make([]uint32, plane.countFormatTypes)
		plane.formatTypePtr = uint64(uintptr(unsafe.Pointer(&formats[0])))
	}

	if err := doIoctl(c.Fd(), ioctlModeGetPlane, unsafe.Pointer(&plane)); err != nil {
		return nil, err
	}

	return &Plane{
		ID:            plane.planeID,
		CrtcID:        plane.crtcID,
		FbID:          plane.fbID,
		PossibleCrtcs: plane.possibleCrtcs,
		Formats:       formats,
	}, nil
}
