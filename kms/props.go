package kms

import (
	"bytes"
	"fmt"
	"unsafe"
)

// Object types for property lookups (DRM_MODE_OBJECT_*).
const (
	ObjectCrtc      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectProperty  = 0xb0b0b0b0
	ObjectPlane     = 0xeeeeeeee
	ObjectAny       = 0
)

const propNameLen = 32

type sysGetProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [propNameLen]uint8
	countValues    uint32
	countEnumBlobs uint32
}

type sysObjGetProperties struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
}

type sysGetBlob struct {
	blobID uint32
	length uint32
	data   uint64
}

type sysCreateBlob struct {
	data   uint64
	length uint32
	blobID uint32
}

type sysDestroyBlob struct {
	blobID uint32
}

var (
	ioctlModeGetProperty       = drmIOWR(0xAA, unsafe.Sizeof(sysGetProperty{}))
	ioctlModeGetPropBlob       = drmIOWR(0xAC, unsafe.Sizeof(sysGetBlob{}))
	ioctlModeObjGetProperties  = drmIOWR(0xB9, unsafe.Sizeof(sysObjGetProperties{}))
	ioctlModeCreatePropBlob    = drmIOWR(0xBD, unsafe.Sizeof(sysCreateBlob{}))
	ioctlModeDestroyPropBlob   = drmIOWR(0xBE, unsafe.Sizeof(sysDestroyBlob{}))
)

type propEntry struct {
	id    uint32
	value uint64
}

// PropertySet is the name-indexed snapshot of one object's properties, taken
// at lookup time. Values reflect the object state when the snapshot was made.
type PropertySet struct {
	ObjectID   uint32
	ObjectType uint32
	byName     map[string]propEntry
}

// ObjectProperties snapshots all properties of a mode-setting object.
func (c *Card) ObjectProperties(objectID, objectType uint32) (*PropertySet, error) {
	arg := sysObjGetProperties{objID: objectID, objType: objectType}
	if err := doIoctl(c.Fd(), ioctlModeObjGetProperties, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	var (
		ids    []uint32
		values []uint64
	)
	if arg.countProps > 0 {
		ids = make([]uint32, arg.countProps)
		arg.propsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
		values = make([]uint64, arg.countProps)
		arg.propValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}

	if err := doIoctl(c.Fd(), ioctlModeObjGetProperties, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}

	ps := &PropertySet{
		ObjectID:   objectID,
		ObjectType: objectType,
		byName:     make(map[string]propEntry, len(ids)),
	}
	for i, id := range ids {
		name, err := c.propertyName(id)
		if err != nil {
			return nil, fmt.Errorf("property %d of object %d: %w", id, objectID, err)
		}
		ps.byName[name] = propEntry{id: id, value: values[i]}
	}
	return ps, nil
}

func (c *Card) propertyName(id uint32) (string, error) {
	prop := sysGetProperty{propID: id}
	if err := doIoctl(c.Fd(), ioctlModeGetProperty, unsafe.Pointer(&prop)); err != nil {
		return "", err
	}
	name, _, _ := bytes.Cut(prop.name[:], []byte{0})
	return string(name), nil
}

// ID returns the property id for name.
func (ps *PropertySet) ID(name string) (uint32, bool) {
	e, ok := ps.byName[name]
	return e.id, ok
}

// Value returns the snapshotted value for name.
func (ps *PropertySet) Value(name string) (uint64, bool) {
	e, ok := ps.byName[name]
	return e.value, ok
}

// Names lists the property names in the set.
func (ps *PropertySet) Names() []string {
	names := make([]string, 0, len(ps.byName))
	for n := range ps.byName {
		names = append(names, n)
	}
	return names
}

// GetBlob reads a property blob's raw contents.
func (c *Card) GetBlob(id uint32) ([]byte, error) {
	blob := sysGetBlob{blobID: id}
	if err := doIoctl(c.Fd(), ioctlModeGetPropBlob, unsafe.Pointer(&blob)); err != nil {
		return nil, err
	}

	var data []byte
	if blob.length > 0 {
		data = make([]byte, blob.length)
		blob.data = uint64(uintptr(unsafe.Pointer(&data[0])))
	}

	if err := doIoctl(c.Fd(), ioctlModeGetPropBlob, unsafe.Pointer(&blob)); err != nil {
		return nil, err
	}
	return data, nil
}

// CreateBlob registers a property blob with the kernel and returns its id.
func (c *Card) CreateBlob(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty blob")
	}
	blob := sysCreateBlob{
		data:   uint64(uintptr(unsafe.Pointer(&data[0]))),
		length: uint32(len(data)),
	}
	if err := doIoctl(c.Fd(), ioctlModeCreatePropBlob, unsafe.Pointer(&blob)); err != nil {
		return 0, err
	}
	return blob.blobID, nil
}

// CreateModeBlob registers a mode as a property blob for MODE_ID.
func (c *Card) CreateModeBlob(mode ModeInfo) (uint32, error) {
	blob := sysCreateBlob{
		data:   uint64(uintptr(unsafe.Pointer(&mode))),
		length: uint32(unsafe.Sizeof(mode)),
	}
	if err := doIoctl(c.Fd(), ioctlModeCreatePropBlob, unsafe.Pointer(&blob)); err != nil {
		return 0, err
	}
	return blob.blobID, nil
}

// DestroyBlob releases a previously created property blob.
func (c *Card) DestroyBlob(id uint32) error {
	blob := sysDestroyBlob{blobID: id}
	return doIoctl(c.Fd(), ioctlModeDestroyPropBlob, unsafe.Pointer(&blob))
}
