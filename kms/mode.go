package kms

import (
	"bytes"
	"fmt"
	"strings"
	"unsafe"
)

// Connection status reported by a connector.
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Mode flags we care about.
const (
	ModeFlagInterlace = 1 << 4
	ModeFlagDblScan   = 1 << 5
)

// ModeTypePreferred marks the connector's preferred mode.
const ModeTypePreferred = 1 << 3

const displayModeLen = 32

// ModeInfo mirrors struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock                                         uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16

	VrefreshHint uint32

	Flags uint32
	Type  uint32
	name  [displayModeLen]uint8
}

// Name returns the kernel's mode name, e.g. "1920x1080".
func (m *ModeInfo) Name() string {
	n, _, _ := bytes.Cut(m.name[:], []byte{0})
	return string(n)
}

// Refresh computes the true vertical refresh rate in Hz from the mode
// timings. Interlaced modes scan out two fields per frame.
func (m *ModeInfo) Refresh() float64 {
	if m.Htotal == 0 || m.Vtotal == 0 {
		return 0
	}
	rate := float64(m.Clock) * 1000.0 / float64(m.Htotal) / float64(m.Vtotal)
	if m.Flags&ModeFlagInterlace != 0 {
		rate *= 2.0
	}
	if m.Flags&ModeFlagDblScan != 0 {
		rate /= 2.0
	}
	return rate
}

func (m *ModeInfo) String() string {
	return fmt.Sprintf("%s@%.2fHz", m.Name(), m.Refresh())
}

type sysCardRes struct {
	fbIDPtr              uint64
	crtcIDPtr            uint64
	connectorIDPtr       uint64
	encoderIDPtr         uint64
	countFbs             uint32
	countCrtcs           uint32
	countConnectors      uint32
	countEncoders        uint32
	minWidth, maxWidth   uint32
	minHeight, maxHeight uint32
}

type sysGetConnector struct {
	encodersPtr   uint64
	modesPtr      uint64
	propsPtr      uint64
	propValuesPtr uint64

	countModes    uint32
	countProps    uint32
	countEncoders uint32

	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32

	connection        uint32
	mmWidth, mmHeight uint32
	subpixel          uint32
}

type sysGetEncoder struct {
	id             uint32
	typ            uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type sysCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32

	id   uint32
	fbID uint32

	x, y uint32

	gammaSize uint32
	modeValid uint32
	mode      ModeInfo
}

var (
	ioctlModeGetResources = drmIOWR(0xA0, unsafe.Sizeof(sysCardRes{}))
	ioctlModeGetCrtc      = drmIOWR(0xA1, unsafe.Sizeof(sysCrtc{}))
	ioctlModeGetEncoder   = drmIOWR(0xA6, unsafe.Sizeof(sysGetEncoder{}))
	ioctlModeGetConnector = drmIOWR(0xA7, unsafe.Sizeof(sysGetConnector{}))
)

// Resources lists the mode-setting objects a device exposes.
type Resources struct {
	Fbs        []uint32
	Crtcs      []uint32
	Connectors []uint32
	Encoders   []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// Connector describes one physical output.
type Connector struct {
	ID         uint32
	EncoderID  uint32
	Type       uint32
	TypeID     uint32
	Connection uint32
	MmWidth    uint32
	MmHeight   uint32

	Modes    []ModeInfo
	Encoders []uint32
}

// Encoder routes a connector to a CRTC.
type Encoder struct {
	ID            uint32
	Type          uint32
	CrtcID        uint32
	PossibleCrtcs uint32
}

// GetResources enumerates the device's mode-setting objects. The counts can
// change between the sizing call and the fetch; hotplug in that window is
// not handled.
func (c *Card) GetResources() (*Resources, error) {
	var res sysCardRes
	if err := doIoctl(c.Fd(), ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	var fbs, crtcs, connectors, encoders []uint32
	if res.countFbs > 0 {
		fbs = make([]uint32, res.countFbs)
		res.fbIDPtr = uint64(uintptr(unsafe.Pointer(&fbs[0])))
	}
	if res.countCrtcs > 0 {
		crtcs = make([]uint32, res.countCrtcs)
		res.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	if res.countConnectors > 0 {
		connectors = make([]uint32, res.countConnectors)
		res.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	}
	if res.countEncoders > 0 {
		encoders = make([]uint32, res.countEncoders)
		res.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}

	if err := doIoctl(c.Fd(), ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	return &Resources{
		Fbs:        fbs,
		Crtcs:      crtcs,
		Connectors: connectors,
		Encoders:   encoders,
		MinWidth:   res.minWidth,
		MaxWidth:   res.maxWidth,
		MinHeight:  res.minHeight,
		MaxHeight:  res.maxHeight,
	}, nil
}

// GetConnector fetches one connector and its mode list.
func (c *Card) GetConnector(id uint32) (*Connector, error) {
	conn := sysGetConnector{connectorID: id}
	if err := doIoctl(c.Fd(), ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, err
	}

	var (
		encoders   []uint32
		props      []uint32
		propValues []uint64
	)
	if conn.countModes == 0 {
		conn.countModes = 1
	}
	modes := make([]ModeInfo, conn.countModes)
	conn.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
	if conn.countEncoders > 0 {
		encoders = make([]uint32, conn.countEncoders)
		conn.encodersPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}
	if conn.countProps > 0 {
		props = make([]uint32, conn.countProps)
		conn.propsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
		propValues = make([]uint64, conn.countProps)
		conn.propValuesPtr = uint64(uintptr(unsafe.Pointer(&propValues[0])))
	}

	if err := doIoctl(c.Fd(), ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, err
	}

	return &Connector{
		ID:         conn.connectorID,
		EncoderID:  conn.encoderID,
		Type:       conn.connectorType,
		TypeID:     conn.connectorTypeID,
		Connection: conn.connection,
		MmWidth:    conn.mmWidth,
		MmHeight:   conn.mmHeight,
		Modes:      modes[:conn.countModes],
		Encoders:   encoders,
	}, nil
}

// Crtc is the scanout state of one CRTC.
type Crtc struct {
	ID        uint32
	FbID      uint32
	X, Y      uint32
	ModeValid bool
	Mode      ModeInfo
}

// GetCrtc fetches one CRTC's current scanout state.
func (c *Card) GetCrtc(id uint32) (*Crtc, error) {
	crtc := sysCrtc{id: id}
	if err := doIoctl(c.Fd(), ioctlModeGetCrtc, unsafe.Pointer(&crtc)); err != nil {
		return nil, err
	}
	return &Crtc{
		ID:        crtc.id,
		FbID:      crtc.fbID,
		X:         crtc.x,
		Y:         crtc.y,
		ModeValid: crtc.modeValid != 0,
		Mode:      crtc.mode,
	}, nil
}

// GetEncoder fetches one encoder.
func (c *Card) GetEncoder(id uint32) (*Encoder, error) {
	enc := sysGetEncoder{id: id}
	if err := doIoctl(c.Fd(), ioctlModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return nil, err
	}
	return &Encoder{
		ID:            enc.id,
		Type:          enc.typ,
		CrtcID:        enc.crtcID,
		PossibleCrtcs: enc.possibleCrtcs,
	}, nil
}

// connectorTypeNames maps DRM_MODE_CONNECTOR_* values to the names used in
// connector specs like "HDMI-A-1".
var connectorTypeNames = map[uint32]string{
	0:  "Unknown",
	1:  "VGA",
	2:  "DVI-I",
	3:  "DVI-D",
	4:  "DVI-A",
	5:  "Composite",
	6:  "SVIDEO",
	7:  "LVDS",
	8:  "Component",
	9:  "DIN",
	10: "DP",
	11: "HDMI-A",
	12: "HDMI-B",
	13: "TV",
	14: "eDP",
	15: "Virtual",
	16: "DSI",
	17: "DPI",
	18: "Writeback",
	19: "SPI",
	20: "USB",
}

// Name returns the conventional connector name, e.g. "HDMI-A-1".
func (cn *Connector) Name() string {
	typ, ok := connectorTypeNames[cn.Type]
	if !ok {
		typ = fmt.Sprintf("Unknown%d", cn.Type)
	}
	return fmt.Sprintf("%s-%d", typ, cn.TypeID)
}

// PreferredMode returns the connector's preferred mode, or its first mode
// when none is flagged preferred.
func (cn *Connector) PreferredMode() (ModeInfo, error) {
	if len(cn.Modes) == 0 {
		return ModeInfo{}, fmt.Errorf("connector %s has no modes", cn.Name())
	}
	for _, m := range cn.Modes {
		if m.Type&ModeTypePreferred != 0 {
			return m, nil
		}
	}
	return cn.Modes[0], nil
}

// FindMode resolves a mode spec against the connector's mode list. Accepted
// specs: "" or "preferred", "highest" (largest area), "WxH" and "WxH@Hz".
func (cn *Connector) FindMode(spec string) (ModeInfo, error) {
	switch spec {
	case "", "preferred":
		return cn.PreferredMode()
	case "highest":
		if len(cn.Modes) == 0 {
			return ModeInfo{}, fmt.Errorf("connector %s has no modes", cn.Name())
		}
		best := cn.Modes[0]
		for _, m := range cn.Modes[1:] {
			if int(m.Hdisplay)*int(m.Vdisplay) > int(best.Hdisplay)*int(best.Vdisplay) {
				best = m
			}
		}
		return best, nil
	}

	var w, h int
	var hz float64
	withRate := strings.Contains(spec, "@")
	if withRate {
		if _, err := fmt.Sscanf(spec, "%dx%d@%f", &w, &h, &hz); err != nil {
			return ModeInfo{}, fmt.Errorf("bad mode spec %q: %w", spec, err)
		}
	} else {
		if _, err := fmt.Sscanf(spec, "%dx%d", &w, &h); err != nil {
			return ModeInfo{}, fmt.Errorf("bad mode spec %q: %w", spec, err)
		}
	}

	var best *ModeInfo
	for i := range cn.Modes {
		m := &cn.Modes[i]
		if int(m.Hdisplay) != w || int(m.Vdisplay) != h {
			continue
		}
		if !withRate {
			if best == nil || m.Refresh() > best.Refresh() {
				best = m
			}
			continue
		}
		if best == nil || absf(m.Refresh()-hz) < absf(best.Refresh()-hz) {
			best = m
		}
	}
	if best == nil {
		return ModeInfo{}, fmt.Errorf("no mode matching %q on connector %s", spec, cn.Name())
	}
	return *best, nil
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
