package kms

import (
	"fmt"
	"time"

	"drmplay/present"
)

// ErrNoConnector means no usable output was found for the requested spec.
var ErrNoConnector = fmt.Errorf("no connected connector found")

// PipelineConfig selects the output pipeline.
type PipelineConfig struct {
	// Connector names the output ("HDMI-A-1"); empty picks the first
	// connected connector with modes.
	Connector string
	// Mode is a mode spec for Connector.FindMode.
	Mode string
}

// Pipeline is one connector→CRTC→primary-plane path with a configured mode.
// It implements the display interface the presentation engine drives.
type Pipeline struct {
	card *Card

	conn  *Connector
	crtc  uint32
	plane *Plane
	mode  ModeInfo

	props map[uint32]*PropertySet

	modeBlob uint32

	saved *savedState
}

// savedState is the pre-takeover kernel state, enough to hand the display
// back the way we found it.
type savedState struct {
	connectorCrtc uint64
	active        uint64
	modeBlobData  []byte
	plane         map[string]uint64
}

// planeStateProps are the plane properties captured for restore.
var planeStateProps = []string{
	"FB_ID", "CRTC_ID",
	"SRC_X", "SRC_Y", "SRC_W", "SRC_H",
	"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H",
}

// NewPipeline resolves the configured connector, mode, CRTC and primary
// plane, and snapshots their properties.
func (c *Card) NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	res, err := c.GetResources()
	if err != nil {
		return nil, fmt.Errorf("enumerating display resources: %w", err)
	}

	conn, err := c.pickConnector(res, cfg.Connector)
	if err != nil {
		return nil, err
	}
	mode, err := conn.FindMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	crtc, err := c.pickCrtc(res, conn)
	if err != nil {
		return nil, err
	}
	plane, err := c.pickPrimaryPlane(res, crtc)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		card:  c,
		conn:  conn,
		crtc:  crtc,
		plane: plane,
		mode:  mode,
		props: make(map[uint32]*PropertySet, 3),
	}
	if err := p.snapshotProps(); err != nil {
		return nil, err
	}

	logger().Info("display pipeline",
		"connector", conn.Name(), "crtc", crtc, "plane", plane.ID,
		"mode", mode.String())
	return p, nil
}

func (c *Card) pickConnector(res *Resources, name string) (*Connector, error) {
	for _, id := range res.Connectors {
		conn, err := c.GetConnector(id)
		if err != nil {
			logger().Warn("fetching connector failed", "id", id, "err", err)
			continue
		}
		if conn.Connection != Connected || len(conn.Modes) == 0 {
			continue
		}
		if name == "" || conn.Name() == name {
			return conn, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("connector %q not found or not connected", name)
	}
	return nil, ErrNoConnector
}

// pickCrtc prefers the CRTC already routed to the connector, falling back to
// the first CRTC any of its encoders can drive.
func (c *Card) pickCrtc(res *Resources, conn *Connector) (uint32, error) {
	if conn.EncoderID != 0 {
		if enc, err := c.GetEncoder(conn.EncoderID); err == nil && enc.CrtcID != 0 {
			return enc.CrtcID, nil
		}
	}
	for _, encID := range conn.Encoders {
		enc, err := c.GetEncoder(encID)
		if err != nil {
			continue
		}
		for i, crtcID := range res.Crtcs {
			if enc.PossibleCrtcs&(1<<uint(i)) != 0 {
				return crtcID, nil
			}
		}
	}
	return 0, fmt.Errorf("no CRTC usable with connector %s", conn.Name())
}

func (c *Card) pickPrimaryPlane(res *Resources, crtc uint32) (*Plane, error) {
	crtcIdx := -1
	for i, id := range res.Crtcs {
		if id == crtc {
			crtcIdx = i
			break
		}
	}
	if crtcIdx < 0 {
		return nil, fmt.Errorf("CRTC %d not in resource list", crtc)
	}

	planeIDs, err := c.GetPlaneResources()
	if err != nil {
		return nil, fmt.Errorf("enumerating planes: %w", err)
	}
	for _, id := range planeIDs {
		plane, err := c.GetPlane(id)
		if err != nil {
			continue
		}
		if plane.PossibleCrtcs&(1<<uint(crtcIdx)) == 0 {
			continue
		}
		props, err := c.ObjectProperties(id, ObjectPlane)
		if err != nil {
			continue
		}
		if typ, ok := props.Value("type"); ok && typ == PlaneTypePrimary {
			return plane, nil
		}
	}
	return nil, fmt.Errorf("no primary plane for CRTC %d", crtc)
}

func (p *Pipeline) snapshotProps() error {
	for _, obj := range []struct {
		id, typ uint32
	}{
		{p.conn.ID, ObjectConnector},
		{p.crtc, ObjectCrtc},
		{p.plane.ID, ObjectPlane},
	} {
		ps, err := p.card.ObjectProperties(obj.id, obj.typ)
		if err != nil {
			return fmt.Errorf("properties of object %d: %w", obj.id, err)
		}
		p.props[obj.id] = ps
	}
	return nil
}

// Card exposes the underlying device.
func (p *Pipeline) Card() *Card { return p.card }

// ConnectorID returns the selected connector's object id.
func (p *Pipeline) ConnectorID() uint32 { return p.conn.ID }

// CrtcID returns the selected CRTC's object id.
func (p *Pipeline) CrtcID() uint32 { return p.crtc }

// PlaneID returns the selected primary plane's object id.
func (p *Pipeline) PlaneID() uint32 { return p.plane.ID }

// Mode returns the configured mode.
func (p *Pipeline) Mode() ModeInfo { return p.mode }

// ModeSize returns the configured mode's resolution.
func (p *Pipeline) ModeSize() (int, int) {
	return int(p.mode.Hdisplay), int(p.mode.Vdisplay)
}

// Refresh returns the configured mode's true refresh rate.
func (p *Pipeline) Refresh() float64 {
	return p.mode.Refresh()
}

// ModeBlobID returns the kernel blob for the configured mode, creating it on
// first use.
func (p *Pipeline) ModeBlobID() (uint32, error) {
	if p.modeBlob != 0 {
		return p.modeBlob, nil
	}
	id, err := p.card.CreateModeBlob(p.mode)
	if err != nil {
		return 0, fmt.Errorf("creating mode blob: %w", err)
	}
	p.modeBlob = id
	return id, nil
}

// VRRCapable reports whether the connector advertises variable refresh.
func (p *Pipeline) VRRCapable() bool {
	ps, ok := p.props[p.conn.ID]
	if !ok {
		return false
	}
	v, ok := ps.Value("VRR_CAPABLE")
	return ok && v == 1
}

// PlaneFormats lists the primary plane's supported pixel formats.
func (p *Pipeline) PlaneFormats() []uint32 {
	return p.plane.Formats
}

// InFormats returns the plane's raw IN_FORMATS blob, or nil when the driver
// does not expose one.
func (p *Pipeline) InFormats() ([]byte, error) {
	ps := p.props[p.plane.ID]
	blobID, ok := ps.Value("IN_FORMATS")
	if !ok || blobID == 0 {
		return nil, nil
	}
	return p.card.GetBlob(uint32(blobID))
}

// SaveState captures the current connector routing, CRTC mode and plane
// geometry so RestoreState can put them back.
func (p *Pipeline) SaveState() error {
	if err := p.snapshotProps(); err != nil {
		return err
	}

	st := &savedState{plane: make(map[string]uint64, len(planeStateProps))}

	connProps := p.props[p.conn.ID]
	st.connectorCrtc, _ = connProps.Value("CRTC_ID")

	crtcProps := p.props[p.crtc]
	st.active, _ = crtcProps.Value("ACTIVE")
	if blobID, ok := crtcProps.Value("MODE_ID"); ok && blobID != 0 {
		// The blob is owned by whoever set the mode and may be gone by
		// restore time; duplicate its contents now.
		data, err := p.card.GetBlob(uint32(blobID))
		if err != nil {
			return fmt.Errorf("reading current mode blob: %w", err)
		}
		st.modeBlobData = data
	}

	planeProps := p.props[p.plane.ID]
	for _, name := range planeStateProps {
		if v, ok := planeProps.Value(name); ok {
			st.plane[name] = v
		}
	}

	p.saved = st
	return nil
}

// RestoreState reapplies the saved state as one synchronous modeset.
func (p *Pipeline) RestoreState() error {
	st := p.saved
	if st == nil {
		return fmt.Errorf("no saved state")
	}

	modeBlob := uint32(0)
	if len(st.modeBlobData) > 0 {
		id, err := p.card.CreateBlob(st.modeBlobData)
		if err != nil {
			return fmt.Errorf("recreating mode blob: %w", err)
		}
		modeBlob = id
		defer p.card.DestroyBlob(id)
	}

	var changes []AtomicProp
	add := func(objID uint32, name string, value uint64) {
		id, ok := p.props[objID].ID(name)
		if !ok {
			return
		}
		changes = append(changes, AtomicProp{ObjectID: objID, PropertyID: id, Value: value})
	}

	add(p.conn.ID, "CRTC_ID", st.connectorCrtc)
	add(p.crtc, "MODE_ID", uint64(modeBlob))
	add(p.crtc, "ACTIVE", st.active)
	for name, v := range st.plane {
		add(p.plane.ID, name, v)
	}

	if err := p.card.CommitAtomic(changes, AtomicAllowModeset, 0); err != nil {
		return fmt.Errorf("restore commit: %w", err)
	}
	return nil
}

// Commit resolves the transaction's property names against the target
// objects and submits it atomically. Names an object does not expose are
// skipped; that keeps optional properties like VRR_ENABLED and ZPOS
// best-effort.
func (p *Pipeline) Commit(tx *present.Transaction, flags present.CommitFlags, userData uint64) error {
	var changes []AtomicProp
	for _, ch := range tx.Consume() {
		ps, ok := p.props[ch.ObjectID]
		if !ok {
			return fmt.Errorf("commit touches unknown object %d", ch.ObjectID)
		}
		id, ok := ps.ID(ch.Name)
		if !ok {
			logger().Debug("object has no such property, skipping",
				"object", ch.ObjectID, "property", ch.Name)
			continue
		}
		changes = append(changes, AtomicProp{
			ObjectID:   ch.ObjectID,
			PropertyID: id,
			Value:      ch.Value,
		})
	}
	return p.card.CommitAtomic(changes, uint32(flags), userData)
}

// AddFramebuffer registers a buffer for scanout, taking the modifier-aware
// path only when an explicit memory layout was negotiated.
func (p *Pipeline) AddFramebuffer(cfg present.FramebufferConfig) (uint32, error) {
	var handles, pitches, offsets [4]uint32
	var modifiers [4]uint64
	if len(cfg.Planes) > 4 {
		return 0, fmt.Errorf("buffer has %d planes, at most 4 supported", len(cfg.Planes))
	}
	for i, pl := range cfg.Planes {
		handles[i] = pl.Handle
		pitches[i] = pl.Pitch
		offsets[i] = pl.Offset
		modifiers[i] = cfg.Modifier
	}

	if cfg.Modifier != present.ModifierInvalid {
		return p.card.AddFramebufferWithModifiers(
			cfg.Width, cfg.Height, cfg.Format, handles, pitches, offsets, modifiers)
	}
	return p.card.AddFramebuffer(cfg.Width, cfg.Height, cfg.Format, handles, pitches, offsets)
}

// RemoveFramebuffer drops a framebuffer registration.
func (p *Pipeline) RemoveFramebuffer(id uint32) error {
	return p.card.RemoveFramebuffer(id)
}

// WaitEvent reports whether the device fd became readable within timeout.
func (p *Pipeline) WaitEvent(timeout time.Duration) (bool, error) {
	return p.card.WaitReadable(timeout)
}

// DispatchEvents reads pending kernel events and forwards flip completions.
func (p *Pipeline) DispatchEvents(onFlip func(present.FlipEvent)) error {
	return p.card.DispatchEvents(func(ev FlipEvent) {
		onFlip(present.FlipEvent{
			UserData: ev.UserData,
			UST:      ev.When.UnixMicro(),
			MSC:      uint64(ev.Sequence),
		})
	})
}

// SetMaster acquires display master rights.
func (p *Pipeline) SetMaster() error {
	return p.card.SetMaster()
}

// DropMaster relinquishes display master rights.
func (p *Pipeline) DropMaster() error {
	return p.card.DropMaster()
}

// Close releases the kernel objects the pipeline created. The device stays
// open; the caller owns it.
func (p *Pipeline) Close() error {
	if p.modeBlob != 0 {
		if err := p.card.DestroyBlob(p.modeBlob); err != nil {
			logger().Warn("destroying mode blob failed", "err", err)
		}
		p.modeBlob = 0
	}
	return nil
}
