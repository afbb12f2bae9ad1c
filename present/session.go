package present

// VRRMode controls variable-refresh-rate negotiation.
type VRRMode int

const (
	// VRRAuto enables VRR when the connector reports capability.
	VRRAuto VRRMode = iota
	VRROff
	// VRROn requests VRR regardless of reported capability.
	VRROn
)

// sessionConfig is the pipeline geometry applied on every establish: the
// framebuffer shown first, the source rectangle read from it, and the
// mode-sized destination rectangle.
type sessionConfig struct {
	fbID       uint32
	srcW, srcH uint32
	dstW, dstH uint32
	vrr        VRRMode
}

// session owns the "CRTC active" state machine. Establish and teardown are
// idempotent; the kernel commit happens once per transition.
type session struct {
	display Display
	cfg     sessionConfig
	active  bool
	saved   bool
}

func newSession(display Display, cfg sessionConfig) *session {
	return &session{display: display, cfg: cfg}
}

// establish takes over the pipeline: saves the current kernel state for
// later restore, then commits connector→CRTC routing, the mode blob, the
// active flag, best-effort VRR and the initial plane geometry in one
// modeset. Commit failure is fatal to the caller's initialization.
func (s *session) establish() error {
	if s.active {
		return nil
	}

	if err := s.display.SaveState(); err != nil {
		logger().Warn("saving display state failed, restore will be skipped", "err", err)
	} else {
		s.saved = true
	}

	conn := s.display.ConnectorID()
	crtc := s.display.CrtcID()
	plane := s.display.PlaneID()

	blob, err := s.display.ModeBlobID()
	if err != nil {
		return err
	}

	tx := NewTransaction()
	tx.Set(conn, "CRTC_ID", uint64(crtc))
	tx.Set(crtc, "MODE_ID", uint64(blob))
	tx.Set(crtc, "ACTIVE", 1)

	// VRR_ENABLED is skipped by the display when the connector has no such
	// property, which is the silent downgrade we want.
	if s.cfg.vrr == VRROn || (s.cfg.vrr == VRRAuto && s.display.VRRCapable()) {
		tx.Set(conn, "VRR_ENABLED", 1)
	}

	tx.Set(plane, "FB_ID", uint64(s.cfg.fbID))
	tx.Set(plane, "CRTC_ID", uint64(crtc))
	tx.Set(plane, "SRC_X", 0)
	tx.Set(plane, "SRC_Y", 0)
	tx.Set(plane, "SRC_W", uint64(s.cfg.srcW)<<16)
	tx.Set(plane, "SRC_H", uint64(s.cfg.srcH)<<16)
	tx.Set(plane, "CRTC_X", 0)
	tx.Set(plane, "CRTC_Y", 0)
	tx.Set(plane, "CRTC_W", uint64(s.cfg.dstW))
	tx.Set(plane, "CRTC_H", uint64(s.cfg.dstH))

	if err := s.display.Commit(tx, CommitAllowModeset, 0); err != nil {
		return err
	}
	s.active = true
	return nil
}

// teardown restores the saved kernel state. It never aborts: failure is
// logged and the session still ends, so display ownership is not leaked.
func (s *session) teardown() {
	if !s.active {
		return
	}
	s.active = false

	if !s.saved {
		return
	}
	s.saved = false
	if err := s.display.RestoreState(); err != nil {
		logger().Warn("restoring display state failed", "err", err)
	}
}
