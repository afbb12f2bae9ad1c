package present

// FramebufferRecord is the kernel scanout registration of one buffer.
// ID 0 marks a buffer whose registration failed; such buffers are cached so
// the failure is reported once, and skipped at flip time.
type FramebufferRecord struct {
	ID            uint32
	Width, Height uint32
}

// Registry lazily maps buffer objects to kernel framebuffers. Records live
// until the producer frees the buffer, at which point Evict releases the
// kernel resource exactly once.
type Registry struct {
	display Display
	records map[uint64]*FramebufferRecord
}

func NewRegistry(display Display) *Registry {
	return &Registry{
		display: display,
		records: make(map[uint64]*FramebufferRecord),
	}
}

// RegisterOrGet returns the framebuffer record for buf, creating it on first
// use. Registration failure is logged and leaves the record with id 0; the
// caller must treat such a frame as non-presentable.
func (r *Registry) RegisterOrGet(buf Buffer) *FramebufferRecord {
	if rec, ok := r.records[buf.ID()]; ok {
		return rec
	}

	w, h := buf.Size()
	rec := &FramebufferRecord{Width: w, Height: h}
	r.records[buf.ID()] = rec

	cfg := FramebufferConfig{
		Width:    w,
		Height:   h,
		Format:   buf.Format(),
		Modifier: buf.Modifier(),
		Planes:   buf.Planes(),
	}
	id, err := r.display.AddFramebuffer(cfg)
	if err != nil {
		logger().Error("registering framebuffer failed", "buffer", buf.ID(), "err", err)
		return rec
	}
	rec.ID = id
	return rec
}

// Evict drops buf's record and releases its kernel framebuffer. Safe to call
// for buffers that were never registered or were already evicted.
func (r *Registry) Evict(buf Buffer) {
	rec, ok := r.records[buf.ID()]
	if !ok {
		return
	}
	delete(r.records, buf.ID())
	if rec.ID == 0 {
		return
	}
	if err := r.display.RemoveFramebuffer(rec.ID); err != nil {
		logger().Warn("removing framebuffer failed", "fb", rec.ID, "err", err)
	}
}
