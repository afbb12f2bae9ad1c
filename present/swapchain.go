package present

// VsyncStamp is the presentation-timing tuple attached to a queue entry at
// enqueue time: submission count, vblank timestamp (µs) and vblank counter.
type VsyncStamp struct {
	SBC uint64
	UST int64
	MSC uint64
}

// queueEntry is one buffer in flight through presentation. A nil buffer is a
// hole: the slot is retired without a flip and without a producer return.
type queueEntry struct {
	buf   Buffer
	stamp VsyncStamp
}

// swapchain is the ordered, depth-bounded queue of buffers awaiting or in
// display. Presentation order equals submission order; no re-ordering ever.
type swapchain struct {
	producer Producer
	entries  []queueEntry
}

func newSwapchain(producer Producer) *swapchain {
	return &swapchain{producer: producer}
}

func (s *swapchain) len() int {
	return len(s.entries)
}

// second returns the next entry due for a flip.
func (s *swapchain) second() queueEntry {
	return s.entries[1]
}

// enqueue appends buf to the tail with its vsync stamp.
func (s *swapchain) enqueue(buf Buffer, stamp VsyncStamp) {
	s.entries = append(s.entries, queueEntry{buf: buf, stamp: stamp})
}

// retireOldest removes the head entry and returns its buffer to the
// producer. A hole is removed all the same, without a producer return.
func (s *swapchain) retireOldest() {
	if len(s.entries) == 0 {
		return
	}
	head := s.entries[0]
	copy(s.entries, s.entries[1:])
	s.entries = s.entries[:len(s.entries)-1]

	if head.buf == nil {
		logger().Warn("retired a hole in the swapchain")
		return
	}
	s.producer.Release(head.buf)
}

// drainAll returns every queued buffer to the producer.
func (s *swapchain) drainAll() {
	for len(s.entries) > 0 {
		s.retireOldest()
	}
}
