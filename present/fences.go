package present

import "time"

// fenceWaitTimeout bounds one wait on the oldest fence. A fence that has not
// signalled by then is released anyway; stalling presentation on a wedged
// GPU helps nobody.
const fenceWaitTimeout = time.Second

// fenceFIFO caps GPU run-ahead: a buffer is not reused by the producer
// before its fence proves the prior render completed. Fences are waited and
// released strictly in creation order.
type fenceFIFO struct {
	renderer Renderer
	fences   []Fence
}

func newFenceFIFO(renderer Renderer) *fenceFIFO {
	return &fenceFIFO{renderer: renderer}
}

func (f *fenceFIFO) len() int {
	return len(f.fences)
}

// record appends a fence for the render commands just issued. Creation
// failure is logged and skipped; the frame simply goes unfenced.
func (f *fenceFIFO) record() {
	fence, err := f.renderer.NewFence()
	if err != nil {
		logger().Warn("creating fence failed", "err", err)
		return
	}
	f.fences = append(f.fences, fence)
}

// drainDue waits out fences until fewer remain than queueLen, keeping the
// fence FIFO no longer than the buffer queue.
func (f *fenceFIFO) drainDue(queueLen int) {
	for len(f.fences) > 0 && len(f.fences) >= queueLen {
		fence := f.fences[0]
		if err := fence.Wait(fenceWaitTimeout); err != nil {
			logger().Warn("fence wait failed", "err", err)
		}
		fence.Release()
		copy(f.fences, f.fences[1:])
		f.fences = f.fences[:len(f.fences)-1]
	}
}

// releaseAll drops every outstanding fence without waiting.
func (f *fenceFIFO) releaseAll() {
	for _, fence := range f.fences {
		fence.Release()
	}
	f.fences = nil
}
