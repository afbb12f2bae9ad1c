package render

import (
	"time"

	"drmplay/present"
)

// softFence is a fence for CPU rendering, which is complete by the time the
// fence exists.
type softFence struct{}

func (softFence) Wait(time.Duration) error { return nil }

func (softFence) Release() {}

// NewFence returns a fence covering the rendering issued so far.
func (s *Surface) NewFence() (present.Fence, error) {
	return softFence{}, nil
}
