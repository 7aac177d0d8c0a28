// frame.go defines the converted frame handed to consumers.

// Package frame provides the frames the player emits and the fan-out that
// delivers them to consumers.
package frame

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/gpu"
)

// Converted is an RGBA GPU-resident picture.
//
// A Converted owns one reference to Framebuffer; Release drops it.
type Converted struct {
	Framebuffer gpu.Framebuffer
	PTS         time.Duration
	Orientation Orientation
	TimingStyle TimingStyle
}

func (f *Converted) String() string {
	return fmt.Sprintf("Converted(%s@%s:%s:%s)", f.Framebuffer, f.PTS, f.Orientation, f.TimingStyle)
}

// Share returns a copy of f holding its own framebuffer reference.
func (f *Converted) Share() *Converted {
	f.Framebuffer.Lock()
	cpy := *f
	return &cpy
}

func (f *Converted) Release() {
	if f == nil || f.Framebuffer == nil {
		return
	}
	f.Framebuffer.Unlock()
	f.Framebuffer = nil
}
