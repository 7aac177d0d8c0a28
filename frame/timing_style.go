package frame

import (
	"fmt"
)

// TimingStyle tells consumers whether a frame belongs to a moving sequence
// or is a still image that stays valid until replaced.
type TimingStyle int

const (
	TimingStyleUndefined = TimingStyle(iota)
	TimingStyleVideo
	TimingStyleStillImage
)

func (s TimingStyle) String() string {
	switch s {
	case TimingStyleUndefined:
		return "undefined"
	case TimingStyleVideo:
		return "video"
	case TimingStyleStillImage:
		return "still_image"
	default:
		return fmt.Sprintf("unknown_timing_style_%d", int(s))
	}
}
