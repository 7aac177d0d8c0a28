package avplayer

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/audiosink"
)

type PacingSource int

const (
	PacingSourceNone = PacingSource(iota)
	PacingSourceWallClock
	PacingSourceAudio
)

func (s PacingSource) String() string {
	switch s {
	case PacingSourceNone:
		return "none"
	case PacingSourceWallClock:
		return "wall_clock"
	case PacingSourceAudio:
		return "audio"
	default:
		return fmt.Sprintf("unknown_pacing_source_%d", int(s))
	}
}

// playbackClock tells how far into the track playback is supposed to be.
// The audio sink position wins over the wall clock once the sink plays.
type playbackClock struct {
	anchor time.Time
	sink   audiosink.Sink
}

func newPlaybackClock(
	now time.Time,
	alreadyElapsed time.Duration,
	sink audiosink.Sink,
) *playbackClock {
	return &playbackClock{
		anchor: now.Add(-alreadyElapsed),
		sink:   sink,
	}
}

func (c *playbackClock) Offset(now time.Time) (time.Duration, PacingSource) {
	if c.sink != nil && c.sink.IsPlaying() {
		return c.sink.CurrentTime(), PacingSourceAudio
	}
	return now.Sub(c.anchor), PacingSourceWallClock
}
