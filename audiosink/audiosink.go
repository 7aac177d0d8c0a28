// Package audiosink defines where the player sends decoded audio.
package audiosink

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/demuxer"
)

// Sink plays (or encodes) decoded audio and reports its own position,
// which the player treats as the master clock once the sink is playing.
type Sink interface {
	fmt.Stringer

	ActivateAudioTrack(ctx context.Context) error

	// ProcessAudioBuffer takes ownership of the sample and releases it.
	// It may block to apply back-pressure.
	ProcessAudioBuffer(ctx context.Context, sample *demuxer.AudioSample) error

	// MarkAudioAsFinished tells the sink no more buffers follow in this run.
	MarkAudioAsFinished(ctx context.Context) error

	Play(ctx context.Context) error
	Stop(ctx context.Context) error

	// IsPlaying reports whether the sink is playing and producing sound.
	IsPlaying() bool

	CurrentTime() time.Duration
	SetCurrentTime(ctx context.Context, t time.Duration) error

	// SetVolume sets the gain in [0, 1].
	SetVolume(ctx context.Context, volume float64) error
}
