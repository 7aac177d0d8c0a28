package avplayer_test

import (
	"context"
	"time"

	"github.com/xaionaro-go/avplayer/audiosink"
	"github.com/xaionaro-go/avplayer/demuxer"
	"go.uber.org/atomic"
)

// mockSink reports a fixed playback position while playing.
type mockSink struct {
	position time.Duration
	silent   bool

	onActivate func()
	onBuffer   func()

	activations atomic.Int64
	finishMarks atomic.Int64
	buffers     atomic.Int64
	unreleased  atomic.Int64
	playing     atomic.Bool
	volume      atomic.Float64
}

var _ audiosink.Sink = (*mockSink)(nil)

func newMockSink(position time.Duration) *mockSink {
	return &mockSink{position: position}
}

func (s *mockSink) String() string {
	return "mockSink"
}

func (s *mockSink) ActivateAudioTrack(ctx context.Context) error {
	s.activations.Inc()
	if s.onActivate != nil {
		s.onActivate()
	}
	return nil
}

func (s *mockSink) ProcessAudioBuffer(ctx context.Context, sample *demuxer.AudioSample) error {
	s.buffers.Inc()
	if s.onBuffer != nil {
		s.onBuffer()
	}
	s.unreleased.Inc()
	sample.ReleaseFunc = func() { s.unreleased.Dec() }
	sample.Release()
	return nil
}

func (s *mockSink) MarkAudioAsFinished(ctx context.Context) error {
	s.finishMarks.Inc()
	return nil
}

func (s *mockSink) Play(ctx context.Context) error {
	s.playing.Store(true)
	return nil
}

func (s *mockSink) Stop(ctx context.Context) error {
	s.playing.Store(false)
	return nil
}

func (s *mockSink) IsPlaying() bool {
	return s.playing.Load() && !s.silent
}

func (s *mockSink) CurrentTime() time.Duration {
	if !s.playing.Load() {
		return 0
	}
	return s.position
}

func (s *mockSink) SetCurrentTime(ctx context.Context, t time.Duration) error {
	s.position = t
	return nil
}

func (s *mockSink) SetVolume(ctx context.Context, volume float64) error {
	s.volume.Store(volume)
	return nil
}
