// Package nullsink implements an audio sink that discards the audio but
// keeps a realistic playback position: the position advances with the
// wall clock and never runs ahead of the audio received so far.
package nullsink

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/audiosink"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

const (
	DefaultMaxBufferAhead = 500 * time.Millisecond
	pollInterval          = 5 * time.Millisecond
)

type Sink struct {
	// MaxBufferAhead is how far the received audio may run ahead of the
	// playback position before ProcessAudioBuffer blocks.
	MaxBufferAhead time.Duration

	locker    xsync.Mutex
	active    bool
	playing   bool
	finished  bool
	buffered  time.Duration
	base      time.Duration
	playSince time.Time

	volume          atomic.Float64
	buffersReceived atomic.Uint64
	samplesReceived atomic.Uint64
}

var _ audiosink.Sink = (*Sink)(nil)

func New() *Sink {
	s := &Sink{
		MaxBufferAhead: DefaultMaxBufferAhead,
	}
	s.volume.Store(1)
	return s
}

func (s *Sink) String() string {
	return "NullSink"
}

func (s *Sink) ActivateAudioTrack(ctx context.Context) error {
	logger.Debugf(ctx, "ActivateAudioTrack")
	s.locker.Do(ctx, func() {
		s.active = true
		s.finished = false
		s.buffered = 0
		s.base = 0
		if s.playing {
			s.playSince = time.Now()
		}
	})
	return nil
}

func (s *Sink) ProcessAudioBuffer(
	ctx context.Context,
	sample *demuxer.AudioSample,
) error {
	defer sample.Release()
	err := xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, func() error {
		if !s.active {
			return fmt.Errorf("the audio track is not activated")
		}
		if s.finished {
			return fmt.Errorf("the audio track is already marked as finished")
		}
		if end := sample.PTS + sample.Duration(); end > s.buffered {
			s.buffered = end
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.buffersReceived.Inc()
	s.samplesReceived.Add(uint64(sample.NbSamples()))

	for {
		ahead := xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, func() time.Duration {
			if !s.playing {
				return 0
			}
			return s.buffered - s.currentTimeLocked()
		})
		if ahead <= s.MaxBufferAhead {
			return nil
		}
		if err := internal.Sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (s *Sink) MarkAudioAsFinished(ctx context.Context) error {
	logger.Debugf(ctx, "MarkAudioAsFinished")
	s.locker.Do(ctx, func() {
		s.finished = true
	})
	return nil
}

func (s *Sink) Play(ctx context.Context) error {
	logger.Debugf(ctx, "Play")
	s.locker.Do(ctx, func() {
		if s.playing {
			return
		}
		s.playing = true
		s.playSince = time.Now()
	})
	return nil
}

func (s *Sink) Stop(ctx context.Context) error {
	logger.Debugf(ctx, "Stop")
	s.locker.Do(ctx, func() {
		if !s.playing {
			return
		}
		s.base = s.currentTimeLocked()
		s.playing = false
	})
	return nil
}

func (s *Sink) IsPlaying() bool {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &s.locker, func() bool {
		return s.playing && s.buffered > 0
	})
}

func (s *Sink) CurrentTime() time.Duration {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &s.locker, s.currentTimeLocked)
}

func (s *Sink) currentTimeLocked() time.Duration {
	if !s.playing {
		return s.base
	}
	t := s.base + time.Since(s.playSince)
	if t > s.buffered {
		t = s.buffered
	}
	if t < s.base {
		t = s.base
	}
	return t
}

func (s *Sink) SetCurrentTime(ctx context.Context, t time.Duration) error {
	if t < 0 {
		return fmt.Errorf("negative position %s", t)
	}
	s.locker.Do(ctx, func() {
		s.base = t
		s.playSince = time.Now()
	})
	return nil
}

func (s *Sink) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %f is out of range [0, 1]", volume)
	}
	s.volume.Store(volume)
	return nil
}

func (s *Sink) Volume() float64 {
	return s.volume.Load()
}

func (s *Sink) BuffersReceived() uint64 {
	return s.buffersReceived.Load()
}

func (s *Sink) SamplesReceived() uint64 {
	return s.samplesReceived.Load()
}
