package demuxer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/xsync"
)

type trackOutput struct {
	Output
	Drained bool
}

// Session is one read pass over one asset.
//
// Pulls and cancellation share a single lock, so a pull never observes a
// session in the middle of a teardown; Status is lock-free so decode loops
// can poll it while another loop is blocked inside a pull.
type Session struct {
	Asset  Asset
	Reader Reader

	locker      xsync.Mutex
	status      atomic.Int32
	lastErr     *error
	videoOutput *trackOutput
	audioOutput *trackOutput
}

// Open loads the asset and constructs a reader for it.
func Open(
	ctx context.Context,
	demuxer Demuxer,
	asset Asset,
) (_ret *Session, _err error) {
	logger.Debugf(ctx, "Open(%s, %s)", demuxer, asset)
	defer func() { logger.Debugf(ctx, "/Open(%s, %s): %v", demuxer, asset, _err) }()

	if err := asset.Load(ctx); err != nil {
		return nil, ErrLoad{Asset: asset, Err: err}
	}
	if asset.VideoTrack() == nil {
		return nil, ErrLoad{Asset: asset, Err: ErrNoVideoTrack}
	}

	reader, err := demuxer.OpenSession(ctx, asset)
	if err != nil {
		return nil, ErrReaderInit{Asset: asset, Err: err}
	}
	if reader == nil {
		return nil, ErrReaderInit{Asset: asset, Err: fmt.Errorf("%s returned no reader", demuxer)}
	}

	return &Session{
		Asset:  asset,
		Reader: reader,
	}, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s)", s.Asset)
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Err returns the error that moved the session into StatusFailed.
func (s *Session) Err() error {
	errPtr := xatomic.LoadPointer(&s.lastErr)
	if errPtr == nil {
		return nil
	}
	return *errPtr
}

func (s *Session) setStatus(ctx context.Context, status Status) {
	old := Status(s.status.Swap(int32(status)))
	logger.Debugf(ctx, "%s: status %s -> %s", s, old, status)
}

func (s *Session) AddVideoOutput(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &s.locker, s.addVideoOutput, ctx)
}

func (s *Session) addVideoOutput(ctx context.Context) error {
	if s.videoOutput != nil {
		return nil
	}
	out, err := s.addTrackOutput(ctx, s.Asset.VideoTrack(), FormatHintNV12)
	if err != nil {
		return err
	}
	s.videoOutput = out
	return nil
}

// AddAudioOutput adds an audio output if the asset has an audio track and
// reports whether the session has an audio output afterwards.
func (s *Session) AddAudioOutput(ctx context.Context) (bool, error) {
	return xsync.DoA1R2(ctx, &s.locker, s.addAudioOutput, ctx)
}

func (s *Session) addAudioOutput(ctx context.Context) (bool, error) {
	if s.audioOutput != nil {
		return true, nil
	}
	track := s.Asset.AudioTrack()
	if track == nil {
		return false, nil
	}
	out, err := s.addTrackOutput(ctx, track, FormatHintPCM)
	if err != nil {
		return false, err
	}
	s.audioOutput = out
	return true, nil
}

func (s *Session) addTrackOutput(
	ctx context.Context,
	track Track,
	hint FormatHint,
) (*trackOutput, error) {
	if status := s.Status(); status != StatusIdle {
		return nil, fmt.Errorf("outputs can only be added to an idle session, the status is %s", status)
	}
	out, err := s.Reader.AddTrackOutput(ctx, track, hint)
	if err != nil {
		return nil, fmt.Errorf("unable to add an output for %s: %w", track, err)
	}
	return &trackOutput{Output: out}, nil
}

// RemoveAudioOutput is a no-op if no audio output was added.
func (s *Session) RemoveAudioOutput(ctx context.Context) error {
	return xsync.DoR1(ctx, &s.locker, func() error {
		if s.audioOutput == nil {
			return nil
		}
		if status := s.Status(); status != StatusIdle {
			return fmt.Errorf("outputs can only be removed from an idle session, the status is %s", status)
		}
		if err := s.Reader.RemoveTrackOutput(ctx, s.audioOutput.Output); err != nil {
			return fmt.Errorf("unable to remove the audio output: %w", err)
		}
		s.audioOutput = nil
		return nil
	})
}

func (s *Session) HasAudioOutput(ctx context.Context) bool {
	return xsync.DoR1(ctx, &s.locker, func() bool {
		return s.audioOutput != nil
	})
}

func (s *Session) StartReading(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &s.locker, s.startReading, ctx)
}

func (s *Session) startReading(ctx context.Context) error {
	if status := s.Status(); status != StatusIdle {
		return ErrStartReading{Err: fmt.Errorf("the session is %s", status)}
	}
	if s.videoOutput == nil {
		return ErrStartReading{Err: ErrNoOutput}
	}
	if err := s.Reader.StartReading(ctx); err != nil {
		xatomic.StorePointer(&s.lastErr, &err)
		s.setStatus(ctx, StatusFailed)
		return ErrStartReading{Err: err}
	}
	s.setStatus(ctx, StatusReading)
	return nil
}

// PullNextVideoSample returns (nil, nil) once the video track is exhausted.
func (s *Session) PullNextVideoSample(ctx context.Context) (*VideoSample, error) {
	sample, err := s.pull(ctx, func() *trackOutput { return s.videoOutput })
	if sample == nil || err != nil {
		return nil, err
	}
	v, ok := sample.(*VideoSample)
	if !ok {
		sample.Release()
		return nil, ErrRead{Err: fmt.Errorf("expected a video sample, got %T", sample)}
	}
	return v, nil
}

// PullNextAudioSample returns (nil, nil) once the audio track is exhausted.
func (s *Session) PullNextAudioSample(ctx context.Context) (*AudioSample, error) {
	sample, err := s.pull(ctx, func() *trackOutput { return s.audioOutput })
	if sample == nil || err != nil {
		return nil, err
	}
	a, ok := sample.(*AudioSample)
	if !ok {
		sample.Release()
		return nil, ErrRead{Err: fmt.Errorf("expected an audio sample, got %T", sample)}
	}
	return a, nil
}

func (s *Session) pull(
	ctx context.Context,
	getOutput func() *trackOutput,
) (_ret Sample, _err error) {
	logger.Tracef(ctx, "pull")
	defer func() { logger.Tracef(ctx, "/pull: %v %v", _ret, _err) }()
	return xsync.DoR2(xsync.WithNoLogging(ctx, true), &s.locker, func() (Sample, error) {
		if status := s.Status(); status != StatusReading {
			return nil, ErrNotReading{Status: status}
		}
		out := getOutput()
		if out == nil {
			return nil, ErrNoOutput
		}
		if out.Drained {
			return nil, nil
		}

		sample, err := s.Reader.PullSample(ctx, out.Output)
		if err != nil {
			xatomic.StorePointer(&s.lastErr, &err)
			s.setStatus(ctx, StatusFailed)
			return nil, ErrRead{Err: err}
		}
		if sample != nil {
			return sample, nil
		}

		logger.Debugf(ctx, "%s: output for %s is drained", s, out.Track())
		out.Drained = true
		if s.allDrained() {
			s.setStatus(ctx, StatusCompleted)
		}
		return nil, nil
	})
}

func (s *Session) allDrained() bool {
	for _, out := range []*trackOutput{s.videoOutput, s.audioOutput} {
		if out != nil && !out.Drained {
			return false
		}
	}
	return true
}

// Cancel stops the read pass and drops all outputs. Idle and reading
// sessions become cancelled; terminal sessions keep their status.
// Calling Cancel again is a no-op.
func (s *Session) Cancel(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &s.locker, s.cancel, ctx)
}

func (s *Session) cancel(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "cancel")
	defer func() { logger.Debugf(ctx, "/cancel: %v", _err) }()
	if s.Status() == StatusCancelled || (s.videoOutput == nil && s.audioOutput == nil && s.Status().IsTerminal()) {
		return nil
	}
	if !s.Status().IsTerminal() {
		s.setStatus(ctx, StatusCancelled)
	}
	s.videoOutput = nil
	s.audioOutput = nil
	if err := s.Reader.CancelReading(ctx); err != nil {
		return fmt.Errorf("unable to cancel reading: %w", err)
	}
	return nil
}
