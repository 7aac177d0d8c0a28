package avplayer

import (
	"context"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/xaionaro-go/avplayer/audiosink"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
)

const (
	loopPollMinInterval = time.Millisecond
	loopPollMaxInterval = 50 * time.Millisecond
)

// runLoop plays the asset once, or until cancelled in loop mode.
func (p *Player) runLoop(
	ctx context.Context,
	run *playbackRun,
) {
	logger.Debugf(ctx, "runLoop")
	defer func() { logger.Debugf(ctx, "/runLoop: %v", run.err) }()
	for p.runOnce(ctx, run) {
		p.resetRunCounters()
	}
}

// runOnce performs a single read pass and reports whether another one
// should follow.
func (p *Player) runOnce(
	ctx context.Context,
	run *playbackRun,
) (_restart bool) {
	logger.Debugf(ctx, "runOnce")
	defer func() { logger.Debugf(ctx, "/runOnce: %v", _restart) }()

	session, err := demuxer.Open(ctx, p.Demuxer, p.Asset)
	if err != nil {
		p.fail(ctx, run, err)
		return false
	}
	if !p.setSession(ctx, run, session) {
		if err := session.Cancel(ctx); err != nil {
			logger.Errorf(ctx, "unable to cancel %s: %v", session, err)
		}
		return false
	}
	defer p.dropSession(ctx, session)

	sink, err := p.prepareOutputs(ctx, session)
	if err != nil {
		p.fail(ctx, run, demuxer.ErrReaderInit{Asset: p.Asset, Err: err})
		return false
	}

	if !p.transitionState(ctx, run, StateReading, StateStarting) {
		return false
	}
	if err := session.StartReading(ctx); err != nil {
		p.fail(ctx, run, err)
		return false
	}
	clock := newPlaybackClock(time.Now(), 0, sink)
	if sink != nil {
		p.startSink(ctx, sink)
	}
	conversionsBefore := p.Converter.Conversions()

	p.runWorkers(ctx, run, session, clock, sink)

	switch status := session.Status(); status {
	case demuxer.StatusCompleted:
		p.stats.PassesCompleted.Add(1)
		if p.Config.RunBenchmark {
			logger.Infof(ctx, "converted %d frames, average conversion time: %v",
				p.Converter.Conversions()-conversionsBefore, p.Converter.AverageConversionTime())
		}
		restart := p.Config.Loop && !run.isCancelled()
		if !restart {
			p.stopSink(ctx, sink)
		}
		completed := p.transitionState(ctx, run, StateCompleted, StateReading)
		if !restart {
			run.finished.Store(true)
		}
		if !completed {
			return false
		}
		if p.Config.OnFinish != nil {
			p.Config.OnFinish(ctx)
		}
		if !restart {
			return false
		}
		return p.transitionState(ctx, run, StateStarting, StateCompleted)
	case demuxer.StatusFailed:
		p.fail(ctx, run, demuxer.ErrRead{Err: session.Err()})
	default:
		logger.Debugf(ctx, "the read pass ended with session status %s", status)
		if !run.isCancelled() {
			// the context of Start is done
			p.stopSink(ctx, sink)
			p.transitionState(ctx, run, StateCancelled, StateStarting, StateReading)
			run.finished.Store(true)
		}
	}
	return false
}

func (p *Player) setSession(
	ctx context.Context,
	run *playbackRun,
	session *demuxer.Session,
) bool {
	return xsync.DoR1(ctx, &p.locker, func() bool {
		if run.isCancelled() {
			return false
		}
		p.session = session
		return true
	})
}

func (p *Player) dropSession(
	ctx context.Context,
	session *demuxer.Session,
) {
	p.locker.Do(ctx, func() {
		if p.session == session {
			p.session = nil
		}
	})
	if err := session.Cancel(ctx); err != nil {
		logger.Errorf(ctx, "unable to cancel %s: %v", session, err)
	}
}

// prepareOutputs returns the sink to forward audio to, or nil if the audio
// is not extracted in this pass.
func (p *Player) prepareOutputs(
	ctx context.Context,
	session *demuxer.Session,
) (audiosink.Sink, error) {
	if err := session.AddVideoOutput(ctx); err != nil {
		return nil, err
	}

	sink := p.Config.AudioSink
	if sink == nil || !p.Config.PlaySound {
		return nil, session.RemoveAudioOutput(ctx)
	}
	hasAudio, err := session.AddAudioOutput(ctx)
	if err != nil {
		return nil, err
	}
	if !hasAudio {
		return nil, nil
	}
	if err := sink.ActivateAudioTrack(ctx); err != nil {
		logger.Warnf(ctx, "unable to activate the audio track on %s, disabling the audio: %v", sink, err)
		return nil, session.RemoveAudioOutput(ctx)
	}
	return sink, nil
}

func (p *Player) startSink(
	ctx context.Context,
	sink audiosink.Sink,
) {
	if err := sink.SetVolume(ctx, p.Config.SoundVolume); err != nil {
		logger.Warnf(ctx, "unable to set the volume %f on %s: %v", p.Config.SoundVolume, sink, err)
	}
	if err := sink.Play(ctx); err != nil {
		logger.Warnf(ctx, "unable to start %s: %v", sink, err)
	}
}

// runWorkers runs the video loop and, if sink is set, the audio loop; it
// returns once both are done. The audio loop is launched by the video loop.
func (p *Player) runWorkers(
	ctx context.Context,
	run *playbackRun,
	session *demuxer.Session,
	clock *playbackClock,
	sink audiosink.Sink,
) {
	var wg sync.WaitGroup

	var launchAudio func()
	if sink != nil {
		wg.Add(1)
		var once sync.Once
		launchAudio = func() {
			once.Do(func() {
				observability.Go(ctx, func(ctx context.Context) {
					defer wg.Done()
					defer run.enterWorker()()
					err := p.audioLoop(ctx, run, session, sink)
					errmon.ObserveErrorCtx(ctx, err)
				})
			})
		}
	}

	wg.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer wg.Done()
		defer run.enterWorker()()
		if launchAudio != nil {
			defer launchAudio()
		}
		err := p.videoLoop(ctx, run, session, clock, launchAudio)
		errmon.ObserveErrorCtx(ctx, err)
	})

	wg.Wait()
}

func (p *Player) fail(
	ctx context.Context,
	run *playbackRun,
	err error,
) {
	if run.isCancelled() {
		logger.Debugf(ctx, "the run is cancelled, ignoring: %v", err)
		return
	}
	run.err = err
	p.stopSink(ctx, p.Config.AudioSink)
	failed := p.transitionState(ctx, run, StateFailed, StateStarting, StateReading)
	run.finished.Store(true)
	if !failed {
		return
	}
	logger.Errorf(ctx, "playback of %s failed: %v", p.Asset, err)
	if p.Config.OnFail != nil {
		p.Config.OnFail(ctx, err)
	}
}

// backoff paces the re-checks of a session whose track is already drained
// while the session still reports reading.
type backoff struct {
	interval time.Duration
}

func (b *backoff) Reset() {
	b.interval = 0
}

func (b *backoff) Wait(ctx context.Context) error {
	switch {
	case b.interval == 0:
		b.interval = loopPollMinInterval
	case b.interval < loopPollMaxInterval:
		b.interval *= 2
		if b.interval > loopPollMaxInterval {
			b.interval = loopPollMaxInterval
		}
	}
	return internal.Sleep(ctx, b.interval)
}
