package avplayer

import (
	"context"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/typing"
)

func (p *Player) videoLoop(
	ctx context.Context,
	run *playbackRun,
	session *demuxer.Session,
	clock *playbackClock,
	launchAudio func(),
) (_err error) {
	logger.Debugf(ctx, "videoLoop")
	defer func() { logger.Debugf(ctx, "/videoLoop: %v", _err) }()

	var (
		wait    backoff
		lastPTS typing.Optional[time.Duration]
	)
	for {
		if run.isCancelled() || ctx.Err() != nil {
			return nil
		}
		if session.Status() != demuxer.StatusReading {
			return nil
		}

		sample, err := session.PullNextVideoSample(ctx)
		if launchAudio != nil {
			launchAudio()
		}
		if err != nil {
			if demuxer.IsNotReading(err) {
				return nil
			}
			return err
		}

		if sample == nil {
			if !p.Config.Loop {
				return nil
			}
			// the session completes once the audio track is drained too
			if err := wait.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		wait.Reset()

		if lastPTS.IsSet() && sample.PTS < lastPTS.Get() {
			logger.Warnf(ctx, "dropping %s: its timestamp is before the previous one (%s)", sample, lastPTS.Get())
			p.stats.FramesDropped.Add(1)
			sample.Release()
			continue
		}
		lastPTS = typing.Opt(sample.PTS)

		if err := p.processVideoSample(ctx, run, sample, clock); err != nil {
			return err
		}
	}
}

func (p *Player) processVideoSample(
	ctx context.Context,
	run *playbackRun,
	sample *demuxer.VideoSample,
	clock *playbackClock,
) (_err error) {
	logger.Tracef(ctx, "processVideoSample(%s)", sample)
	defer func() { logger.Tracef(ctx, "/processVideoSample(%s): %v", sample, _err) }()
	defer sample.Release()

	p.currentTime.Store(sample.PTS)
	p.stats.VideoSamplesRead.Add(1)
	if p.Config.OnProgressChange != nil {
		p.Config.OnProgressChange(ctx, sample.PTS)
	}

	if p.Config.PlayAtActualSpeed {
		actualTimeOffset, source := clock.Offset(time.Now())
		xatomic.StorePointer(&p.pacingSource, &source)
		if delay := sample.PTS - actualTimeOffset; delay > 0 {
			logger.Tracef(ctx, "waiting %v for %s (pacing by %s)", delay, sample, source)
			if err := internal.Sleep(ctx, delay); err != nil {
				return nil
			}
		}
	}

	f, err := p.Converter.Convert(ctx, sample)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Errorf(ctx, "unable to convert %s, dropping it: %v", sample, err)
		p.stats.FramesDropped.Add(1)
		return nil
	}
	defer f.Release()

	if run.isCancelled() {
		return nil
	}
	if err := p.Targets.Deliver(ctx, f); err != nil {
		logger.Debugf(ctx, "some consumers failed to process %s: %v", f, err)
	}
	p.stats.FramesEmitted.Add(1)
	p.fps.Update(time.Now())
	return nil
}
