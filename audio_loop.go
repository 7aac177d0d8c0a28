package avplayer

import (
	"context"

	"github.com/xaionaro-go/avplayer/audiosink"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/logger"
)

func (p *Player) audioLoop(
	ctx context.Context,
	run *playbackRun,
	session *demuxer.Session,
	sink audiosink.Sink,
) (_err error) {
	logger.Debugf(ctx, "audioLoop")
	defer func() { logger.Debugf(ctx, "/audioLoop: %v", _err) }()

	var (
		wait     backoff
		finished bool
	)
	for {
		if run.isCancelled() || ctx.Err() != nil {
			return nil
		}
		if session.Status() != demuxer.StatusReading {
			return nil
		}

		sample, err := session.PullNextAudioSample(ctx)
		if err != nil {
			if demuxer.IsNotReading(err) {
				return nil
			}
			return err
		}

		if sample == nil {
			if !finished {
				finished = true
				if err := sink.MarkAudioAsFinished(ctx); err != nil {
					logger.Warnf(ctx, "unable to mark the audio as finished on %s: %v", sink, err)
				}
			}
			if !p.Config.Loop {
				return nil
			}
			if err := wait.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		wait.Reset()

		if err := sink.ProcessAudioBuffer(ctx, sample); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnf(ctx, "%s rejected %s: %v", sink, sample, err)
			p.stats.AudioBuffersDropped.Add(1)
			continue
		}
		p.stats.AudioBuffersForwarded.Add(1)
	}
}
