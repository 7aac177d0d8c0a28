package avplayer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/audiosink/nullsink"
	"github.com/xaionaro-go/avplayer/demuxer"
)

func silence(d time.Duration) *demuxer.AudioSample {
	const sampleRate = 8000
	return &demuxer.AudioSample{
		SampleRate: sampleRate,
		Channels:   1,
		Planes:     [][]float32{make([]float32, int(d.Seconds()*sampleRate))},
	}
}

func TestPlaybackClock(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	c := newPlaybackClock(now, 2*time.Second, nil)
	offset, source := c.Offset(now.Add(500 * time.Millisecond))
	require.Equal(t, 2500*time.Millisecond, offset)
	require.Equal(t, PacingSourceWallClock, source)

	sink := nullsink.New()
	sink.MaxBufferAhead = 2 * time.Second
	require.NoError(t, sink.ActivateAudioTrack(ctx))
	c = newPlaybackClock(now, 0, sink)

	// playing, but nothing to play yet
	require.NoError(t, sink.Play(ctx))
	_, source = c.Offset(now)
	require.Equal(t, PacingSourceWallClock, source)

	require.NoError(t, sink.ProcessAudioBuffer(ctx, silence(time.Second)))
	offset, source = c.Offset(now.Add(time.Hour))
	require.Equal(t, PacingSourceAudio, source)
	require.LessOrEqual(t, offset, time.Second)
}

func TestBackoff(t *testing.T) {
	ctx := context.Background()
	var b backoff
	var intervals []time.Duration
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Wait(ctx))
		intervals = append(intervals, b.interval)
	}
	require.Equal(t, loopPollMinInterval, intervals[0])
	require.Equal(t, 2*loopPollMinInterval, intervals[1])
	require.Equal(t, loopPollMaxInterval, intervals[len(intervals)-1])

	b.Reset()
	cancelledCtx, cancelFn := context.WithCancel(ctx)
	cancelFn()
	require.ErrorIs(t, b.Wait(cancelledCtx), context.Canceled)
	require.Equal(t, loopPollMinInterval, b.interval)
}
