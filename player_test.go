package avplayer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer"
	"github.com/xaionaro-go/avplayer/demuxer/synthetic"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/gpu/software"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/observability"
	"go.uber.org/atomic"
)

func testCtx(t *testing.T) context.Context {
	runtime.DefaultCallerPCFilter = observability.CallerPCFilter(runtime.DefaultCallerPCFilter)
	l := logrus.Default().WithLevel(logger.LevelInfo)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.SetDefault(func() logger.Logger {
		return l
	})
	ctx, cancelFn := context.WithCancel(ctx)
	t.Cleanup(func() {
		cancelFn()
		belt.Flush(ctx)
	})
	return ctx
}

type collector struct {
	locker    sync.Mutex
	startedAt time.Time
	pts       []time.Duration
	delays    []time.Duration
	closed    bool
	late      int
}

func (c *collector) String() string {
	return "collector"
}

func (c *collector) ConsumeFrame(ctx context.Context, f *frame.Converted) error {
	defer f.Release()
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.closed {
		c.late++
		return nil
	}
	c.pts = append(c.pts, f.PTS)
	c.delays = append(c.delays, time.Since(c.startedAt)-f.PTS)
	if f.TimingStyle != frame.TimingStyleVideo {
		return fmt.Errorf("unexpected timing style %s", f.TimingStyle)
	}
	return nil
}

func (c *collector) Close() {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.closed = true
}

func (c *collector) PTSs() []time.Duration {
	c.locker.Lock()
	defer c.locker.Unlock()
	return append([]time.Duration{}, c.pts...)
}

type callbacks struct {
	locker   sync.Mutex
	progress []time.Duration
	finishes atomic.Int64
	failures []error
}

func newCallbacks() *callbacks {
	return &callbacks{}
}

func (c *callbacks) Options() []avplayer.Option {
	return []avplayer.Option{
		avplayer.OptionOnProgressChange(func(ctx context.Context, currentTime time.Duration) {
			c.locker.Lock()
			defer c.locker.Unlock()
			c.progress = append(c.progress, currentTime)
		}),
		avplayer.OptionOnFinish(func(ctx context.Context) {
			c.finishes.Inc()
		}),
		avplayer.OptionOnFail(func(ctx context.Context, err error) {
			c.locker.Lock()
			defer c.locker.Unlock()
			c.failures = append(c.failures, err)
		}),
	}
}

func (c *callbacks) Progress() []time.Duration {
	c.locker.Lock()
	defer c.locker.Unlock()
	return append([]time.Duration{}, c.progress...)
}

func (c *callbacks) Failures() []error {
	c.locker.Lock()
	defer c.locker.Unlock()
	return append([]error{}, c.failures...)
}

type testPlayer struct {
	*avplayer.Player
	Pipeline  *software.Pipeline
	Demuxer   *synthetic.Demuxer
	Asset     *synthetic.Asset
	Collector *collector
	Callbacks *callbacks
}

func newTestPlayer(
	ctx context.Context,
	t *testing.T,
	cfg synthetic.Config,
	opts ...avplayer.Option,
) *testPlayer {
	executor := gpu.NewExecutor(ctx)
	t.Cleanup(func() { executor.Close(context.Background()) })

	tp := &testPlayer{
		Pipeline:  software.New(),
		Demuxer:   synthetic.New(),
		Asset:     synthetic.NewAsset(cfg),
		Collector: &collector{},
		Callbacks: newCallbacks(),
	}
	opts = append(tp.Callbacks.Options(), opts...)
	tp.Player = avplayer.New(tp.Demuxer, tp.Asset, tp.Pipeline, executor, opts...)
	tp.Targets.Add(ctx, tp.Collector)
	return tp
}

func (tp *testPlayer) Start(ctx context.Context, t *testing.T) {
	tp.Collector.locker.Lock()
	tp.Collector.startedAt = time.Now()
	tp.Collector.locker.Unlock()
	require.NoError(t, tp.Player.Start(ctx))
}

func videoOnly(duration time.Duration, fps float64) synthetic.Config {
	cfg := synthetic.DefaultConfig()
	cfg.Duration = duration
	cfg.FrameRate = fps
	return cfg
}

func withAudio(cfg synthetic.Config) synthetic.Config {
	audioCfg := synthetic.DefaultAudioConfig()
	cfg.Audio = &audioCfg
	return cfg
}

func requireNonDecreasing(t *testing.T, values []time.Duration) {
	for idx := 1; idx < len(values); idx++ {
		require.GreaterOrEqual(t, values[idx], values[idx-1], "at %d", idx)
	}
}

func TestPlayerCurrentTimeReachesDuration(t *testing.T) {
	ctx := testCtx(t)

	tp := newTestPlayer(ctx, t, videoOnly(time.Second, 30), avplayer.OptionPlayAtActualSpeed(false))
	tp.Start(ctx, t)
	require.NoError(t, tp.Wait(ctx))

	require.Equal(t, avplayer.StateCompleted, tp.State())
	require.EqualValues(t, 1, tp.Callbacks.finishes.Load())
	require.Empty(t, tp.Callbacks.Failures())

	progress := tp.Callbacks.Progress()
	require.Len(t, progress, tp.Asset.FrameCount())
	requireNonDecreasing(t, progress)
	requireNonDecreasing(t, tp.Collector.PTSs())
	require.Len(t, tp.Collector.PTSs(), tp.Asset.FrameCount())

	require.InDelta(t, float64(time.Second), float64(tp.CurrentTime()), float64(tp.Asset.FrameDuration()+time.Millisecond))

	stats := tp.GetStats()
	require.EqualValues(t, tp.Asset.FrameCount(), stats.VideoSamplesRead)
	require.EqualValues(t, tp.Asset.FrameCount(), stats.FramesEmitted)
	require.Zero(t, stats.FramesDropped)
	require.EqualValues(t, 1, stats.PassesCompleted)
	require.Equal(t, avplayer.PacingSourceNone, stats.PacingSource)

	require.Zero(t, tp.Pipeline.Outstanding())
}

func TestPlayerFastDrain(t *testing.T) {
	ctx := testCtx(t)

	tp := newTestPlayer(ctx, t, videoOnly(10*time.Second, 30), avplayer.OptionPlayAtActualSpeed(false))
	startTS := time.Now()
	tp.Start(ctx, t)

	waitCtx, cancelFn := context.WithTimeout(ctx, 20*time.Second)
	defer cancelFn()
	require.NoError(t, tp.Wait(waitCtx))
	require.Less(t, time.Since(startTS), 10*time.Second)

	require.EqualValues(t, 1, tp.Callbacks.finishes.Load())
	require.InDelta(t, float64(10*time.Second), float64(tp.CurrentTime()), float64(tp.Asset.FrameDuration()+time.Millisecond))
	require.EqualValues(t, 300, tp.GetStats().FramesEmitted)
}

func TestPlayerLoop(t *testing.T) {
	ctx := testCtx(t)

	tp := newTestPlayer(ctx, t, videoOnly(200*time.Millisecond, 25),
		avplayer.OptionPlayAtActualSpeed(false),
		avplayer.OptionLoop(true),
	)
	tp.Start(ctx, t)

	require.Eventually(t, func() bool {
		return tp.Callbacks.finishes.Load() >= 3
	}, 10*time.Second, time.Millisecond)

	require.NoError(t, tp.Cancel(ctx))
	require.Equal(t, avplayer.StateCancelled, tp.State())
	require.NoError(t, tp.Cancel(ctx))
	require.NoError(t, tp.Wait(ctx))
	require.Empty(t, tp.Callbacks.Failures())

	// currentTime climbs, resets to zero and climbs again
	progress := tp.Callbacks.Progress()
	resets := 0
	for idx := 1; idx < len(progress); idx++ {
		if progress[idx] < progress[idx-1] {
			require.Zero(t, progress[idx])
			resets++
		}
	}
	require.GreaterOrEqual(t, resets, 2)
	require.GreaterOrEqual(t, tp.GetStats().PassesCompleted, uint64(3))
	require.GreaterOrEqual(t, tp.Demuxer.SessionsOpened(), uint64(3))
}

func TestPlayerPacing(t *testing.T) {
	ctx := testCtx(t)

	tp := newTestPlayer(ctx, t, videoOnly(500*time.Millisecond, 20), avplayer.OptionPlayAtActualSpeed(true))
	tp.Start(ctx, t)
	require.NoError(t, tp.Wait(ctx))

	tp.Collector.locker.Lock()
	defer tp.Collector.locker.Unlock()
	require.Len(t, tp.Collector.delays, 10)
	for idx, delay := range tp.Collector.delays {
		require.GreaterOrEqual(t, delay, time.Duration(0), "frame %d was delivered ahead of schedule", idx)
		require.LessOrEqual(t, delay, 100*time.Millisecond, "frame %d was delivered too late", idx)
	}
	require.Equal(t, avplayer.PacingSourceWallClock, tp.GetStats().PacingSource)
}

func TestPlayerStartThenCancel(t *testing.T) {
	ctx := testCtx(t)

	for i := 0; i < 20; i++ {
		cfg := withAudio(videoOnly(time.Minute, 30))
		cfg.PullDelay = time.Millisecond
		tp := newTestPlayer(ctx, t, cfg,
			avplayer.OptionPlayAtActualSpeed(false),
			avplayer.OptionAudioSink(newMockSink(0)),
		)
		tp.Start(ctx, t)
		if i%2 == 1 {
			time.Sleep(time.Duration(i) * time.Millisecond)
		}

		cancelCtx, cancelFn := context.WithTimeout(ctx, 5*time.Second)
		require.NoError(t, tp.Cancel(cancelCtx))
		cancelFn()
		tp.Collector.Close()
		require.Equal(t, avplayer.StateCancelled, tp.State())

		time.Sleep(5 * time.Millisecond)
		tp.Collector.locker.Lock()
		require.Zero(t, tp.Collector.late)
		tp.Collector.locker.Unlock()
		require.Zero(t, tp.Callbacks.finishes.Load())
		require.Empty(t, tp.Callbacks.Failures())
	}
}

func TestPlayerCancelIdempotent(t *testing.T) {
	ctx := testCtx(t)

	tp := newTestPlayer(ctx, t, videoOnly(100*time.Millisecond, 50), avplayer.OptionPlayAtActualSpeed(true))
	require.NoError(t, tp.Cancel(ctx))
	require.NoError(t, tp.Cancel(ctx))
	require.Equal(t, avplayer.StateIdle, tp.State())

	tp.Start(ctx, t)
	require.ErrorIs(t, tp.Player.Start(ctx), avplayer.ErrAlreadyStarted)
	require.NoError(t, tp.Cancel(ctx))
	require.NoError(t, tp.Cancel(ctx))

	tp.Start(ctx, t)
	require.NoError(t, tp.Wait(ctx))
	require.Equal(t, avplayer.StateCompleted, tp.State())
	require.EqualValues(t, 1, tp.Callbacks.finishes.Load())
	require.NoError(t, tp.Cancel(ctx))
	require.Equal(t, avplayer.StateCompleted, tp.State())
}

func TestPlayerAudioMasterPacing(t *testing.T) {
	ctx := testCtx(t)

	t.Run("audio_is_playing", func(t *testing.T) {
		// the sink claims playback is an hour in, so pacing never waits
		sink := newMockSink(time.Hour)
		tp := newTestPlayer(ctx, t, withAudio(videoOnly(5*time.Second, 30)),
			avplayer.OptionPlayAtActualSpeed(true),
			avplayer.OptionPlaySound(true),
			avplayer.OptionSoundVolume(0.5),
			avplayer.OptionAudioSink(sink),
		)
		startTS := time.Now()
		tp.Start(ctx, t)
		require.NoError(t, tp.Wait(ctx))
		require.Less(t, time.Since(startTS), 3*time.Second)

		require.Equal(t, avplayer.PacingSourceAudio, tp.GetStats().PacingSource)
		require.EqualValues(t, 1, tp.Callbacks.finishes.Load())
		require.EqualValues(t, 1, sink.activations.Load())
		require.EqualValues(t, 1, sink.finishMarks.Load())
		require.NotZero(t, sink.buffers.Load())
		require.EqualValues(t, sink.buffers.Load(), tp.GetStats().AudioBuffersForwarded)
		require.Zero(t, sink.unreleased.Load())
		require.False(t, sink.playing.Load())
		require.Equal(t, 0.5, sink.volume.Load())
	})

	t.Run("audio_is_not_producing_sound", func(t *testing.T) {
		sink := newMockSink(time.Hour)
		sink.silent = true
		tp := newTestPlayer(ctx, t, withAudio(videoOnly(300*time.Millisecond, 20)),
			avplayer.OptionPlayAtActualSpeed(true),
			avplayer.OptionAudioSink(sink),
		)
		tp.Start(ctx, t)
		require.NoError(t, tp.Wait(ctx))
		require.Equal(t, avplayer.PacingSourceWallClock, tp.GetStats().PacingSource)
	})

	t.Run("sound_is_disabled", func(t *testing.T) {
		sink := newMockSink(time.Hour)
		tp := newTestPlayer(ctx, t, withAudio(videoOnly(300*time.Millisecond, 20)),
			avplayer.OptionPlayAtActualSpeed(false),
			avplayer.OptionPlaySound(false),
			avplayer.OptionAudioSink(sink),
		)
		tp.Start(ctx, t)
		require.NoError(t, tp.Wait(ctx))
		require.Zero(t, sink.activations.Load())
		require.Zero(t, sink.buffers.Load())
		require.EqualValues(t, 1, tp.Callbacks.finishes.Load())
	})
}

func TestPlayerFailures(t *testing.T) {
	ctx := testCtx(t)
	errInjected := errors.New("injected")

	for _, tc := range []struct {
		name   string
		setup  func(cfg *synthetic.Config)
		target any
		frames int
	}{
		{
			name:   "load",
			setup:  func(cfg *synthetic.Config) { cfg.LoadError = errInjected },
			target: &avplayer.ErrLoad{},
		},
		{
			name:   "reader_init",
			setup:  func(cfg *synthetic.Config) { cfg.ReaderInitError = errInjected },
			target: &avplayer.ErrReaderInit{},
		},
		{
			name:   "start_reading",
			setup:  func(cfg *synthetic.Config) { cfg.StartReadingError = errInjected },
			target: &avplayer.ErrStartReading{},
		},
		{
			name: "read",
			setup: func(cfg *synthetic.Config) {
				cfg.PullError = errInjected
				cfg.PullErrorAfter = 3
			},
			target: &avplayer.ErrRead{},
			frames: 3,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := videoOnly(time.Second, 30)
			tc.setup(&cfg)
			tp := newTestPlayer(ctx, t, cfg, avplayer.OptionPlayAtActualSpeed(false))
			tp.Start(ctx, t)

			err := tp.Wait(ctx)
			require.ErrorAs(t, err, tc.target)
			require.ErrorIs(t, err, errInjected)
			require.Equal(t, avplayer.StateFailed, tp.State())

			failures := tp.Callbacks.Failures()
			require.Len(t, failures, 1)
			require.ErrorAs(t, failures[0], tc.target)
			require.Zero(t, tp.Callbacks.finishes.Load())
			require.Len(t, tp.Collector.PTSs(), tc.frames)

			// the failure is not retried, but an explicit restart is allowed
			require.NoError(t, tp.Player.Start(ctx))
			require.Error(t, tp.Wait(ctx))
			require.Len(t, tp.Callbacks.Failures(), 2)
		})
	}
}

func TestPlayerLoopWithAudio(t *testing.T) {
	ctx := testCtx(t)

	sink := newMockSink(time.Hour)
	tp := newTestPlayer(ctx, t, withAudio(videoOnly(200*time.Millisecond, 25)),
		avplayer.OptionPlayAtActualSpeed(false),
		avplayer.OptionLoop(true),
		avplayer.OptionAudioSink(sink),
	)

	var (
		locker            sync.Mutex
		pullsAtActivation uint64
		bufferedThisPass  bool
		audioBeforeVideo  int
	)
	sink.onActivate = func() {
		locker.Lock()
		defer locker.Unlock()
		pullsAtActivation = tp.Asset.VideoSamplesPulled()
		bufferedThisPass = false
	}
	sink.onBuffer = func() {
		locker.Lock()
		defer locker.Unlock()
		if bufferedThisPass {
			return
		}
		bufferedThisPass = true
		if tp.Asset.VideoSamplesPulled() <= pullsAtActivation {
			audioBeforeVideo++
		}
	}
	tp.Start(ctx, t)

	require.Eventually(t, func() bool {
		return tp.Callbacks.finishes.Load() >= 3
	}, 10*time.Second, time.Millisecond)

	require.NoError(t, tp.Cancel(ctx))
	require.NoError(t, tp.Wait(ctx))
	require.Equal(t, avplayer.StateCancelled, tp.State())
	require.Empty(t, tp.Callbacks.Failures())

	finishes := tp.Callbacks.finishes.Load()
	activations := sink.activations.Load()
	require.GreaterOrEqual(t, finishes, int64(3))
	// the pass that was cancelled may or may not have activated the track yet
	require.Contains(t, []int64{finishes, finishes + 1}, activations)
	require.GreaterOrEqual(t, sink.finishMarks.Load(), finishes)
	require.NotZero(t, sink.buffers.Load())
	require.Zero(t, sink.unreleased.Load())
	require.False(t, sink.playing.Load())

	locker.Lock()
	require.Zero(t, audioBeforeVideo, "the audio was forwarded before the first video pull of a pass")
	locker.Unlock()

	progress := tp.Callbacks.Progress()
	resets := 0
	for idx := 1; idx < len(progress); idx++ {
		if progress[idx] < progress[idx-1] {
			require.Zero(t, progress[idx])
			resets++
		}
	}
	require.GreaterOrEqual(t, resets, 2)
}

func TestPlayerCancelFromCallback(t *testing.T) {
	ctx := testCtx(t)

	t.Run("on_finish", func(t *testing.T) {
		var tp *testPlayer
		finishes := atomic.NewInt64(0)
		cancelled := make(chan error, 1)
		tp = newTestPlayer(ctx, t, videoOnly(100*time.Millisecond, 25),
			avplayer.OptionPlayAtActualSpeed(false),
			avplayer.OptionLoop(true),
			avplayer.OptionOnFinish(func(ctx context.Context) {
				if finishes.Inc() == 2 {
					cancelled <- tp.Cancel(context.Background())
				}
			}),
		)
		tp.Start(ctx, t)

		select {
		case err := <-cancelled:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "Cancel called from OnFinish did not return")
		}
		waitCtx, cancelFn := context.WithTimeout(ctx, 5*time.Second)
		defer cancelFn()
		require.NoError(t, tp.Wait(waitCtx))
		require.Equal(t, avplayer.StateCancelled, tp.State())
		require.EqualValues(t, 2, finishes.Load())
		require.Empty(t, tp.Callbacks.Failures())
	})

	t.Run("on_progress_change", func(t *testing.T) {
		const cancelAt = 100 * time.Millisecond
		var (
			tp   *testPlayer
			once sync.Once
		)
		cancelled := make(chan error, 1)
		tp = newTestPlayer(ctx, t, withAudio(videoOnly(time.Minute, 30)),
			avplayer.OptionPlayAtActualSpeed(false),
			avplayer.OptionAudioSink(newMockSink(0)),
			avplayer.OptionOnProgressChange(func(ctx context.Context, currentTime time.Duration) {
				if currentTime < cancelAt {
					return
				}
				once.Do(func() {
					cancelled <- tp.Cancel(context.Background())
				})
			}),
		)
		tp.Start(ctx, t)

		select {
		case err := <-cancelled:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "Cancel called from OnProgressChange did not return")
		}
		waitCtx, cancelFn := context.WithTimeout(ctx, 5*time.Second)
		defer cancelFn()
		require.NoError(t, tp.Wait(waitCtx))
		require.Equal(t, avplayer.StateCancelled, tp.State())
		require.Zero(t, tp.Callbacks.finishes.Load())
		for _, pts := range tp.Collector.PTSs() {
			require.Less(t, pts, cancelAt)
		}
	})
}
