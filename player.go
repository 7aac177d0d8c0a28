package avplayer

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/phuslu/goid"
	"github.com/xaionaro-go/avplayer/audiosink"
	"github.com/xaionaro-go/avplayer/colorconv"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type runCtxKey struct{}

// Player plays one asset into Targets.
type Player struct {
	Config    Config
	Demuxer   demuxer.Demuxer
	Asset     demuxer.Asset
	Targets   frame.Targets
	Converter *colorconv.Converter

	locker   xsync.Mutex
	session  *demuxer.Session
	run      *playbackRun
	runCount uint64

	// state keeps the id of the run that set it in the upper bits, see packState
	state        atomic.Uint64
	currentTime  atomic.Duration
	pacingSource *PacingSource
	stats        commonsStatistics
	fps          *fpsMeter
}

// New creates a player; all GPU work is submitted through executor.
func New(
	dmx demuxer.Demuxer,
	asset demuxer.Asset,
	pipeline gpu.Pipeline,
	executor *gpu.Executor,
	opts ...Option,
) *Player {
	cfg := Options(opts).Config()
	return &Player{
		Config:    cfg,
		Demuxer:   dmx,
		Asset:     asset,
		Converter: colorconv.New(pipeline, executor, cfg.ColorMatrix, cfg.Orientation),
		fps:       newFPSMeter(),
	}
}

func (p *Player) String() string {
	return fmt.Sprintf("Player(%s)", p.Asset)
}

func (p *Player) State() State {
	_, state := unpackState(p.state.Load())
	return state
}

func packState(runID uint64, state State) uint64 {
	return runID<<8 | uint64(uint8(state))
}

func unpackState(v uint64) (uint64, State) {
	return v >> 8, State(v & 0xff)
}

// CurrentTime is the timestamp of the most recently read video sample.
func (p *Player) CurrentTime() time.Duration {
	return p.currentTime.Load()
}

// transitionState moves the state set by run; it fails once another run
// has been started.
func (p *Player) transitionState(
	ctx context.Context,
	run *playbackRun,
	to State,
	from ...State,
) bool {
	for {
		old := p.state.Load()
		runID, cur := unpackState(old)
		if runID != run.id {
			logger.Debugf(ctx, "state transition -> %s belongs to a stale run #%d (current: #%d)", to, run.id, runID)
			return false
		}
		allowed := false
		for _, s := range from {
			if cur == s {
				allowed = true
				break
			}
		}
		if !allowed {
			logger.Debugf(ctx, "state transition %s -> %s is not allowed", cur, to)
			return false
		}
		if p.state.CompareAndSwap(old, packState(run.id, to)) {
			logger.Debugf(ctx, "state %s -> %s", cur, to)
			return true
		}
	}
}

type playbackRun struct {
	id        uint64
	cancelFn  context.CancelFunc
	cancelled atomic.Bool
	finished  atomic.Bool
	done      chan struct{}
	err       error

	// workers are the ids of the goroutines serving the run
	workers xsync.Map[int64, struct{}]
}

// enterWorker marks the current goroutine as serving the run until the
// returned function is called.
func (r *playbackRun) enterWorker() func() {
	id := goid.Goid()
	r.workers.Store(id, struct{}{})
	return func() {
		r.workers.Delete(id)
	}
}

func (r *playbackRun) isWorker() bool {
	_, ok := r.workers.Load(goid.Goid())
	return ok
}

func (r *playbackRun) cancel() {
	r.cancelled.Store(true)
	r.cancelFn()
}

func (r *playbackRun) isCancelled() bool {
	return r.cancelled.Load()
}

// isStopped reports whether the run will not emit anything anymore.
func (r *playbackRun) isStopped() bool {
	return r.cancelled.Load() || r.finished.Load()
}

func runFromCtx(ctx context.Context) *playbackRun {
	run, _ := ctx.Value(runCtxKey{}).(*playbackRun)
	return run
}

// Start launches a playback run. ctx bounds the lifetime of the run.
func (p *Player) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()
	return xsync.DoA1R1(ctx, &p.locker, p.startLocked, ctx)
}

func (p *Player) startLocked(ctx context.Context) error {
	if p.run != nil && !p.run.isStopped() {
		return ErrAlreadyStarted
	}

	p.runCount++
	ctx, cancelFn := context.WithCancel(ctx)
	run := &playbackRun{
		id:       p.runCount,
		cancelFn: cancelFn,
		done:     make(chan struct{}),
	}
	ctx = context.WithValue(ctx, runCtxKey{}, run)
	ctx = belt.WithField(ctx, "playback_run", run.id)

	p.run = run
	p.resetRunCounters()
	p.state.Store(packState(run.id, StateStarting))

	observability.Go(ctx, func(ctx context.Context) {
		defer close(run.done)
		defer cancelFn()
		defer run.enterWorker()()
		p.runLoop(ctx, run)
	})
	return nil
}

func (p *Player) resetRunCounters() {
	p.currentTime.Store(0)
	p.fps.Reset()
}

// Cancel stops the current run, if any, and waits for its workers to exit.
// When called from a goroutine of the run itself (a callback, a frame
// consumer or the audio sink) it does not wait.
func (p *Player) Cancel(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Cancel")
	defer func() { logger.Debugf(ctx, "/Cancel: %v", _err) }()

	run, session := xsync.DoR2(ctx, &p.locker, func() (*playbackRun, *demuxer.Session) {
		run, session := p.run, p.session
		p.session = nil
		if run != nil {
			run.cancel()
		}
		return run, session
	})
	if run == nil {
		return nil
	}

	from := []State{StateStarting, StateReading}
	if p.Config.Loop {
		from = append(from, StateCompleted)
	}
	p.transitionState(ctx, run, StateCancelled, from...)

	if session != nil {
		if err := session.Cancel(ctx); err != nil {
			return fmt.Errorf("unable to cancel the session: %w", err)
		}
	}
	p.stopSink(ctx, p.Config.AudioSink)

	if runFromCtx(ctx) == run || run.isWorker() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-run.done:
		return nil
	}
}

// Wait blocks until the current run exits and returns its failure, if any.
func (p *Player) Wait(ctx context.Context) error {
	run := xsync.DoR1(ctx, &p.locker, func() *playbackRun {
		return p.run
	})
	if run == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-run.done:
		return run.err
	}
}

func (p *Player) stopSink(ctx context.Context, sink audiosink.Sink) {
	if sink == nil {
		return
	}
	if err := sink.Stop(ctx); err != nil {
		logger.Warnf(ctx, "unable to stop %s: %v", sink, err)
	}
}
