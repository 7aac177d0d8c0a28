package avplayer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avplayer/indicator"
	"github.com/xaionaro-go/xsync"
)

type Statistics struct {
	VideoSamplesRead      uint64
	FramesEmitted         uint64
	FramesDropped         uint64
	AudioBuffersForwarded uint64
	AudioBuffersDropped   uint64
	PassesCompleted       uint64

	CurrentTime           time.Duration
	AverageConversionTime time.Duration
	EmittedFPS            float64
	PacingSource          PacingSource
}

type commonsStatistics struct {
	VideoSamplesRead      atomic.Uint64
	FramesEmitted         atomic.Uint64
	FramesDropped         atomic.Uint64
	AudioBuffersForwarded atomic.Uint64
	AudioBuffersDropped   atomic.Uint64
	PassesCompleted       atomic.Uint64
}

func (p *Player) GetStats() *Statistics {
	return ptr(Statistics{
		VideoSamplesRead:      p.stats.VideoSamplesRead.Load(),
		FramesEmitted:         p.stats.FramesEmitted.Load(),
		FramesDropped:         p.stats.FramesDropped.Load(),
		AudioBuffersForwarded: p.stats.AudioBuffersForwarded.Load(),
		AudioBuffersDropped:   p.stats.AudioBuffersDropped.Load(),
		PassesCompleted:       p.stats.PassesCompleted.Load(),
		CurrentTime:           p.CurrentTime(),
		AverageConversionTime: p.Converter.AverageConversionTime(),
		EmittedFPS:            p.fps.FPS(),
		PacingSource:          p.PacingSource(),
	})
}

// PacingSource is what the most recent emission was paced by.
func (p *Player) PacingSource() PacingSource {
	source := xatomic.LoadPointer(&p.pacingSource)
	if source == nil {
		return PacingSourceNone
	}
	return *source
}

// fpsMeter smooths the rate frames are emitted at.
type fpsMeter struct {
	locker   xsync.Mutex
	lastTS   time.Time
	smoother *indicator.MAMA[float64]
}

func newFPSMeter() *fpsMeter {
	return &fpsMeter{
		smoother: indicator.NewMAMA[float64](60, 0.1, 0.01),
	}
}

func (m *fpsMeter) Update(now time.Time) {
	m.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		defer func() { m.lastTS = now }()
		if m.lastTS.IsZero() {
			return
		}
		interval := now.Sub(m.lastTS)
		if interval <= 0 {
			return
		}
		m.smoother.Update(float64(time.Second) / float64(interval))
	})
}

// Reset forgets the previous emission, so a pause is not counted as a slow frame.
func (m *fpsMeter) Reset() {
	m.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		m.lastTS = time.Time{}
	})
}

func (m *fpsMeter) FPS() float64 {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &m.locker, m.smoother.Value)
}
