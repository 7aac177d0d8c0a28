// option.go defines functional options for configuring the player.

package avplayer

import (
	"context"
	"time"

	"github.com/xaionaro-go/avplayer/audiosink"
	"github.com/xaionaro-go/avplayer/colorconv"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
)

type Config struct {
	// PlayAtActualSpeed throttles decoding to the playback clock; otherwise
	// frames are emitted as fast as the converter allows.
	PlayAtActualSpeed bool
	Loop              bool
	PlaySound         bool
	SoundVolume       float64

	// AudioSink receives the decoded audio; audio is not extracted without one.
	AudioSink audiosink.Sink

	ColorMatrix gpu.ColorMatrix
	Orientation frame.Orientation

	// RunBenchmark logs the average conversion time when a pass completes.
	RunBenchmark bool

	OnProgressChange func(ctx context.Context, currentTime time.Duration)
	OnFinish         func(ctx context.Context)
	OnFail           func(ctx context.Context, err error)
}

func DefaultConfig() Config {
	return Config{
		PlayAtActualSpeed: true,
		PlaySound:         true,
		SoundVolume:       1,
		ColorMatrix:       colorconv.DefaultMatrix,
		Orientation:       frame.OrientationUp,
	}
}

type Option interface {
	apply(*Config)
}

type Options []Option

func (s Options) apply(cfg *Config) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s Options) Config() Config {
	cfg := DefaultConfig()
	s.apply(&cfg)
	return cfg
}

type OptionPlayAtActualSpeed bool

func (opt OptionPlayAtActualSpeed) apply(cfg *Config) {
	cfg.PlayAtActualSpeed = bool(opt)
}

type OptionLoop bool

func (opt OptionLoop) apply(cfg *Config) {
	cfg.Loop = bool(opt)
}

type OptionPlaySound bool

func (opt OptionPlaySound) apply(cfg *Config) {
	cfg.PlaySound = bool(opt)
}

type OptionSoundVolume float64

func (opt OptionSoundVolume) apply(cfg *Config) {
	cfg.SoundVolume = float64(opt)
}

type OptionRunBenchmark bool

func (opt OptionRunBenchmark) apply(cfg *Config) {
	cfg.RunBenchmark = bool(opt)
}

type OptionOrientation frame.Orientation

func (opt OptionOrientation) apply(cfg *Config) {
	cfg.Orientation = frame.Orientation(opt)
}

type OptionColorMatrix gpu.ColorMatrix

func (opt OptionColorMatrix) apply(cfg *Config) {
	cfg.ColorMatrix = gpu.ColorMatrix(opt)
}

type OptionAudioSinkValue struct {
	audiosink.Sink
}

func (opt OptionAudioSinkValue) apply(cfg *Config) {
	cfg.AudioSink = opt.Sink
}

func OptionAudioSink(sink audiosink.Sink) OptionAudioSinkValue {
	return OptionAudioSinkValue{sink}
}

type OptionOnProgressChange func(ctx context.Context, currentTime time.Duration)

func (opt OptionOnProgressChange) apply(cfg *Config) {
	cfg.OnProgressChange = opt
}

type OptionOnFinish func(ctx context.Context)

func (opt OptionOnFinish) apply(cfg *Config) {
	cfg.OnFinish = opt
}

type OptionOnFail func(ctx context.Context, err error)

func (opt OptionOnFail) apply(cfg *Config) {
	cfg.OnFail = opt
}
