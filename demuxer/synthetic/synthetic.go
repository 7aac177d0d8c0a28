// Package synthetic implements a demuxer that generates a solid-color video
// track and an optional sine-tone audio track instead of decoding a file.
//
// It is used as a test source and by `avplay --synthetic`.
package synthetic

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"sync/atomic"
	"time"

	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/logger"
)

type AudioConfig struct {
	SampleRate   int
	Channels     int
	ChunkSamples int
	ToneHz       float64
}

type Config struct {
	Width     int
	Height    int
	FrameRate float64
	Duration  time.Duration
	Color     color.RGBA

	// Audio is nil for a video-only asset.
	Audio *AudioConfig

	// Failure injection.
	LoadError         error
	ReaderInitError   error
	StartReadingError error
	PullError         error
	PullErrorAfter    int

	// PullDelay emulates the cost of decoding a single sample.
	PullDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Width:     64,
		Height:    36,
		FrameRate: 30,
		Duration:  time.Second,
		Color:     color.RGBA{R: 0x20, G: 0x80, B: 0xc0, A: 0xff},
	}
}

func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:   48000,
		Channels:     2,
		ChunkSamples: 1024,
		ToneHz:       440,
	}
}

type Track struct {
	mediaType demuxer.MediaType
	duration  time.Duration
}

var _ demuxer.Track = (*Track)(nil)

func (t *Track) String() string {
	return fmt.Sprintf("SyntheticTrack(%s:%s)", t.mediaType, t.duration)
}

func (t *Track) MediaType() demuxer.MediaType {
	return t.mediaType
}

func (t *Track) Duration() time.Duration {
	return t.duration
}

type Asset struct {
	Config Config

	loaded     atomic.Bool
	videoPulls atomic.Uint64
	video      *Track
	audio      *Track
}

var _ demuxer.Asset = (*Asset)(nil)

func NewAsset(cfg Config) *Asset {
	return &Asset{Config: cfg}
}

func (a *Asset) String() string {
	return fmt.Sprintf("SyntheticAsset(%dx%d@%.2f:%s)", a.Config.Width, a.Config.Height, a.Config.FrameRate, a.Config.Duration)
}

func (a *Asset) Load(ctx context.Context) error {
	if a.Config.LoadError != nil {
		return a.Config.LoadError
	}
	if a.loaded.Load() {
		return nil
	}
	if a.Config.Width <= 0 || a.Config.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", a.Config.Width, a.Config.Height)
	}
	if a.Config.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate %f", a.Config.FrameRate)
	}
	a.video = &Track{mediaType: demuxer.MediaTypeVideo, duration: a.Config.Duration}
	if a.Config.Audio != nil {
		a.audio = &Track{mediaType: demuxer.MediaTypeAudio, duration: a.Config.Duration}
	}
	a.loaded.Store(true)
	logger.Debugf(ctx, "loaded %s", a)
	return nil
}

func (a *Asset) VideoTrack() demuxer.Track {
	if a.video == nil {
		return nil
	}
	return a.video
}

func (a *Asset) AudioTrack() demuxer.Track {
	if a.audio == nil {
		return nil
	}
	return a.audio
}

// FrameDuration returns the interval between two video samples.
func (a *Asset) FrameDuration() time.Duration {
	return time.Duration(float64(time.Second) / a.Config.FrameRate)
}

// FramePTS returns the timestamp of the idx-th video sample.
func (a *Asset) FramePTS(idx int) time.Duration {
	return time.Duration(float64(idx) * float64(time.Second) / a.Config.FrameRate)
}

// FrameCount returns the amount of video samples a read pass yields.
// VideoSamplesPulled counts the video pulls of all the sessions over the asset.
func (a *Asset) VideoSamplesPulled() uint64 {
	return a.videoPulls.Load()
}

func (a *Asset) FrameCount() int {
	return int(math.Ceil(a.Config.Duration.Seconds()*a.Config.FrameRate - 1e-9))
}

type Demuxer struct {
	sessionsOpened atomic.Uint64
}

var _ demuxer.Demuxer = (*Demuxer)(nil)

func New() *Demuxer {
	return &Demuxer{}
}

func (d *Demuxer) String() string {
	return "SyntheticDemuxer"
}

// SessionsOpened returns how many readers were constructed so far.
func (d *Demuxer) SessionsOpened() uint64 {
	return d.sessionsOpened.Load()
}

func (d *Demuxer) OpenSession(
	ctx context.Context,
	asset demuxer.Asset,
) (demuxer.Reader, error) {
	a, ok := asset.(*Asset)
	if !ok {
		return nil, fmt.Errorf("%s cannot read %T", d, asset)
	}
	if a.Config.ReaderInitError != nil {
		return nil, a.Config.ReaderInitError
	}
	d.sessionsOpened.Add(1)
	return newReader(a), nil
}
