package synthetic

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/xaionaro-go/avplayer/demuxer"
)

type output struct {
	track demuxer.Track
	next  int
}

func (o *output) Track() demuxer.Track {
	return o.track
}

type Reader struct {
	asset     *Asset
	outputs   map[demuxer.MediaType]*output
	started   bool
	cancelled bool
	pulls     int

	y, cb, cr uint8
}

var _ demuxer.Reader = (*Reader)(nil)

func newReader(asset *Asset) *Reader {
	c := asset.Config.Color
	y, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
	return &Reader{
		asset:   asset,
		outputs: map[demuxer.MediaType]*output{},
		y:       y,
		cb:      cb,
		cr:      cr,
	}
}

func (r *Reader) AddTrackOutput(
	ctx context.Context,
	track demuxer.Track,
	hint demuxer.FormatHint,
) (demuxer.Output, error) {
	switch {
	case track.MediaType() == demuxer.MediaTypeVideo && hint == demuxer.FormatHintNV12:
	case track.MediaType() == demuxer.MediaTypeAudio && hint == demuxer.FormatHintPCM:
	default:
		return nil, fmt.Errorf("unsupported output %s for %s", hint, track)
	}
	out := &output{track: track}
	r.outputs[track.MediaType()] = out
	return out, nil
}

func (r *Reader) RemoveTrackOutput(
	ctx context.Context,
	out demuxer.Output,
) error {
	delete(r.outputs, out.Track().MediaType())
	return nil
}

func (r *Reader) StartReading(ctx context.Context) error {
	if r.asset.Config.StartReadingError != nil {
		return r.asset.Config.StartReadingError
	}
	if r.cancelled {
		return fmt.Errorf("the reader is cancelled")
	}
	r.started = true
	return nil
}

func (r *Reader) CancelReading(ctx context.Context) error {
	r.cancelled = true
	return nil
}

func (r *Reader) PullSample(
	ctx context.Context,
	out demuxer.Output,
) (demuxer.Sample, error) {
	if !r.started || r.cancelled {
		return nil, fmt.Errorf("the reader is not reading")
	}
	o, ok := out.(*output)
	if !ok || r.outputs[o.track.MediaType()] != o {
		return nil, fmt.Errorf("unknown output %v", out)
	}
	r.pulls++
	if err := r.asset.Config.PullError; err != nil && r.pulls > r.asset.Config.PullErrorAfter {
		return nil, err
	}
	if d := r.asset.Config.PullDelay; d > 0 {
		// decoding is not interruptible
		time.Sleep(d)
	}

	switch o.track.MediaType() {
	case demuxer.MediaTypeVideo:
		r.asset.videoPulls.Add(1)
		return r.nextVideoSample(o), nil
	case demuxer.MediaTypeAudio:
		return r.nextAudioSample(o), nil
	default:
		return nil, fmt.Errorf("unexpected media type %s", o.track.MediaType())
	}
}

func (r *Reader) nextVideoSample(o *output) demuxer.Sample {
	if o.next >= r.asset.FrameCount() {
		return nil
	}
	pts := r.asset.FramePTS(o.next)
	o.next++

	w, h := r.asset.Config.Width, r.asset.Config.Height
	s := &demuxer.VideoSample{
		PTS:        pts,
		Width:      w,
		Height:     h,
		Luma:       make([]byte, w*h),
		LumaStride: w,
	}
	s.ChromaStride = s.ChromaWidth() * 2
	s.Chroma = make([]byte, s.ChromaStride*s.ChromaHeight())
	for i := range s.Luma {
		s.Luma[i] = r.y
	}
	for i := 0; i < len(s.Chroma); i += 2 {
		s.Chroma[i] = r.cb
		s.Chroma[i+1] = r.cr
	}
	return s
}

func (r *Reader) nextAudioSample(o *output) demuxer.Sample {
	cfg := r.asset.Config.Audio
	first := o.next * cfg.ChunkSamples
	pts := time.Duration(first) * time.Second / time.Duration(cfg.SampleRate)
	if pts >= r.asset.Config.Duration {
		return nil
	}
	o.next++

	planes := make([][]float32, cfg.Channels)
	for ch := range planes {
		plane := make([]float32, cfg.ChunkSamples)
		for i := range plane {
			t := float64(first+i) / float64(cfg.SampleRate)
			plane[i] = float32(0.25 * math.Sin(2*math.Pi*cfg.ToneHz*t))
		}
		planes[ch] = plane
	}
	return &demuxer.AudioSample{
		PTS:        pts,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Planes:     planes,
	}
}
