package libav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/go-ng/container/heap"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/typing"
)

// reorderWindow is how many decoded samples an output keeps before handing
// out the earliest one.
const reorderWindow = 3

type samplesByPTS []demuxer.Sample

func (s samplesByPTS) Len() int {
	return len(s)
}

func (s samplesByPTS) Less(i, j int) bool {
	return s[i].PresentationTimestamp() < s[j].PresentationTimestamp()
}

func (s samplesByPTS) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

type output struct {
	track        *Track
	hint         demuxer.FormatHint
	codecContext *astiav.CodecContext
	timeBase     astiav.Rational
	startTime    int64
	queue        samplesByPTS
	lastPTS      typing.Optional[time.Duration]
	eof          bool
}

func (o *output) Track() demuxer.Track {
	return o.track
}

func (o *output) String() string {
	return fmt.Sprintf("output(%s:%s)", o.track, o.hint)
}

// Reader decodes a single pass over an Asset. The streams nobody asked for
// are demuxed and dropped.
type Reader struct {
	asset  *Asset
	closer *astikit.Closer
	input  *input
	packet *astiav.Packet
	frame  *astiav.Frame
	nv12   *astiav.Frame
	scaler *scaler

	outputs   map[int]*output
	started   bool
	cancelled bool
	inputEOF  bool
}

var _ demuxer.Reader = (*Reader)(nil)

func newReader(
	ctx context.Context,
	asset *Asset,
) (_ *Reader, _err error) {
	in, err := openInput(ctx, asset)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		asset:   asset,
		closer:  astikit.NewCloser(),
		input:   in,
		outputs: map[int]*output{},
	}
	r.closer.Add(in.close)
	defer func() {
		if _err != nil {
			r.closer.Close()
		}
	}()

	r.packet = astiav.AllocPacket()
	if r.packet == nil {
		return nil, fmt.Errorf("unable to allocate a packet")
	}
	r.closer.Add(r.packet.Free)

	r.frame = astiav.AllocFrame()
	if r.frame == nil {
		return nil, fmt.Errorf("unable to allocate a frame")
	}
	r.closer.Add(r.frame.Free)

	r.nv12 = astiav.AllocFrame()
	if r.nv12 == nil {
		return nil, fmt.Errorf("unable to allocate a frame")
	}
	r.closer.Add(r.nv12.Free)
	return r, nil
}

func (r *Reader) AddTrackOutput(
	ctx context.Context,
	track demuxer.Track,
	hint demuxer.FormatHint,
) (_ demuxer.Output, _err error) {
	logger.Debugf(ctx, "AddTrackOutput(%s, %s)", track, hint)
	defer func() { logger.Debugf(ctx, "/AddTrackOutput(%s, %s): %v", track, hint, _err) }()

	t, ok := track.(*Track)
	if !ok {
		return nil, fmt.Errorf("track %v does not belong to this demuxer", track)
	}
	switch {
	case t.MediaType() == demuxer.MediaTypeVideo && hint == demuxer.FormatHintNV12:
	case t.MediaType() == demuxer.MediaTypeAudio && hint == demuxer.FormatHintPCM:
	default:
		return nil, fmt.Errorf("unsupported output %s for %s", hint, track)
	}

	var stream *astiav.Stream
	for _, s := range r.input.FormatContext.Streams() {
		if s.Index() == t.StreamIndex {
			stream = s
			break
		}
	}
	if stream == nil {
		return nil, fmt.Errorf("stream #%d not found", t.StreamIndex)
	}

	cp := stream.CodecParameters()
	codec := astiav.FindDecoder(cp.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("unable to find a decoder for %s", cp.CodecID())
	}
	codecContext := astiav.AllocCodecContext(codec)
	if codecContext == nil {
		return nil, fmt.Errorf("unable to allocate codec context")
	}
	r.closer.Add(codecContext.Free)
	if err := cp.ToCodecContext(codecContext); err != nil {
		return nil, fmt.Errorf("codecParameters.ToCodecContext(...) returned error: %w", err)
	}
	if err := codecContext.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("unable to open codec context: %w", err)
	}

	out := &output{
		track:        t,
		hint:         hint,
		codecContext: codecContext,
		timeBase:     stream.TimeBase(),
		startTime:    stream.StartTime(),
	}
	r.outputs[t.StreamIndex] = out
	return out, nil
}

func (r *Reader) RemoveTrackOutput(
	ctx context.Context,
	out demuxer.Output,
) error {
	o, ok := out.(*output)
	if !ok || r.outputs[o.track.StreamIndex] != o {
		return fmt.Errorf("unknown output %v", out)
	}
	delete(r.outputs, o.track.StreamIndex)
	for _, s := range o.queue {
		s.Release()
	}
	o.queue = nil
	return nil
}

func (r *Reader) StartReading(ctx context.Context) error {
	if r.cancelled {
		return fmt.Errorf("the reader is cancelled")
	}
	if len(r.outputs) == 0 {
		return fmt.Errorf("no outputs")
	}
	r.started = true
	return nil
}

func (r *Reader) CancelReading(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "CancelReading")
	defer func() { logger.Debugf(ctx, "/CancelReading: %v", _err) }()
	if r.cancelled {
		return nil
	}
	r.cancelled = true
	for _, o := range r.outputs {
		for _, s := range o.queue {
			s.Release()
		}
		o.queue = nil
	}
	if r.scaler != nil {
		r.scaler.Close(ctx)
	}
	return r.closer.Close()
}

func (r *Reader) PullSample(
	ctx context.Context,
	out demuxer.Output,
) (demuxer.Sample, error) {
	if !r.started || r.cancelled {
		return nil, fmt.Errorf("the reader is not reading")
	}
	o, ok := out.(*output)
	if !ok || r.outputs[o.track.StreamIndex] != o {
		return nil, fmt.Errorf("unknown output %v", out)
	}

	for {
		if len(o.queue) > reorderWindow || (o.eof && len(o.queue) > 0) {
			return heap.Pop(&o.queue), nil
		}
		if o.eof {
			return nil, nil
		}
		if err := r.readPacket(ctx); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) readPacket(ctx context.Context) error {
	if r.inputEOF {
		for _, o := range r.outputs {
			o.eof = true
		}
		return nil
	}

	err := r.input.FormatContext.ReadFrame(r.packet)
	switch {
	case err == nil:
	case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
		logger.Debugf(ctx, "reached the end of the input")
		return r.flush(ctx)
	default:
		return fmt.Errorf("unable to read a frame: %w", err)
	}
	defer r.packet.Unref()

	o := r.outputs[r.packet.StreamIndex()]
	if o == nil {
		return nil
	}
	if err := o.codecContext.SendPacket(r.packet); err != nil {
		return fmt.Errorf("unable to send a packet to the %s decoder: %w", o.track, err)
	}
	return r.drain(ctx, o)
}

func (r *Reader) flush(ctx context.Context) error {
	r.inputEOF = true
	var errs []error
	for _, o := range r.outputs {
		if err := o.codecContext.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
			errs = append(errs, fmt.Errorf("unable to flush the %s decoder: %w", o.track, err))
			o.eof = true
			continue
		}
		if err := r.drain(ctx, o); err != nil {
			errs = append(errs, err)
		}
		o.eof = true
	}
	return errors.Join(errs...)
}

func (r *Reader) drain(ctx context.Context, o *output) error {
	for {
		err := o.codecContext.ReceiveFrame(r.frame)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain):
			return nil
		case errors.Is(err, astiav.ErrEof):
			o.eof = true
			return nil
		default:
			return fmt.Errorf("unable to receive a frame from the %s decoder: %w", o.track, err)
		}

		s, err := r.toSample(ctx, o, r.frame)
		r.frame.Unref()
		if err != nil {
			return err
		}
		heap.Push(&o.queue, s)
	}
}

func (r *Reader) framePTS(o *output, f *astiav.Frame) time.Duration {
	pts := f.Pts()
	if pts == astiav.NoPtsValue {
		if o.lastPTS.IsSet() {
			return o.lastPTS.Get()
		}
		return 0
	}
	d := relativeTimestamp(pts, o.startTime, o.timeBase)
	o.lastPTS = typing.Opt(d)
	return d
}

// relativeTimestamp converts pts into the time since the beginning of the
// stream; timestamps before the beginning are clamped to zero.
func relativeTimestamp(pts, startTime int64, timeBase astiav.Rational) time.Duration {
	if startTime != astiav.NoPtsValue {
		pts -= startTime
	}
	if pts <= 0 {
		return 0
	}
	return toDuration(pts, timeBase)
}

func (r *Reader) toSample(
	ctx context.Context,
	o *output,
	f *astiav.Frame,
) (demuxer.Sample, error) {
	switch o.hint {
	case demuxer.FormatHintNV12:
		return r.toVideoSample(ctx, o, f)
	case demuxer.FormatHintPCM:
		return r.toAudioSample(ctx, o, f)
	default:
		return nil, fmt.Errorf("unexpected format hint %s", o.hint)
	}
}

func (r *Reader) toVideoSample(
	ctx context.Context,
	o *output,
	f *astiav.Frame,
) (*demuxer.VideoSample, error) {
	w, h := f.Width(), f.Height()
	src := f
	if f.PixelFormat() != astiav.PixelFormatNv12 {
		if r.scaler == nil || !r.scaler.fits(w, h, f.PixelFormat()) {
			if r.scaler != nil {
				r.scaler.Close(ctx)
			}
			sc, err := newScaler(ctx, w, h, f.PixelFormat())
			if err != nil {
				return nil, err
			}
			logger.Debugf(ctx, "initialized %s", sc)
			r.scaler = sc
		}
		r.nv12.Unref()
		if err := r.scaler.ScaleFrame(ctx, f, r.nv12); err != nil {
			return nil, err
		}
		src = r.nv12
	}

	buf, err := src.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("unable to copy the picture: %w", err)
	}
	s := &demuxer.VideoSample{
		PTS:        r.framePTS(o, f),
		Width:      w,
		Height:     h,
		LumaStride: w,
	}
	s.ChromaStride = s.ChromaWidth() * 2
	lumaSize := s.LumaStride * h
	chromaSize := s.ChromaStride * s.ChromaHeight()
	if len(buf) < lumaSize+chromaSize {
		return nil, fmt.Errorf("the picture buffer is too short: %d < %d", len(buf), lumaSize+chromaSize)
	}
	s.Luma = buf[:lumaSize]
	s.Chroma = buf[lumaSize : lumaSize+chromaSize]
	return s, nil
}

func (r *Reader) toAudioSample(
	_ context.Context,
	o *output,
	f *astiav.Frame,
) (*demuxer.AudioSample, error) {
	planes, err := extractPlanes(f)
	if err != nil {
		return nil, fmt.Errorf("unable to extract PCM from the %s frame: %w", o.track, err)
	}
	return &demuxer.AudioSample{
		PTS:        r.framePTS(o, f),
		SampleRate: f.SampleRate(),
		Channels:   len(planes),
		Planes:     planes,
	}, nil
}
