// Package libav implements demuxer.Demuxer on top of libav (via astiav):
// it opens any container libavformat understands and decodes the best
// video stream into NV12 and the best audio stream into float PCM.
package libav

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/unsafetools"
	"github.com/xaionaro-go/xsync"
)

type Track struct {
	StreamIndex int
	mediaType   demuxer.MediaType
	duration    time.Duration
	Codec       string
}

var _ demuxer.Track = (*Track)(nil)

func (t *Track) String() string {
	return fmt.Sprintf("LibAVTrack(#%d:%s:%s:%s)", t.StreamIndex, t.mediaType, t.Codec, t.duration)
}

func (t *Track) MediaType() demuxer.MediaType {
	return t.mediaType
}

func (t *Track) Duration() time.Duration {
	return t.duration
}

// Asset is a media file or a URL. Load probes it once; every read pass
// reopens the input.
type Asset struct {
	URL     string
	AuthKey secret.String

	// Options are passed to libavformat as is, except "f" which forces the
	// input format.
	Options map[string]string

	locker xsync.Mutex
	loaded bool
	video  *Track
	audio  *Track
}

var _ demuxer.Asset = (*Asset)(nil)

func NewAsset(
	urlString string,
	authKey secret.String,
	options map[string]string,
) *Asset {
	return &Asset{
		URL:     urlString,
		AuthKey: authKey,
		Options: options,
	}
}

func (a *Asset) String() string {
	return fmt.Sprintf("LibAVAsset(%s)", a.URL)
}

func (a *Asset) Load(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &a.locker, a.loadLocked, ctx)
}

func (a *Asset) loadLocked(ctx context.Context) (_err error) {
	if a.loaded {
		return nil
	}
	logger.Debugf(ctx, "Load")
	defer func() { logger.Debugf(ctx, "/Load: %v", _err) }()

	in, err := openInput(ctx, a)
	if err != nil {
		return err
	}
	defer in.close()

	for _, stream := range in.FormatContext.Streams() {
		logger.Tracef(ctx, "input stream #%d: %s", stream.Index(), spew.Sdump(unsafetools.FieldByNameInValue(reflect.ValueOf(stream.CodecParameters()), "c").Elem().Elem().Interface()))
	}

	a.video = in.pickTrack(ctx, astiav.MediaTypeVideo)
	if a.video == nil {
		return fmt.Errorf("no decodable video stream in '%s'", a.URL)
	}
	a.audio = in.pickTrack(ctx, astiav.MediaTypeAudio)
	a.loaded = true
	return nil
}

func (a *Asset) VideoTrack() demuxer.Track {
	return xsync.DoR1(context.TODO(), &a.locker, func() demuxer.Track {
		if a.video == nil {
			return nil
		}
		return a.video
	})
}

func (a *Asset) AudioTrack() demuxer.Track {
	return xsync.DoR1(context.TODO(), &a.locker, func() demuxer.Track {
		if a.audio == nil {
			return nil
		}
		return a.audio
	})
}

// input is an opened libavformat context.
type input struct {
	*astiav.FormatContext
	dictionary *astiav.Dictionary
}

func openInput(
	ctx context.Context,
	a *Asset,
) (_ *input, _err error) {
	logger.Tracef(ctx, "openInput")
	defer func() { logger.Tracef(ctx, "/openInput: %v", _err) }()

	urlString := a.URL
	if urlString == "" {
		return nil, fmt.Errorf("the provided URL is empty")
	}
	if urlParsed, err := url.Parse(urlString); err == nil && urlParsed.Scheme != "" && a.AuthKey.Get() != "" {
		urlString += "/"
	}

	in := &input{}
	var inputFormat *astiav.InputFormat
	if len(a.Options) > 0 {
		in.dictionary = astiav.NewDictionary()
		for k, v := range a.Options {
			if k == "f" {
				inputFormat = astiav.FindInputFormat(v)
				if inputFormat == nil {
					logger.Errorf(ctx, "unable to find input format by name '%s'", v)
				}
				continue
			}
			logger.Debugf(ctx, "input.Dictionary['%s'] = '%s'", k, v)
			if err := in.dictionary.Set(k, v, 0); err != nil {
				in.dictionary.Free()
				return nil, fmt.Errorf("unable to set option '%s': %w", k, err)
			}
		}
	}

	in.FormatContext = astiav.AllocFormatContext()
	if in.FormatContext == nil {
		in.freeDictionary()
		return nil, fmt.Errorf("unable to allocate a format context")
	}

	urlWithSecret := urlString + a.AuthKey.Get()
	if err := in.FormatContext.OpenInput(urlWithSecret, inputFormat, in.dictionary); err != nil {
		in.FormatContext.Free()
		in.freeDictionary()
		if a.AuthKey.Get() != "" {
			return nil, fmt.Errorf("unable to open input by URL '%s<HIDDEN>': %w", urlString, err)
		}
		return nil, fmt.Errorf("unable to open input by URL '%s': %w", urlString, err)
	}

	if err := in.FormatContext.FindStreamInfo(nil); err != nil {
		in.close()
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}
	return in, nil
}

func (in *input) freeDictionary() {
	if in.dictionary != nil {
		in.dictionary.Free()
		in.dictionary = nil
	}
}

func (in *input) close() {
	in.FormatContext.CloseInput()
	in.FormatContext.Free()
	in.freeDictionary()
}

// pickTrack returns the first stream of the media type that has a decoder.
func (in *input) pickTrack(
	ctx context.Context,
	mediaType astiav.MediaType,
) *Track {
	for _, stream := range in.FormatContext.Streams() {
		cp := stream.CodecParameters()
		if cp.MediaType() != mediaType {
			continue
		}
		codec := astiav.FindDecoder(cp.CodecID())
		if codec == nil {
			logger.Warnf(ctx, "no decoder for stream #%d (%s)", stream.Index(), cp.CodecID())
			continue
		}
		return &Track{
			StreamIndex: stream.Index(),
			mediaType:   mediaTypeFromAstiav(mediaType),
			duration:    in.streamDuration(stream),
			Codec:       codec.Name(),
		}
	}
	return nil
}

func (in *input) streamDuration(stream *astiav.Stream) time.Duration {
	if d := stream.Duration(); d > 0 && d != astiav.NoPtsValue {
		return toDuration(d, stream.TimeBase())
	}
	// the container duration is in AV_TIME_BASE units
	if d := in.FormatContext.Duration(); d > 0 && d != astiav.NoPtsValue {
		return time.Duration(d) * time.Microsecond
	}
	return 0
}

func mediaTypeFromAstiav(t astiav.MediaType) demuxer.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return demuxer.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return demuxer.MediaTypeAudio
	default:
		return demuxer.MediaTypeUnknown
	}
}

func toDuration(ts int64, timeBase astiav.Rational) time.Duration {
	seconds := float64(ts) * timeBase.Float64()
	return time.Duration(float64(time.Second) * seconds)
}
