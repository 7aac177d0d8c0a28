// Package demuxer wraps a platform demuxer/decoder into a Session: a
// single read pass over one asset with a monotone status machine.
package demuxer

import (
	"context"
	"fmt"
	"time"
)

// Asset is an opened container plus its track list. It is owned by the
// caller; sessions only keep a reference.
type Asset interface {
	fmt.Stringer

	// Load resolves the asset metadata (tracks, durations). It is called
	// before every read pass and must be cheap once the asset is loaded.
	Load(ctx context.Context) error

	VideoTrack() Track

	// AudioTrack returns nil if the asset has no audio.
	AudioTrack() Track
}

type Track interface {
	fmt.Stringer
	MediaType() MediaType
	Duration() time.Duration
}

// Demuxer opens read passes over assets.
type Demuxer interface {
	fmt.Stringer
	OpenSession(ctx context.Context, asset Asset) (Reader, error)
}

// Reader is a single read pass as exposed by the platform demuxer. It is
// not required to be safe for concurrent use; Session serializes access.
type Reader interface {
	AddTrackOutput(ctx context.Context, track Track, hint FormatHint) (Output, error)
	RemoveTrackOutput(ctx context.Context, output Output) error
	StartReading(ctx context.Context) error

	// PullSample returns (nil, nil) once the output is exhausted.
	PullSample(ctx context.Context, output Output) (Sample, error)
	CancelReading(ctx context.Context) error
}

type Output interface {
	Track() Track
}

// FormatHint tells the reader which decoded representation the output wants.
type FormatHint int

const (
	FormatHintUndefined = FormatHint(iota)

	// FormatHintNV12 asks for a full-resolution luminance plane and an
	// interleaved chrominance plane subsampled 2:1 in each dimension.
	FormatHintNV12

	// FormatHintPCM asks for decoded PCM audio.
	FormatHintPCM
)

func (h FormatHint) String() string {
	switch h {
	case FormatHintUndefined:
		return "undefined"
	case FormatHintNV12:
		return "nv12"
	case FormatHintPCM:
		return "pcm"
	default:
		return fmt.Sprintf("unknown_format_hint_%d", int(h))
	}
}
