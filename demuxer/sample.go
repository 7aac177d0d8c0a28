package demuxer

import (
	"fmt"
	"time"
)

type Sample interface {
	PresentationTimestamp() time.Duration
	Release()
}

// VideoSample is a decoded picture in NV12 layout. It is valid until Release.
type VideoSample struct {
	PTS time.Duration

	Width  int
	Height int

	Luma       []byte
	LumaStride int

	// Chroma holds interleaved Cb/Cr pairs at half resolution in each dimension.
	Chroma       []byte
	ChromaStride int

	ReleaseFunc func()
}

var _ Sample = (*VideoSample)(nil)

func (s *VideoSample) PresentationTimestamp() time.Duration {
	return s.PTS
}

func (s *VideoSample) Release() {
	if s == nil || s.ReleaseFunc == nil {
		return
	}
	s.ReleaseFunc()
	s.ReleaseFunc = nil
}

func (s *VideoSample) ChromaWidth() int {
	return (s.Width + 1) / 2
}

func (s *VideoSample) ChromaHeight() int {
	return (s.Height + 1) / 2
}

func (s *VideoSample) String() string {
	return fmt.Sprintf("VideoSample(%dx%d@%s)", s.Width, s.Height, s.PTS)
}

// AudioSample is a decoded audio buffer. The player treats it as opaque and
// hands it to the audio sink as is.
type AudioSample struct {
	PTS        time.Duration
	SampleRate int
	Channels   int

	// Planes holds one slice of samples per channel.
	Planes [][]float32

	ReleaseFunc func()
}

var _ Sample = (*AudioSample)(nil)

func (s *AudioSample) PresentationTimestamp() time.Duration {
	return s.PTS
}

func (s *AudioSample) Release() {
	if s == nil || s.ReleaseFunc == nil {
		return
	}
	s.ReleaseFunc()
	s.ReleaseFunc = nil
}

// NbSamples returns the amount of samples per channel.
func (s *AudioSample) NbSamples() int {
	if len(s.Planes) == 0 {
		return 0
	}
	return len(s.Planes[0])
}

// Duration returns the playback duration of the buffer.
func (s *AudioSample) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.NbSamples()) * time.Second / time.Duration(s.SampleRate)
}

func (s *AudioSample) String() string {
	return fmt.Sprintf("AudioSample(%dch*%d@%s)", s.Channels, s.NbSamples(), s.PTS)
}
