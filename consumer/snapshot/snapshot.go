// Package snapshot provides a frame consumer that remembers the latest
// picture and can dump it as a PNG file.
package snapshot

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// ErrNoFrame is returned by Save before the first frame arrives.
type ErrNoFrame struct{}

func (ErrNoFrame) Error() string {
	return "no frame received yet"
}

type Snapshot struct {
	Executor *gpu.Executor

	// Upright rotates the picture according to the frame orientation.
	Upright bool

	locker  xsync.Mutex
	last    *image.RGBA
	lastPTS time.Duration

	framesReceived atomic.Uint64
}

var _ frame.Consumer = (*Snapshot)(nil)

func New(executor *gpu.Executor, upright bool) *Snapshot {
	return &Snapshot{
		Executor: executor,
		Upright:  upright,
	}
}

func (s *Snapshot) String() string {
	return "Snapshot"
}

func (s *Snapshot) ConsumeFrame(
	ctx context.Context,
	f *frame.Converted,
) (_err error) {
	logger.Tracef(ctx, "ConsumeFrame")
	defer func() { logger.Tracef(ctx, "/ConsumeFrame: %v", _err) }()
	defer f.Release()
	s.framesReceived.Inc()

	reader, ok := f.Framebuffer.(gpu.ImageReader)
	if !ok {
		return fmt.Errorf("%s cannot be read back", f.Framebuffer)
	}

	var img *image.RGBA
	err := s.Executor.Do(ctx, func(ctx context.Context) error {
		var err error
		img, err = reader.ReadImage(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", f.Framebuffer, err)
	}
	if s.Upright {
		img = upright(img, f.Orientation)
	}

	s.locker.Do(ctx, func() {
		s.last = img
		s.lastPTS = f.PTS
	})
	return nil
}

// upright undoes the rotation described by o.
func upright(img *image.RGBA, o frame.Orientation) *image.RGBA {
	switch o {
	case frame.OrientationRight:
		return transform.Rotate(img, 90, &transform.RotationOptions{ResizeBounds: true})
	case frame.OrientationDown:
		return transform.Rotate(img, 180, nil)
	case frame.OrientationLeft:
		return transform.Rotate(img, 270, &transform.RotationOptions{ResizeBounds: true})
	default:
		return img
	}
}

// Last returns the latest picture and its presentation timestamp.
func (s *Snapshot) Last(ctx context.Context) (*image.RGBA, time.Duration, bool) {
	var (
		img *image.RGBA
		pts time.Duration
	)
	s.locker.Do(ctx, func() {
		img, pts = s.last, s.lastPTS
	})
	return img, pts, img != nil
}

func (s *Snapshot) FramesReceived() uint64 {
	return s.framesReceived.Load()
}

// Save writes the latest picture to path as PNG.
func (s *Snapshot) Save(ctx context.Context, path string) (_err error) {
	logger.Debugf(ctx, "Save(%s)", path)
	defer func() { logger.Debugf(ctx, "/Save(%s): %v", path, _err) }()
	img, _, ok := s.Last(ctx)
	if !ok {
		return ErrNoFrame{}
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("unable to save the snapshot to '%s': %w", path, err)
	}
	return nil
}
