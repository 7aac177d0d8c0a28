package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
)

// scaler converts decoded pictures of any pixel format into NV12 of the
// same resolution.
type scaler struct {
	*astiav.SoftwareScaleContext
	*closuresignaler.ClosureSignaler
}

func newScaler(
	ctx context.Context,
	width, height int,
	srcPixFmt astiav.PixelFormat,
) (*scaler, error) {
	swSCtx, err := astiav.CreateSoftwareScaleContext(
		width,
		height,
		srcPixFmt,
		width,
		height,
		astiav.PixelFormatNv12,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create a software scale context: %w", err)
	}
	internal.SetFinalizerFree(ctx, swSCtx)
	return &scaler{
		SoftwareScaleContext: swSCtx,
		ClosureSignaler:      closuresignaler.New(),
	}, nil
}

func (s *scaler) String() string {
	return fmt.Sprintf(
		"Scaler(%dx%d:%s -> %s)",
		s.SoftwareScaleContext.SourceWidth(),
		s.SoftwareScaleContext.SourceHeight(),
		s.SoftwareScaleContext.SourcePixelFormat(),
		s.SoftwareScaleContext.DestinationPixelFormat(),
	)
}

// fits reports whether the scaler can convert a picture of the given geometry.
func (s *scaler) fits(width, height int, pixFmt astiav.PixelFormat) bool {
	return s.SoftwareScaleContext.SourceWidth() == width &&
		s.SoftwareScaleContext.SourceHeight() == height &&
		s.SoftwareScaleContext.SourcePixelFormat() == pixFmt
}

func (s *scaler) Close(ctx context.Context) error {
	logger.Tracef(ctx, "Close")
	defer logger.Tracef(ctx, "/Close")
	s.ClosureSignaler.Close(ctx)
	return nil
}

func (s *scaler) ScaleFrame(
	ctx context.Context,
	src *astiav.Frame,
	dst *astiav.Frame,
) (_err error) {
	logger.Tracef(ctx, "ScaleFrame")
	defer func() { logger.Tracef(ctx, "/ScaleFrame: %v", _err) }()
	if s.IsClosed() {
		return fmt.Errorf("scaler is closed")
	}
	dst.SetWidth(src.Width())
	dst.SetHeight(src.Height())
	dst.SetPixelFormat(astiav.PixelFormatNv12)
	if err := s.SoftwareScaleContext.ScaleFrame(src, dst); err != nil {
		return fmt.Errorf("unable to scale a frame: %w", err)
	}
	return nil
}
