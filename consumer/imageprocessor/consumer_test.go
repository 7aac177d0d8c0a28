package imageprocessor

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/gpu/software"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx, cancelFn := context.WithCancel(logger.CtxWithLogger(context.Background(), l))
	t.Cleanup(cancelFn)
	return ctx
}

// halfAndHalf returns a frame whose left half is black and right half is white.
func halfAndHalf(
	ctx context.Context,
	t *testing.T,
	p *software.Pipeline,
	size gpu.Size,
) *frame.Converted {
	fb, err := p.AcquireFramebuffer(ctx, size, gpu.TextureFormatRGBA, false)
	require.NoError(t, err)
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			v := uint8(0)
			if x >= size.Width/2 {
				v = 0xff
			}
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 0xff
		}
	}
	require.NoError(t, p.UploadPlane(ctx, fb, img.Pix, img.Stride))
	return &frame.Converted{
		Framebuffer: fb,
		PTS:         time.Second,
		Orientation: frame.OrientationRight,
		TimingStyle: frame.TimingStyleVideo,
	}
}

type lastFrame struct {
	img *image.RGBA
	f   frame.Converted
}

func (l *lastFrame) String() string { return "lastFrame" }

func (l *lastFrame) ConsumeFrame(ctx context.Context, f *frame.Converted) error {
	defer f.Release()
	img, err := f.Framebuffer.(gpu.ImageReader).ReadImage(ctx)
	if err != nil {
		return err
	}
	l.img = img
	l.f = *f
	return nil
}

func TestGaussianBlurConsumer(t *testing.T) {
	ctx := testCtx(t)
	p := software.New()
	exec := gpu.NewExecutor(ctx)
	defer exec.Close(ctx)

	size := gpu.Size{Width: 64, Height: 32}
	next := &lastFrame{}
	c := NewConsumer(NewGaussianBlur(2), p, exec, next)

	require.NoError(t, c.ConsumeFrame(ctx, halfAndHalf(ctx, t, p, size)))
	require.NotNil(t, next.img)
	require.Equal(t, time.Second, next.f.PTS)
	require.Equal(t, frame.OrientationRight, next.f.Orientation)
	require.Equal(t, frame.TimingStyleVideo, next.f.TimingStyle)

	edge := next.img.RGBAAt(size.Width/2, size.Height/2)
	require.Greater(t, edge.R, uint8(20))
	require.Less(t, edge.R, uint8(235))
	// the blur kernel rounds a solid white area down by one step
	require.InDelta(t, 0xff, int(next.img.RGBAAt(48, 16).R), 1)
	require.Equal(t, uint8(0), next.img.RGBAAt(16, 16).R)

	require.EqualValues(t, 0, p.Outstanding())
}

func TestGaussianBlurRegion(t *testing.T) {
	ctx := testCtx(t)
	p := software.New()
	exec := gpu.NewExecutor(ctx)
	defer exec.Close(ctx)

	size := gpu.Size{Width: 64, Height: 32}
	next := &lastFrame{}
	c := NewConsumer(NewGaussianBlur(2), p, exec, next)
	c.SetRegion(ctx, image.Rect(0, 0, 64, 8))

	require.NoError(t, c.ConsumeFrame(ctx, halfAndHalf(ctx, t, p, size)))
	blurred := next.img.RGBAAt(size.Width/2, 4)
	require.Greater(t, blurred.R, uint8(20))
	require.Equal(t, uint8(0xff), next.img.RGBAAt(size.Width/2, 24).R)
	require.Equal(t, uint8(0), next.img.RGBAAt(size.Width/2-1, 24).R)
}

func TestGaussianBlurDisabled(t *testing.T) {
	ctx := testCtx(t)
	p := software.New()
	exec := gpu.NewExecutor(ctx)
	defer exec.Close(ctx)

	b := NewGaussianBlur(0)
	c := NewConsumer(b, p, exec, nil)
	require.NoError(t, c.ConsumeFrame(ctx, halfAndHalf(ctx, t, p, gpu.Size{Width: 8, Height: 8})))
	require.EqualValues(t, 0, p.Outstanding())
	require.Equal(t, "GaussianBlur(0)", b.String())

	b.Radius.Store(1.5)
	require.Equal(t, "GaussianBlur(1.5)", b.String())
}
