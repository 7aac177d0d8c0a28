package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthonynsimon/bild/imgio"
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

func solidFrame(
	ctx context.Context,
	t *testing.T,
	p *software.Pipeline,
	size gpu.Size,
	v uint8,
	pts time.Duration,
	o frame.Orientation,
) *frame.Converted {
	fb, err := p.AcquireFramebuffer(ctx, size, gpu.TextureFormatRGBA, false)
	require.NoError(t, err)
	pix := make([]byte, size.Width*size.Height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 0xff
	}
	require.NoError(t, p.UploadPlane(ctx, fb, pix, size.Width*4))
	return &frame.Converted{Framebuffer: fb, PTS: pts, Orientation: o, TimingStyle: frame.TimingStyleVideo}
}

func TestSnapshot(t *testing.T) {
	ctx := testCtx(t)
	p := software.New()
	exec := gpu.NewExecutor(ctx)
	defer exec.Close(ctx)

	s := New(exec, false)
	path := filepath.Join(t.TempDir(), "last.png")
	require.ErrorIs(t, s.Save(ctx, path), ErrNoFrame{})

	size := gpu.Size{Width: 16, Height: 8}
	require.NoError(t, s.ConsumeFrame(ctx, solidFrame(ctx, t, p, size, 0x10, 0, frame.OrientationUp)))
	require.NoError(t, s.ConsumeFrame(ctx, solidFrame(ctx, t, p, size, 0x80, 40*time.Millisecond, frame.OrientationUp)))
	require.EqualValues(t, 2, s.FramesReceived())
	require.EqualValues(t, 0, p.Outstanding())

	img, pts, ok := s.Last(ctx)
	require.True(t, ok)
	require.Equal(t, 40*time.Millisecond, pts)
	require.Equal(t, uint8(0x80), img.RGBAAt(3, 3).R)

	require.NoError(t, s.Save(ctx, path))
	saved, err := imgio.Open(path)
	require.NoError(t, err)
	require.Equal(t, 16, saved.Bounds().Dx())
	require.Equal(t, 8, saved.Bounds().Dy())
	r, _, _, _ := saved.At(5, 5).RGBA()
	require.EqualValues(t, 0x80, r>>8)
}

func TestSnapshotUpright(t *testing.T) {
	ctx := testCtx(t)
	p := software.New()
	exec := gpu.NewExecutor(ctx)
	defer exec.Close(ctx)

	s := New(exec, true)
	require.NoError(t, s.ConsumeFrame(ctx, solidFrame(ctx, t, p, gpu.Size{Width: 16, Height: 8}, 0x40, 0, frame.OrientationRight)))
	img, _, ok := s.Last(ctx)
	require.True(t, ok)
	require.InDelta(t, 8, img.Bounds().Dx(), 1)
	require.InDelta(t, 16, img.Bounds().Dy(), 1)
}
