package software

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/gpu"
)

func TestPipelineAcquireRelease(t *testing.T) {
	ctx := context.Background()
	p := New()

	size := gpu.Size{Width: 4, Height: 2}
	fb, err := p.AcquireFramebuffer(ctx, size, gpu.TextureFormatRGBA, false)
	require.NoError(t, err)
	require.Equal(t, size, fb.Size())
	require.Equal(t, gpu.TextureFormatRGBA, fb.Format())
	require.EqualValues(t, 1, p.Allocated())
	require.EqualValues(t, 1, p.Outstanding())

	fb.Lock()
	fb.Unlock()
	require.EqualValues(t, 1, p.Outstanding())
	fb.Unlock()
	require.EqualValues(t, 0, p.Outstanding())
	require.Panics(t, func() { fb.Unlock() })

	_, err = p.AcquireFramebuffer(ctx, gpu.Size{}, gpu.TextureFormatRGBA, false)
	require.Error(t, err)
	_, err = p.AcquireFramebuffer(ctx, size, gpu.TextureFormatUndefined, false)
	require.Error(t, err)
}

func TestPipelineUploadPlane(t *testing.T) {
	ctx := context.Background()
	p := New()

	fb, err := p.AcquireFramebuffer(ctx, gpu.Size{Width: 3, Height: 2}, gpu.TextureFormatLuminance, true)
	require.NoError(t, err)
	defer fb.Unlock()

	// stride 4 with a padding byte per row
	plane := []byte{
		1, 2, 3, 0xee,
		4, 5, 6, 0xee,
	}
	require.NoError(t, p.UploadPlane(ctx, fb, plane, 4))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, fb.(*Framebuffer).Pix)

	require.Error(t, p.UploadPlane(ctx, fb, plane, 2))
	require.Error(t, p.UploadPlane(ctx, fb, plane[:5], 4))

	other := New()
	foreign, err := other.AcquireFramebuffer(ctx, gpu.Size{Width: 3, Height: 2}, gpu.TextureFormatLuminance, true)
	require.NoError(t, err)
	defer foreign.Unlock()
	require.ErrorAs(t, p.UploadPlane(ctx, foreign, plane, 4), &gpu.ErrForeignFramebuffer{})
}

func TestPipelineConvertGray(t *testing.T) {
	ctx := context.Background()
	p := New()

	size := gpu.Size{Width: 4, Height: 4}
	luma, err := p.AcquireFramebuffer(ctx, size, gpu.TextureFormatLuminance, true)
	require.NoError(t, err)
	chroma, err := p.AcquireFramebuffer(ctx, size.HalfSize(), gpu.TextureFormatLuminanceAlpha, true)
	require.NoError(t, err)
	out, err := p.AcquireFramebuffer(ctx, size, gpu.TextureFormatRGBA, false)
	require.NoError(t, err)

	lumaPlane := make([]byte, 16)
	for i := range lumaPlane {
		lumaPlane[i] = 128
	}
	chromaPlane := make([]byte, 8)
	for i := range chromaPlane {
		chromaPlane[i] = 128
	}
	require.NoError(t, p.UploadPlane(ctx, luma, lumaPlane, 4))
	require.NoError(t, p.UploadPlane(ctx, chroma, chromaPlane, 4))

	prog, err := p.Program(ctx, gpu.ProgramIDNV12ToRGB)
	require.NoError(t, err)
	matrix := gpu.ColorMatrix{
		Matrix: [3][3]float32{
			{1, 0, 1.4},
			{1, -0.343, -0.711},
			{1, 1.765, 0},
		},
	}

	// a texture-only framebuffer cannot be rendered into
	require.Error(t, p.RunConversionProgram(ctx, prog, []gpu.Framebuffer{luma, chroma}, luma, matrix))
	require.Error(t, p.RunConversionProgram(ctx, prog, []gpu.Framebuffer{chroma, luma}, out, matrix))

	require.NoError(t, p.RunConversionProgram(ctx, prog, []gpu.Framebuffer{luma, chroma}, out, matrix))
	img, err := out.(gpu.ImageReader).ReadImage(ctx)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			c := img.RGBAAt(x, y)
			require.InDelta(t, 128, int(c.R), 1)
			require.InDelta(t, 128, int(c.G), 1)
			require.InDelta(t, 128, int(c.B), 1)
			require.EqualValues(t, 0xff, c.A)
		}
	}

	luma.Unlock()
	chroma.Unlock()
	out.Unlock()
	require.EqualValues(t, 0, p.Outstanding())

	_, err = p.Program(ctx, gpu.ProgramIDUndefined)
	require.ErrorAs(t, err, &gpu.ErrUnknownProgram{})
}
