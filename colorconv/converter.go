// Package colorconv converts decoded NV12 samples into RGBA framebuffers.
package colorconv

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/logger"
	"go.uber.org/atomic"
)

// Converter runs the NV12-to-RGB program. All GPU work is submitted
// through Executor; Convert blocks until the pass is done.
type Converter struct {
	Pipeline    gpu.Pipeline
	Executor    *gpu.Executor
	Matrix      gpu.ColorMatrix
	Orientation frame.Orientation

	program gpu.Program

	conversions     atomic.Uint64
	conversionsTime atomic.Duration
}

func New(
	pipeline gpu.Pipeline,
	executor *gpu.Executor,
	matrix gpu.ColorMatrix,
	orientation frame.Orientation,
) *Converter {
	return &Converter{
		Pipeline:    pipeline,
		Executor:    executor,
		Matrix:      matrix,
		Orientation: orientation,
	}
}

func (c *Converter) String() string {
	return fmt.Sprintf("Converter(%s:%s)", c.Pipeline, c.Matrix)
}

// Convert returns a frame holding a single framebuffer reference.
func (c *Converter) Convert(
	ctx context.Context,
	sample *demuxer.VideoSample,
) (_ret *frame.Converted, _err error) {
	logger.Tracef(ctx, "Convert(%s)", sample)
	defer func() { logger.Tracef(ctx, "/Convert(%s): %v %v", sample, _ret, _err) }()

	if sample == nil {
		return nil, fmt.Errorf("no sample")
	}
	size := gpu.Size{Width: sample.Width, Height: sample.Height}
	if size.IsZero() {
		return nil, fmt.Errorf("invalid sample size %s", size)
	}

	var out gpu.Framebuffer
	err := c.Executor.Do(ctx, func(ctx context.Context) error {
		startTS := time.Now()
		var err error
		out, err = c.convert(ctx, sample, size)
		if err == nil {
			c.conversions.Inc()
			c.conversionsTime.Add(time.Since(startTS))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return &frame.Converted{
		Framebuffer: out,
		PTS:         sample.PTS,
		Orientation: c.Orientation,
		TimingStyle: frame.TimingStyleVideo,
	}, nil
}

// convert must be called from the executor goroutine.
func (c *Converter) convert(
	ctx context.Context,
	sample *demuxer.VideoSample,
	size gpu.Size,
) (_ gpu.Framebuffer, _err error) {
	if c.program == nil {
		prog, err := c.Pipeline.Program(ctx, gpu.ProgramIDNV12ToRGB)
		if err != nil {
			return nil, fmt.Errorf("unable to get the conversion program: %w", err)
		}
		c.program = prog
	}

	luma, err := c.Pipeline.AcquireFramebuffer(ctx, size, gpu.TextureFormatLuminance, true)
	if err != nil {
		return nil, fmt.Errorf("unable to acquire the luminance texture: %w", err)
	}
	defer luma.Unlock()
	chroma, err := c.Pipeline.AcquireFramebuffer(ctx, size.HalfSize(), gpu.TextureFormatLuminanceAlpha, true)
	if err != nil {
		return nil, fmt.Errorf("unable to acquire the chrominance texture: %w", err)
	}
	defer chroma.Unlock()

	if err := c.Pipeline.UploadPlane(ctx, luma, sample.Luma, sample.LumaStride); err != nil {
		return nil, fmt.Errorf("unable to upload the luminance plane: %w", err)
	}
	if err := c.Pipeline.UploadPlane(ctx, chroma, sample.Chroma, sample.ChromaStride); err != nil {
		return nil, fmt.Errorf("unable to upload the chrominance plane: %w", err)
	}

	out, err := c.Pipeline.AcquireFramebuffer(ctx, size, gpu.TextureFormatRGBA, false)
	if err != nil {
		return nil, fmt.Errorf("unable to acquire the output framebuffer: %w", err)
	}
	if err := c.Pipeline.RunConversionProgram(ctx, c.program, []gpu.Framebuffer{luma, chroma}, out, c.Matrix); err != nil {
		out.Unlock()
		return nil, fmt.Errorf("unable to run %s: %w", c.program, err)
	}
	return out, nil
}

// Conversions returns the amount of successful conversions.
func (c *Converter) Conversions() uint64 {
	return c.conversions.Load()
}

// AverageConversionTime returns the mean time a conversion occupied the executor.
func (c *Converter) AverageConversionTime() time.Duration {
	n := c.conversions.Load()
	if n == 0 {
		return 0
	}
	return c.conversionsTime.Load() / time.Duration(n)
}
