package imageprocessor

import (
	"context"
	"fmt"
	"image"

	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/xsync"
)

// Consumer reads every frame back from the GPU, runs Processor over it,
// uploads the result into a fresh framebuffer and hands it to Next.
type Consumer struct {
	Processor Abstract
	Pipeline  gpu.Pipeline
	Executor  *gpu.Executor

	// Next receives the processed frames; nil drops them.
	Next frame.Consumer

	locker xsync.Mutex
	region image.Rectangle
}

var _ frame.Consumer = (*Consumer)(nil)

func NewConsumer(
	processor Abstract,
	pipeline gpu.Pipeline,
	executor *gpu.Executor,
	next frame.Consumer,
) *Consumer {
	return &Consumer{
		Processor: processor,
		Pipeline:  pipeline,
		Executor:  executor,
		Next:      next,
	}
}

func (c *Consumer) String() string {
	return fmt.Sprintf("ImageProcessor(%s)", c.Processor)
}

// SetRegion limits processing to r; an empty rectangle means the whole picture.
func (c *Consumer) SetRegion(ctx context.Context, r image.Rectangle) {
	c.locker.Do(ctx, func() {
		c.region = r
	})
}

func (c *Consumer) getRegion(ctx context.Context, bounds image.Rectangle) image.Rectangle {
	r := xsync.DoR1(ctx, &c.locker, func() image.Rectangle {
		return c.region
	})
	if r.Empty() {
		return bounds
	}
	return r
}

func (c *Consumer) ConsumeFrame(
	ctx context.Context,
	f *frame.Converted,
) (_err error) {
	logger.Tracef(ctx, "ConsumeFrame(%s)", f)
	defer func() { logger.Tracef(ctx, "/ConsumeFrame(%s): %v", f, _err) }()
	defer f.Release()

	reader, ok := f.Framebuffer.(gpu.ImageReader)
	if !ok {
		return fmt.Errorf("%s cannot be read back", f.Framebuffer)
	}

	var out gpu.Framebuffer
	err := c.Executor.Do(ctx, func(ctx context.Context) error {
		img, err := reader.ReadImage(ctx)
		if err != nil {
			return fmt.Errorf("unable to read %s: %w", f.Framebuffer, err)
		}
		if err := c.Processor.Process(ctx, img, c.getRegion(ctx, img.Bounds())); err != nil {
			return fmt.Errorf("%s failed: %w", c.Processor, err)
		}

		fb, err := c.Pipeline.AcquireFramebuffer(ctx, f.Framebuffer.Size(), gpu.TextureFormatRGBA, false)
		if err != nil {
			return fmt.Errorf("unable to acquire an output framebuffer: %w", err)
		}
		if err := c.Pipeline.UploadPlane(ctx, fb, img.Pix, img.Stride); err != nil {
			fb.Unlock()
			return fmt.Errorf("unable to upload the processed picture: %w", err)
		}
		out = fb
		return nil
	})
	if err != nil {
		return err
	}

	processed := &frame.Converted{
		Framebuffer: out,
		PTS:         f.PTS,
		Orientation: f.Orientation,
		TimingStyle: f.TimingStyle,
	}
	if c.Next == nil {
		processed.Release()
		return nil
	}
	return c.Next.ConsumeFrame(ctx, processed)
}
