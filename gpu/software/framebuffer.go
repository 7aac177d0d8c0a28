package software

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/pool"
)

type Framebuffer struct {
	pipeline    *Pipeline
	pool        *pool.Pool[Framebuffer]
	size        gpu.Size
	format      gpu.TextureFormat
	textureOnly bool
	refs        atomic.Int32

	Pix    []byte
	Stride int
}

var _ gpu.Framebuffer = (*Framebuffer)(nil)
var _ gpu.ImageReader = (*Framebuffer)(nil)

func (fb *Framebuffer) String() string {
	return fmt.Sprintf("SoftwareFramebuffer(%p:%s:%s)", fb, fb.size, fb.format)
}

func (fb *Framebuffer) Size() gpu.Size {
	return fb.size
}

func (fb *Framebuffer) Format() gpu.TextureFormat {
	return fb.format
}

func (fb *Framebuffer) Lock() {
	fb.refs.Add(1)
}

func (fb *Framebuffer) Unlock() {
	switch refs := fb.refs.Add(-1); {
	case refs == 0:
		fb.pipeline.outstanding.Add(-1)
		fb.pool.Put(fb)
	case refs < 0:
		panic(fmt.Sprintf("%s was unlocked more times than locked", fb))
	}
}

// ReadImage copies the framebuffer into a new *image.RGBA.
func (fb *Framebuffer) ReadImage(ctx context.Context) (*image.RGBA, error) {
	if fb.format != gpu.TextureFormatRGBA {
		return nil, fmt.Errorf("cannot read %s as RGBA", fb)
	}
	img := image.NewRGBA(image.Rect(0, 0, fb.size.Width, fb.size.Height))
	for y := 0; y < fb.size.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+fb.size.Width*4], fb.Pix[y*fb.Stride:])
	}
	return img, nil
}
