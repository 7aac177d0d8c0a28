package imageprocessor

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/blur"
	"go.uber.org/atomic"
)

type GaussianBlur struct {
	Radius atomic.Float64
}

var _ Abstract = (*GaussianBlur)(nil)

func NewGaussianBlur(radius float64) *GaussianBlur {
	b := &GaussianBlur{}
	b.Radius.Store(radius)
	return b
}

func (b *GaussianBlur) String() string {
	return fmt.Sprintf("GaussianBlur(%v)", b.Radius.Load())
}

func (b *GaussianBlur) Process(
	ctx context.Context,
	img *image.RGBA,
	coords image.Rectangle,
) error {
	radius := b.Radius.Load()
	if radius <= 0 {
		return nil
	}
	coords = coords.Intersect(img.Bounds())
	if coords.Empty() {
		return nil
	}

	blurred := blur.Gaussian(img.SubImage(coords), radius)
	draw.Draw(img, coords, blurred, blurred.Bounds().Min, draw.Over)
	return nil
}
