// abstract.go defines the Abstract interface for image processors.

// Package imageprocessor provides frame consumers that modify the picture
// before passing it further down the consumer graph.
package imageprocessor

import (
	"context"
	"fmt"
	"image"
)

// Abstract modifies img in place within coords.
type Abstract interface {
	fmt.Stringer
	Process(ctx context.Context, img *image.RGBA, coords image.Rectangle) error
}
