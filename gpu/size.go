package gpu

import (
	"fmt"
)

type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// HalfSize is the size of a plane subsampled 2:1 in each dimension.
func (s Size) HalfSize() Size {
	return Size{
		Width:  (s.Width + 1) / 2,
		Height: (s.Height + 1) / 2,
	}
}
