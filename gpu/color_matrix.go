package gpu

import (
	"fmt"
)

// ColorMatrix converts a (Y, Cb, Cr) triple, each normalized to [0, 1], into RGB:
//
//	rgb = Matrix * (Y - LuminanceOffset, Cb - 0.5, Cr - 0.5)
type ColorMatrix struct {
	Name            string
	Matrix          [3][3]float32
	LuminanceOffset float32
}

func (m ColorMatrix) String() string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("%v-%v", m.Matrix, m.LuminanceOffset)
}

// Apply converts a single normalized sample; the result is not clamped.
func (m ColorMatrix) Apply(y, cb, cr float32) (r, g, b float32) {
	y -= m.LuminanceOffset
	cb -= 0.5
	cr -= 0.5
	r = m.Matrix[0][0]*y + m.Matrix[0][1]*cb + m.Matrix[0][2]*cr
	g = m.Matrix[1][0]*y + m.Matrix[1][1]*cb + m.Matrix[1][2]*cr
	b = m.Matrix[2][0]*y + m.Matrix[2][1]*cb + m.Matrix[2][2]*cr
	return
}
