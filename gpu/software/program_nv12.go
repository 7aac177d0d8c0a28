package software

import (
	"github.com/xaionaro-go/avplayer/gpu"
)

// convertNV12 is the CPU rendition of the NV12 conversion shader: chroma is
// sampled with nearest-neighbour filtering, alpha is always opaque.
func convertNV12(
	luma *Framebuffer,
	chroma *Framebuffer,
	out *Framebuffer,
	matrix gpu.ColorMatrix,
) error {
	w, h := out.size.Width, out.size.Height
	cw, ch := chroma.size.Width, chroma.size.Height
	lw, lh := luma.size.Width, luma.size.Height
	for y := 0; y < h; y++ {
		ly := y * lh / h
		cy := y * ch / h
		lumaRow := luma.Pix[ly*luma.Stride:]
		chromaRow := chroma.Pix[cy*chroma.Stride:]
		outRow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			lx := x * lw / w
			cx := (x * cw / w) * 2
			r, g, b := matrix.Apply(
				float32(lumaRow[lx])/255,
				float32(chromaRow[cx])/255,
				float32(chromaRow[cx+1])/255,
			)
			o := x * 4
			outRow[o+0] = toByte(r)
			outRow[o+1] = toByte(g)
			outRow[o+2] = toByte(b)
			outRow[o+3] = 0xff
		}
	}
	return nil
}

func toByte(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return byte(v*255 + 0.5)
	}
}
