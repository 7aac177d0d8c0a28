package gpu

import (
	"fmt"
)

type TextureFormat int

const (
	TextureFormatUndefined = TextureFormat(iota)
	TextureFormatLuminance
	TextureFormatLuminanceAlpha
	TextureFormatRGBA
)

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatUndefined:
		return "undefined"
	case TextureFormatLuminance:
		return "luminance"
	case TextureFormatLuminanceAlpha:
		return "luminance_alpha"
	case TextureFormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("unknown_texture_format_%d", int(f))
	}
}

// Channels returns the amount of bytes a single texel occupies.
func (f TextureFormat) Channels() int {
	switch f {
	case TextureFormatLuminance:
		return 1
	case TextureFormatLuminanceAlpha:
		return 2
	case TextureFormatRGBA:
		return 4
	default:
		return 0
	}
}
