package libav

import (
	"fmt"
	"unsafe"

	"github.com/asticode/go-astiav"
)

// extractPlanes copies the samples of a decoded audio frame into one
// float32 slice per channel.
func extractPlanes(f *astiav.Frame) ([][]float32, error) {
	channels := f.ChannelLayout().Channels()
	if channels <= 0 {
		return nil, fmt.Errorf("invalid amount of channels: %d", channels)
	}
	planes := make([][]float32, channels)
	for ch := range planes {
		plane, err := extractChannel(f, ch, channels)
		if err != nil {
			return nil, fmt.Errorf("channel #%d: %w", ch, err)
		}
		planes[ch] = plane
	}
	return planes, nil
}

func extractChannel(f *astiav.Frame, channel, channels int) ([]float32, error) {
	nbSamples := f.NbSamples()
	format := f.SampleFormat()
	data := f.Data()

	res := make([]float32, nbSamples)
	if isPlanar(format) {
		plane, err := data.Bytes(channel)
		if err != nil {
			return nil, err
		}
		if len(plane) == 0 {
			return res, nil
		}
		ptr := unsafe.Pointer(&plane[0])
		switch format {
		case astiav.SampleFormatFltp:
			copy(res, unsafe.Slice((*float32)(ptr), nbSamples))
		case astiav.SampleFormatDblp:
			samples := unsafe.Slice((*float64)(ptr), nbSamples)
			for i := range nbSamples {
				res[i] = float32(samples[i])
			}
		case astiav.SampleFormatS16P:
			samples := unsafe.Slice((*int16)(ptr), nbSamples)
			for i := range nbSamples {
				res[i] = float32(samples[i]) / 32768.0
			}
		case astiav.SampleFormatS32P:
			samples := unsafe.Slice((*int32)(ptr), nbSamples)
			for i := range nbSamples {
				res[i] = float32(float64(samples[i]) / 2147483648.0)
			}
		default:
			return nil, fmt.Errorf("unsupported sample format: %v", format)
		}
		return res, nil
	}

	// Packed
	plane, err := data.Bytes(0)
	if err != nil {
		return nil, err
	}
	if len(plane) == 0 {
		return res, nil
	}
	ptr := unsafe.Pointer(&plane[0])
	switch format {
	case astiav.SampleFormatFlt:
		samples := unsafe.Slice((*float32)(ptr), nbSamples*channels)
		for i := range nbSamples {
			res[i] = samples[i*channels+channel]
		}
	case astiav.SampleFormatDbl:
		samples := unsafe.Slice((*float64)(ptr), nbSamples*channels)
		for i := range nbSamples {
			res[i] = float32(samples[i*channels+channel])
		}
	case astiav.SampleFormatS16:
		samples := unsafe.Slice((*int16)(ptr), nbSamples*channels)
		for i := range nbSamples {
			res[i] = float32(samples[i*channels+channel]) / 32768.0
		}
	case astiav.SampleFormatS32:
		samples := unsafe.Slice((*int32)(ptr), nbSamples*channels)
		for i := range nbSamples {
			res[i] = float32(float64(samples[i*channels+channel]) / 2147483648.0)
		}
	default:
		return nil, fmt.Errorf("unsupported sample format: %v", format)
	}
	return res, nil
}

func isPlanar(format astiav.SampleFormat) bool {
	switch format {
	case astiav.SampleFormatU8P,
		astiav.SampleFormatS16P,
		astiav.SampleFormatS32P,
		astiav.SampleFormatS64P,
		astiav.SampleFormatFltp,
		astiav.SampleFormatDblp:
		return true
	}
	return false
}
