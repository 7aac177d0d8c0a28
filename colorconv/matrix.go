package colorconv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xaionaro-go/avplayer/gpu"
)

var (
	// Matrix601FullRange is BT.601 with Y, Cb and Cr spanning the whole [0, 255] range (JFIF).
	Matrix601FullRange = gpu.ColorMatrix{
		Name: "bt601-full",
		Matrix: [3][3]float32{
			{1, 0, 1.4},
			{1, -0.343, -0.711},
			{1, 1.765, 0},
		},
	}

	// Matrix601VideoRange is BT.601 with luminance in [16, 235].
	Matrix601VideoRange = gpu.ColorMatrix{
		Name: "bt601-video",
		Matrix: [3][3]float32{
			{1.164, 0, 1.596},
			{1.164, -0.392, -0.813},
			{1.164, 2.017, 0},
		},
		LuminanceOffset: 16.0 / 255,
	}

	// Matrix709VideoRange is BT.709 with luminance in [16, 235].
	Matrix709VideoRange = gpu.ColorMatrix{
		Name: "bt709-video",
		Matrix: [3][3]float32{
			{1.164, 0, 1.793},
			{1.164, -0.213, -0.533},
			{1.164, 2.112, 0},
		},
		LuminanceOffset: 16.0 / 255,
	}

	DefaultMatrix = Matrix601FullRange
)

var matrices = map[string]gpu.ColorMatrix{
	Matrix601FullRange.Name:  Matrix601FullRange,
	Matrix601VideoRange.Name: Matrix601VideoRange,
	Matrix709VideoRange.Name: Matrix709VideoRange,
}

// MatrixByName returns one of the predefined matrices.
func MatrixByName(name string) (gpu.ColorMatrix, error) {
	m, ok := matrices[strings.ToLower(name)]
	if !ok {
		return gpu.ColorMatrix{}, fmt.Errorf("unknown color matrix '%s', known: %s", name, strings.Join(MatrixNames(), ", "))
	}
	return m, nil
}

func MatrixNames() []string {
	names := make([]string, 0, len(matrices))
	for name := range matrices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
