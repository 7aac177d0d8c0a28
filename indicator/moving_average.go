// Package indicator provides smoothing indicators for noisy measurements
// such as frame intervals.
package indicator

import (
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

type MovingAverage[T Number] interface {
	Update(v T) T
	Value() T
	InitPeriod() int64
	Valid() bool
}
