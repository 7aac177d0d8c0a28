package frame

import (
	"fmt"
)

// Orientation is the rotation consumers should apply to display the
// picture upright.
type Orientation int

const (
	OrientationUp = Orientation(iota)
	OrientationRight
	OrientationDown
	OrientationLeft
)

func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "up"
	case OrientationRight:
		return "right"
	case OrientationDown:
		return "down"
	case OrientationLeft:
		return "left"
	default:
		return fmt.Sprintf("unknown_orientation_%d", int(o))
	}
}

// OrientationFromDegrees maps a clockwise rotation to an Orientation.
func OrientationFromDegrees(deg int) (Orientation, error) {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	switch deg {
	case 0:
		return OrientationUp, nil
	case 90:
		return OrientationRight, nil
	case 180:
		return OrientationDown, nil
	case 270:
		return OrientationLeft, nil
	default:
		return OrientationUp, fmt.Errorf("rotation by %d degrees is not supported", deg)
	}
}
