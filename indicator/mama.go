// mama.go implements the MESA Adaptive Moving Average (MAMA) indicator.

package indicator

import (
	"sync"

	indicators "github.com/lmpizarro/go_ehlers_indicators"
)

// MAMA smooths the last N measurements. Until N measurements are collected
// it passes values through as is.
type MAMA[T Number] struct {
	FastLimit float64
	SlowLimit float64

	locker  sync.Mutex
	window  []float64
	ordered []float64
	next    int
	count   int
	value   T
}

var _ MovingAverage[float64] = (*MAMA[float64])(nil)

func NewMAMADefault[T Number](n int) *MAMA[T] {
	return NewMAMA[T](n, 0.5, 0.05)
}

func NewMAMA[T Number](
	n int,
	fastLimit float64,
	slowLimit float64,
) *MAMA[T] {
	if n < 1 {
		n = 1
	}
	return &MAMA[T]{
		FastLimit: fastLimit,
		SlowLimit: slowLimit,
		window:    make([]float64, n),
		ordered:   make([]float64, n),
	}
}

func (m *MAMA[T]) Update(v T) T {
	m.locker.Lock()
	defer m.locker.Unlock()

	m.window[m.next] = float64(v)
	m.next = (m.next + 1) % len(m.window)
	m.count++
	if m.count < len(m.window) {
		m.value = v
		return v
	}

	// the oldest measurement is at m.next
	n := copy(m.ordered, m.window[m.next:])
	copy(m.ordered[n:], m.window[:m.next])

	result := indicators.MAMA(m.ordered, m.FastLimit, m.SlowLimit)
	m.value = T(result[len(result)-1])
	return m.value
}

func (m *MAMA[T]) Value() T {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.value
}

func (m *MAMA[T]) Reset() {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.next = 0
	m.count = 0
	m.value = 0
}

func (m *MAMA[T]) InitPeriod() int64 {
	return int64(len(m.window))
}

func (m *MAMA[T]) Valid() bool {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.count >= len(m.window)
}
