package frame

import (
	"context"
	"fmt"
)

// Consumer receives converted frames.
//
// ConsumeFrame takes ownership of f and must Release it exactly once, even
// when returning an error.
type Consumer interface {
	fmt.Stringer
	ConsumeFrame(ctx context.Context, f *Converted) error
}

// FuncConsumer adapts a function into a Consumer. Use it by pointer:
// Targets compares consumers by identity.
type FuncConsumer struct {
	Name string
	Func func(ctx context.Context, f *Converted) error
}

var _ Consumer = (*FuncConsumer)(nil)

func (c *FuncConsumer) String() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("FuncConsumer(%p)", c)
}

func (c *FuncConsumer) ConsumeFrame(ctx context.Context, f *Converted) error {
	return c.Func(ctx, f)
}
