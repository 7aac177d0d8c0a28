package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/xsync"
)

// Targets is the set of consumers frames are fanned out to.
type Targets struct {
	locker    xsync.Mutex
	consumers []Consumer
}

func (t *Targets) String() string {
	return fmt.Sprintf("Targets(%d)", t.Len(context.Background()))
}

// Add registers c; adding the same consumer twice is a no-op.
func (t *Targets) Add(ctx context.Context, c Consumer) {
	t.locker.Do(ctx, func() {
		for _, cur := range t.consumers {
			if cur == c {
				return
			}
		}
		t.consumers = append(t.consumers, c)
	})
}

// Remove reports whether c was registered.
func (t *Targets) Remove(ctx context.Context, c Consumer) bool {
	return xsync.DoR1(ctx, &t.locker, func() bool {
		for idx, cur := range t.consumers {
			if cur != c {
				continue
			}
			t.consumers = append(t.consumers[:idx:idx], t.consumers[idx+1:]...)
			return true
		}
		return false
	})
}

func (t *Targets) Len(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &t.locker, func() int {
		return len(t.consumers)
	})
}

func (t *Targets) get(ctx context.Context) []Consumer {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &t.locker, func() []Consumer {
		return t.consumers[:len(t.consumers):len(t.consumers)]
	})
}

// Deliver hands every consumer its own reference to f. The caller keeps
// its reference and releases it independently.
func (t *Targets) Deliver(
	ctx context.Context,
	f *Converted,
) (_err error) {
	logger.Tracef(ctx, "Deliver(%s)", f)
	defer func() { logger.Tracef(ctx, "/Deliver(%s): %v", f, _err) }()

	var errs []error
	for _, c := range t.get(ctx) {
		if err := c.ConsumeFrame(ctx, f.Share()); err != nil {
			logger.Warnf(ctx, "consumer %s failed to process %s: %v", c, f, err)
			errs = append(errs, fmt.Errorf("consumer %s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}
