package libav

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/logger"
)

type Demuxer struct{}

var _ demuxer.Demuxer = (*Demuxer)(nil)

func New() *Demuxer {
	return &Demuxer{}
}

func (*Demuxer) String() string {
	return "LibAVDemuxer"
}

func (d *Demuxer) OpenSession(
	ctx context.Context,
	asset demuxer.Asset,
) (_ demuxer.Reader, _err error) {
	logger.Debugf(ctx, "OpenSession(%s)", asset)
	defer func() { logger.Debugf(ctx, "/OpenSession(%s): %v", asset, _err) }()
	a, ok := asset.(*Asset)
	if !ok {
		return nil, fmt.Errorf("%T is not a libav asset", asset)
	}
	r, err := newReader(ctx, a)
	if err != nil {
		return nil, err
	}
	return r, nil
}
