// Package software implements gpu.Pipeline on the CPU.
//
// It is used by tests and by headless playback; its framebuffers can be read
// back as *image.RGBA.
package software

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/pool"
	"github.com/xaionaro-go/xsync"
)

type poolKey struct {
	Size        gpu.Size
	Format      gpu.TextureFormat
	TextureOnly bool
}

type Pipeline struct {
	locker xsync.Mutex
	pools  map[poolKey]*pool.Pool[Framebuffer]

	allocated   atomic.Uint64
	outstanding atomic.Int64
}

var _ gpu.Pipeline = (*Pipeline)(nil)

func New() *Pipeline {
	return &Pipeline{
		pools: map[poolKey]*pool.Pool[Framebuffer]{},
	}
}

func (p *Pipeline) String() string {
	return "SoftwarePipeline"
}

// Allocated returns how many framebuffers were ever allocated (cache misses).
func (p *Pipeline) Allocated() uint64 {
	return p.allocated.Load()
}

// Outstanding returns how many framebuffers are currently held by someone.
func (p *Pipeline) Outstanding() int64 {
	return p.outstanding.Load()
}

func (p *Pipeline) Program(
	ctx context.Context,
	id gpu.ProgramID,
) (gpu.Program, error) {
	switch id {
	case gpu.ProgramIDNV12ToRGB:
		return program{id: id}, nil
	default:
		return nil, gpu.ErrUnknownProgram{ID: id}
	}
}

func (p *Pipeline) AcquireFramebuffer(
	ctx context.Context,
	size gpu.Size,
	format gpu.TextureFormat,
	textureOnly bool,
) (_ret gpu.Framebuffer, _err error) {
	logger.Tracef(ctx, "AcquireFramebuffer(%s, %s, %t)", size, format, textureOnly)
	defer func() { logger.Tracef(ctx, "/AcquireFramebuffer(%s, %s, %t): %v, %v", size, format, textureOnly, _ret, _err) }()
	if size.IsZero() {
		return nil, fmt.Errorf("invalid framebuffer size %s", size)
	}
	if format.Channels() == 0 {
		return nil, fmt.Errorf("unsupported texture format %s", format)
	}

	fb := p.getPool(ctx, poolKey{Size: size, Format: format, TextureOnly: textureOnly}).Get()
	fb.refs.Store(1)
	p.outstanding.Add(1)
	return fb, nil
}

func (p *Pipeline) getPool(
	ctx context.Context,
	key poolKey,
) *pool.Pool[Framebuffer] {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() *pool.Pool[Framebuffer] {
		if pl, ok := p.pools[key]; ok {
			return pl
		}
		var pl *pool.Pool[Framebuffer]
		pl = pool.NewPool(
			func() *Framebuffer {
				p.allocated.Add(1)
				stride := key.Size.Width * key.Format.Channels()
				return &Framebuffer{
					pipeline:    p,
					pool:        pl,
					size:        key.Size,
					format:      key.Format,
					textureOnly: key.TextureOnly,
					Stride:      stride,
					Pix:         make([]byte, stride*key.Size.Height),
				}
			},
			nil,
			nil,
		)
		p.pools[key] = pl
		return pl
	})
}

func (p *Pipeline) asOwnFramebuffer(fb gpu.Framebuffer) (*Framebuffer, error) {
	own, ok := fb.(*Framebuffer)
	if !ok || own.pipeline != p {
		return nil, gpu.ErrForeignFramebuffer{Framebuffer: fb}
	}
	return own, nil
}

func (p *Pipeline) UploadPlane(
	ctx context.Context,
	fb gpu.Framebuffer,
	plane []byte,
	stride int,
) error {
	dst, err := p.asOwnFramebuffer(fb)
	if err != nil {
		return err
	}
	rowBytes := dst.size.Width * dst.format.Channels()
	if stride < rowBytes {
		return fmt.Errorf("stride %d is less than the row size %d of %s", stride, rowBytes, dst)
	}
	if need := (dst.size.Height-1)*stride + rowBytes; len(plane) < need {
		return fmt.Errorf("plane is too short for %s: %d < %d", dst, len(plane), need)
	}
	for y := 0; y < dst.size.Height; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowBytes], plane[y*stride:y*stride+rowBytes])
	}
	return nil
}

func (p *Pipeline) RunConversionProgram(
	ctx context.Context,
	prog gpu.Program,
	inputs []gpu.Framebuffer,
	output gpu.Framebuffer,
	matrix gpu.ColorMatrix,
) (_err error) {
	logger.Tracef(ctx, "RunConversionProgram(%s, %s)", prog, matrix)
	defer func() { logger.Tracef(ctx, "/RunConversionProgram(%s, %s): %v", prog, matrix, _err) }()
	if prog == nil || prog.ID() != gpu.ProgramIDNV12ToRGB {
		return gpu.ErrUnknownProgram{ID: programID(prog)}
	}
	if len(inputs) != 2 {
		return fmt.Errorf("%s expects 2 inputs, got %d", prog, len(inputs))
	}
	luma, err := p.asOwnFramebuffer(inputs[0])
	if err != nil {
		return err
	}
	chroma, err := p.asOwnFramebuffer(inputs[1])
	if err != nil {
		return err
	}
	out, err := p.asOwnFramebuffer(output)
	if err != nil {
		return err
	}
	if luma.format != gpu.TextureFormatLuminance || chroma.format != gpu.TextureFormatLuminanceAlpha {
		return fmt.Errorf("unexpected input formats: %s, %s", luma.format, chroma.format)
	}
	if out.format != gpu.TextureFormatRGBA || out.textureOnly {
		return fmt.Errorf("%s is not a renderable RGBA framebuffer", out)
	}
	return convertNV12(luma, chroma, out, matrix)
}

func programID(prog gpu.Program) gpu.ProgramID {
	if prog == nil {
		return gpu.ProgramIDUndefined
	}
	return prog.ID()
}

type program struct {
	id gpu.ProgramID
}

func (p program) ID() gpu.ProgramID {
	return p.id
}

func (p program) String() string {
	return "software:" + p.id.String()
}
