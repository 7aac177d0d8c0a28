// Package gpu describes the texture/shader environment the player renders
// through, and provides the single-goroutine executor all GPU work is
// submitted on.
//
// Implementations of Pipeline are not required to be safe for concurrent
// use: callers serialize access through an Executor.
package gpu

import (
	"context"
	"fmt"
	"image"
)

// Framebuffer is a texture (optionally with an attached render target).
//
// Framebuffers are reference counted: Acquire hands out a framebuffer with a
// single reference, every Lock adds one, every Unlock drops one, and the
// framebuffer returns to its pipeline's cache once no references are left.
type Framebuffer interface {
	fmt.Stringer
	Size() Size
	Format() TextureFormat
	Lock()
	Unlock()
}

// ImageReader is implemented by framebuffers whose pixels can be read back
// to host memory.
type ImageReader interface {
	ReadImage(ctx context.Context) (*image.RGBA, error)
}

// Program is a pre-built shader program.
type Program interface {
	fmt.Stringer
	ID() ProgramID
}

type ProgramID int

const (
	ProgramIDUndefined = ProgramID(iota)

	// ProgramIDNV12ToRGB combines a luminance texture and an interleaved
	// two-channel chrominance texture into RGB.
	ProgramIDNV12ToRGB
)

func (id ProgramID) String() string {
	switch id {
	case ProgramIDUndefined:
		return "undefined"
	case ProgramIDNV12ToRGB:
		return "nv12_to_rgb"
	default:
		return fmt.Sprintf("unknown_program_%d", int(id))
	}
}

type Pipeline interface {
	fmt.Stringer

	// Program returns a pre-built program; the player never compiles shaders.
	Program(ctx context.Context, id ProgramID) (Program, error)

	// AcquireFramebuffer returns a framebuffer from the cache or allocates one.
	// textureOnly framebuffers have no render target and may only be sampled.
	AcquireFramebuffer(
		ctx context.Context,
		size Size,
		format TextureFormat,
		textureOnly bool,
	) (Framebuffer, error)

	// UploadPlane copies a plane from host memory into the framebuffer's texture.
	UploadPlane(
		ctx context.Context,
		fb Framebuffer,
		plane []byte,
		stride int,
	) error

	// RunConversionProgram renders inputs into output with the given matrix.
	RunConversionProgram(
		ctx context.Context,
		program Program,
		inputs []Framebuffer,
		output Framebuffer,
		matrix ColorMatrix,
	) error
}
