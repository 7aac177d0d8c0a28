package gpu

import (
	"fmt"
)

type ErrExecutorClosed struct{}

func (ErrExecutorClosed) Error() string {
	return "the GPU executor is closed"
}

type ErrPanic struct {
	Value any
}

func (e ErrPanic) Error() string {
	return fmt.Sprintf("panic on the GPU executor: %v", e.Value)
}

type ErrUnknownProgram struct {
	ID ProgramID
}

func (e ErrUnknownProgram) Error() string {
	return fmt.Sprintf("program %s is not available", e.ID)
}

type ErrForeignFramebuffer struct {
	Framebuffer Framebuffer
}

func (e ErrForeignFramebuffer) Error() string {
	return fmt.Sprintf("framebuffer %s does not belong to this pipeline", e.Framebuffer)
}
