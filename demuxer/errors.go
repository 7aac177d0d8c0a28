package demuxer

import (
	"errors"
	"fmt"
)

// ErrLoad means the asset metadata could not be resolved.
type ErrLoad struct {
	Asset Asset
	Err   error
}

func (e ErrLoad) Error() string {
	return fmt.Sprintf("unable to load asset %v: %v", e.Asset, e.Err)
}

func (e ErrLoad) Unwrap() error {
	return e.Err
}

// ErrReaderInit means the demuxer could not construct a reader for the asset.
type ErrReaderInit struct {
	Asset Asset
	Err   error
}

func (e ErrReaderInit) Error() string {
	return fmt.Sprintf("unable to initialize a reader for asset %v: %v", e.Asset, e.Err)
}

func (e ErrReaderInit) Unwrap() error {
	return e.Err
}

// ErrStartReading means the reader was constructed but refused to start.
type ErrStartReading struct {
	Err error
}

func (e ErrStartReading) Error() string {
	return fmt.Sprintf("unable to start reading: %v", e.Err)
}

func (e ErrStartReading) Unwrap() error {
	return e.Err
}

// ErrRead means the reader failed in the middle of a read pass.
type ErrRead struct {
	Err error
}

func (e ErrRead) Error() string {
	return fmt.Sprintf("unable to read a sample: %v", e.Err)
}

func (e ErrRead) Unwrap() error {
	return e.Err
}

// ErrNotReading is returned by pulls issued while the session is not
// reading. Callers treat it as the end of the track.
type ErrNotReading struct {
	Status Status
}

func (e ErrNotReading) Error() string {
	return fmt.Sprintf("the session is not reading (status: %s)", e.Status)
}

func IsNotReading(err error) bool {
	var target ErrNotReading
	return errors.As(err, &target)
}

var (
	ErrNoVideoTrack = errors.New("the asset has no video track")
	ErrNoOutput     = errors.New("no output was added for the track")
)
