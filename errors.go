package avplayer

import (
	"errors"

	"github.com/xaionaro-go/avplayer/demuxer"
)

type ErrLoad = demuxer.ErrLoad
type ErrReaderInit = demuxer.ErrReaderInit
type ErrStartReading = demuxer.ErrStartReading
type ErrRead = demuxer.ErrRead

var ErrAlreadyStarted = errors.New("the player is already started")
