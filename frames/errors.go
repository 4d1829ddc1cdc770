package frames

import (
	"errors"

	"golang.org/x/net/http2"
)

type GoAwayError struct {
	Code         http2.ErrCode
	LastStreamID uint32
	DebugData    []byte
}

func (e GoAwayError) Error() string {
	return "go away (" + e.Code.String() + "): " + string(e.DebugData)
}

type RSTStreamError struct {
	StreamID uint32
	Code     http2.ErrCode
}

func (e RSTStreamError) Error() string {
	return "rst stream: " + e.Code.String()
}

var (
	errStopped       = errors.New("pump stopped while waiting for demand")
	errPaddingTooBig = errors.New("pad length exceeds DATA frame payload")
)
