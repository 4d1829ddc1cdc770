// Package frames turns a raw HTTP/2 byte stream into DATA frames handed to a
// message sink, one frame per granted demand.
package frames

import "github.com/ozontech/contentpipe/frameheader"

// Splitter cuts buffers into frame payload pieces. A header or payload may
// straddle several buffers.
type Splitter struct {
	currentHeader frameheader.FrameHeader
	header        frameheader.FrameHeader
	payloadLeft   int
	buf           []byte
}

// Status tells where the current frame stands after Next.
type Status int

const (
	StatusFrameDone Status = iota
	StatusFrameDoneBufEmpty
	StatusHeaderIncomplete
	StatusPayloadIncomplete
)

func (s Status) String() string {
	switch s {
	case StatusFrameDone:
		return "frame done"
	case StatusFrameDoneBufEmpty:
		return "frame done, buffer empty"
	case StatusHeaderIncomplete:
		return "header incomplete"
	case StatusPayloadIncomplete:
		return "payload incomplete"
	}
	return "unknown"
}

// Header of the frame the last piece belongs to. It aliases the splitter's
// own storage and is overwritten once the next frame header is read.
func (s *Splitter) Header() frameheader.FrameHeader {
	return s.header
}

// Next returns the next payload piece of the filled buffer and where the
// current frame stands after it. The piece aliases the buffer. A nil piece
// with StatusHeaderIncomplete means the buffer ran out inside a header;
// StatusFrameDoneBufEmpty and both incomplete statuses mean Fill is due.
func (s *Splitter) Next() ([]byte, Status) {
	if !s.readHeader() {
		return nil, StatusHeaderIncomplete
	}
	s.header = s.currentHeader

	switch n := len(s.buf); {
	case n > s.payloadLeft:
		piece := s.take(s.payloadLeft)
		s.currentHeader = s.currentHeader[:0]
		return piece, StatusFrameDone
	case n == s.payloadLeft:
		piece := s.take(n)
		s.currentHeader = s.currentHeader[:0]
		return piece, StatusFrameDoneBufEmpty
	default:
		s.payloadLeft -= n
		return s.take(n), StatusPayloadIncomplete
	}
}

// readHeader completes the current header from the buffer; false means
// the buffer was used up first.
func (s *Splitter) readHeader() bool {
	missing := frameheader.Size - len(s.currentHeader)
	if missing == 0 {
		return true
	}
	if len(s.buf) < missing {
		s.currentHeader = append(s.currentHeader, s.take(len(s.buf))...)
		return false
	}
	s.currentHeader = append(s.currentHeader, s.take(missing)...)
	s.payloadLeft = s.currentHeader.Length()
	return true
}

func (s *Splitter) take(n int) []byte {
	piece := s.buf[:n]
	s.buf = s.buf[n:]
	return piece
}

// Fill hands the splitter the next chunk of the stream. The previous chunk
// must be used up.
func (s *Splitter) Fill(b []byte) {
	s.buf = b
}

// Pending reports whether a frame was started and not finished.
func (s *Splitter) Pending() bool {
	return len(s.currentHeader) != 0
}
