package frames

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/frameheader"
	"github.com/ozontech/contentpipe/message"
	"github.com/ozontech/contentpipe/utils/pool"
)

// Sink consumes whole frames; message.Reassembler is one.
type Sink interface {
	Accept(frame message.Frame, cb content.Callback)
}

type FrameTypeProcessor interface {
	Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error
}

type Processor struct {
	splitter      *Splitter
	subprocessors []FrameTypeProcessor
}

func NewProcessor(subprocessors []FrameTypeProcessor) *Processor {
	return &Processor{new(Splitter), subprocessors}
}

func (p *Processor) Run(ch <-chan []byte) error {
	for b := range ch {
		err := p.process(b)
		if err != nil {
			return err
		}
	}
	return nil
}

// Pending reports whether the input stopped in the middle of a frame.
func (p *Processor) Pending() bool { return p.splitter.Pending() }

func (p *Processor) process(buf []byte) error {
	p.splitter.Fill(buf)
	for {
		b, status := p.splitter.Next()
		if status == StatusHeaderIncomplete {
			return nil
		}

		header := p.splitter.Header()
		if t := int(header.Type()); t < len(p.subprocessors) {
			if sp := p.subprocessors[t]; sp != nil {
				err := sp.Process(header, b, status == StatusPayloadIncomplete)
				if err != nil {
					return err
				}
			}
		}

		if status == StatusFrameDone {
			continue
		}
		return nil
	}
}

// dataFrameProcessor collects DATA frames of one stream into pooled buffers
// and hands each complete frame to the sink once a credit is available.
type dataFrameProcessor struct {
	streamID uint32
	sink     Sink
	credits  *credits
	bufs     *pool.Buffers
	log      *zap.Logger

	cur       []byte
	pooled    bool
	delivered int
}

func newDataFrameProcessor(
	streamID uint32,
	sink Sink,
	credits *credits,
	bufs *pool.Buffers,
	log *zap.Logger,
) *dataFrameProcessor {
	return &dataFrameProcessor{
		streamID: streamID,
		sink:     sink,
		credits:  credits,
		bufs:     bufs,
		log:      log,
	}
}

func (p *dataFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	if !header.IsData(p.streamID) {
		return nil
	}

	if p.cur == nil {
		p.pooled = header.Length() <= p.bufs.Size()
		if p.pooled {
			p.cur = p.bufs.Get()[:0]
		} else {
			p.cur = make([]byte, 0, header.Length())
		}
	}
	p.cur = append(p.cur, payload...)
	if incomplete {
		return nil
	}

	buf, pooled := p.cur, p.pooled
	p.cur = nil
	release := func() {
		if pooled {
			p.bufs.Put(buf)
		}
	}

	data := buf
	if header.Flags().Has(http2.FlagDataPadded) {
		if len(buf) == 0 || int(buf[0]) >= len(buf) {
			release()
			return fmt.Errorf("stream %d: %w", header.StreamID(), errPaddingTooBig)
		}
		data = buf[1 : len(buf)-int(buf[0])]
	}

	if !p.credits.Wait(1) {
		release()
		return errStopped
	}

	fin := header.EndStream()
	p.delivered++
	p.log.Debug("data frame",
		zap.Uint32("stream", header.StreamID()),
		zap.Int("length", len(data)),
		zap.Bool("fin", fin),
	)
	p.sink.Accept(
		message.Frame{Payload: data, Fin: fin},
		content.Release(release),
	)
	return nil
}

type rstStreamFrameProcessor struct {
	streamID uint32
	errCode  uint32
}

func newRSTStreamFrameProcessor(streamID uint32) *rstStreamFrameProcessor {
	return &rstStreamFrameProcessor{streamID, 0}
}

func (p *rstStreamFrameProcessor) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	for _, b := range payload {
		p.errCode = (p.errCode << 8) | uint32(b)
	}
	if incomplete {
		return nil
	}

	errCode := http2.ErrCode(p.errCode)
	p.errCode = 0

	streamID := header.StreamID()
	if p.streamID != 0 && streamID != p.streamID {
		return nil
	}
	return RSTStreamError{StreamID: streamID, Code: errCode}
}

type goAwayFrameProcessor struct {
	errCode      uint32
	lastStreamID uint32
	debugData    []byte
	index        int
}

func newGoAwayFrameProcessor() *goAwayFrameProcessor {
	return &goAwayFrameProcessor{}
}

func (p *goAwayFrameProcessor) Process(_ frameheader.FrameHeader, payload []byte, incomplete bool) error {
	maxIndex := p.index + len(payload)
	for ; p.index < min(4, maxIndex); p.index++ {
		b := payload[0]
		payload = payload[1:]
		p.lastStreamID = (p.lastStreamID << 8) | uint32(b)
	}

	for ; p.index < min(8, maxIndex); p.index++ {
		b := payload[0]
		payload = payload[1:]
		p.errCode = (p.errCode << 8) | uint32(b)
	}
	p.debugData = append(p.debugData, payload...)

	if incomplete {
		return nil
	}

	err := GoAwayError{
		Code:         http2.ErrCode(p.errCode),
		LastStreamID: p.lastStreamID &^ (1 << 31),
		DebugData:    bytes.Clone(p.debugData),
	}
	p.errCode = 0
	p.lastStreamID = 0
	p.debugData = p.debugData[:0]
	p.index = 0
	return err
}
