package frames

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/http2"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/frameheader"
	"github.com/ozontech/contentpipe/message"
	"github.com/ozontech/contentpipe/utils/pool"
)

type framer struct {
	*http2.Framer
	W *bytes.Buffer
}

func newFramer() *framer {
	bufW := bytes.NewBuffer(nil)
	return &framer{http2.NewFramer(bufW, nil), bufW}
}

type processCall struct {
	Header     frameheader.FrameHeader
	Payload    []byte
	Incomplete bool
}

type FrameTypeProcessorMock struct {
	ProcessFunc func(header frameheader.FrameHeader, payload []byte, incomplete bool) error

	mu    sync.Mutex
	calls []processCall
}

func (m *FrameTypeProcessorMock) Process(header frameheader.FrameHeader, payload []byte, incomplete bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, processCall{
		Header:     bytes.Clone(header),
		Payload:    bytes.Clone(payload),
		Incomplete: incomplete,
	})
	m.mu.Unlock()
	if m.ProcessFunc == nil {
		return nil
	}
	return m.ProcessFunc(header, payload, incomplete)
}

func (m *FrameTypeProcessorMock) ProcessCalls() []processCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]processCall(nil), m.calls...)
}

type sinkMock struct {
	frames []message.Frame
	cbs    []content.Callback
}

func (s *sinkMock) Accept(frame message.Frame, cb content.Callback) {
	frame.Payload = bytes.Clone(frame.Payload)
	s.frames = append(s.frames, frame)
	s.cbs = append(s.cbs, cb)
}

func TestProcessor(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	tpData := &FrameTypeProcessorMock{}
	tpPing := &FrameTypeProcessorMock{}
	p := NewProcessor([]FrameTypeProcessor{
		http2.FrameData: tpData,
		http2.FramePing: tpPing,
	})

	pingPayload := [8]byte{8, 7, 6, 5, 4, 3, 2, 1}
	framer := newFramer()
	a.NoError(framer.WritePing(false, pingPayload))
	b := framer.W.Bytes()

	ch := make(chan []byte, 2)
	ch <- b[:len(b)-1]
	ch <- b[len(b)-1:]
	close(ch)
	a.NoError(p.Run(ch))

	a.Empty(tpData.ProcessCalls())
	calls := tpPing.ProcessCalls()
	require.Len(t, calls, 2)
	a.True(calls[0].Incomplete)
	a.Equal(pingPayload[:len(pingPayload)-1], calls[0].Payload)
	a.False(calls[1].Incomplete)
	a.Equal(pingPayload[len(pingPayload)-1:], calls[1].Payload)
	a.False(p.Pending())
}

func TestProcessorUnknownFrameType(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	tpData := &FrameTypeProcessorMock{}
	p := NewProcessor([]FrameTypeProcessor{http2.FrameData: tpData})

	framer := newFramer()
	a.NoError(framer.WriteRawFrame(0xf0, 0, 0, []byte("ext")))
	a.NoError(framer.WriteData(1, true, []byte("x")))

	a.NoError(p.process(framer.W.Bytes()))
	calls := tpData.ProcessCalls()
	require.Len(t, calls, 1)
	a.Equal([]byte("x"), calls[0].Payload)
}

func TestDataFrameProcessor(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	bufs := pool.NewBuffers(16, 2)
	sink := &sinkMock{}
	fp := newDataFrameProcessor(7, sink, newCredits(10), bufs, zaptest.NewLogger(t))

	// pieces of one frame are joined
	{
		fh := frameheader.NewFrameHeader()
		fh.Fill(5, http2.FrameData, 0, 7)
		a.NoError(fp.Process(fh, []byte("he"), true))
		a.Empty(sink.frames)
		a.NoError(fp.Process(fh, []byte("llo"), false))
		require.Len(t, sink.frames, 1)
		a.Equal(message.Frame{Payload: []byte("hello")}, sink.frames[0])
		a.Equal(int64(1), bufs.InUse())
		sink.cbs[0].Succeeded()
		a.Zero(bufs.InUse())
	}

	// other streams and frame types are skipped
	{
		fh := frameheader.NewFrameHeader()
		fh.Fill(1, http2.FrameData, http2.FlagDataEndStream, 9)
		a.NoError(fp.Process(fh, []byte("x"), false))
		fh.Fill(1, http2.FrameHeaders, http2.FlagHeadersEndStream, 7)
		a.NoError(fp.Process(fh, []byte("x"), false))
		a.Len(sink.frames, 1)
	}

	// padding is stripped, end stream marks the final frame
	{
		framer := newFramer()
		a.NoError(framer.WriteDataPadded(7, true, []byte("abc"), []byte{0, 0}))
		b := framer.W.Bytes()
		a.NoError(fp.Process(frameheader.FrameHeader(b[:9]), b[9:], false))
		require.Len(t, sink.frames, 2)
		a.Equal(message.Frame{Payload: []byte("abc"), Fin: true}, sink.frames[1])
	}

	// frames larger than a pooled buffer
	{
		big := bytes.Repeat([]byte("z"), 40)
		fh := frameheader.NewFrameHeader()
		fh.Fill(len(big), http2.FrameData, 0, 7)
		a.NoError(fp.Process(fh, big, false))
		require.Len(t, sink.frames, 3)
		a.Equal(big, sink.frames[2].Payload)
		sink.cbs[2].Succeeded()
	}

	a.Equal(3, fp.delivered)
}

func TestDataFrameProcessorBadPadding(t *testing.T) {
	t.Parallel()
	bufs := pool.NewBuffers(16, 2)
	fp := newDataFrameProcessor(0, &sinkMock{}, newCredits(1), bufs, zaptest.NewLogger(t))

	fh := frameheader.NewFrameHeader()
	fh.Fill(2, http2.FrameData, http2.FlagDataPadded, 1)
	err := fp.Process(fh, []byte{5, 'a'}, false)
	assert.ErrorIs(t, err, errPaddingTooBig)
	assert.Zero(t, bufs.InUse())
}

func TestDataFrameProcessorWaitsForCredit(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	sink := &sinkMock{}
	c := newCredits(0)
	fp := newDataFrameProcessor(0, sink, c, pool.NewBuffers(16, 2), zaptest.NewLogger(t))

	fh := frameheader.NewFrameHeader()
	fh.Fill(1, http2.FrameData, 0, 1)
	done := make(chan error)
	go func() { done <- fp.Process(fh, []byte("x"), false) }()

	select {
	case <-done:
		t.Fatal("frame delivered without demand")
	case <-time.After(20 * time.Millisecond):
	}
	c.Add(1)
	a.NoError(<-done)
	a.Len(sink.frames, 1)
	a.Zero(c.Available())

	c.Disable()
	a.ErrorIs(fp.Process(fh, []byte("y"), false), errStopped)
	a.Len(sink.frames, 1)
}

func TestRSTStreamFrameProcessor(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	const streamID uint32 = 21123
	const errCode = http2.ErrCodeInternal

	framer := newFramer()
	a.NoError(framer.WriteRSTStream(streamID, errCode))
	a.NoError(framer.WriteRSTStream(streamID+2, errCode))

	fp := newRSTStreamFrameProcessor(streamID)
	header := frameheader.FrameHeader(framer.W.Next(9))
	a.NoError(fp.Process(header, framer.W.Next(1), true))
	a.Equal(
		RSTStreamError{StreamID: streamID, Code: errCode},
		fp.Process(header, framer.W.Next(3), false),
	)

	// other streams are not ours
	header = frameheader.FrameHeader(framer.W.Next(9))
	a.NoError(fp.Process(header, framer.W.Bytes(), false))
}

func TestGoAwayProcessor(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	const streamID uint32 = 192
	const code = http2.ErrCodeInternal
	debugData := []byte("this is debug data")

	framer := newFramer()
	a.NoError(framer.WriteGoAway(streamID, code, debugData))

	fp := newGoAwayFrameProcessor()
	header := frameheader.FrameHeader(framer.W.Next(9))
	a.NoError(fp.Process(header, framer.W.Next(1), true))
	a.Equal(
		GoAwayError{
			Code:         code,
			LastStreamID: streamID,
			DebugData:    debugData,
		},
		fp.Process(header, framer.W.Bytes(), false),
	)
}

func TestCreditsDisable(t *testing.T) {
	t.Parallel()
	c := newCredits(1)
	assert.True(t, c.Wait(1))
	assert.True(t, c.Wait(0))
	c.Disable()
	assert.False(t, c.Wait(1))
}
