// Package loopback connects two in-process WebRTC peers over an ordered
// DataChannel, so an encode pipeline on one side feeds a decode pipeline on
// the other through a real SCTP/DTLS/ICE stack.
//
// Each DataChannel message holds one ipc record. An empty message marks the
// end of the stream; records are never empty, and the channel is ordered, so
// the marker arrives after every record sent before it.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/log"
)

// ChannelLabel is the label of the frame DataChannel.
const ChannelLabel = "frames"

// Flow control thresholds for the sending side.
const (
	highWatermark = 1 << 20
	lowWatermark  = 256 << 10
)

// ErrClosed is returned when the pair is used after Close.
var ErrClosed = errors.New("loopback pair closed")

// Options configures a Pair.
type Options struct {
	// Logger receives pion's internal logs. Defaults to a no-op logger.
	Logger *log.Logger
	// QueueSize is the receive buffer in messages. Defaults to 256.
	QueueSize int
}

// Pair is a connected sender/receiver PeerConnection pair.
type Pair struct {
	logger   *log.Logger
	sender   *webrtc.PeerConnection
	receiver *webrtc.PeerConnection

	writer *channelWriter
	reader *channelReader

	done      chan struct{}
	closeOnce sync.Once
}

// New negotiates a Pair and waits until the DataChannel is open on both
// ends or ctx is done.
func New(ctx context.Context, opts Options) (*Pair, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 256
	}

	se := webrtc.SettingEngine{LoggerFactory: log.NewPionFactory(logger)}
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	p := &Pair{
		logger: logger,
		done:   make(chan struct{}),
	}
	p.reader = &channelReader{msgs: make(chan []byte, queue), done: p.done}

	var err error
	if p.sender, err = api.NewPeerConnection(webrtc.Configuration{}); err != nil {
		return nil, fmt.Errorf("create sender peer: %w", err)
	}
	if p.receiver, err = api.NewPeerConnection(webrtc.Configuration{}); err != nil {
		_ = p.sender.Close()
		return nil, fmt.Errorf("create receiver peer: %w", err)
	}

	if err := p.connect(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pair) connect(ctx context.Context) error {
	senderOpen := make(chan struct{})
	receiverOpen := make(chan struct{})

	p.receiver.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			return
		}
		dc.OnOpen(func() { close(receiverOpen) })
		dc.OnMessage(p.reader.deliver)
		dc.OnClose(p.reader.finish)
	})

	ordered := true
	dc, err := p.sender.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.writer = newChannelWriter(dc, p.done)
	dc.OnOpen(func() { close(senderOpen) })

	if err := p.negotiate(ctx); err != nil {
		return err
	}

	for _, ch := range []chan struct{}{senderOpen, receiverOpen} {
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("wait for data channel: %w", ctx.Err())
		}
	}
	p.logger.Debug("loopback connected", map[string]any{"label": ChannelLabel})
	return nil
}

// negotiate runs a complete offer/answer exchange with gathered candidates.
func (p *Pair) negotiate(ctx context.Context) error {
	offer, err := p.sender.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := setLocalAndGather(ctx, p.sender, offer); err != nil {
		return fmt.Errorf("sender local description: %w", err)
	}
	if err := p.receiver.SetRemoteDescription(*p.sender.LocalDescription()); err != nil {
		return fmt.Errorf("receiver remote description: %w", err)
	}

	answer, err := p.receiver.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := setLocalAndGather(ctx, p.receiver, answer); err != nil {
		return fmt.Errorf("receiver local description: %w", err)
	}
	if err := p.sender.SetRemoteDescription(*p.receiver.LocalDescription()); err != nil {
		return fmt.Errorf("sender remote description: %w", err)
	}
	return nil
}

func setLocalAndGather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return err
	}
	select {
	case <-gathered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Writer returns the sending end. Its Close sends the end-of-stream marker.
func (p *Pair) Writer() ipc.RecordWriter {
	return p.writer
}

// Reader returns the receiving end. It yields io.EOF after the
// end-of-stream marker.
func (p *Pair) Reader() ipc.RecordReader {
	return p.reader
}

// Close tears down both peers. Pending reads and writes fail with
// ErrClosed.
func (p *Pair) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.sender != nil {
			errs = append(errs, p.sender.Close())
		}
		if p.receiver != nil {
			errs = append(errs, p.receiver.Close())
		}
	})
	return errors.Join(errs...)
}

// channelWriter sends records on the DataChannel with flow control.
type channelWriter struct {
	dc   *webrtc.DataChannel
	done <-chan struct{}
	low  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newChannelWriter(dc *webrtc.DataChannel, done <-chan struct{}) *channelWriter {
	w := &channelWriter{dc: dc, done: done, low: make(chan struct{}, 1)}
	dc.SetBufferedAmountLowThreshold(lowWatermark)
	dc.OnBufferedAmountLow(func() {
		select {
		case w.low <- struct{}{}:
		default:
		}
	})
	return w
}

// WriteRecord implements ipc.RecordWriter.
func (w *channelWriter) WriteRecord(ctx context.Context, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	if err := w.waitBuffered(ctx); err != nil {
		return err
	}
	return w.dc.Send(payload)
}

// waitBuffered blocks while the outgoing buffer is above the high
// watermark.
func (w *channelWriter) waitBuffered(ctx context.Context) error {
	for w.dc.BufferedAmount() > highWatermark {
		select {
		case <-w.low:
		case <-w.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close sends the end-of-stream marker once.
func (w *channelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.dc.Send([]byte{})
}

// channelReader buffers inbound DataChannel messages.
type channelReader struct {
	msgs chan []byte
	done <-chan struct{}

	mu       sync.Mutex
	finished bool
}

func (r *channelReader) deliver(msg webrtc.DataChannelMessage) {
	if len(msg.Data) == 0 {
		r.finish()
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	select {
	case r.msgs <- msg.Data:
	case <-r.done:
	}
}

func (r *channelReader) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.finished = true
		close(r.msgs)
	}
}

// ReadRecord implements ipc.RecordReader.
func (r *channelReader) ReadRecord(ctx context.Context) ([]byte, error) {
	select {
	case <-r.done:
		return nil, ErrClosed
	default:
	}
	select {
	case data, ok := <-r.msgs:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var (
	_ ipc.RecordReader = (*channelReader)(nil)
	_ ipc.RecordWriter = (*channelWriter)(nil)
)
