// Package wsock carries framewrap records over WebSocket.
//
// Every binary message holds exactly one msgpack record (see package ipc).
// Conn implements ipc.RecordReader and ipc.RecordWriter so the ipc Source
// and Sink adapters run unchanged over a socket.
package wsock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/framewrap/ipc"
)

// closeGracePeriod bounds how long a close handshake write may take.
const closeGracePeriod = time.Second

// Conn wraps a WebSocket connection. Reads must come from a single
// goroutine; writes are serialized internally.
type Conn struct {
	ws *websocket.Conn

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Dial connects to a framewrap WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(ws), nil
}

// ReadRecord implements ipc.RecordReader.
// A normal close from the peer is reported as io.EOF.
func (c *Conn) ReadRecord(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read message: %w", err)
		}
		switch msgType {
		case websocket.BinaryMessage:
			return data, nil
		case websocket.TextMessage:
			return nil, &ipc.FrameError{
				Kind: ipc.FrameErrorDecode,
				Msg:  "text messages are not supported",
			}
		}
	}
}

// WriteRecord implements ipc.RecordWriter.
func (c *Conn) WriteRecord(ctx context.Context, payload []byte) error {
	if len(payload) > ipc.MaxPayloadSize {
		return ipc.TooLargeError(uint64(len(payload)))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, payload)
}

// Close starts the close handshake: it tells the peer no more records
// follow. Reads keep working until the peer answers. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// Terminate closes the underlying network connection.
func (c *Conn) Terminate() error {
	return c.ws.Close()
}

var (
	_ ipc.RecordReader = (*Conn)(nil)
	_ ipc.RecordWriter = (*Conn)(nil)
)
