// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Packet is one decoded frame: {"type": ..., "payload": ...}.
type Packet struct {
	Event string          `json:"type"`
	Data  json.RawMessage `json:"payload,omitempty"`
}

type Connection interface {
	Send(event string, payload []byte) error
	Close() error
	RemoteAddr() net.Addr
	ReadPacket() (*Packet, error)
}

// Encode builds the frame for event. payload must be JSON or empty.
func Encode(event string, payload []byte) ([]byte, error) {
	return json.Marshal(Packet{Event: event, Data: payload})
}

// Decode parses a frame read from the wire.
func Decode(frame []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(frame, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Options tune a WSConnection. Zero values disable the write deadline and
// the keepalive; SendBuffer falls back to DefaultSendBuffer.
type Options struct {
	WriteTimeout time.Duration
	Heartbeat    time.Duration
	SendBuffer   int
}

const DefaultSendBuffer = 64

// WSConnection queues outbound frames for a dedicated writer goroutine so a
// slow peer never blocks the sender. The writer also pings every Heartbeat;
// any frame or pong from the peer extends the read deadline to 2*Heartbeat.
type WSConnection struct {
	conn      *websocket.Conn
	opts      Options
	send      chan []byte
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSConnection(conn *websocket.Conn, opts Options) *WSConnection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	c := &WSConnection{
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	if opts.Heartbeat > 0 {
		c.extendReadDeadline()
		conn.SetPongHandler(func(string) error {
			c.extendReadDeadline()
			return nil
		})
	}
	go c.writePump()
	return c
}

// Send queues a frame. A peer that lets its queue fill up is disconnected.
func (c *WSConnection) Send(event string, payload []byte) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.quit:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.quit:
		return ErrConnectionClosed
	default:
		c.shutdown()
		return ErrSendBufferFull
	}
}

// ReadPacket blocks for the next frame. A frame that is not a valid envelope
// returns an error wrapping ErrMalformedFrame; the connection stays usable.
func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if c.opts.Heartbeat > 0 {
		c.extendReadDeadline()
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return p, nil
}

// Close flushes what is already queued, within one write timeout, and closes
// the socket.
func (c *WSConnection) Close() error {
	c.shutdown()
	<-c.done
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) shutdown() {
	c.closeOnce.Do(func() { close(c.quit) })
}

func (c *WSConnection) extendReadDeadline() {
	c.conn.SetReadDeadline(time.Now().Add(c.opts.Heartbeat * 2))
}

func (c *WSConnection) setWriteDeadline() {
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
}

func (c *WSConnection) writePump() {
	defer close(c.done)
	defer c.conn.Close()

	var ping <-chan time.Time
	if c.opts.Heartbeat > 0 {
		ticker := time.NewTicker(c.opts.Heartbeat)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame := <-c.send:
			c.setWriteDeadline()
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}
		case <-ping:
			c.setWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.quit:
			c.flush()
			return
		}
	}
}

// flush writes the frames still queued at close under a single deadline.
func (c *WSConnection) flush() {
	timeout := c.opts.WriteTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
