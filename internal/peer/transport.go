package peer

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"watchparty/internal/protocol"
)

// Transport moves whole frames over one bidirectional stream.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// TCPTransport frames messages as newline-delimited JSON over a net.Conn.
type TCPTransport struct {
	conn   net.Conn
	reader *protocol.FrameReader
}

func NewTCPTransport(conn net.Conn, maxFrame int) *TCPTransport {
	return &TCPTransport{
		conn:   conn,
		reader: protocol.NewFrameReader(conn, maxFrame),
	}
}

func (t *TCPTransport) ReadFrame() ([]byte, error) {
	return t.reader.ReadFrame()
}

func (t *TCPTransport) WriteFrame(frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := t.conn.Write(buf)
	return err
}

func (t *TCPTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *TCPTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *TCPTransport) Close() error {
	return t.conn.Close()
}

// WSConn is the subset of a websocket connection the transport needs.
// Both gorilla/websocket and hertz-contrib/websocket connections satisfy it.
type WSConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// WebSocketTransport carries one message per text frame.
type WebSocketTransport struct {
	conn WSConn
	// websocket connections allow one concurrent writer
	writeMu sync.Mutex
}

func NewWebSocketTransport(conn WSConn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) ReadFrame() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (t *WebSocketTransport) WriteFrame(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *WebSocketTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *WebSocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Close returns immediately. The close frame is written in the background
// because Close may run under the coordinator lock and a stalled peer can
// hold the control write until its deadline.
func (t *WebSocketTransport) Close() error {
	go func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = t.conn.Close()
	}()
	return nil
}
