package peer

import (
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"watchparty/internal/protocol"
)

var (
	ErrClosed   = errors.New("peer connection closed")
	ErrSlowPeer = errors.New("peer send queue full")
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 10 * time.Second
)

type Options struct {
	// ID overrides the transport's remote address as the connection id.
	ID           string
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Conn owns one transport. Outbound frames go through a bounded FIFO drained
// by a single writer goroutine, so Send never blocks the caller and frames
// reach the wire in Send order.
type Conn struct {
	id           string
	transport    Transport
	send         chan []byte
	writeTimeout time.Duration
	log          *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func New(t Transport, opts Options) *Conn {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	id := opts.ID
	if id == "" {
		id = t.RemoteAddr()
	}
	return &Conn{
		id:           id,
		transport:    t,
		send:         make(chan []byte, opts.QueueSize),
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger.With("peer", id),
		done:         make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Start launches the writer goroutine. It is safe to call more than once.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.writeLoop()
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.closeWith(err)
				return
			}
			if err := c.transport.WriteFrame(frame); err != nil {
				c.log.Info("peer write failed", "error", err)
				c.closeWith(err)
				return
			}
		}
	}
}

// Send encodes m and queues it. A full queue is treated as a dead peer: the
// connection is closed and ErrSlowPeer returned.
func (c *Conn) Send(m protocol.Message) error {
	frame, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("peer send queue full, dropping connection", "type", m.Type())
		c.closeWith(ErrSlowPeer)
		return ErrSlowPeer
	}
}

// Recv blocks for the next message. A *protocol.DecodeError leaves the
// connection open; any other error means the connection is closed.
func (c *Conn) Recv() (protocol.Message, error) {
	frame, err := c.transport.ReadFrame()
	if err != nil {
		select {
		case <-c.done:
			return nil, ErrClosed
		default:
		}
		c.closeWith(err)
		return nil, err
	}
	return protocol.Unmarshal(frame)
}

// Messages yields decoded inbound messages until the connection ends.
// Malformed frames are logged and skipped. The sequence cannot be restarted.
func (c *Conn) Messages() iter.Seq[protocol.Message] {
	return func(yield func(protocol.Message) bool) {
		for {
			msg, err := c.Recv()
			if err != nil {
				if protocol.IsDecodeError(err) {
					c.log.Warn("discarding malformed message", "error", err)
					continue
				}
				return
			}
			if !yield(msg) {
				return
			}
		}
	}
}

func (c *Conn) Close() error {
	c.closeWith(ErrClosed)
	return nil
}

func (c *Conn) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		_ = c.transport.Close()
	})
}

// Done is closed exactly once, when the connection ends for any reason.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}
