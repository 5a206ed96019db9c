package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/google/uuid"

	"watchparty/internal/metrics"
	"watchparty/internal/peer"
	"watchparty/internal/protocol"
	"watchparty/internal/tracker"
)

var (
	ErrDuplicatePeer    = errors.New("peer id already connected")
	ErrInvalidThreshold = errors.New("sync threshold must be > 0")
)

const DefaultSyncThreshold = 1.0

type Options struct {
	SyncThreshold float64
	ChatHistory   int
	SendQueue     int
	WriteTimeout  time.Duration
	MaxFrameBytes int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Coordinator holds the authoritative state of one watch session. Every
// mutation of state, peers, positions and the host designation happens
// under mu, in arrival order.
type Coordinator struct {
	id       string
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	peerOpts peer.Options
	maxFrame int
	chat     *ringBuffer[ChatEntry]

	mu        sync.Mutex
	state     PlaybackState
	peers     map[string]*peer.Conn
	positions *tracker.Tracker
	hostID    string
	threshold float64
}

func New(opts Options) *Coordinator {
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = DefaultSyncThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ChatHistory < 0 {
		opts.ChatHistory = 0
	}
	return &Coordinator{
		id:      uuid.NewString(),
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		peerOpts: peer.Options{
			QueueSize:    opts.SendQueue,
			WriteTimeout: opts.WriteTimeout,
			Logger:       opts.Logger,
		},
		maxFrame:  opts.MaxFrameBytes,
		chat:      newRingBuffer[ChatEntry](opts.ChatHistory),
		peers:     make(map[string]*peer.Conn),
		positions: tracker.New(),
		threshold: opts.SyncThreshold,
	}
}

func (c *Coordinator) ID() string {
	return c.id
}

// NewPeer wraps a transport with the coordinator's per-peer settings.
func (c *Coordinator) NewPeer(t peer.Transport) *peer.Conn {
	return peer.New(t, c.peerOpts)
}

// ServeListener accepts TCP peers until ctx is done or ln is closed.
func (c *Coordinator) ServeListener(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.log.Error("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		c.log.Info("new connection", "remote", nc.RemoteAddr().String())
		go c.Serve(ctx, c.NewPeer(peer.NewTCPTransport(nc, c.maxFrame)))
	}
}

// Serve registers conn and runs its inbound loop until the connection ends.
func (c *Coordinator) Serve(ctx context.Context, conn *peer.Conn) {
	if err := c.Join(ctx, conn); err != nil {
		c.log.Warn("rejecting peer", "peer", conn.ID(), "error", err)
		conn.Close()
		return
	}
	defer c.Leave(ctx, conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msg, err := conn.Recv()
		if err != nil {
			if protocol.IsDecodeError(err) {
				c.log.Warn("discarding malformed message", "peer", conn.ID(), "error", err)
				c.metrics.MessageDropped("malformed")
				continue
			}
			c.log.Info("peer disconnected", "peer", conn.ID(), "reason", err)
			return
		}
		c.Handle(ctx, conn, msg)
	}
}

// Join adds conn to the session. A late joiner gets the current video_info
// before anything else.
func (c *Coordinator) Join(ctx context.Context, conn *peer.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := conn.ID()
	if _, exists := c.peers[id]; exists {
		return ErrDuplicatePeer
	}
	c.peers[id] = conn
	conn.Start()
	c.metrics.SetPeers(len(c.peers))
	ilog.EventInfo(ctx, "peer_joined", "sessionID", c.id, "peer", id, "peers", len(c.peers))

	if c.state.Loaded {
		c.sendLocked(ctx, id, c.state.videoInfo())
	}
	return nil
}

// Leave removes conn and everything keyed by it. It is a no-op if conn was
// already removed.
func (c *Coordinator) Leave(ctx context.Context, conn *peer.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peers[conn.ID()] != conn {
		return
	}
	c.removeLocked(ctx, conn.ID(), "disconnected")
}

func (c *Coordinator) removeLocked(ctx context.Context, id, reason string) {
	conn, ok := c.peers[id]
	if !ok {
		return
	}
	delete(c.peers, id)
	c.positions.Remove(id)
	conn.Close()
	c.metrics.SetPeers(len(c.peers))
	ilog.EventInfo(ctx, "peer_left", "sessionID", c.id, "peer", id, "reason", reason, "peers", len(c.peers))

	if c.hostID == id {
		c.hostID = ""
		c.log.Info("host designation cleared", "peer", id)
		ilog.EventInfo(ctx, "host_cleared", "sessionID", c.id, "peer", id)
	}
}

// sendLocked delivers to one peer; on failure that peer alone is removed.
func (c *Coordinator) sendLocked(ctx context.Context, id string, msg protocol.Message) {
	conn, ok := c.peers[id]
	if !ok {
		return
	}
	if err := conn.Send(msg); err != nil {
		c.log.Info("send failed, removing peer", "peer", id, "type", msg.Type(), "error", err)
		c.metrics.SendFailed()
		c.removeLocked(ctx, id, "send failed")
	}
}

func (c *Coordinator) broadcastLocked(ctx context.Context, msg protocol.Message) {
	for id := range c.peers {
		c.sendLocked(ctx, id, msg)
	}
}

func (c *Coordinator) SyncThreshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

func (c *Coordinator) SetSyncThreshold(ctx context.Context, seconds float64) error {
	if !validTime(seconds) || seconds <= 0 {
		return ErrInvalidThreshold
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.threshold != seconds {
		ilog.EventInfo(ctx, "threshold_changed", "sessionID", c.id, "from", c.threshold, "to", seconds)
	}
	c.threshold = seconds
	return nil
}

// State returns a copy of the playback state.
func (c *Coordinator) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) HostID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostID
}

func (c *Coordinator) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:     c.id,
		VideoURL:      c.state.VideoURL,
		IsPlaying:     c.state.Playing,
		Position:      c.state.Position,
		UpdatedAt:     c.state.UpdatedAt,
		HostID:        c.hostID,
		SyncThreshold: c.threshold,
		Peers:         make([]PeerSnapshot, 0, len(c.peers)),
	}
	for id := range c.peers {
		ps := PeerSnapshot{ID: id, IsHost: id == c.hostID}
		if rec, ok := c.positions.Get(id); ok {
			pos, at := rec.Position, rec.ReportedAt
			ps.ReportedPosition = &pos
			ps.ReportedAt = &at
		}
		snap.Peers = append(snap.Peers, ps)
	}
	sort.Slice(snap.Peers, func(i, j int) bool {
		return snap.Peers[i].ID < snap.Peers[j].ID
	})
	return snap
}

// ChatHistory returns the retained chat messages, oldest first.
func (c *Coordinator) ChatHistory() []ChatEntry {
	return c.chat.Snapshot()
}

// Close drops every peer.
func (c *Coordinator) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.peers {
		c.removeLocked(ctx, id, "shutdown")
	}
}
