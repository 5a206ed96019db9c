package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"watchparty/internal/config"
	"watchparty/internal/peer"
	"watchparty/internal/protocol"
)

var (
	ErrNotConnected     = errors.New("not connected to coordinator")
	ErrAlreadyConnected = errors.New("already connected to coordinator")
	ErrInvalidVideoURL  = errors.New("invalid video url")
	ErrInvalidSeek      = errors.New("invalid seek time")
	ErrPlayerNotReady   = errors.New("player not initialized")
	ErrEmptyMessage     = errors.New("empty chat message")
)

const (
	DefaultReportInterval = 5 * time.Second
	DefaultSyncInterval   = 2 * time.Second
)

// Agent bridges one participant's player and display to the coordinator.
// Inbound commands are applied by a single goroutine in arrival order;
// outbound intents may be called from any goroutine.
type Agent struct {
	cfg     config.RelayConfig
	player  Player
	display Display
	log     *slog.Logger

	host        atomic.Bool
	initialized atomic.Bool

	reportEvery *rate.Sometimes
	syncEvery   *rate.Sometimes

	mu   sync.Mutex
	conn *peer.Conn
}

func New(cfg config.RelayConfig, player Player, display Display, log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default()
	}
	if display == nil {
		display = logDisplay{log: log}
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.ReportTick <= 0 {
		cfg.ReportTick = time.Second
	}
	a := &Agent{
		cfg:         cfg,
		player:      player,
		display:     display,
		log:         log,
		reportEvery: &rate.Sometimes{Interval: cfg.ReportInterval},
		syncEvery:   &rate.Sometimes{Interval: cfg.SyncInterval},
	}
	a.host.Store(cfg.Host)
	return a
}

// Connect dials cfg.Server. A ws:// or wss:// address uses the websocket
// endpoint, anything else is treated as host:port for the TCP protocol.
func (a *Agent) Connect(ctx context.Context) error {
	var (
		t   peer.Transport
		err error
	)
	if strings.HasPrefix(a.cfg.Server, "ws://") || strings.HasPrefix(a.cfg.Server, "wss://") {
		t, err = a.dialWebSocket(ctx)
	} else {
		t, err = a.dialTCP(ctx)
	}
	if err != nil {
		a.display.OnSystemMessage(fmt.Sprintf("Failed to connect to %s", a.cfg.Server))
		return fmt.Errorf("connect %s: %w", a.cfg.Server, err)
	}
	if err := a.ConnectTransport(ctx, t); err != nil {
		t.Close()
		return err
	}
	return nil
}

func (a *Agent) dialTCP(ctx context.Context) (peer.Transport, error) {
	d := net.Dialer{Timeout: a.cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", a.cfg.Server)
	if err != nil {
		return nil, err
	}
	return peer.NewTCPTransport(nc, 0), nil
}

func (a *Agent) dialWebSocket(ctx context.Context) (peer.Transport, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = a.cfg.DialTimeout
	ws, _, err := dialer.DialContext(ctx, a.cfg.Server, nil)
	if err != nil {
		return nil, err
	}
	return peer.NewWebSocketTransport(ws), nil
}

// ConnectTransport attaches an established transport and asks the
// coordinator for the current state.
func (a *Agent) ConnectTransport(ctx context.Context, t peer.Transport) error {
	a.mu.Lock()
	if a.conn != nil {
		a.mu.Unlock()
		return ErrAlreadyConnected
	}
	conn := peer.New(t, peer.Options{
		ID:        "coordinator",
		QueueSize: a.cfg.SendQueue,
		Logger:    a.log,
	})
	a.conn = conn
	a.mu.Unlock()

	conn.Start()
	inbox := make(chan protocol.Message, max(a.cfg.InboxSize, 1))
	go a.readLoop(conn, inbox)
	go a.applyLoop(inbox)

	a.log.InfoContext(ctx, "connected to coordinator", "server", t.RemoteAddr())
	a.display.OnConnectionStateChanged(true)
	a.display.OnSystemMessage(fmt.Sprintf("Connected to %s", t.RemoteAddr()))

	if err := conn.Send(protocol.SyncRequest{}); err != nil {
		return fmt.Errorf("initial sync request: %w", err)
	}
	return nil
}

func (a *Agent) readLoop(conn *peer.Conn, inbox chan<- protocol.Message) {
	defer close(inbox)
	defer a.disconnected(conn)

	for msg := range conn.Messages() {
		select {
		case inbox <- msg:
		case <-conn.Done():
			return
		}
	}
}

func (a *Agent) applyLoop(inbox <-chan protocol.Message) {
	for msg := range inbox {
		a.apply(msg)
	}
}

func (a *Agent) disconnected(conn *peer.Conn) {
	a.mu.Lock()
	if a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.mu.Unlock()

	a.log.Info("disconnected from coordinator", "reason", conn.Err())
	a.display.OnConnectionStateChanged(false)
	a.display.OnSystemMessage("Disconnected from server")
}

// Connected reports whether a coordinator connection is attached.
func (a *Agent) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

func (a *Agent) IsHost() bool {
	return a.host.Load()
}

// SetHost changes whether this participant claims host authority in its
// position reports.
func (a *Agent) SetHost(host bool) {
	a.host.Store(host)
}

func (a *Agent) apply(msg protocol.Message) {
	if o, ok := a.display.(MessageObserver); ok {
		o.OnMessage(msg)
	}

	switch m := msg.(type) {
	case protocol.VideoInfo:
		a.loadVideo(m)
	case protocol.Play:
		a.whenReady("play", a.player.Play)
	case protocol.Pause:
		a.whenReady("pause", a.player.Pause)
	case protocol.Seek:
		a.whenReady("seek", func() error { return a.player.SeekTo(m.Time) })
	case protocol.HostTimeRequest:
		if a.IsHost() {
			a.answerHostTime(m)
		}
	case protocol.AutoSync:
		if !a.IsHost() {
			a.log.Debug("auto sync", "time", m.Time)
			a.whenReady("auto_sync", func() error { return a.player.SeekTo(m.Time) })
		}
	case protocol.Chat:
		a.display.OnChatMessage(m.Username, m.Content)
	default:
		a.log.Debug("ignoring message", "type", msg.Type())
	}
}

// loadVideo pauses before it conditionally plays so that a freshly opened
// video never starts on its own.
func (a *Agent) loadVideo(m protocol.VideoInfo) {
	if !a.initialized.Load() {
		if p, ok := a.player.(Initializer); ok {
			if err := p.Init(); err != nil {
				a.log.Warn("player init failed", "error", err)
				return
			}
		}
		a.initialized.Store(true)
	}

	if err := a.player.OpenVideo(m.URL); err != nil {
		a.log.Warn("open video failed", "url", m.URL, "error", err)
		return
	}
	a.playerCall("seek", func() error { return a.player.SeekTo(m.State.Time) })
	a.playerCall("pause", a.player.Pause)
	if m.State.Playing {
		a.playerCall("play", a.player.Play)
	}
	a.display.OnSystemMessage("Loaded video: " + m.URL)
}

func (a *Agent) answerHostTime(m protocol.HostTimeRequest) {
	if !a.initialized.Load() {
		return
	}
	t, playing, err := a.playerState()
	if err != nil {
		a.log.Warn("reading player state failed", "error", err)
		return
	}
	if err := a.send(protocol.HostTimeResponse{Time: t, Playing: playing, Requester: m.Requester}); err != nil {
		a.log.Info("host time response not sent", "error", err)
	}
}

func (a *Agent) whenReady(op string, fn func() error) {
	if !a.initialized.Load() {
		a.log.Debug("player not initialized, ignoring", "op", op)
		return
	}
	a.playerCall(op, fn)
}

func (a *Agent) playerCall(op string, fn func() error) {
	if err := fn(); err != nil {
		a.log.Warn("player command failed", "op", op, "error", err)
	}
}

func (a *Agent) playerState() (float64, bool, error) {
	t, err := a.player.CurrentTime()
	if err != nil {
		return 0, false, err
	}
	playing, err := a.player.IsPlaying()
	if err != nil {
		return 0, false, err
	}
	return t, playing, nil
}

func (a *Agent) send(m protocol.Message) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Send(m); err != nil {
		return fmt.Errorf("send %s: %w", m.Type(), err)
	}
	return nil
}

func (a *Agent) SetVideo(url string) error {
	if err := ValidateVideoURL(url, a.cfg.AllowedHosts); err != nil {
		return err
	}
	return a.send(protocol.SetVideo{URL: strings.TrimSpace(url)})
}

func (a *Agent) Play() error {
	return a.send(protocol.Play{})
}

func (a *Agent) Pause() error {
	return a.send(protocol.Pause{})
}

func (a *Agent) Seek(seconds float64) error {
	if err := ValidateSeek(seconds); err != nil {
		return err
	}
	return a.send(protocol.Seek{Time: seconds})
}

func (a *Agent) SendChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return a.send(protocol.Chat{Username: a.cfg.Username, Content: text})
}

// ForceSync pushes the local player position to every participant.
func (a *Agent) ForceSync() error {
	if !a.initialized.Load() {
		return ErrPlayerNotReady
	}
	t, playing, err := a.playerState()
	if err != nil {
		return fmt.Errorf("read player state: %w", err)
	}
	return a.send(protocol.ForceSync{Time: t, Playing: playing})
}

// ReportPosition sends the local position at most once per report
// interval. It returns false when nothing was sent.
func (a *Agent) ReportPosition() bool {
	if !a.Connected() || !a.initialized.Load() {
		return false
	}
	// read before taking the slot so a failing player is retried next tick
	t, playing, err := a.playerState()
	if err != nil {
		a.log.Warn("reading player state failed", "error", err)
		return false
	}
	sent := false
	a.reportEvery.Do(func() {
		sent = a.send(protocol.ReportPosition{Time: t, Playing: playing, IsHost: a.IsHost()}) == nil
	})
	return sent
}

// SyncWithServer asks for the host position at most once per sync
// interval.
func (a *Agent) SyncWithServer() bool {
	if !a.Connected() {
		return false
	}
	sent := false
	a.syncEvery.Do(func() {
		sent = a.send(protocol.SyncRequest{}) == nil
	})
	return sent
}

// Run reports the local position every report tick until ctx is done.
// Reports beyond the report interval are absorbed by ReportPosition.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.ReportTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if a.cfg.AutoSync {
				a.ReportPosition()
			}
		}
	}
}

// Close drops the coordinator connection and releases the player.
func (a *Agent) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return a.player.Close()
}
