package session

import (
	"context"
	"math"
	"strings"

	"github.com/RanFeng/ilog"
	"github.com/google/uuid"

	"watchparty/internal/peer"
	"watchparty/internal/protocol"
)

const anonymous = "Anonymous"

// Handle applies one inbound message from conn. Messages from a connection
// that is no longer part of the session are ignored.
func (c *Coordinator) Handle(ctx context.Context, conn *peer.Conn, msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := conn.ID()
	if c.peers[from] != conn {
		return
	}
	c.metrics.MessageReceived(string(msg.Type()))
	c.log.Debug("message received", "peer", from, "type", msg.Type())

	switch m := msg.(type) {
	case protocol.SetVideo:
		c.setVideoLocked(ctx, from, m)
	case protocol.Play:
		if c.requireVideoLocked(from, m) {
			c.state.Playing = true
			c.touchLocked()
			c.broadcastLocked(ctx, protocol.Play{})
		}
	case protocol.Pause:
		if c.requireVideoLocked(from, m) {
			c.state.Playing = false
			c.touchLocked()
			c.broadcastLocked(ctx, protocol.Pause{})
		}
	case protocol.Seek:
		if c.requireVideoLocked(from, m) && c.requireTimeLocked(from, m, m.Time) {
			c.state.Position = m.Time
			c.touchLocked()
			c.broadcastLocked(ctx, protocol.Seek{Time: m.Time})
		}
	case protocol.SyncRequest:
		if c.requireVideoLocked(from, m) {
			c.broadcastLocked(ctx, protocol.HostTimeRequest{Requester: protocol.PeerID(from)})
			// fallback until the host answers, possibly stale
			c.sendLocked(ctx, from, c.state.videoInfo())
		}
	// host-only by convention, accepted from any peer
	case protocol.HostTimeResponse:
		if c.requireTimeLocked(from, m, m.Time) {
			c.state.Position = m.Time
			c.state.Playing = m.Playing
			c.touchLocked()
			if m.Requester != "" {
				requester := string(m.Requester)
				c.sendLocked(ctx, requester, protocol.Seek{Time: m.Time})
				c.sendLocked(ctx, requester, protocol.PlayState(m.Playing))
			}
		}
	case protocol.ForceSync:
		if c.requireTimeLocked(from, m, m.Time) {
			c.state.Position = m.Time
			c.state.Playing = m.Playing
			c.touchLocked()
			c.broadcastLocked(ctx, protocol.Seek{Time: m.Time})
			c.broadcastLocked(ctx, protocol.PlayState(m.Playing))
		}
	case protocol.ReportPosition:
		if c.requireTimeLocked(from, m, m.Time) {
			c.reportPositionLocked(ctx, from, m)
		}
	case protocol.Chat:
		c.chatLocked(ctx, m)
	case protocol.VideoInfo, protocol.HostTimeRequest, protocol.AutoSync:
		c.dropLocked(from, m, "wrong_direction")
	default:
		c.dropLocked(from, m, "unhandled")
	}
}

func (c *Coordinator) setVideoLocked(ctx context.Context, from string, m protocol.SetVideo) {
	c.state = PlaybackState{
		VideoURL:  m.URL,
		Loaded:    true,
		Playing:   false,
		Position:  0,
		UpdatedAt: c.now(),
	}
	c.log.Info("video set", "peer", from, "url", m.URL)
	ilog.EventInfo(ctx, "video_set", "sessionID", c.id, "peer", from, "url", m.URL)
	c.broadcastLocked(ctx, c.state.videoInfo())
}

func (c *Coordinator) reportPositionLocked(ctx context.Context, from string, m protocol.ReportPosition) {
	c.positions.Upsert(from, m.Time, c.now())
	if !m.IsHost {
		return
	}

	if c.hostID != from {
		previous := c.hostID
		c.hostID = from
		c.metrics.HostChanged()
		c.log.Info("host designated", "peer", from, "previous", previous)
		ilog.EventInfo(ctx, "host_designated", "sessionID", c.id, "peer", from, "previous", previous)
	}
	c.state.Position = m.Time
	c.state.Playing = m.Playing
	c.touchLocked()
	c.correctDriftLocked(ctx, m.Time)
}

// correctDriftLocked pushes a one-shot auto_sync to every follower whose last
// report is further than the threshold from the host position.
func (c *Coordinator) correctDriftLocked(ctx context.Context, hostPosition float64) {
	for id := range c.peers {
		if id == c.hostID {
			continue
		}
		rec, ok := c.positions.Get(id)
		if !ok {
			continue
		}
		drift := math.Abs(hostPosition - rec.Position)
		c.metrics.ObserveDrift(drift)
		if drift <= c.threshold {
			continue
		}
		c.log.Info("drift correction", "peer", id, "drift", drift, "host_position", hostPosition)
		c.metrics.AutoSync()
		c.sendLocked(ctx, id, protocol.AutoSync{Time: hostPosition})
	}
}

func (c *Coordinator) chatLocked(ctx context.Context, m protocol.Chat) {
	if strings.TrimSpace(m.Content) == "" {
		c.metrics.MessageDropped("empty_chat")
		return
	}
	if m.Username == "" {
		m.Username = anonymous
	}
	c.chat.Push(ChatEntry{
		ID:       uuid.NewString(),
		Username: m.Username,
		Content:  m.Content,
		SentAt:   c.now(),
	})
	c.broadcastLocked(ctx, m)
}

func (c *Coordinator) touchLocked() {
	c.state.UpdatedAt = c.now()
}

func (c *Coordinator) requireVideoLocked(from string, m protocol.Message) bool {
	if c.state.Loaded {
		return true
	}
	c.dropLocked(from, m, "no_video")
	return false
}

func (c *Coordinator) requireTimeLocked(from string, m protocol.Message, t float64) bool {
	if validTime(t) {
		return true
	}
	c.dropLocked(from, m, "invalid_time")
	return false
}

func (c *Coordinator) dropLocked(from string, m protocol.Message, reason string) {
	c.log.Debug("message dropped", "peer", from, "type", m.Type(), "reason", reason)
	c.metrics.MessageDropped(reason)
}

func validTime(t float64) bool {
	return t >= 0 && !math.IsNaN(t) && !math.IsInf(t, 0)
}
