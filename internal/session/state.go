package session

import (
	"time"

	"watchparty/internal/protocol"
)

// PlaybackState is the authoritative playback record of the session.
type PlaybackState struct {
	VideoURL  string
	Loaded    bool
	Playing   bool
	Position  float64
	UpdatedAt time.Time
}

func (s PlaybackState) videoInfo() protocol.VideoInfo {
	return protocol.VideoInfo{
		URL:   s.VideoURL,
		State: protocol.VideoState{Playing: s.Playing, Time: s.Position},
	}
}

type Snapshot struct {
	SessionID     string         `json:"sessionId"`
	VideoURL      string         `json:"videoUrl,omitempty"`
	IsPlaying     bool           `json:"isPlaying"`
	Position      float64        `json:"position"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	HostID        string         `json:"hostId,omitempty"`
	SyncThreshold float64        `json:"syncThreshold"`
	Peers         []PeerSnapshot `json:"peers"`
}

type PeerSnapshot struct {
	ID               string     `json:"id"`
	IsHost           bool       `json:"isHost"`
	ReportedPosition *float64   `json:"reportedPosition,omitempty"`
	ReportedAt       *time.Time `json:"reportedAt,omitempty"`
}
