package protocol

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
)

type Type string

const (
	TypeSetVideo         Type = "set_video"
	TypeVideoInfo        Type = "video_info"
	TypePlay             Type = "play"
	TypePause            Type = "pause"
	TypeSeek             Type = "seek"
	TypeSyncRequest      Type = "sync_request"
	TypeHostTimeRequest  Type = "host_time_request"
	TypeHostTimeResponse Type = "host_time_response"
	TypeForceSync        Type = "force_sync"
	TypeReportPosition   Type = "report_position"
	TypeAutoSync         Type = "auto_sync"
	TypeChat             Type = "chat"
)

// Types lists every message type of the catalog.
var Types = []Type{
	TypeSetVideo,
	TypeVideoInfo,
	TypePlay,
	TypePause,
	TypeSeek,
	TypeSyncRequest,
	TypeHostTimeRequest,
	TypeHostTimeResponse,
	TypeForceSync,
	TypeReportPosition,
	TypeAutoSync,
	TypeChat,
}

// Message is one entry of the closed message catalog. Only types in this
// package implement it.
type Message interface {
	Type() Type
	message()
}

// PeerID identifies a connection on the coordinator, usually "host:port".
type PeerID string

// UnmarshalJSON accepts either a string or a [host, port] pair.
func (p *PeerID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PeerID(s)
		return nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return fmt.Errorf("requester must be a string or [host, port]")
	}
	var host string
	if err := json.Unmarshal(pair[0], &host); err != nil {
		return fmt.Errorf("requester host: %w", err)
	}
	var port json.Number
	if err := json.Unmarshal(pair[1], &port); err != nil {
		var ps string
		if err := json.Unmarshal(pair[1], &ps); err != nil {
			return fmt.Errorf("requester port: %w", err)
		}
		port = json.Number(ps)
	}
	if _, err := strconv.Atoi(port.String()); err != nil {
		return fmt.Errorf("requester port: %w", err)
	}
	*p = PeerID(net.JoinHostPort(host, port.String()))
	return nil
}

type VideoState struct {
	Playing bool    `json:"playing"`
	Time    float64 `json:"time"`
}

type SetVideo struct {
	URL string
}

type VideoInfo struct {
	URL   string
	State VideoState
}

type Play struct{}

type Pause struct{}

type Seek struct {
	Time float64
}

type SyncRequest struct{}

type HostTimeRequest struct {
	Requester PeerID
}

type HostTimeResponse struct {
	Time      float64
	Playing   bool
	Requester PeerID
}

type ForceSync struct {
	Time    float64
	Playing bool
}

type ReportPosition struct {
	Time    float64
	Playing bool
	IsHost  bool
}

type AutoSync struct {
	Time float64
}

type Chat struct {
	Username string
	Content  string
}

func (SetVideo) Type() Type         { return TypeSetVideo }
func (VideoInfo) Type() Type        { return TypeVideoInfo }
func (Play) Type() Type             { return TypePlay }
func (Pause) Type() Type            { return TypePause }
func (Seek) Type() Type             { return TypeSeek }
func (SyncRequest) Type() Type      { return TypeSyncRequest }
func (HostTimeRequest) Type() Type  { return TypeHostTimeRequest }
func (HostTimeResponse) Type() Type { return TypeHostTimeResponse }
func (ForceSync) Type() Type        { return TypeForceSync }
func (ReportPosition) Type() Type   { return TypeReportPosition }
func (AutoSync) Type() Type         { return TypeAutoSync }
func (Chat) Type() Type             { return TypeChat }

func (SetVideo) message()         {}
func (VideoInfo) message()        {}
func (Play) message()             {}
func (Pause) message()            {}
func (Seek) message()             {}
func (SyncRequest) message()      {}
func (HostTimeRequest) message()  {}
func (HostTimeResponse) message() {}
func (ForceSync) message()        {}
func (ReportPosition) message()   {}
func (AutoSync) message()         {}
func (Chat) message()             {}

// PlayState returns Play or Pause for the given flag.
func PlayState(playing bool) Message {
	if playing {
		return Play{}
	}
	return Pause{}
}

// Envelope is the error/answer shape used by the HTTP surfaces.
type Envelope struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
