package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingType = errors.New("missing message type")
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError reports a frame that was read completely but could not be
// turned into a Message. The stream itself is still usable.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return "decode message: " + e.Err.Error()
	}
	return fmt.Sprintf("decode %s message: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err carries a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// frame is the flat JSON object every message is written as.
type frame struct {
	Type      string      `json:"type"`
	URL       *string     `json:"url,omitempty"`
	State     *VideoState `json:"state,omitempty"`
	Time      *float64    `json:"time,omitempty"`
	Playing   *bool       `json:"playing,omitempty"`
	IsHost    *bool       `json:"is_host,omitempty"`
	Requester *PeerID     `json:"requester,omitempty"`
	Username  *string     `json:"username,omitempty"`
	Content   *string     `json:"content,omitempty"`
}

// Marshal encodes m as a single JSON object without a trailing newline.
func Marshal(m Message) ([]byte, error) {
	f := frame{Type: string(m.Type())}
	switch v := m.(type) {
	case SetVideo:
		f.URL = &v.URL
	case VideoInfo:
		f.URL = &v.URL
		f.State = &v.State
	case Play, Pause, SyncRequest:
	case Seek:
		f.Time = &v.Time
	case HostTimeRequest:
		f.Requester = &v.Requester
	case HostTimeResponse:
		f.Time = &v.Time
		f.Playing = &v.Playing
		if v.Requester != "" {
			f.Requester = &v.Requester
		}
	case ForceSync:
		f.Time = &v.Time
		f.Playing = &v.Playing
	case ReportPosition:
		f.Time = &v.Time
		f.Playing = &v.Playing
		f.IsHost = &v.IsHost
	case AutoSync:
		f.Time = &v.Time
	case Chat:
		f.Username = &v.Username
		f.Content = &v.Content
	default:
		return nil, fmt.Errorf("marshal %T: %w", m, ErrUnknownType)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", f.Type, err)
	}
	return data, nil
}

// Unmarshal decodes one JSON object. Every failure is a *DecodeError.
func Unmarshal(data []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if f.Type == "" {
		return nil, &DecodeError{Err: ErrMissingType}
	}

	switch Type(f.Type) {
	case TypeSetVideo:
		if f.URL == nil || *f.URL == "" {
			return nil, &DecodeError{Type: f.Type, Err: errors.New("url is required")}
		}
		return SetVideo{URL: *f.URL}, nil
	case TypeVideoInfo:
		m := VideoInfo{URL: str(f.URL)}
		if f.State != nil {
			m.State = *f.State
		}
		return m, nil
	case TypePlay:
		return Play{}, nil
	case TypePause:
		return Pause{}, nil
	case TypeSeek:
		return Seek{Time: num(f.Time)}, nil
	case TypeSyncRequest:
		return SyncRequest{}, nil
	case TypeHostTimeRequest:
		return HostTimeRequest{Requester: peerID(f.Requester)}, nil
	case TypeHostTimeResponse:
		return HostTimeResponse{Time: num(f.Time), Playing: flag(f.Playing), Requester: peerID(f.Requester)}, nil
	case TypeForceSync:
		return ForceSync{Time: num(f.Time), Playing: flag(f.Playing)}, nil
	case TypeReportPosition:
		return ReportPosition{Time: num(f.Time), Playing: flag(f.Playing), IsHost: flag(f.IsHost)}, nil
	case TypeAutoSync:
		return AutoSync{Time: num(f.Time)}, nil
	case TypeChat:
		return Chat{Username: str(f.Username), Content: str(f.Content)}, nil
	default:
		return nil, &DecodeError{Type: f.Type, Err: ErrUnknownType}
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func flag(b *bool) bool {
	return b != nil && *b
}

func peerID(p *PeerID) PeerID {
	if p == nil {
		return ""
	}
	return *p
}
