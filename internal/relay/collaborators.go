package relay

import (
	"log/slog"

	"watchparty/internal/protocol"
)

// Player drives the local video. Calls may block for a long time; the agent
// never holds a lock while calling into it.
type Player interface {
	OpenVideo(url string) error
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	CurrentTime() (float64, error)
	IsPlaying() (bool, error)
	Close() error
}

// Initializer is implemented by players that need a setup step before the
// first video is opened.
type Initializer interface {
	Init() error
}

// Display receives what the participant should see.
type Display interface {
	OnChatMessage(username, content string)
	OnSystemMessage(text string)
	OnConnectionStateChanged(connected bool)
}

// MessageObserver is an optional Display extension that sees every inbound
// message before it is applied.
type MessageObserver interface {
	OnMessage(msg protocol.Message)
}

// logDisplay is used when no display is wired.
type logDisplay struct {
	log *slog.Logger
}

func (d logDisplay) OnChatMessage(username, content string) {
	d.log.Info("chat", "username", username, "content", content)
}

func (d logDisplay) OnSystemMessage(text string) {
	d.log.Info(text)
}

func (d logDisplay) OnConnectionStateChanged(connected bool) {
	d.log.Info("connection state changed", "connected", connected)
}
