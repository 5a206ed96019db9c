package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrNoVideo = errors.New("no video opened")
	ErrClosed  = errors.New("player closed")
)

// Virtual is an in-memory player whose position advances with the clock
// while playing. It stands in for a real video driver in headless relays.
type Virtual struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	url     string
	playing bool
	// position at anchor; the current position is derived from it
	offset float64
	anchor time.Time
	closed bool
}

func NewVirtual(log *slog.Logger) *Virtual {
	return NewVirtualWithClock(log, time.Now)
}

func NewVirtualWithClock(log *slog.Logger, now func() time.Time) *Virtual {
	if log == nil {
		log = slog.Default()
	}
	return &Virtual{log: log, now: now}
}

func (v *Virtual) OpenVideo(url string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.url = url
	v.playing = false
	v.offset = 0
	v.anchor = v.now()
	v.log.Info("video opened", "url", url)
	return nil
}

func (v *Virtual) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.readyLocked(); err != nil {
		return err
	}
	if !v.playing {
		v.offset = v.positionLocked()
		v.anchor = v.now()
		v.playing = true
	}
	return nil
}

func (v *Virtual) Pause() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.readyLocked(); err != nil {
		return err
	}
	if v.playing {
		v.offset = v.positionLocked()
		v.anchor = v.now()
		v.playing = false
	}
	return nil
}

func (v *Virtual) SeekTo(seconds float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.readyLocked(); err != nil {
		return err
	}
	v.offset = max(seconds, 0)
	v.anchor = v.now()
	return nil
}

func (v *Virtual) CurrentTime() (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.readyLocked(); err != nil {
		return 0, err
	}
	return v.positionLocked(), nil
}

func (v *Virtual) IsPlaying() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.readyLocked(); err != nil {
		return false, err
	}
	return v.playing, nil
}

// URL returns the currently opened video, or "" if none.
func (v *Virtual) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.playing = false
	return nil
}

func (v *Virtual) readyLocked() error {
	switch {
	case v.closed:
		return ErrClosed
	case v.url == "":
		return ErrNoVideo
	}
	return nil
}

func (v *Virtual) positionLocked() float64 {
	if !v.playing {
		return v.offset
	}
	return v.offset + v.now().Sub(v.anchor).Seconds()
}
