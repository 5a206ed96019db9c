package player

import (
	"errors"
	"testing"
	"time"

	"watchparty/internal/logger"
)

type fakeClock struct {
	t time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestPlayer(c *fakeClock) *Virtual {
	return NewVirtualWithClock(logger.Discard(), c.now)
}

func position(t *testing.T, v *Virtual) float64 {
	t.Helper()
	p, err := v.CurrentTime()
	must(t, err)
	return p
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestVirtualClock 测试播放时进度随时钟前进，暂停时保持不变
func TestVirtualClock(t *testing.T) {
	clock := newClock()
	v := newTestPlayer(clock)

	must(t, v.OpenVideo("https://youtube.com/watch?v=X"))
	must(t, v.SeekTo(10))
	clock.advance(3 * time.Second)
	if p := position(t, v); p != 10 {
		t.Fatalf("paused position moved: %v", p)
	}

	must(t, v.Play())
	clock.advance(4 * time.Second)
	if p := position(t, v); p != 14 {
		t.Fatalf("playing position: got %v, want 14", p)
	}

	must(t, v.Pause())
	clock.advance(time.Minute)
	if p := position(t, v); p != 14 {
		t.Fatalf("position after pause: got %v, want 14", p)
	}
	if playing, _ := v.IsPlaying(); playing {
		t.Errorf("expected paused")
	}
}

// TestVirtualOpenResets 测试打开新视频重置进度
func TestVirtualOpenResets(t *testing.T) {
	clock := newClock()
	v := newTestPlayer(clock)
	must(t, v.OpenVideo("a"))
	must(t, v.SeekTo(30))
	must(t, v.Play())

	must(t, v.OpenVideo("b"))
	clock.advance(time.Second)
	if p := position(t, v); p != 0 {
		t.Errorf("position after open: %v", p)
	}
	if v.URL() != "b" {
		t.Errorf("url mismatch: %q", v.URL())
	}
}

// TestVirtualErrors 测试未打开视频与关闭后的错误
func TestVirtualErrors(t *testing.T) {
	v := newTestPlayer(newClock())
	if err := v.Play(); !errors.Is(err, ErrNoVideo) {
		t.Errorf("Play without video: %v", err)
	}
	if _, err := v.CurrentTime(); !errors.Is(err, ErrNoVideo) {
		t.Errorf("CurrentTime without video: %v", err)
	}

	must(t, v.OpenVideo("a"))
	must(t, v.Close())
	if err := v.SeekTo(1); !errors.Is(err, ErrClosed) {
		t.Errorf("SeekTo after close: %v", err)
	}
	if err := v.OpenVideo("b"); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenVideo after close: %v", err)
	}
}
