package hertzapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"watchparty/internal/logger"
	"watchparty/internal/metrics"
	"watchparty/internal/session"
)

func newTestRouter() (*session.Coordinator, *server.Hertz) {
	m := metrics.New()
	coordinator := session.New(session.Options{
		SyncThreshold: 1,
		Logger:        logger.Discard(),
		Metrics:       m,
	})
	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	return coordinator, NewRouter(h, coordinator, m, logger.Discard())
}

// TestHertzHealthz 测试健康检查接口
func TestHertzHealthz(t *testing.T) {
	_, h := newTestRouter()
	w := ut.PerformRequest(h.Engine, consts.MethodGet, "/healthz", nil)
	resp := w.Result()
	if resp.StatusCode() != consts.StatusOK || string(resp.Body()) != "ok" {
		t.Errorf("healthz: %d %q", resp.StatusCode(), resp.Body())
	}
}

// TestHertzSession 测试会话快照与阈值修改
func TestHertzSession(t *testing.T) {
	coordinator, h := newTestRouter()

	w := ut.PerformRequest(h.Engine, consts.MethodGet, "/api/session", nil)
	var snap session.Snapshot
	if err := json.Unmarshal(w.Result().Body(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID != coordinator.ID() {
		t.Errorf("session id mismatch: %q", snap.SessionID)
	}

	body := `{"syncThreshold":3}`
	w = ut.PerformRequest(h.Engine, consts.MethodPut, "/api/session/threshold",
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	if w.Result().StatusCode() != consts.StatusOK {
		t.Fatalf("set threshold: %d %s", w.Result().StatusCode(), w.Result().Body())
	}
	if got := coordinator.SyncThreshold(); got != 3 {
		t.Errorf("threshold not applied: %v", got)
	}

	body = `{"syncThreshold":-1}`
	w = ut.PerformRequest(h.Engine, consts.MethodPut, "/api/session/threshold",
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	if w.Result().StatusCode() != consts.StatusBadRequest {
		t.Errorf("invalid threshold accepted: %d", w.Result().StatusCode())
	}
}

// TestHertzMetrics 测试指标接口
func TestHertzMetrics(t *testing.T) {
	_, h := newTestRouter()
	w := ut.PerformRequest(h.Engine, consts.MethodGet, "/metrics", nil)
	resp := w.Result()
	if resp.StatusCode() != consts.StatusOK || !strings.Contains(string(resp.Body()), "watchparty_peers_connected") {
		t.Errorf("metrics: %d %s", resp.StatusCode(), resp.Body())
	}
}
