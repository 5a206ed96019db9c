package hertzws

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/gorilla/websocket"

	"watchparty/internal/logger"
	"watchparty/internal/protocol"
	"watchparty/internal/session"
)

// freeAddr 获取一个空闲的本地端口
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestHertzWebSocketPeer 测试通过Hertz接入的WebSocket成员参与会话
func TestHertzWebSocketPeer(t *testing.T) {
	coordinator := session.New(session.Options{SyncThreshold: 1, Logger: logger.Discard()})
	addr := freeAddr(t)

	h := server.New(server.WithHostPorts(addr), server.WithExitWaitTime(0))
	h.NoHijackConnPool = true
	h.GET("/ws", NewHandler(coordinator, logger.Discard()).HandleWebSocket)
	go h.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})

	var conn *websocket.Conn
	waitFor(t, "hertz server", func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	})
	defer conn.Close()
	waitFor(t, "peer join", func() bool { return coordinator.PeerCount() == 1 })

	data, err := protocol.Marshal(protocol.SetVideo{URL: "https://youtube.com/watch?v=X"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := protocol.Unmarshal(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := (protocol.VideoInfo{URL: "https://youtube.com/watch?v=X"}); got != want {
		t.Fatalf("got %#v, want %#v", got, want)
	}

	conn.Close()
	waitFor(t, "peer removal", func() bool { return coordinator.PeerCount() == 0 })
}
