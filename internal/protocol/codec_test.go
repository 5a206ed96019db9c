package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// TestUnmarshalCatalog 测试消息目录中每种消息的解码
func TestUnmarshalCatalog(t *testing.T) {
	cases := []struct {
		raw  string
		want Message
	}{
		{`{"type":"set_video","url":"https://youtube.com/watch?v=X"}`, SetVideo{URL: "https://youtube.com/watch?v=X"}},
		{`{"type":"video_info","url":"u","state":{"playing":true,"time":12.5}}`, VideoInfo{URL: "u", State: VideoState{Playing: true, Time: 12.5}}},
		{`{"type":"play"}`, Play{}},
		{`{"type":"pause"}`, Pause{}},
		{`{"type":"seek","time":42}`, Seek{Time: 42}},
		{`{"type":"sync_request"}`, SyncRequest{}},
		{`{"type":"host_time_request","requester":"10.0.0.2:5000"}`, HostTimeRequest{Requester: "10.0.0.2:5000"}},
		{`{"type":"host_time_response","time":3,"playing":true,"requester":"10.0.0.2:5000"}`, HostTimeResponse{Time: 3, Playing: true, Requester: "10.0.0.2:5000"}},
		{`{"type":"force_sync","time":50,"playing":false}`, ForceSync{Time: 50}},
		{`{"type":"report_position","time":7.25,"playing":true,"is_host":true}`, ReportPosition{Time: 7.25, Playing: true, IsHost: true}},
		{`{"type":"auto_sync","time":42}`, AutoSync{Time: 42}},
		{`{"type":"chat","username":"ann","content":"hi"}`, Chat{Username: "ann", Content: "hi"}},
	}
	if len(cases) != len(Types) {
		t.Fatalf("catalog has %d types, test covers %d", len(Types), len(cases))
	}
	for _, tc := range cases {
		got, err := Unmarshal([]byte(tc.raw))
		if err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Unmarshal(%s) = %#v, want %#v", tc.raw, got, tc.want)
		}
	}
}

// TestUnmarshalDefaults 测试缺省字段的默认值
func TestUnmarshalDefaults(t *testing.T) {
	got, err := Unmarshal([]byte(`{"type":"report_position"}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != (ReportPosition{}) {
		t.Errorf("expected zero ReportPosition, got %#v", got)
	}

	got, err = Unmarshal([]byte(`{"type":"host_time_response","time":1,"requester":null}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resp := got.(HostTimeResponse); resp.Requester != "" || resp.Playing {
		t.Errorf("unexpected defaults: %#v", resp)
	}
}

// TestUnmarshalRequesterPair 测试兼容 [host, port] 形式的 requester
func TestUnmarshalRequesterPair(t *testing.T) {
	got, err := Unmarshal([]byte(`{"type":"host_time_request","requester":["127.0.0.1",51234]}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req := got.(HostTimeRequest); req.Requester != "127.0.0.1:51234" {
		t.Errorf("Requester mismatch: got %q", req.Requester)
	}

	_, err = Unmarshal([]byte(`{"type":"host_time_request","requester":[1,2,3]}`))
	if !IsDecodeError(err) {
		t.Errorf("expected DecodeError for bad requester, got %v", err)
	}
}

// TestUnmarshalMalformed 测试格式错误的消息返回可恢复的 DecodeError
func TestUnmarshalMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"url":"x"}`,
		`{"type":"launch_rockets"}`,
		`{"type":"seek","time":"soon"}`,
		`{"type":"set_video"}`,
	} {
		_, err := Unmarshal([]byte(raw))
		if !IsDecodeError(err) {
			t.Errorf("Unmarshal(%s): expected DecodeError, got %v", raw, err)
		}
	}

	_, err := Unmarshal([]byte(`{"type":"launch_rockets"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
	_, err = Unmarshal([]byte(`{}`))
	if !errors.Is(err, ErrMissingType) {
		t.Errorf("expected ErrMissingType, got %v", err)
	}
}

// TestMarshalShape 测试编码后的线上格式
func TestMarshalShape(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{VideoInfo{URL: "u", State: VideoState{}}, `{"type":"video_info","url":"u","state":{"playing":false,"time":0}}`},
		{Play{}, `{"type":"play"}`},
		{Seek{Time: 0}, `{"type":"seek","time":0}`},
		{AutoSync{Time: 42}, `{"type":"auto_sync","time":42}`},
		{HostTimeResponse{Time: 1, Playing: true}, `{"type":"host_time_response","time":1,"playing":true}`},
		{ReportPosition{Time: 2}, `{"type":"report_position","time":2,"playing":false,"is_host":false}`},
		{Chat{Username: "a", Content: "b"}, `{"type":"chat","username":"a","content":"b"}`},
	}
	for _, tc := range cases {
		data, err := Marshal(tc.msg)
		if err != nil {
			t.Errorf("Marshal(%#v) failed: %v", tc.msg, err)
			continue
		}
		if string(data) != tc.want {
			t.Errorf("Marshal(%#v) = %s, want %s", tc.msg, data, tc.want)
		}
	}
}

// TestFrameReader 测试换行分帧能处理合并和拆分的写入
func TestFrameReader(t *testing.T) {
	var stream []byte
	var err error
	stream, err = AppendFrame(stream, Play{})
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	stream, _ = AppendFrame(stream, Seek{Time: 9})
	stream = append(stream, "\n\n"...)
	stream = append(stream, `{"type":"pause"}`...)

	fr := NewFrameReader(&oneByteReader{data: stream}, 0)
	var got []Message
	for {
		frame, err := fr.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		msg, err := Unmarshal(frame)
		if err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", frame, err)
		}
		got = append(got, msg)
	}
	want := []Message{Play{}, Seek{Time: 9}, Pause{}}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d: %#v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %#v, want %#v", i, got[i], want[i])
		}
	}
}

// TestFrameReaderTooLarge 测试超长帧被拒绝
func TestFrameReaderTooLarge(t *testing.T) {
	fr := NewFrameReader(strings.NewReader(strings.Repeat("x", 100)+"\n"), 16)
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}
