package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/testutil"
)

func TestDashboard_Status(t *testing.T) {
	d := NewDashboard(0)

	if _, ok := d.Status(); ok {
		t.Fatal("expected no status before first update")
	}

	d.ShowStatus(session.Status{Level: session.LevelInfo, Message: session.MsgStarted})

	st, ok := d.Status()
	if !ok {
		t.Fatal("expected status after update")
	}
	if st.Message != session.MsgStarted {
		t.Errorf("message = %q, want %q", st.Message, session.MsgStarted)
	}
}

func TestDashboard_Subscribe(t *testing.T) {
	d := NewDashboard(0)

	updates, cancel := d.Subscribe()
	if d.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", d.Subscribers())
	}

	d.ShowStatus(session.Status{Message: "Top Gesture: hello (0.87)"})

	select {
	case st := <-updates:
		if st.Message != "Top Gesture: hello (0.87)" {
			t.Errorf("message = %q", st.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	cancel()
	if d.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", d.Subscribers())
	}
	if _, ok := <-updates; ok {
		t.Error("expected channel closed after cancel")
	}
}

func TestDashboard_SlowSubscriberDoesNotBlock(t *testing.T) {
	d := NewDashboard(0)
	_, cancel := d.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			d.ShowStatus(session.Status{Frames: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ShowStatus blocked on a full subscriber")
	}
}

func TestDashboard_ShowFrame(t *testing.T) {
	d := NewDashboard(90)

	if _, seq, _ := d.Frame(); seq != 0 {
		t.Fatalf("seq = %d before first frame, want 0", seq)
	}

	frames := testutil.Sequence(2)
	defer testutil.CloseAll(frames)

	d.ShowFrame(frames[0])
	jpeg, seq, next := d.Frame()
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
	if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
		t.Fatal("expected JPEG start-of-image marker")
	}

	d.ShowFrame(frames[1])
	select {
	case <-next:
	default:
		t.Error("expected wait channel closed by newer frame")
	}
	if _, seq, _ := d.Frame(); seq != 2 {
		t.Errorf("seq = %d, want 2", seq)
	}

	d.ShowFrame(nil)
	if _, seq, _ := d.Frame(); seq != 2 {
		t.Errorf("nil frame should be ignored, seq = %d", seq)
	}
}

func TestStreamHandler(t *testing.T) {
	d := NewDashboard(0)
	frames := testutil.Sequence(1)
	defer testutil.CloseAll(frames)
	d.ShowFrame(frames[0])

	ts := httptest.NewServer(New(Config{Dashboard: d}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	var sawBoundary, sawJPEG bool
	for i := 0; i < 4; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read error = %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "--frame" {
			sawBoundary = true
		}
		if line == "Content-Type: image/jpeg" {
			sawJPEG = true
		}
	}
	if !sawBoundary || !sawJPEG {
		t.Errorf("expected multipart JPEG part, boundary=%v jpeg=%v", sawBoundary, sawJPEG)
	}
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	h := NewStreamHandler(NewDashboard(0))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestEventsHandler(t *testing.T) {
	d := NewDashboard(0)
	d.ShowStatus(session.Status{State: session.Running, Level: session.LevelInfo, Message: session.MsgStarted})

	ts := httptest.NewServer(New(Config{Dashboard: d}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	read := func() session.Status {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read error = %v", err)
		}
		var st session.Status
		if err := json.Unmarshal(data, &st); err != nil {
			t.Fatalf("unmarshal error = %v", err)
		}
		return st
	}

	first := read()
	if first.Message != session.MsgStarted || first.State != session.Running {
		t.Errorf("first status = %+v", first)
	}

	d.ShowStatus(session.Status{State: session.Stopped, Level: session.LevelWarning, Message: session.MsgStopped})

	second := read()
	if second.Message != session.MsgStopped || second.Level != session.LevelWarning {
		t.Errorf("second status = %+v", second)
	}
}
