package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestConnSinkDropsWhenFullOrClosed(t *testing.T) {
	sink := newConnSink(1)
	if !sink.Send([]byte("a")) {
		t.Fatal("Send() on empty queue = false")
	}
	if sink.Send([]byte("b")) {
		t.Fatal("Send() on full queue = true")
	}
	<-sink.frames
	sink.close()
	sink.close()
	if sink.Send([]byte("c")) {
		t.Fatal("Send() after close = true")
	}
}

func TestConnectionToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer header")
	if got := connectionToken(r); got != "abc" {
		t.Fatalf("connectionToken() = %q, want query token", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer header")
	if got := connectionToken(r); got != "Bearer header" {
		t.Fatalf("connectionToken() = %q", got)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(NewWebSocketHandler(h.engine, 16, 1<<20, "*", zap.NewNop()))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Dial() without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Dial() without token response = %v", resp)
	}

	token, _, err := h.gate.Issue(context.Background(), "u1", "Ada")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	publish := `{"name":"publish_project","project":{"_id":"p1","name":"Study","codes":[],"notes":[],"text_files":[]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(publish)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	read := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var ev map[string]any
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		return ev
	}

	if ev := read(); ev["name"] != "clients" {
		t.Fatalf("first frame = %v", ev)
	}
	if ev := read(); ev["name"] != "published" || ev["passcode"] != "p1" {
		t.Fatalf("second frame = %v", ev)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"nope"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if ev := read(); ev["name"] != "error" || ev["code"] != string(CodeInvalidEvent) {
		t.Fatalf("error frame = %v", ev)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline := time.Now().Add(5 * time.Second)
	for h.engine.Registry().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if clients := h.engine.Rooms().Clients("p1"); len(clients) != 0 {
		t.Fatalf("room still has %v", clients)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		allowed string
		origin  string
		want    bool
	}{
		{allowed: "*", origin: "https://evil.example", want: true},
		{allowed: "https://app.example", origin: "", want: true},
		{allowed: "https://app.example", origin: "https://app.example", want: true},
		{allowed: "https://app.example/", origin: "https://APP.example", want: true},
		{allowed: "https://app.example", origin: "https://evil.example", want: false},
		{allowed: "https://app.example", origin: "http://app.example", want: false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originChecker(tt.allowed)(r); got != tt.want {
			t.Fatalf("originChecker(%q)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
		}
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(NewWebSocketHandler(h.engine, 16, 1<<20, "https://app.example", zap.NewNop()))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	token, _, err := h.gate.Issue(context.Background(), "u1", "Ada")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, header)
	if err == nil {
		t.Fatal("Dial() from foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Dial() from foreign origin response = %v", resp)
	}
	if n := h.engine.Registry().Len(); n != 0 {
		t.Fatalf("registry holds %d sessions", n)
	}

	header = http.Header{"Origin": {"https://app.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, header)
	if err != nil {
		t.Fatalf("Dial() from allowed origin error = %v", err)
	}
	conn.Close()
}
