package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseServer(t *testing.T, chunks []string, finish string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Ghost-Key") != "ghost-secret-123" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"auth_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", c)
		}
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":%q}]}\n\n", finish)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestClient_ChatStream(t *testing.T) {
	srv := sseServer(t, []string{"hello ", "world"}, "stop")
	defer srv.Close()

	c := NewClient(srv.URL, "ghost-secret-123")

	var deltas []string
	reply, finish, err := c.ChatStream(context.Background(),
		[]Message{{Role: "user", Content: "hi"}}, false,
		func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if reply != "hello world" {
		t.Errorf("reply = %q", reply)
	}
	if finish != "stop" {
		t.Errorf("finish = %q", finish)
	}
	if len(deltas) != 2 || deltas[0] != "hello " || deltas[1] != "world" {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestClient_ChatStreamAuthError(t *testing.T) {
	srv := sseServer(t, nil, "stop")
	defer srv.Close()

	c := NewClient(srv.URL, "wrong-key")
	_, _, err := c.ChatStream(context.Background(),
		[]Message{{Role: "user", Content: "hi"}}, false, nil)
	if err == nil {
		t.Fatal("expected error for bad key")
	}
	if got := err.Error(); got != "daemon returned 401: invalid api key" {
		t.Errorf("err = %q", got)
	}
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          "ok",
			"model":           "Qwen3-8B-Instruct-2507",
			"uptime_seconds":  90,
			"sandbox_backend": "docker",
			"pools":           map[string]int{"main": 1, "worker": 2},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	info, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if info.Model != "Qwen3-8B-Instruct-2507" {
		t.Errorf("model = %q", info.Model)
	}
	if info.Pools["worker"] != 2 {
		t.Errorf("pools = %v", info.Pools)
	}
}

func TestClient_HealthConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestParseSlashCommand(t *testing.T) {
	if cmd := ParseSlashCommand("hello world"); cmd != nil {
		t.Errorf("plain text parsed as command: %+v", cmd)
	}
	cmd := ParseSlashCommand("  /status  ")
	if cmd == nil || cmd.Name != "status" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestExecuteCommand(t *testing.T) {
	info := BannerInfo{Model: "m", Endpoint: "http://x", Pools: map[string]int{"main": 1}}

	if r := ExecuteCommand(&SlashCommand{Name: "quit"}, info); !r.IsQuit {
		t.Error("quit not quitting")
	}
	if r := ExecuteCommand(&SlashCommand{Name: "new"}, info); !r.IsReset {
		t.Error("new not resetting")
	}
	if r := ExecuteCommand(&SlashCommand{Name: "nope"}, info); r.IsQuit || r.Output == "" {
		t.Errorf("unknown command result = %+v", r)
	}
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{45, "45s"},
		{90, "1m30s"},
		{3700, "1h1m"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.seconds); got != tc.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
