package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewEgressClient_Timeout(t *testing.T) {
	c := NewEgressClient(3 * time.Second)
	if c == nil {
		t.Fatal("NewEgressClient は nil を返してはならない")
	}
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}

	if got := NewEgressClient(0).Timeout; got != 10*time.Second {
		t.Errorf("既定のTimeout = %v, want 10s", got)
	}
}

func TestNewEgressClient_BlocksLoopback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewEgressClient(time.Second)
	resp, err := c.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("ループバック宛てのhttp通信は拒否されるべき")
	}
	if called {
		t.Error("拒否されたリクエストがサーバーに到達しました")
	}
}
