package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleUpgrade_ConnectGateRejects(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, nil)

	var gotIP string
	s.SetConnectGate(func(remoteIP string) bool {
		gotIP = remoteIP
		return false
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	s.handleUpgrade(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("rejected connection should get 429, got %d", rec.Code)
	}
	if gotIP != "203.0.113.7" {
		t.Errorf("gate should receive the bare client IP, got %q", gotIP)
	}
	if s.Connections().Count() != 0 {
		t.Error("rejected connection should not be registered")
	}
}

func TestHandleUpgrade_MaxConnections(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxConnections = 0
	s := NewServer(config, nil, nil)

	gateCalled := false
	s.SetConnectGate(func(string) bool {
		gateCalled = true
		return true
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	s.handleUpgrade(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("over-capacity connection should get 503, got %d", rec.Code)
	}
	if gateCalled {
		t.Error("capacity check should happen before the admission gate")
	}
}

func TestRemoteIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"host and port", "192.0.2.1:8080", "", "192.0.2.1"},
		{"forwarded single", "10.0.0.1:1234", "198.51.100.9", "198.51.100.9"},
		{"forwarded chain", "10.0.0.1:1234", "198.51.100.9, 10.0.0.2", "198.51.100.9"},
		{"no port", "192.0.2.1", "", "192.0.2.1"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = tc.remoteAddr
		if tc.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tc.forwarded)
		}
		if got := remoteIP(req); got != tc.want {
			t.Errorf("%s: want %q, got %q", tc.name, tc.want, got)
		}
	}
}
