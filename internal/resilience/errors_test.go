package resilience

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("invalid input: missing field"), false},
		{"explicit transient", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped transient", fmt.Errorf("api call failed: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"connection reset errno", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused errno", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"connection timed out errno", fmt.Errorf("dial tcp: %w", syscall.ETIMEDOUT), true},
		{"truncated body", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"reset by peer text", errors.New("read: connection reset by peer"), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"tls handshake text", errors.New("net/http: TLS handshake timeout"), true},
		{"io timeout text", errors.New("read tcp 10.0.0.2:443: i/o timeout"), true},
		{"idle connection text", errors.New("http: server closed idle connection"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("IsTransientHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 409, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("IsTransientHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestTransientError_ChainBehavior(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if te.Error() != "root cause" {
		t.Errorf("Error() = %q, want the inner message", te.Error())
	}
	if !errors.Is(te, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}
	if te.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", te.StatusCode)
	}
}
