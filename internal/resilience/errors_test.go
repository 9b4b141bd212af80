package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_WrappedTransientError(t *testing.T) {
	base := NewTransientError(errors.New("throttled"), 429)
	wrapped := fmt.Errorf("submit batch: %w", base)

	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if IsTransient(errors.New("keyword not found")) {
		t.Error("plain error should not be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransient_NetworkPatterns(t *testing.T) {
	for _, msg := range []string{
		"read tcp 10.0.0.1:443: connection reset by peer",
		"dial tcp: lookup ads-api: no such host",
		"net/http: TLS handshake timeout",
	} {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("%q should be transient", msg)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("bad gateway")
	te := NewTransientError(base, 502)

	if !errors.Is(te, base) {
		t.Error("Unwrap should expose the base error")
	}
	if te.Error() != "bad gateway" {
		t.Errorf("unexpected message %q", te.Error())
	}
	if te.StatusCode != 502 {
		t.Errorf("unexpected status %d", te.StatusCode)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be retryable", code)
		}
	}
}
