package ferr

import (
	"errors"
	"net/http"
	"syscall"
	"testing"
)

func TestKindOfUnwrapsTypedError(t *testing.T) {
	base := errors.New("boom")
	wrapped := New(NotFound, "lookup", base)
	if got := KindOf(wrapped); got != NotFound {
		t.Fatalf("expected NotFound, got %v", got)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected Unwrap chain to reach base error")
	}
}

func TestKindOfDefaultsToTransport(t *testing.T) {
	if got := KindOf(errors.New("unclassified")); got != Transport {
		t.Fatalf("expected Transport default, got %v", got)
	}
}

func TestErrnoMapping(t *testing.T) {
	cases := map[Kind]syscall.Errno{
		NotFound:         syscall.ENOENT,
		Transport:        syscall.EIO,
		Shape:            syscall.EISDIR,
		NoCapacity:       syscall.EIO,
		BadRequest:       syscall.EINVAL,
		NetworkTransient: syscall.EAGAIN,
	}
	for kind, want := range cases {
		if got := Errno(kind); got != want {
			t.Fatalf("Errno(%v) = %v, want %v", kind, got, want)
		}
	}
}

func TestHTTPStatusRoundTripsThroughFromHTTPStatus(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{NotFound, http.StatusNotFound},
		{BadRequest, http.StatusBadRequest},
		{NetworkTransient, http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.kind); got != c.status {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.kind, got, c.status)
		}
		if got := FromHTTPStatus(c.status); got != c.kind {
			t.Fatalf("FromHTTPStatus(%d) = %v, want %v", c.status, got, c.kind)
		}
	}
}

func TestFromHTTPStatusDefaultsToTransport(t *testing.T) {
	if got := FromHTTPStatus(http.StatusTeapot); got != Transport {
		t.Fatalf("expected Transport default, got %v", got)
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := New(Shape, "readdir", errors.New("not a directory"))
	want := "readdir: Shape: not a directory"
	if err.Error() != want {
		t.Fatalf("unexpected message: %q, want %q", err.Error(), want)
	}
}
