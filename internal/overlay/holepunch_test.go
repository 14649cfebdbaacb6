package overlay

import (
	"net"
	"testing"
	"time"
)

// echoHolePunch answers every hole-punch probe it receives on t with the
// same literal, mimicking what the peer side of AttemptHolePunch does.
func echoHolePunch(t *testing.T, transport *Transport, stop <-chan struct{}) {
	t.Helper()
	for {
		select {
		case <-stop:
			return
		default:
		}
		data, from, err := transport.RecvTimeout(50 * time.Millisecond)
		if err != nil {
			continue
		}
		if IsHolePunchProbe(data) {
			_ = transport.Send(from, data)
		}
	}
}

func TestAttemptHolePunchSucceedsWithEchoingPeer(t *testing.T) {
	a, err := Bind(0)
	if err != nil {
		t.Fatalf("bind a: %v", err)
	}
	defer a.Close()
	b, err := Bind(0)
	if err != nil {
		t.Fatalf("bind b: %v", err)
	}
	defer b.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		echoHolePunch(t, b, stop)
		close(done)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.Port()}
	if !AttemptHolePunch(a, peer, 2*time.Second) {
		t.Fatalf("expected hole punch to succeed against an echoing peer")
	}
}

func TestAttemptHolePunchFailsWithoutPeer(t *testing.T) {
	a, err := Bind(0)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer a.Close()

	// Nobody is listening on this address, so no echo ever arrives.
	deadPeer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	if AttemptHolePunch(a, deadPeer, 150*time.Millisecond) {
		t.Fatalf("expected hole punch to fail without a responding peer")
	}
}

func TestIsHolePunchProbe(t *testing.T) {
	if !IsHolePunchProbe([]byte("junknas-holepunch")) {
		t.Fatalf("expected literal to be recognized as a probe")
	}
	if IsHolePunchProbe([]byte("something-else")) {
		t.Fatalf("expected non-literal data to not be recognized as a probe")
	}
}
