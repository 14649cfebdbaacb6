package overlay

import (
	"bytes"
	"net"
	"time"
)

// holePunchPacket is the literal both sides of a hole punch exchange send
// and watch for; its length and content are part of the wire contract.
var holePunchPacket = []byte("junknas-holepunch")

// AttemptHolePunch sends holePunchPacket to peerAddr every 50ms on t until
// either an echo comes back from peerAddr or timeout elapses.
func AttemptHolePunch(t *Transport, peerAddr *net.UDPAddr, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	_ = t.socket.SetReadDeadline(time.Now().Add(60 * time.Millisecond))

	for {
		_ = t.Send(peerAddr, holePunchPacket)

		buf := make([]byte, 256)
		_ = t.socket.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, from, err := t.socket.ReadFromUDP(buf)
		if err == nil && from.IP.Equal(peerAddr.IP) && from.Port == peerAddr.Port &&
			bytes.Equal(buf[:n], holePunchPacket) {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
}

// IsHolePunchProbe reports whether data is the hole-punch literal, so a
// receive loop can swallow it instead of handing it to the chunk protocol.
func IsHolePunchProbe(data []byte) bool {
	return bytes.Equal(data, holePunchPacket)
}
