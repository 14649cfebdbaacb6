// Package overlay implements the UDP transport nodes use to reach each
// other directly, through a hole-punched mapping, or via relay.
package overlay

import (
	"fmt"
	"net"
	"time"
)

// Transport is a thin wrapper around a UDP socket. Recv blocks until a
// datagram arrives and RecvTimeout bounds that wait; there is no
// non-blocking poll that returns immediately when nothing is available.
type Transport struct {
	socket *net.UDPConn
	port   int
}

// Bind opens a UDP socket on 0.0.0.0:port. Use port 0 to let the OS choose.
func Bind(port int) (*Transport, error) {
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("overlay: bind port %d: %w", port, err)
	}
	actual := sock.LocalAddr().(*net.UDPAddr).Port
	return &Transport{socket: sock, port: actual}, nil
}

// Port returns the local UDP port this transport is bound to.
func (t *Transport) Port() int { return t.port }

// Send writes data to peer.
func (t *Transport) Send(peer *net.UDPAddr, data []byte) error {
	_, err := t.socket.WriteToUDP(data, peer)
	return err
}

// Recv performs one blocking read, returning the datagram and its sender.
// Callers that want non-blocking polling should call this from a dedicated
// goroutine and fan results out over a channel.
func (t *Transport) Recv() ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, 65535)
	n, addr, err := t.socket.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// RecvTimeout performs one read bounded by timeout, for synchronous
// request/response exchanges like a remote chunk fetch.
func (t *Transport) RecvTimeout(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	if err := t.socket.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}
	defer t.socket.SetReadDeadline(time.Time{})
	return t.Recv()
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.socket.Close()
}
