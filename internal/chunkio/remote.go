package chunkio

import (
	"fmt"
	"net"
	"time"

	"github.com/wyvernglobal/junknas/internal/chunkproto"
	"github.com/wyvernglobal/junknas/internal/ferr"
	"github.com/wyvernglobal/junknas/internal/overlay"
)

const remoteRoundTripTimeout = 3 * time.Second

// RemoteFetch issues a FETCH for path/index to peerAddr and returns the
// chunk bytes, or EIO if the peer doesn't answer in time. Exported so
// agentloop's drain migration can reuse the same client-side round trip.
func RemoteFetch(t *overlay.Transport, peerAddr *net.UDPAddr, path string, index uint64) ([]byte, error) {
	req := chunkproto.EncodeFetch(path, index)
	if err := t.Send(peerAddr, req); err != nil {
		return nil, ferr.New(ferr.Transport, "remote_fetch", err)
	}
	deadline := time.Now().Add(remoteRoundTripTimeout)
	for time.Now().Before(deadline) {
		data, from, err := t.RecvTimeout(remoteRoundTripTimeout)
		if err != nil {
			return nil, ferr.New(ferr.Transport, "remote_fetch", err)
		}
		if from.String() != peerAddr.String() {
			continue
		}
		if overlay.IsHolePunchProbe(data) {
			continue
		}
		if chunkproto.IsEIO(data) {
			return nil, ferr.New(ferr.Transport, "remote_fetch", fmt.Errorf("peer reported EIO for %s[%d]", path, index))
		}
		return data, nil
	}
	return nil, ferr.New(ferr.Transport, "remote_fetch", fmt.Errorf("timed out fetching %s[%d] from %s", path, index, peerAddr))
}

// RemoteStore issues a STORE for path/index to peerAddr and waits for the
// ack byte. Exported so agentloop's drain migration can reuse the same
// client-side round trip.
func RemoteStore(t *overlay.Transport, peerAddr *net.UDPAddr, path string, index uint64, driveID, hash string, data []byte) error {
	if t == nil {
		return ferr.New(ferr.Transport, "remote_store", nil)
	}
	req := chunkproto.EncodeStore(path, index, driveID, hash, data)
	if err := t.Send(peerAddr, req); err != nil {
		return ferr.New(ferr.Transport, "remote_store", err)
	}
	deadline := time.Now().Add(remoteRoundTripTimeout)
	for time.Now().Before(deadline) {
		resp, from, err := t.RecvTimeout(remoteRoundTripTimeout)
		if err != nil {
			return ferr.New(ferr.Transport, "remote_store", err)
		}
		if from.String() != peerAddr.String() {
			continue
		}
		if overlay.IsHolePunchProbe(resp) {
			continue
		}
		if chunkproto.IsEIO(resp) {
			return ferr.New(ferr.Transport, "remote_store", fmt.Errorf("peer rejected store for %s[%d]", path, index))
		}
		if chunkproto.IsAck(resp) {
			return nil
		}
	}
	return ferr.New(ferr.NetworkTransient, "remote_store", fmt.Errorf("timed out storing %s[%d] to %s", path, index, peerAddr))
}
