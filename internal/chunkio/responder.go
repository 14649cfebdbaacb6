package chunkio

import (
	"context"
	"net"
	"time"

	"github.com/wyvernglobal/junknas/internal/chunkproto"
	"github.com/wyvernglobal/junknas/internal/chunkstore"
	"github.com/wyvernglobal/junknas/internal/observability"
	"github.com/wyvernglobal/junknas/internal/overlay"
)

// recvPollInterval bounds each blocking read so Serve notices ctx
// cancellation promptly instead of blocking forever on an idle socket.
const recvPollInterval = 500 * time.Millisecond

// Serve runs the peer-facing half of the chunk store protocol: it blocks
// reading datagrams off t, decodes FETCH/STORE requests with
// chunkproto.Decode, and answers them against chunks directly — so that
// RemoteFetch/RemoteStore issued by other nodes against this one actually
// get a reply instead of timing out. It returns when ctx is cancelled.
//
// t is shared with this node's own outgoing RemoteFetch/RemoteStore/
// AttemptHolePunch calls; a datagram is delivered to whichever of those
// reads the socket first.
func Serve(ctx context.Context, t *overlay.Transport, chunks *chunkstore.Store, logger *observability.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, from, err := t.RecvTimeout(recvPollInterval)
		if err != nil {
			continue
		}
		if overlay.IsHolePunchProbe(data) || chunkproto.IsAck(data) || chunkproto.IsEIO(data) {
			continue
		}

		kind, fetch, store, err := chunkproto.Decode(data)
		if err != nil {
			continue
		}
		switch kind {
		case chunkproto.KindFetch:
			serveFetch(t, chunks, logger, from, fetch)
		case chunkproto.KindStore:
			serveStore(t, chunks, logger, from, store)
		}
	}
}

func serveFetch(t *overlay.Transport, chunks *chunkstore.Store, logger *observability.Logger, from *net.UDPAddr, req *chunkproto.FetchRequest) {
	driveID, err := chunks.Locate(req.Path, req.Index)
	if err != nil {
		logger.ConnectionFailed(from.String(), err)
		_ = t.Send(from, chunkproto.EncodeEIO())
		return
	}
	data, err := chunks.Get(driveID, req.Path, req.Index)
	if err != nil {
		logger.ConnectionFailed(from.String(), err)
		_ = t.Send(from, chunkproto.EncodeEIO())
		return
	}
	if err := t.Send(from, data); err != nil {
		logger.ConnectionFailed(from.String(), err)
		return
	}
	logger.ConnectionEstablished(from.String(), "fetch")
}

func serveStore(t *overlay.Transport, chunks *chunkstore.Store, logger *observability.Logger, from *net.UDPAddr, req *chunkproto.StoreRequest) {
	if chunkstore.HashChunk(req.Data) != req.Hash {
		logger.ConnectionFailed(from.String(), chunkproto.ErrMalformed)
		_ = t.Send(from, chunkproto.EncodeEIO())
		return
	}
	if err := chunks.Put(req.DriveID, req.Path, req.Index, req.Data); err != nil {
		logger.ConnectionFailed(from.String(), err)
		_ = t.Send(from, chunkproto.EncodeEIO())
		return
	}
	if err := t.Send(from, chunkproto.EncodeAck()); err != nil {
		logger.ConnectionFailed(from.String(), err)
		return
	}
	logger.ConnectionEstablished(from.String(), "store")
}
