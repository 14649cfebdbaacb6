// Package chunkio implements the chunk I/O translator: the POSIX-facing
// layer that resolves reads and writes into fixed-size chunk operations,
// dispatched locally or over the overlay depending on where a chunk's
// ChunkMeta says it lives.
package chunkio

import (
	"net"
	"time"

	"github.com/wyvernglobal/junknas/internal/chunkstore"
	"github.com/wyvernglobal/junknas/internal/ferr"
	"github.com/wyvernglobal/junknas/internal/localcache"
	"github.com/wyvernglobal/junknas/internal/metaauth"
	"github.com/wyvernglobal/junknas/internal/overlay"
	"github.com/wyvernglobal/junknas/internal/placement"
)

// ChunkSize mirrors chunkstore.ChunkSize for callers that only import
// chunkio.
const ChunkSize = chunkstore.ChunkSize

// Attr is the stat-like attribute set returned by getattr/lookup.
type Attr struct {
	Ino   uint64
	Size  uint64
	Mode  uint32
	Mtime int64
	Ctime int64
	IsDir bool
}

// Translator is the per-agent chunk I/O translator.
type Translator struct {
	meta       MetadataClient
	chunks     *chunkstore.Store
	transport  *overlay.Transport
	selfNodeID string
	inodes     *inodeCache

	fsCache *localcache.FsEntryCache
	audit   *localcache.AuditJournal
}

// New builds a Translator. transport may be nil when the agent has no
// overlay peers reachable yet (remote reads/writes will fail with
// Transport errors, matching the contract's "EIO on remote fetch failure").
func New(meta MetadataClient, chunks *chunkstore.Store, transport *overlay.Transport, selfNodeID string) *Translator {
	return &Translator{
		meta:       meta,
		chunks:     chunks,
		transport:  transport,
		selfNodeID: selfNodeID,
		inodes:     newInodeCache(),
	}
}

// WithFsEntryCache attaches an advisory FsEntry mirror; Lookup consults it
// first when fresh and otherwise falls through to the metadata authority.
func (t *Translator) WithFsEntryCache(c *localcache.FsEntryCache) *Translator {
	t.fsCache = c
	return t
}

// WithAuditJournal attaches a best-effort local journal of chunk read/write
// operations, for diagnosing a node's own behavior.
func (t *Translator) WithAuditJournal(j *localcache.AuditJournal) *Translator {
	t.audit = j
	return t
}

func (t *Translator) recordAudit(op, path string, index uint64, driveID string, err error) {
	if t.audit == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = err.Error()
	}
	_ = t.audit.Record(localcache.AuditOp{
		Timestamp: time.Now(), Op: op, Path: path, Index: index, DriveID: driveID, Result: result,
	})
}

func attrOf(path string, entry metaauth.FsEntry, ino uint64) Attr {
	return Attr{
		Ino:   ino,
		Size:  entry.Size,
		Mode:  entry.Mode,
		Mtime: entry.Mtime,
		Ctime: entry.Ctime,
		IsDir: entry.NodeType == metaauth.Directory,
	}
}

// Lookup resolves path to its attributes, registering it in the inode
// cache. A missing entry is a NotFound error.
func (t *Translator) Lookup(path string) (Attr, error) {
	if t.fsCache != nil {
		if cached, fresh, found, err := t.fsCache.Get(path); err == nil && found && fresh {
			return attrOf(path, cached, t.inodes.Ino(path)), nil
		}
	}
	entry, err := t.meta.Lookup(path)
	if err != nil {
		return Attr{}, err
	}
	if t.fsCache != nil {
		_ = t.fsCache.Put(entry)
	}
	ino := t.inodes.Ino(path)
	return attrOf(path, entry, ino), nil
}

// GetAttr resolves an inode back to a path via the linear-scan cache and
// returns its attributes.
func (t *Translator) GetAttr(ino uint64) (Attr, error) {
	path, ok := t.inodes.Resolve(ino, func(p string) bool {
		_, err := t.meta.Lookup(p)
		return err == nil
	})
	if !ok {
		return Attr{}, ferr.New(ferr.NotFound, "getattr", nil)
	}
	entry, err := t.meta.Lookup(path)
	if err != nil {
		return Attr{}, err
	}
	return attrOf(path, entry, ino), nil
}

// DirEntry is one child returned by ReadDir.
type DirEntry struct {
	Name  string
	Ino   uint64
	IsDir bool
}

// ReadDir lists the children of a directory. Non-directory paths are a
// Transport error (EIO upstream).
func (t *Translator) ReadDir(path string) ([]DirEntry, error) {
	entry, err := t.meta.Lookup(path)
	if err != nil {
		return nil, err
	}
	if entry.NodeType != metaauth.Directory {
		return nil, ferr.New(ferr.Transport, "readdir", nil)
	}
	children, err := t.meta.List(path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(children))
	for name, child := range children {
		childPath := joinPath(path, name)
		out = append(out, DirEntry{
			Name:  name,
			Ino:   t.inodes.Ino(childPath),
			IsDir: child.NodeType == metaauth.Directory,
		})
	}
	return out, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Open always succeeds with a null handle if the entry exists.
func (t *Translator) Open(path string) error {
	_, err := t.meta.Lookup(path)
	return err
}

// Mkdir creates a directory entry.
func (t *Translator) Mkdir(path string, mode uint32) (Attr, error) {
	entry, err := t.meta.Create(path, metaauth.Directory, mode)
	if err != nil {
		return Attr{}, err
	}
	return attrOf(path, entry, t.inodes.Ino(path)), nil
}

// Unlink removes path, deleting any locally-held chunks and detaching it
// from the metadata tree.
func (t *Translator) Unlink(path string) error {
	entry, err := t.meta.Lookup(path)
	if err != nil {
		return err
	}
	for _, c := range entry.Chunks {
		if c.NodeID == t.selfNodeID {
			err := t.chunks.Delete(c.DriveID, path, c.Index)
			t.recordAudit("delete", path, c.Index, c.DriveID, err)
		}
	}
	if err := t.meta.Delete(path); err != nil {
		return err
	}
	t.inodes.Forget(path)
	if t.fsCache != nil {
		_ = t.fsCache.Invalidate(path)
	}
	return nil
}

// readChunk fetches the current bytes of a ChunkMeta, locally or over the
// overlay depending on ownership.
func (t *Translator) readChunk(path string, c metaauth.ChunkMeta) ([]byte, error) {
	if c.NodeID == t.selfNodeID {
		data, err := t.chunks.Get(c.DriveID, path, c.Index)
		t.recordAudit("read", path, c.Index, c.DriveID, err)
		if err != nil {
			return nil, ferr.New(ferr.Transport, "read_chunk", err)
		}
		return data, nil
	}
	if t.transport == nil {
		return nil, ferr.New(ferr.Transport, "read_chunk", nil)
	}
	peerAddr, err := t.resolvePeer(c.NodeID)
	if err != nil {
		return nil, err
	}
	return RemoteFetch(t.transport, peerAddr, path, c.Index)
}

func (t *Translator) resolvePeer(nodeID string) (*net.UDPAddr, error) {
	endpoint, err := t.meta.PeerEndpoint(nodeID)
	if err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp4", endpoint)
	if err != nil {
		return nil, ferr.New(ferr.Transport, "resolve_peer", err)
	}
	return addr, nil
}

// Read implements the chunk-range read contract: resolve the chunk range
// covering [offset, offset+size), fetch each chunk (local or remote), and
// concatenate the requested byte range.
func (t *Translator) Read(path string, offset int64, size int) ([]byte, error) {
	entry, err := t.meta.Lookup(path)
	if err != nil {
		return nil, err
	}
	if entry.NodeType != metaauth.File {
		return nil, ferr.New(ferr.Shape, "read", nil)
	}

	end := offset + int64(size)
	if end > int64(entry.Size) {
		end = int64(entry.Size)
	}
	if offset >= end {
		return []byte{}, nil
	}

	first := uint64(offset) / ChunkSize
	last := uint64(end-1) / ChunkSize

	out := make([]byte, 0, end-offset)
	for idx := first; idx <= last; idx++ {
		if idx >= uint64(len(entry.Chunks)) {
			return nil, ferr.New(ferr.Transport, "read", nil)
		}
		meta := entry.Chunks[idx]
		data, err := t.readChunk(path, meta)
		if err != nil {
			return nil, err
		}
		chunkStart := int64(idx) * ChunkSize
		from := offset - chunkStart
		if from < 0 {
			from = 0
		}
		to := end - chunkStart
		if to > ChunkSize {
			to = ChunkSize
		}
		if to > int64(len(data)) {
			to = int64(len(data))
		}
		if from > to {
			from = to
		}
		out = append(out, data[from:to]...)
	}
	return out, nil
}

// Write implements the merge-on-partial-write contract: §4.D step by step.
func (t *Translator) Write(path string, offset int64, data []byte) (int, error) {
	entry, err := t.meta.Lookup(path)
	if err != nil {
		if ferr.KindOf(err) != ferr.NotFound {
			return 0, err
		}
		if _, cerr := t.meta.Create(path, metaauth.File, 0o644); cerr != nil {
			return 0, cerr
		}
		entry, err = t.meta.Lookup(path)
		if err != nil {
			return 0, err
		}
	}
	if entry.NodeType != metaauth.File {
		return 0, ferr.New(ferr.Shape, "write", nil)
	}
	if len(data) == 0 {
		return 0, nil
	}

	chunksByIndex := make(map[uint64]metaauth.ChunkMeta, len(entry.Chunks))
	maxIndex := uint64(0)
	for _, c := range entry.Chunks {
		chunksByIndex[c.Index] = c
		if c.Index > maxIndex {
			maxIndex = c.Index
		}
	}

	first := uint64(offset) / ChunkSize
	last := uint64(offset+int64(len(data))-1) / ChunkSize

	var cluster *placement.ClusterState

	// A write starting at a non-zero offset into a file with fewer prior
	// chunks than `first` would otherwise leave index gap [priorCount,
	// first) out of the chunks array, violating the contiguous-from-zero
	// invariant. Backfill those indices with zero-filled chunks.
	priorCount := uint64(len(entry.Chunks))
	for idx := priorCount; idx < first; idx++ {
		if _, has := chunksByIndex[idx]; has {
			continue
		}
		zero := make([]byte, ChunkSize)
		hash := chunkstore.HashChunk(zero)

		if cluster == nil {
			snap, cerr := t.meta.ClusterSnapshot()
			if cerr != nil {
				return 0, cerr
			}
			cluster = &snap
		}
		placed, perr := placement.Allocate(idx, *cluster, hash)
		if perr != nil {
			return 0, ferr.New(ferr.NoCapacity, "write", perr)
		}

		if placed.NodeID == t.selfNodeID {
			err := t.chunks.Put(placed.DriveID, path, idx, zero)
			t.recordAudit("write", path, idx, placed.DriveID, err)
			if err != nil {
				return 0, ferr.New(ferr.Transport, "write", err)
			}
		} else {
			peerAddr, perr := t.resolvePeer(placed.NodeID)
			if perr != nil {
				return 0, perr
			}
			if err := RemoteStore(t.transport, peerAddr, path, idx, placed.DriveID, hash, zero); err != nil {
				return 0, err
			}
		}

		chunksByIndex[idx] = metaauth.ChunkMeta{Index: idx, NodeID: placed.NodeID, DriveID: placed.DriveID, ChunkHash: hash}
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	for idx := first; idx <= last; idx++ {
		chunkStart := int64(idx) * ChunkSize

		dataStart := chunkStart - offset
		if dataStart < 0 {
			dataStart = 0
		}
		dataEnd := chunkStart + ChunkSize - offset
		if dataEnd > int64(len(data)) {
			dataEnd = int64(len(data))
		}
		intraOffset := maxI64(offset, chunkStart) - chunkStart

		existing, has := chunksByIndex[idx]
		var content []byte
		if has {
			content, err = t.readChunk(path, existing)
			if err != nil {
				return 0, err
			}
		}

		merged := make([]byte, ChunkSize)
		copy(merged, content)
		copy(merged[intraOffset:], data[dataStart:dataEnd])

		hash := chunkstore.HashChunk(merged)

		var nodeID, driveID string
		if has {
			nodeID, driveID = existing.NodeID, existing.DriveID
		} else {
			if cluster == nil {
				snap, cerr := t.meta.ClusterSnapshot()
				if cerr != nil {
					return 0, cerr
				}
				cluster = &snap
			}
			placed, perr := placement.Allocate(idx, *cluster, hash)
			if perr != nil {
				return 0, ferr.New(ferr.NoCapacity, "write", perr)
			}
			nodeID, driveID = placed.NodeID, placed.DriveID
		}

		if nodeID == t.selfNodeID {
			err := t.chunks.Put(driveID, path, idx, merged)
			t.recordAudit("write", path, idx, driveID, err)
			if err != nil {
				return 0, ferr.New(ferr.Transport, "write", err)
			}
		} else {
			peerAddr, perr := t.resolvePeer(nodeID)
			if perr != nil {
				return 0, perr
			}
			if err := RemoteStore(t.transport, peerAddr, path, idx, driveID, hash, merged); err != nil {
				return 0, err
			}
		}

		chunksByIndex[idx] = metaauth.ChunkMeta{Index: idx, NodeID: nodeID, DriveID: driveID, ChunkHash: hash}
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	newChunks := make([]metaauth.ChunkMeta, 0, len(chunksByIndex))
	for i := uint64(0); i <= maxIndex; i++ {
		if c, ok := chunksByIndex[i]; ok {
			newChunks = append(newChunks, c)
		}
	}

	newSize := uint64(offset + int64(len(data)))
	if entry.Size > newSize {
		newSize = entry.Size
	}

	if err := t.meta.UpdateChunks(path, newChunks); err != nil {
		return 0, err
	}
	if err := t.meta.UpdateSize(path, newSize); err != nil {
		return 0, err
	}
	if t.fsCache != nil {
		_ = t.fsCache.Invalidate(path)
	}

	return len(data), nil
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
