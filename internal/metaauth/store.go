package metaauth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wyvernglobal/junknas/internal/ferr"
)

// Store is the single-writer, single-lock authoritative state: the FsEntry
// tree plus node/mesh bookkeeping. All mutation goes through one mutex, the
// way the teacher's session store guards its map.
type Store struct {
	mu sync.RWMutex

	fsEntries      map[string]*FsEntry
	nodes          map[string]*NodeRecord
	meshPeers      map[string]*MeshPeer
	gatewayHosts   map[string]*GatewayHost
	keyRegistry    map[string]*KeyRegistryEntry
	desiredAlloc   map[string]uint64
	ejectFlags     map[string]bool

	now func() time.Time
}

// NewStore returns a Store with the root "/" directory already present.
func NewStore() *Store {
	s := &Store{
		fsEntries:    make(map[string]*FsEntry),
		nodes:        make(map[string]*NodeRecord),
		meshPeers:    make(map[string]*MeshPeer),
		gatewayHosts: make(map[string]*GatewayHost),
		keyRegistry:  make(map[string]*KeyRegistryEntry),
		desiredAlloc: make(map[string]uint64),
		ejectFlags:   make(map[string]bool),
		now:          time.Now,
	}
	s.fsEntries["/"] = &FsEntry{
		Path:     "/",
		NodeType: Directory,
		Mode:     0o755,
		Children: []string{},
		Chunks:   []ChunkMeta{},
	}
	return s
}

func parentOf(path string) (string, error) {
	if path == "/" {
		return "", fmt.Errorf("root has no parent")
	}
	s := strings.TrimRight(path, "/")
	pos := strings.LastIndexByte(s, '/')
	if pos < 0 {
		return "", fmt.Errorf("malformed path %q", path)
	}
	if pos == 0 {
		return "/", nil
	}
	return s[:pos], nil
}

func nameOf(path string) (string, error) {
	if path == "/" {
		return "", fmt.Errorf("root has no name")
	}
	s := strings.TrimRight(path, "/")
	pos := strings.LastIndexByte(s, '/')
	if pos < 0 {
		return "", fmt.Errorf("malformed path %q", path)
	}
	return s[pos+1:], nil
}

// Lookup resolves path to its FsEntry.
func (s *Store) Lookup(path string) (FsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.fsEntries[path]
	if !ok {
		return FsEntry{}, ferr.New(ferr.NotFound, "lookup", nil)
	}
	return *e, nil
}

// List returns the resolved children of a directory.
func (s *Store) List(path string) (map[string]FsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, ok := s.fsEntries[path]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "list", nil)
	}
	if dir.NodeType != Directory {
		return nil, ferr.New(ferr.BadRequest, "list", fmt.Errorf("%q is not a directory", path))
	}

	out := make(map[string]FsEntry, len(dir.Children))
	for _, child := range dir.Children {
		full := childPath(path, child)
		if e, ok := s.fsEntries[full]; ok {
			out[child] = *e
		}
	}
	return out, nil
}

func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}

// Create inserts a new File or Directory entry under an existing parent.
func (s *Store) Create(path string, nodeType NodeType, mode uint32) (FsEntry, error) {
	if path == "/" {
		return FsEntry{}, ferr.New(ferr.BadRequest, "create", fmt.Errorf("cannot create root"))
	}
	parent, err := parentOf(path)
	if err != nil {
		return FsEntry{}, ferr.New(ferr.BadRequest, "create", err)
	}
	name, err := nameOf(path)
	if err != nil {
		return FsEntry{}, ferr.New(ferr.BadRequest, "create", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parentEntry, ok := s.fsEntries[parent]
	if !ok {
		return FsEntry{}, ferr.New(ferr.BadRequest, "create", fmt.Errorf("parent %q missing", parent))
	}

	now := s.now().Unix()
	entry := &FsEntry{
		Path:     path,
		NodeType: nodeType,
		Mode:     mode,
		Mtime:    now,
		Ctime:    now,
		Chunks:   []ChunkMeta{},
		Children: []string{},
	}

	hasChild := false
	for _, c := range parentEntry.Children {
		if c == name {
			hasChild = true
			break
		}
	}
	if !hasChild {
		parentEntry.Children = append(parentEntry.Children, name)
	}

	s.fsEntries[path] = entry
	return *entry, nil
}

// UpdateSize sets a File's size and bumps mtime.
func (s *Store) UpdateSize(path string, newSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.fsEntries[path]
	if !ok {
		return ferr.New(ferr.NotFound, "update_size", nil)
	}
	if e.NodeType != File {
		return ferr.New(ferr.BadRequest, "update_size", fmt.Errorf("%q is not a file", path))
	}
	e.Size = newSize
	e.Mtime = s.now().Unix()
	return nil
}

// UpdateChunks replaces a File's chunk array and bumps mtime.
func (s *Store) UpdateChunks(path string, chunks []ChunkMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.fsEntries[path]
	if !ok {
		return ferr.New(ferr.NotFound, "update_chunks", nil)
	}
	if e.NodeType != File {
		return ferr.New(ferr.BadRequest, "update_chunks", fmt.Errorf("%q is not a file", path))
	}
	e.Chunks = chunks
	e.Mtime = s.now().Unix()
	return nil
}

// Delete removes an entry and detaches it from its parent's children.
func (s *Store) Delete(path string) error {
	if path == "/" {
		return ferr.New(ferr.BadRequest, "delete", fmt.Errorf("cannot delete root"))
	}
	parent, err := parentOf(path)
	if err != nil {
		return ferr.New(ferr.BadRequest, "delete", err)
	}
	name, err := nameOf(path)
	if err != nil {
		return ferr.New(ferr.BadRequest, "delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fsEntries[path]; !ok {
		return ferr.New(ferr.NotFound, "delete", nil)
	}

	if parentEntry, ok := s.fsEntries[parent]; ok {
		kept := parentEntry.Children[:0]
		for _, c := range parentEntry.Children {
			if c != name {
				kept = append(kept, c)
			}
		}
		parentEntry.Children = kept
	}

	delete(s.fsEntries, path)
	return nil
}

// EntryCount reports the number of FsEntry objects tracked, for the
// fs_entries_total gauge.
func (s *Store) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fsEntries)
}
