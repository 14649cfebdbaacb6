package chunkio

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/wyvernglobal/junknas/internal/ferr"
)

// attrTTL is the attribute/entry cache lifetime the contract specifies for
// lookup/getattr replies.
const attrTTL = time.Second

// hardcodedUID/GID: the translator does not model per-user ownership.
const (
	hardcodedUID = 1000
	hardcodedGID = 1000
)

// fsNode is the single fs.InodeEmbedder type backing every file and
// directory in the mount; its identity is its absolute path, and its
// kernel inode number is always the translator's hash of that path.
type fsNode struct {
	fs.Inode
	t    *Translator
	path string
}

var (
	_ fs.InodeEmbedder = (*fsNode)(nil)
	_ fs.NodeLookuper  = (*fsNode)(nil)
	_ fs.NodeGetattrer = (*fsNode)(nil)
	_ fs.NodeReaddirer = (*fsNode)(nil)
	_ fs.NodeOpener    = (*fsNode)(nil)
	_ fs.NodeReader    = (*fsNode)(nil)
	_ fs.NodeWriter    = (*fsNode)(nil)
	_ fs.NodeMkdirer   = (*fsNode)(nil)
	_ fs.NodeUnlinker  = (*fsNode)(nil)
)

func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return ferr.Errno(ferr.KindOf(err))
}

func applyAttr(out *fuse.Attr, a Attr) {
	out.Ino = a.Ino
	out.Size = a.Size
	out.Mode = a.Mode
	out.Mtime = uint64(a.Mtime)
	out.Ctime = uint64(a.Ctime)
	out.Uid = hardcodedUID
	out.Gid = hardcodedGID
	if a.IsDir {
		out.Mode |= syscall.S_IFDIR
	} else {
		out.Mode |= syscall.S_IFREG
	}
}

// Mount registers the junknas filesystem at mountPoint, rooted at an
// fsNode for "/".
func Mount(mountPoint string, t *Translator) (*fuse.Server, error) {
	root := &fsNode{t: t, path: "/"}
	ttl := attrTTL
	opts := &fs.Options{
		EntryTimeout: &ttl,
		AttrTimeout:  &ttl,
		MountOptions: fuse.MountOptions{
			FsName: "junknas",
			Name:   "junknas",
		},
	}
	return fs.Mount(mountPoint, root, opts)
}

func (n *fsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := joinPath(n.path, name)
	attr, err := n.t.Lookup(childPath)
	if err != nil {
		return nil, toErrno(err)
	}
	applyAttr(&out.Attr, attr)
	out.SetEntryTimeout(attrTTL)
	out.SetAttrTimeout(attrTTL)

	mode := uint32(syscall.S_IFREG)
	if attr.IsDir {
		mode = syscall.S_IFDIR
	}
	child := &fsNode{t: n.t, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode, Ino: attr.Ino}), 0
}

func (n *fsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.t.Lookup(n.path)
	if err != nil {
		return toErrno(err)
	}
	applyAttr(&out.Attr, attr)
	out.SetTimeout(attrTTL)
	return 0
}

type dirStream struct {
	entries []DirEntry
	pos     int
}

func (d *dirStream) HasNext() bool { return d.pos < len(d.entries) }

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++
	mode := uint32(syscall.S_IFREG)
	if e.IsDir {
		mode = syscall.S_IFDIR
	}
	return fuse.DirEntry{Name: e.Name, Ino: e.Ino, Mode: mode}, 0
}

func (d *dirStream) Close() {}

func (n *fsNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.t.ReadDir(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	return &dirStream{entries: entries}, 0
}

func (n *fsNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if err := n.t.Open(n.path); err != nil {
		return nil, 0, toErrno(err)
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *fsNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.t.Read(n.path, off, len(dest))
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *fsNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.t.Write(n.path, off, data)
	if err != nil {
		return 0, toErrno(err)
	}
	return uint32(written), 0
}

func (n *fsNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := joinPath(n.path, name)
	attr, err := n.t.Mkdir(childPath, mode)
	if err != nil {
		return nil, toErrno(err)
	}
	applyAttr(&out.Attr, attr)
	child := &fsNode{t: n.t, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: attr.Ino}), 0
}

func (n *fsNode) Unlink(ctx context.Context, name string) syscall.Errno {
	childPath := joinPath(n.path, name)
	return toErrno(n.t.Unlink(childPath))
}
