// Package fuseops implements the FUSE callback surface, built against
// github.com/winfsp/cgofuse's fuse.FileSystemInterface, orchestrating
// PathResolver, DirectoryView, RenameEngine and GraphGateway and mapping
// their outcomes onto POSIX error codes.
package fuseops

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/groupfs/groupfs/internal/dirview"
	"github.com/groupfs/groupfs/internal/fserr"
	"github.com/groupfs/groupfs/internal/graphstore"
	"github.com/groupfs/groupfs/internal/rename"
	"github.com/groupfs/groupfs/internal/resolver"
)

// dirHandle is what Opendir caches for a later Readdir/Releasedir, so a
// Readdir immediately following an Opendir does not re-query the graph.
type dirHandle struct {
	entries []dirview.Entry
}

// GroupFS implements fuse.FileSystemInterface over a graphstore.Store. It
// embeds fuse.FileSystemBase for the callbacks it does not override, and
// implements chmod/chown/utimens/readlink/symlink/link/mknod as
// accepted-but-no-effect.
type GroupFS struct {
	fuse.FileSystemBase

	store    *graphstore.Store
	resolve  *resolver.Resolver
	view     *dirview.DirectoryView
	renamer  *rename.Engine
	startTim fuse.Timespec

	// session is a per-mount identifier, logged alongside every mutating
	// call so entries from concurrent mounts against the same store can be
	// told apart in shared logs.
	session uuid.UUID

	handleMu sync.Mutex
	handles  map[uint64]*dirHandle
	nextFh   uint64
}

// New builds a GroupFS over store.
func New(store *graphstore.Store) *GroupFS {
	now := time.Now()
	return &GroupFS{
		store:   store,
		resolve: resolver.New(store),
		view:    dirview.New(store),
		renamer: rename.New(store),
		startTim: fuse.Timespec{
			Sec:  now.Unix(),
			Nsec: int64(now.Nanosecond()),
		},
		session: uuid.New(),
		handles: make(map[uint64]*dirHandle),
	}
}

func errnoFor(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := fserr.KindOf(err)
	if !ok {
		return -fuse.EIO
	}
	switch kind {
	case fserr.NotFound:
		return -fuse.ENOENT
	case fserr.Exists:
		return -fuse.EEXIST
	case fserr.NotEmpty:
		return -fuse.ENOTEMPTY
	case fserr.IsDir:
		return -fuse.EISDIR
	case fserr.Permission:
		return -fuse.EPERM
	case fserr.Invalid:
		return -fuse.EINVAL
	case fserr.IO:
		return -fuse.EIO
	default:
		return -fuse.EIO
	}
}

// Access implements fuse.FileSystemInterface.
func (g *GroupFS) Access(path string, mask uint32) int {
	_, err := g.resolve.Validate("Access", path, true)
	return errnoFor(err)
}

// Getattr implements fuse.FileSystemInterface.
func (g *GroupFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	resolved, err := g.resolve.Validate("Getattr", path, true)
	if err != nil {
		return errnoFor(err)
	}

	uid, gid, _ := fuse.Getcontext()

	switch resolved.LeafKind {
	case resolver.Root, resolver.Group:
		stat.Mode = fuse.S_IFDIR | 0o755
		stat.Nlink = 2
		stat.Size = 1024
		stat.Uid, stat.Gid = uid, gid
		stat.Atim, stat.Mtim, stat.Ctim = g.startTim, g.startTim, g.startTim
		return 0
	case resolver.File:
		value, err := g.store.ReadFileValue(resolved.LeafName)
		if err != nil {
			return errnoFor(err)
		}
		stat.Mode = fuse.S_IFREG | 0o755
		stat.Nlink = 1
		stat.Size = int64(len(value))
		stat.Uid, stat.Gid = uid, gid
		stat.Atim, stat.Mtim, stat.Ctim = g.startTim, g.startTim, g.startTim
		return 0
	case resolver.Reserved:
		body, err := statsJSON(g.store)
		if err != nil {
			return errnoFor(err)
		}
		stat.Mode = fuse.S_IFREG | 0o444
		stat.Nlink = 1
		stat.Size = int64(len(body))
		stat.Uid, stat.Gid = uid, gid
		stat.Atim, stat.Mtim, stat.Ctim = g.startTim, g.startTim, g.startTim
		return 0
	default:
		return -fuse.ENOENT
	}
}

// Opendir implements fuse.FileSystemInterface, caching the listing so a
// Readdir immediately following an Opendir does not re-query the graph.
func (g *GroupFS) Opendir(path string) (int, uint64) {
	resolved, err := g.resolve.Validate("Opendir", path, true)
	if err != nil {
		return errnoFor(err), 0
	}
	if resolved.LeafKind == resolver.File || resolved.LeafKind == resolver.Reserved {
		return -fuse.ENOTDIR, 0
	}

	view, err := g.view.List(groupsOf(resolved))
	if err != nil {
		return errnoFor(err), 0
	}
	entries := view.Entries()
	if resolved.LeafKind == resolver.Root {
		entries = append(entries, dirview.Entry{Name: resolver.StatsFileName})
	}

	g.handleMu.Lock()
	g.nextFh++
	fh := g.nextFh
	g.handles[fh] = &dirHandle{entries: entries}
	g.handleMu.Unlock()
	return 0, fh
}

// Releasedir implements fuse.FileSystemInterface.
func (g *GroupFS) Releasedir(path string, fh uint64) int {
	g.handleMu.Lock()
	delete(g.handles, fh)
	g.handleMu.Unlock()
	return 0
}

// Readdir implements fuse.FileSystemInterface. fill's return value must be
// honored: false means the receiving buffer is full and no more entries
// should be sent, not that the call failed.
func (g *GroupFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	var entries []dirview.Entry

	if fh != 0 {
		g.handleMu.Lock()
		h, ok := g.handles[fh]
		g.handleMu.Unlock()
		if ok {
			entries = h.entries
		}
	}

	if entries == nil {
		resolved, err := g.resolve.Validate("Readdir", path, true)
		if err != nil {
			return errnoFor(err)
		}
		if resolved.LeafKind == resolver.File || resolved.LeafKind == resolver.Reserved {
			return -fuse.ENOTDIR
		}
		view, err := g.view.List(groupsOf(resolved))
		if err != nil {
			return errnoFor(err)
		}
		entries = view.Entries()
		if resolved.LeafKind == resolver.Root {
			entries = append(entries, dirview.Entry{Name: resolver.StatsFileName})
		}
	}

	for _, e := range entries {
		if !fill(e.Name, nil, 0) {
			break
		}
	}
	return 0
}

// Mkdir implements fuse.FileSystemInterface.
func (g *GroupFS) Mkdir(path string, mode uint32) int {
	resolved, err := g.resolve.Validate("Mkdir", path, false)
	if err != nil {
		return errnoFor(err)
	}
	if resolved.LeafKind == resolver.Root {
		return -fuse.EPERM
	}
	if resolved.LeafKind != resolver.Absent {
		return -fuse.EEXIST
	}
	if err := g.store.CreateGroup(resolved.LeafName); err != nil {
		return errnoFor(err)
	}
	log.Printf("groupfs[%s]: mkdir %s", g.session, path)
	return 0
}

// Rmdir implements fuse.FileSystemInterface.
func (g *GroupFS) Rmdir(path string) int {
	resolved, err := g.resolve.Validate("Rmdir", path, true)
	if err != nil {
		return errnoFor(err)
	}
	if resolved.LeafKind == resolver.Root {
		return -fuse.EPERM
	}
	if resolved.LeafKind != resolver.Group {
		return -fuse.ENOENT
	}
	hasFiles, err := g.store.GroupHasFiles(resolved.LeafName)
	if err != nil {
		return errnoFor(err)
	}
	if hasFiles {
		return -fuse.ENOTEMPTY
	}
	if err := g.store.DeleteGroup(resolved.LeafName); err != nil {
		return errnoFor(err)
	}
	log.Printf("groupfs[%s]: rmdir %s", g.session, path)
	return 0
}

// Create implements fuse.FileSystemInterface.
func (g *GroupFS) Create(path string, flags int, mode uint32) (int, uint64) {
	resolved, err := g.resolve.Validate("Create", path, false)
	if err != nil {
		return errnoFor(err), 0
	}
	switch resolved.LeafKind {
	case resolver.Root:
		return -fuse.EPERM, 0
	case resolver.Reserved:
		return -fuse.EEXIST, 0
	case resolver.File:
		return 0, 0
	case resolver.Group:
		return -fuse.EISDIR, 0
	default:
		if err := g.store.CreateFileLinkedToGroups(resolved.LeafName, resolved.Prefix); err != nil {
			return errnoFor(err), 0
		}
		log.Printf("groupfs[%s]: create %s", g.session, path)
		return 0, 0
	}
}

// Open implements fuse.FileSystemInterface.
func (g *GroupFS) Open(path string, flags int) (int, uint64) {
	resolved, err := g.resolve.Validate("Open", path, true)
	if err != nil {
		return errnoFor(err), 0
	}
	if resolved.LeafKind != resolver.File && resolved.LeafKind != resolver.Reserved {
		return -fuse.EISDIR, 0
	}
	return 0, 0
}

// Read implements fuse.FileSystemInterface. Offset/length are honored only
// as a plain slice into the whole stored value — there is no partial-write
// semantics beyond that.
func (g *GroupFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	resolved, err := g.resolve.Validate("Read", path, true)
	if err != nil {
		return errnoFor(err)
	}

	var value []byte
	switch resolved.LeafKind {
	case resolver.File:
		value, err = g.store.ReadFileValue(resolved.LeafName)
		if err != nil {
			return errnoFor(err)
		}
	case resolver.Reserved:
		value, err = statsJSON(g.store)
		if err != nil {
			return errnoFor(err)
		}
	default:
		return -fuse.EISDIR
	}

	if ofst >= int64(len(value)) {
		return 0
	}
	end := ofst + int64(len(buff))
	if end > int64(len(value)) {
		end = int64(len(value))
	}
	return copy(buff, value[ofst:end])
}

// Write implements fuse.FileSystemInterface. The stored value is replaced
// wholesale with buff regardless of ofst.
func (g *GroupFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	resolved, err := g.resolve.Validate("Write", path, true)
	if err != nil {
		return errnoFor(err)
	}
	if resolved.LeafKind == resolver.Reserved {
		return -fuse.EACCES
	}
	if resolved.LeafKind != resolver.File {
		return -fuse.EISDIR
	}
	value := make([]byte, len(buff))
	copy(value, buff)
	if err := g.store.WriteFileValue(resolved.LeafName, value); err != nil {
		return errnoFor(err)
	}
	log.Printf("groupfs[%s]: write %s (%d bytes)", g.session, path, len(buff))
	return len(buff)
}

// Truncate implements fuse.FileSystemInterface: always clears the stored
// value to absent, regardless of size.
func (g *GroupFS) Truncate(path string, size int64, fh uint64) int {
	resolved, err := g.resolve.Validate("Truncate", path, true)
	if err != nil {
		return errnoFor(err)
	}
	if resolved.LeafKind == resolver.Reserved {
		return -fuse.EACCES
	}
	if resolved.LeafKind != resolver.File {
		return -fuse.EISDIR
	}
	if err := g.store.WriteFileValue(resolved.LeafName, nil); err != nil {
		return errnoFor(err)
	}
	log.Printf("groupfs[%s]: truncate %s", g.session, path)
	return 0
}

// Unlink implements fuse.FileSystemInterface.
func (g *GroupFS) Unlink(path string) int {
	resolved, err := g.resolve.Validate("Unlink", path, true)
	if err != nil {
		return errnoFor(err)
	}
	switch resolved.LeafKind {
	case resolver.Root, resolver.Group:
		return -fuse.EPERM
	case resolver.Reserved:
		return -fuse.EACCES
	}
	if err := g.store.DeleteFile(resolved.LeafName); err != nil {
		return errnoFor(err)
	}
	log.Printf("groupfs[%s]: unlink %s", g.session, path)
	return 0
}

// Rename implements fuse.FileSystemInterface, delegating to RenameEngine.
func (g *GroupFS) Rename(oldpath, newpath string) int {
	if _, err := g.resolve.Validate("Rename", oldpath, true); err != nil {
		return errnoFor(err)
	}
	if _, err := g.resolve.Validate("Rename", newpath, false); err != nil {
		return errnoFor(err)
	}
	if err := g.renamer.Rename(oldpath, newpath); err != nil {
		return errnoFor(err)
	}
	log.Printf("groupfs[%s]: rename %s -> %s", g.session, oldpath, newpath)
	return 0
}

// Statfs implements fuse.FileSystemInterface with fixed, plausible values —
// groupfs has no disk-block concept of its own to report.
func (g *GroupFS) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 512
	stat.Blocks = 4096
	stat.Bfree = 2048
	stat.Bavail = 2048
	return 0
}

// Flush implements fuse.FileSystemInterface as a no-op.
func (g *GroupFS) Flush(path string, fh uint64) int { return 0 }

// Release implements fuse.FileSystemInterface as a no-op.
func (g *GroupFS) Release(path string, fh uint64) int { return 0 }

// Fsync implements fuse.FileSystemInterface as a no-op.
func (g *GroupFS) Fsync(path string, datasync bool, fh uint64) int { return 0 }

// Chmod, Chown, Utimens, Readlink, Symlink, Link and Mknod are accepted and
// have no effect.
func (g *GroupFS) Chmod(path string, mode uint32) int             { return 0 }
func (g *GroupFS) Chown(path string, uid uint32, gid uint32) int  { return 0 }
func (g *GroupFS) Utimens(path string, tmsp []fuse.Timespec) int  { return 0 }
func (g *GroupFS) Readlink(path string) (int, string)             { return 0, "" }
func (g *GroupFS) Symlink(target string, newpath string) int      { return 0 }
func (g *GroupFS) Link(oldpath string, newpath string) int        { return 0 }
func (g *GroupFS) Mknod(path string, mode uint32, dev uint64) int { return 0 }

// groupsOf returns the group filter a resolved directory path projects: nil
// for the root, otherwise the full segment chain. Callers reject file leaves
// before calling it.
func groupsOf(r *resolver.Resolved) []string {
	if r.LeafKind == resolver.Root {
		return nil
	}
	return r.Segments
}
