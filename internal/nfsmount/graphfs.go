// Package nfsmount provides an NFS-based mount backend for groupfs.
// It adapts the same PathResolver/DirectoryView/RenameEngine/GraphGateway
// stack FSOps uses to billy.Filesystem for use with willscott/go-nfs, so a
// graph can be mounted in environments without a kernel FUSE driver.
package nfsmount

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/groupfs/groupfs/internal/dirview"
	"github.com/groupfs/groupfs/internal/fserr"
	"github.com/groupfs/groupfs/internal/graphstore"
	"github.com/groupfs/groupfs/internal/rename"
	"github.com/groupfs/groupfs/internal/resolver"
)

var errReadOnly = fmt.Errorf("read-only filesystem")

// GraphFS adapts groupfs's graph projection to billy.Filesystem. Because
// the domain is a conjunctive-filter graph rather than a tree, ReadDir,
// Lstat, Open, Create, Remove and Rename all route through PathResolver and
// DirectoryView rather than any notion of a parent directory handle.
type GraphFS struct {
	store     *graphstore.Store
	resolve   *resolver.Resolver
	view      *dirview.DirectoryView
	renamer   *rename.Engine
	mountTime time.Time
}

// NewGraphFS builds a billy.Filesystem backed by store.
func NewGraphFS(store *graphstore.Store) *GraphFS {
	return &GraphFS{
		store:     store,
		resolve:   resolver.New(store),
		view:      dirview.New(store),
		renamer:   rename.New(store),
		mountTime: time.Now(),
	}
}

func pathErr(op, path string, err error) error {
	kind, ok := fserr.KindOf(err)
	if !ok {
		return &os.PathError{Op: op, Path: path, Err: err}
	}
	switch kind {
	case fserr.NotFound:
		return &os.PathError{Op: op, Path: path, Err: os.ErrNotExist}
	case fserr.Exists:
		return &os.PathError{Op: op, Path: path, Err: os.ErrExist}
	case fserr.Permission:
		return &os.PathError{Op: op, Path: path, Err: os.ErrPermission}
	case fserr.IsDir:
		return &os.PathError{Op: op, Path: path, Err: fmt.Errorf("is a directory")}
	case fserr.NotEmpty:
		return &os.PathError{Op: op, Path: path, Err: fmt.Errorf("directory not empty")}
	case fserr.Invalid:
		return &os.PathError{Op: op, Path: path, Err: fmt.Errorf("invalid argument")}
	default:
		return &os.PathError{Op: op, Path: path, Err: err}
	}
}

// --- billy.Basic ---

// Create makes a new file at filename, linked to every group named by its
// prefix segments, mirroring FSOps.Create's leaf-absent branch.
func (fs *GraphFS) Create(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0)
}

func (fs *GraphFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *GraphFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	cleaned := cleanPath(filename)
	writing := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0

	resolved, err := fs.resolve.Validate("OpenFile", cleaned, !writing || flag&os.O_CREATE == 0)
	if err != nil {
		return nil, pathErr("open", filename, err)
	}

	switch resolved.LeafKind {
	case resolver.Root, resolver.Group:
		return nil, pathErr("open", filename, fserr.New(fserr.IsDir, "OpenFile", cleaned))
	case resolver.Reserved:
		if writing {
			return nil, pathErr("open", filename, fserr.New(fserr.Permission, "OpenFile", cleaned))
		}
		body, err := statsJSON(fs.store)
		if err != nil {
			return nil, pathErr("open", filename, err)
		}
		return &staticFile{name: resolver.StatsFileName, body: body}, nil
	case resolver.Absent:
		if !writing {
			return nil, pathErr("open", filename, fserr.New(fserr.NotFound, "OpenFile", cleaned))
		}
		if err := fs.store.CreateFileLinkedToGroups(resolved.LeafName, resolved.Prefix); err != nil {
			return nil, pathErr("open", filename, err)
		}
		return &graphFile{id: resolved.LeafName, store: fs.store}, nil
	default: // File
		if writing && flag&os.O_TRUNC != 0 {
			if err := fs.store.WriteFileValue(resolved.LeafName, nil); err != nil {
				return nil, pathErr("open", filename, err)
			}
		}
		return &graphFile{id: resolved.LeafName, store: fs.store}, nil
	}
}

func (fs *GraphFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

// Rename delegates to RenameEngine's decision matrix: groupfs's graph model
// makes rename a well-defined edge-migration operation over NFS too, rather
// than a read-only transport restriction.
func (fs *GraphFS) Rename(oldpath, newpath string) error {
	if _, err := fs.resolve.Validate("Rename", cleanPath(oldpath), true); err != nil {
		return pathErr("rename", oldpath, err)
	}
	if _, err := fs.resolve.Validate("Rename", cleanPath(newpath), false); err != nil {
		return pathErr("rename", newpath, err)
	}
	if err := fs.renamer.Rename(cleanPath(oldpath), cleanPath(newpath)); err != nil {
		return pathErr("rename", oldpath, err)
	}
	return nil
}

func (fs *GraphFS) Remove(filename string) error {
	cleaned := cleanPath(filename)
	resolved, err := fs.resolve.Validate("Remove", cleaned, true)
	if err != nil {
		return pathErr("remove", filename, err)
	}
	switch resolved.LeafKind {
	case resolver.Root, resolver.Group:
		return pathErr("remove", filename, fserr.New(fserr.IsDir, "Remove", cleaned))
	case resolver.Reserved:
		return pathErr("remove", filename, fserr.New(fserr.Permission, "Remove", cleaned))
	default:
		if err := fs.store.DeleteFile(resolved.LeafName); err != nil {
			return pathErr("remove", filename, err)
		}
		return nil
	}
}

func (fs *GraphFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *GraphFS) TempFile(_, _ string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *GraphFS) ReadDir(path string) ([]os.FileInfo, error) {
	cleaned := cleanPath(path)
	resolved, err := fs.resolve.Validate("ReadDir", cleaned, true)
	if err != nil {
		return nil, pathErr("readdir", path, err)
	}
	if resolved.LeafKind == resolver.File {
		return nil, pathErr("readdir", path, fserr.New(fserr.Invalid, "ReadDir", cleaned))
	}

	listing, err := fs.view.List(groupsOf(resolved))
	if err != nil {
		return nil, pathErr("readdir", path, err)
	}

	infos := make([]os.FileInfo, 0, len(listing.Groups)+len(listing.Files)+1)
	for _, g := range listing.Groups {
		infos = append(infos, &staticFileInfo{name: g, mode: os.ModeDir | 0o755, modTime: fs.mountTime})
	}
	for _, name := range listing.Files {
		value, err := fs.store.ReadFileValue(name)
		if err != nil {
			return nil, pathErr("readdir", path, err)
		}
		infos = append(infos, &staticFileInfo{name: name, size: int64(len(value)), mode: 0o644, modTime: fs.mountTime})
	}
	if resolved.LeafKind == resolver.Root {
		body, err := statsJSON(fs.store)
		if err != nil {
			return nil, pathErr("readdir", path, err)
		}
		infos = append(infos, &staticFileInfo{name: resolver.StatsFileName, size: int64(len(body)), mode: 0o444, modTime: fs.mountTime})
	}
	return infos, nil
}

// MkdirAll creates a new group for the final path element. groupfs has no
// nested-group hierarchy to create along the way, so every intermediate
// segment is validated as an existing group exactly as Mkdir requires.
func (fs *GraphFS) MkdirAll(filename string, _ os.FileMode) error {
	cleaned := cleanPath(filename)
	resolved, err := fs.resolve.Validate("MkdirAll", cleaned, false)
	if err != nil {
		return pathErr("mkdir", filename, err)
	}
	switch resolved.LeafKind {
	case resolver.Root:
		return pathErr("mkdir", filename, fserr.New(fserr.Permission, "MkdirAll", cleaned))
	case resolver.Absent:
		if err := fs.store.CreateGroup(resolved.LeafName); err != nil {
			return pathErr("mkdir", filename, err)
		}
		return nil
	case resolver.Group:
		return nil
	default:
		return pathErr("mkdir", filename, fserr.New(fserr.Exists, "MkdirAll", cleaned))
	}
}

// --- billy.Symlink ---

func (fs *GraphFS) Lstat(filename string) (os.FileInfo, error) {
	cleaned := cleanPath(filename)
	resolved, err := fs.resolve.Validate("Lstat", cleaned, true)
	if err != nil {
		return nil, pathErr("lstat", filename, err)
	}

	switch resolved.LeafKind {
	case resolver.Root, resolver.Group:
		return &staticFileInfo{name: lstatName(resolved, cleaned), mode: os.ModeDir | 0o755, modTime: fs.mountTime}, nil
	case resolver.Reserved:
		body, err := statsJSON(fs.store)
		if err != nil {
			return nil, pathErr("lstat", filename, err)
		}
		return &staticFileInfo{name: resolver.StatsFileName, size: int64(len(body)), mode: 0o444, modTime: fs.mountTime}, nil
	default: // File
		value, err := fs.store.ReadFileValue(resolved.LeafName)
		if err != nil {
			return nil, pathErr("lstat", filename, err)
		}
		return &staticFileInfo{name: resolved.LeafName, size: int64(len(value)), mode: 0o644, modTime: fs.mountTime}, nil
	}
}

func lstatName(r *resolver.Resolved, cleaned string) string {
	if r.LeafKind == resolver.Root {
		return "/"
	}
	if cleaned == "/"+r.LeafName {
		return r.LeafName
	}
	return filepath.Base(cleaned)
}

func (fs *GraphFS) Symlink(_, _ string) error {
	return billy.ErrNotSupported
}

func (fs *GraphFS) Readlink(_ string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *GraphFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *GraphFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *GraphFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.WriteCapability | billy.SeekCapability
}

// --- internals ---

// groupsOf mirrors fuseops.groupsOf: the group filter a resolved directory
// path projects.
func groupsOf(r *resolver.Resolved) []string {
	if r.LeafKind == resolver.Root {
		return nil
	}
	return r.Segments
}

// cleanPath normalizes a billy path to the absolute form PathResolver
// expects.
func cleanPath(path string) string {
	path = filepath.Clean("/" + path)
	if path == "." {
		return "/"
	}
	return path
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

// Compile-time interface checks.
var (
	_ billy.Filesystem = (*GraphFS)(nil)
	_ billy.Capable    = (*GraphFS)(nil)
	_ error            = errReadOnly
	_ billy.File       = (*graphFile)(nil)
	_ billy.File       = (*staticFile)(nil)
)
