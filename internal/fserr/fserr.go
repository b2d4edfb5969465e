// Package fserr defines the error taxonomy shared by every layer of groupfs,
// from GraphGateway up through the FUSE and NFS transports. Each layer wraps
// failures in a *Error carrying one of the Kind sentinels below; only the
// transport layers (internal/fuseops, internal/nfsmount) translate a Kind
// into a transport-specific code.
package fserr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of how it will be surfaced to the
// OS. Each transport maps these onto its own errno table.
type Kind int

const (
	// NotFound: a path prefix or a required leaf is missing.
	NotFound Kind = iota
	// Exists: create/mkdir collided with an existing group or file.
	Exists
	// NotEmpty: rmdir was attempted on a group that still has files.
	NotEmpty
	// IsDir: a file operation targeted a group path or the root.
	IsDir
	// Permission: a mutation targeted the root, or a folder-into-folder rename was attempted.
	Permission
	// Invalid: a malformed path or an illegal identifier character.
	Invalid
	// IO: the underlying graph store reported an error.
	IO
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Exists:
		return "exists"
	case NotEmpty:
		return "not empty"
	case IsDir:
		return "is a directory"
	case Permission:
		return "permission denied"
	case Invalid:
		return "invalid"
	case IO:
		return "io error"
	default:
		return "unknown"
	}
}

// Error is the sentinel-wrapped error type every groupfs layer returns.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "mkdir", "readdir"
	Path string // path involved, may be empty
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no underlying cause.
func New(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error. Returns (IO, false) for any other non-nil error, and (Kind(0),
// false) for a nil error — callers must check the ok result.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return IO, false
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
