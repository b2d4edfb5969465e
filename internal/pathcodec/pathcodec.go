// Package pathcodec turns the slash-delimited paths the OS hands the
// filesystem into the segment sequences the rest of groupfs reasons about.
// It has no knowledge of the graph — it is pure syntax.
package pathcodec

import (
	"strings"

	"github.com/groupfs/groupfs/internal/fserr"
)

// Parse normalizes path and splits it into name segments.
//
// "/" (the root sentinel) and the empty string both return (nil, nil). A
// bare name with no slash returns a single-element slice. Any other
// absolute path splits on "/" after collapsing repeated separators and
// dropping a trailing one; a relative path containing a slash fails with
// fserr.Invalid.
func Parse(path string) ([]string, error) {
	norm := normalize(path)

	if norm == "/" {
		return nil, nil
	}
	if !strings.Contains(norm, "/") {
		return []string{norm}, nil
	}

	parts := strings.Split(norm, "/")
	if len(parts) < 2 || parts[0] != "" {
		return nil, fserr.New(fserr.Invalid, "parse", path)
	}
	segments := parts[1:]
	for _, s := range segments {
		if s == "" {
			return nil, fserr.New(fserr.Invalid, "parse", path)
		}
	}
	return segments, nil
}

// normalize collapses repeated "/" and "\\" separators into a single "/",
// and strips a Windows-style drive prefix ("C:") if present. The FUSE and
// NFS transports both hand us POSIX-style paths in practice, but a single
// normalization routine keeps that assumption in one place.
func normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")

	if len(path) >= 2 && path[1] == ':' {
		path = path[2:]
	}

	var b strings.Builder
	b.Grow(len(path))
	lastSlash := false
	for _, r := range path {
		if r == '/' {
			if lastSlash {
				continue
			}
			lastSlash = true
		} else {
			lastSlash = false
		}
		b.WriteRune(r)
	}
	norm := b.String()
	if norm == "" {
		norm = "/"
	}
	if len(norm) > 1 && strings.HasSuffix(norm, "/") {
		norm = strings.TrimSuffix(norm, "/")
	}
	return norm
}

// Join reassembles segments into an absolute path, the inverse of Parse for
// well-formed input.
func Join(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
