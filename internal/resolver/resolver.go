// Package resolver implements PathResolver: it turns a raw path into a
// validated segment sequence plus a classification of what the leaf
// denotes, checking every prefix segment against the graph.
package resolver

import (
	"github.com/groupfs/groupfs/internal/fserr"
	"github.com/groupfs/groupfs/internal/graphstore"
	"github.com/groupfs/groupfs/internal/pathcodec"
)

// Leaf classifies what a path denotes.
type Leaf int

const (
	// Root denotes "/" itself.
	Root Leaf = iota
	// Group denotes an existing group.
	Group
	// File denotes an existing file.
	File
	// Absent denotes a name that exists as neither.
	Absent
	// Reserved denotes the virtual /_stats.json diagnostic file: never a
	// real group or file, and never creatable as one.
	Reserved
)

// StatsFileName is the one name PathResolver reserves for the virtual
// diagnostics file at the filesystem root.
const StatsFileName = "_stats.json"

// Classifier is the subset of graphstore.Store that PathResolver needs —
// kept as an interface so resolver tests can supply a fake without a real
// SQLite connection.
type Classifier interface {
	Classify(name string) (graphstore.Class, error)
}

// Resolved is the outcome of validating a path.
type Resolved struct {
	// Segments is the parsed path, nil for the root.
	Segments []string
	// Prefix is Segments without the final element (nil for the root,
	// empty for a single-segment path).
	Prefix []string
	// LeafName is Segments[len(Segments)-1], "" for the root.
	LeafName string
	// LeafKind classifies LeafName (or Root if Segments is nil).
	LeafKind Leaf
}

// Resolver validates paths against a Classifier.
type Resolver struct {
	graph Classifier
}

// New builds a Resolver over graph.
func New(graph Classifier) *Resolver {
	return &Resolver{graph: graph}
}

// Validate parses and classifies path.
//
// Every name in the prefix must be an existing group. If requireLeaf is
// true, the leaf must exist as a group or a file; otherwise the leaf is not
// required to exist (its classification is still reported, as Absent if it
// doesn't).
func (r *Resolver) Validate(op, path string, requireLeaf bool) (*Resolved, error) {
	segments, err := pathcodec.Parse(path)
	if err != nil {
		return nil, err
	}
	if segments == nil {
		return &Resolved{LeafKind: Root}, nil
	}

	prefix := segments[:len(segments)-1]
	leafName := segments[len(segments)-1]

	for _, name := range prefix {
		class, err := r.graph.Classify(name)
		if err != nil {
			return nil, err
		}
		if class != graphstore.ClassGroup {
			return nil, fserr.New(fserr.NotFound, op, path)
		}
	}

	var leafKind Leaf
	if len(prefix) == 0 && leafName == StatsFileName {
		leafKind = Reserved
	} else {
		leafClass, err := r.graph.Classify(leafName)
		if err != nil {
			return nil, err
		}
		leafKind = toLeaf(leafClass)
	}

	if requireLeaf && leafKind == Absent {
		return nil, fserr.New(fserr.NotFound, op, path)
	}

	return &Resolved{
		Segments: segments,
		Prefix:   prefix,
		LeafName: leafName,
		LeafKind: leafKind,
	}, nil
}

// ClassifyLeaf reports what the single name denotes (Group, File or
// Absent), without validating any prefix and without the root-only
// Reserved check Validate applies.
func (r *Resolver) ClassifyLeaf(name string) (Leaf, error) {
	class, err := r.graph.Classify(name)
	if err != nil {
		return Absent, err
	}
	return toLeaf(class), nil
}

func toLeaf(c graphstore.Class) Leaf {
	switch c {
	case graphstore.ClassGroup:
		return Group
	case graphstore.ClassFile:
		return File
	default:
		return Absent
	}
}
