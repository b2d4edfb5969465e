// Package rename implements RenameEngine: the root/same-leaf/different-leaf
// decision matrix that Rename(old, new) reduces to, issued as ordered graph
// statements against GraphGateway.
package rename

import (
	"github.com/groupfs/groupfs/internal/fserr"
	"github.com/groupfs/groupfs/internal/graphstore"
	"github.com/groupfs/groupfs/internal/pathcodec"
)

// Graph is the subset of graphstore.Store RenameEngine needs.
type Graph interface {
	Classify(name string) (graphstore.Class, error)
	RenameGroup(oldName, newName string) error
	RenameFileAcrossGroups(file string, detach, attach []string) error
	RenameFileRelocate(oldName, newName string, detach, attach []string) error
	OverwriteFileOnRename(oldName, existingName string, attachGroups []string) error
}

// Engine runs the rename decision matrix over a Graph.
type Engine struct {
	graph Graph
}

// New builds an Engine over graph.
func New(graph Graph) *Engine {
	return &Engine{graph: graph}
}

// Rename executes the move/rename of oldPath onto newPath.
func (e *Engine) Rename(oldPath, newPath string) error {
	oldSegs, err := pathcodec.Parse(oldPath)
	if err != nil {
		return err
	}
	newSegs, err := pathcodec.Parse(newPath)
	if err != nil {
		return err
	}

	if oldSegs == nil {
		return fserr.New(fserr.Permission, "Rename", oldPath)
	}
	if newSegs == nil {
		return nil
	}

	oldPrefix, oldLeaf := oldSegs[:len(oldSegs)-1], oldSegs[len(oldSegs)-1]
	newPrefix, newLeaf := newSegs[:len(newSegs)-1], newSegs[len(newSegs)-1]

	oldKind, err := e.graph.Classify(oldLeaf)
	if err != nil {
		return err
	}

	if oldLeaf == newLeaf {
		return e.moveSameLeaf(oldPath, oldLeaf, oldKind, oldPrefix, newPrefix)
	}

	newKind, err := e.graph.Classify(newLeaf)
	if err != nil {
		return err
	}
	return e.renameDifferentLeaf(oldPath, newPath, oldLeaf, newLeaf, oldKind, newKind, oldPrefix, newPrefix)
}

// moveSameLeaf handles O[-1] == N[-1]: a move of the same-named entity into
// a different set of containing groups.
func (e *Engine) moveSameLeaf(path, leaf string, leafKind graphstore.Class, oldPrefix, newPrefix []string) error {
	if leafKind == graphstore.ClassGroup {
		return fserr.New(fserr.Permission, "Rename", path)
	}
	// leafKind == ClassFile: Validate already rejected ClassAbsent before
	// RenameEngine ever runs, since old's leaf is required to exist.
	return e.graph.RenameFileAcrossGroups(leaf, oldPrefix, newPrefix)
}

// renameDifferentLeaf handles the 3x2 matrix keyed on (leafOld kind,
// leafNew presence).
func (e *Engine) renameDifferentLeaf(oldPath, newPath, oldLeaf, newLeaf string, oldKind, newKind graphstore.Class, oldPrefix, newPrefix []string) error {
	switch oldKind {
	case graphstore.ClassGroup:
		switch newKind {
		case graphstore.ClassFile, graphstore.ClassGroup:
			return fserr.New(fserr.Permission, "Rename", newPath)
		default: // ClassAbsent
			return e.graph.RenameGroup(oldLeaf, newLeaf)
		}
	case graphstore.ClassFile:
		switch newKind {
		case graphstore.ClassFile:
			return e.graph.OverwriteFileOnRename(oldLeaf, newLeaf, oldPrefix)
		case graphstore.ClassGroup:
			// Renaming a file onto an existing group's name fails closed,
			// no mutation: a group can't be demoted to holding a file's
			// identity, and a file can't be promoted to a group's.
			return fserr.New(fserr.Permission, "Rename", newPath)
		default: // ClassAbsent
			return e.graph.RenameFileRelocate(oldLeaf, newLeaf, oldPrefix, newPrefix)
		}
	default:
		return fserr.New(fserr.NotFound, "Rename", oldPath)
	}
}
