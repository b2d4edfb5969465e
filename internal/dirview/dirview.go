// Package dirview implements DirectoryView: given the group segments of an
// already-validated directory path, it produces the
// "." / ".." / refinement-group / resident-file listing that Readdir and
// its NFS counterpart both render, over the conjunctive-filter queries
// GraphGateway exposes.
package dirview

import (
	"github.com/groupfs/groupfs/internal/graphstore"
)

// Lister is the subset of graphstore.Store DirectoryView needs.
type Lister interface {
	ListGroupsUnderFilter(groups []string) ([]string, error)
	ListFilesUnderFilter(groups []string) ([]string, error)
}

// Entry is one name in a directory listing, classified so FSOps can answer
// Getattr for it without a second graph round trip during Readdir.
type Entry struct {
	Name  string
	IsDir bool
}

// View is a fully computed directory listing: refinement groups (rendered
// as subdirectories) followed by resident files, groups before files, each
// alphabetical.
type View struct {
	Groups []string
	Files  []string
}

// Entries flattens the view into "." and ".." plus every child, in display
// order: groups first, then files, each sorted (ListGroupsUnderFilter and
// ListFilesUnderFilter both already return sorted slices).
func (v *View) Entries() []Entry {
	entries := make([]Entry, 0, 2+len(v.Groups)+len(v.Files))
	entries = append(entries, Entry{Name: ".", IsDir: true}, Entry{Name: "..", IsDir: true})
	for _, g := range v.Groups {
		entries = append(entries, Entry{Name: g, IsDir: true})
	}
	for _, f := range v.Files {
		entries = append(entries, Entry{Name: f, IsDir: false})
	}
	return entries
}

// DirectoryView computes the listing for a directory whose group filter is
// groups (nil for the root: every group and every file is a candidate).
type DirectoryView struct {
	graph Lister
}

// New builds a DirectoryView over graph.
func New(graph Lister) *DirectoryView {
	return &DirectoryView{graph: graph}
}

// List computes the refinement groups and resident files for groups.
func (d *DirectoryView) List(groups []string) (*View, error) {
	refinements, err := d.graph.ListGroupsUnderFilter(groups)
	if err != nil {
		return nil, err
	}
	files, err := d.graph.ListFilesUnderFilter(groups)
	if err != nil {
		return nil, err
	}
	return &View{Groups: refinements, Files: files}, nil
}

var _ Lister = (*graphstore.Store)(nil)
