package dirview

import (
	"reflect"
	"testing"
)

type fakeLister struct {
	groups map[string][]string
	files  map[string][]string
}

func key(groups []string) string {
	s := ""
	for _, g := range groups {
		s += g + ","
	}
	return s
}

func (f *fakeLister) ListGroupsUnderFilter(groups []string) ([]string, error) {
	return f.groups[key(groups)], nil
}

func (f *fakeLister) ListFilesUnderFilter(groups []string) ([]string, error) {
	return f.files[key(groups)], nil
}

func TestList_Root(t *testing.T) {
	lister := &fakeLister{
		groups: map[string][]string{"": {"CVE-2024-1234", "vulns"}},
		files:  map[string][]string{"": {"readme"}},
	}
	view, err := New(lister).List(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(view.Groups, []string{"CVE-2024-1234", "vulns"}) {
		t.Fatalf("Groups = %v", view.Groups)
	}
	if !reflect.DeepEqual(view.Files, []string{"readme"}) {
		t.Fatalf("Files = %v", view.Files)
	}
}

func TestEntries_OrderAndFixedNames(t *testing.T) {
	view := &View{Groups: []string{"b", "a"}, Files: []string{"z", "y"}}
	entries := view.Entries()

	want := []Entry{
		{Name: ".", IsDir: true},
		{Name: "..", IsDir: true},
		{Name: "b", IsDir: true},
		{Name: "a", IsDir: true},
		{Name: "z", IsDir: false},
		{Name: "y", IsDir: false},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("Entries() = %+v, want %+v", entries, want)
	}
}

func TestList_PropagatesGraphError(t *testing.T) {
	lister := &erroringLister{}
	if _, err := New(lister).List([]string{"vulns"}); err == nil {
		t.Fatal("expected error to propagate")
	}
}

type erroringLister struct{}

func (erroringLister) ListGroupsUnderFilter(groups []string) ([]string, error) {
	return nil, errBoom
}
func (erroringLister) ListFilesUnderFilter(groups []string) ([]string, error) {
	return nil, errBoom
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }
