package graphstore

import (
	"database/sql"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// bitmapIndex is the read-acceleration structure backing conjunctive group
// filtering: a roaring-bitmap cache over the edges table. Small dense
// integer IDs are assigned to names, set membership is indexed with roaring
// bitmaps, and deletions tombstone rather than compact.
//
// The SQL tables remain authoritative; this structure can always be rebuilt
// from them by calling load. Every Store method that mutates groups, files,
// or edges updates this index in the same call.
type bitmapIndex struct {
	fileID   map[string]uint32
	intFile  []string // uint32 -> file name, "" for tombstoned slots
	groupID  map[string]uint32
	intGroup []string // uint32 -> group name, "" for tombstoned slots

	// groupToFiles[g] = bitmap of file IDs linked to group g.
	groupToFiles map[uint32]*roaring.Bitmap
	// fileToGroups[f] = bitmap of group IDs that file f is linked to.
	fileToGroups map[uint32]*roaring.Bitmap
}

func newBitmapIndex() *bitmapIndex {
	return &bitmapIndex{
		fileID:       make(map[string]uint32),
		groupID:      make(map[string]uint32),
		groupToFiles: make(map[uint32]*roaring.Bitmap),
		fileToGroups: make(map[uint32]*roaring.Bitmap),
	}
}

// load performs the one full scan of groups, files and edges needed to
// populate the index from a freshly opened database.
func (idx *bitmapIndex) load(db *sql.DB) error {
	groupRows, err := db.Query("SELECT name FROM groups")
	if err != nil {
		return err
	}
	var names []string
	for groupRows.Next() {
		var n string
		if err := groupRows.Scan(&n); err != nil {
			_ = groupRows.Close()
			return err
		}
		names = append(names, n)
	}
	if err := groupRows.Close(); err != nil {
		return err
	}
	for _, n := range names {
		idx.addGroup(n)
	}

	fileRows, err := db.Query("SELECT name FROM files")
	if err != nil {
		return err
	}
	names = nil
	for fileRows.Next() {
		var n string
		if err := fileRows.Scan(&n); err != nil {
			_ = fileRows.Close()
			return err
		}
		names = append(names, n)
	}
	if err := fileRows.Close(); err != nil {
		return err
	}
	for _, n := range names {
		idx.addFile(n)
	}

	edgeRows, err := db.Query("SELECT file, grp FROM edges")
	if err != nil {
		return err
	}
	defer func() { _ = edgeRows.Close() }()
	for edgeRows.Next() {
		var f, g string
		if err := edgeRows.Scan(&f, &g); err != nil {
			return err
		}
		idx.link(f, g)
	}
	return edgeRows.Err()
}

func (idx *bitmapIndex) addFile(name string) {
	if _, ok := idx.fileID[name]; ok {
		return
	}
	id := uint32(len(idx.intFile))
	idx.fileID[name] = id
	idx.intFile = append(idx.intFile, name)
	idx.fileToGroups[id] = roaring.New()
}

func (idx *bitmapIndex) addGroup(name string) {
	if _, ok := idx.groupID[name]; ok {
		return
	}
	id := uint32(len(idx.intGroup))
	idx.groupID[name] = id
	idx.intGroup = append(idx.intGroup, name)
	idx.groupToFiles[id] = roaring.New()
}

func (idx *bitmapIndex) removeFile(name string) {
	id, ok := idx.fileID[name]
	if !ok {
		return
	}
	if groups, ok := idx.fileToGroups[id]; ok {
		it := groups.Iterator()
		for it.HasNext() {
			gid := it.Next()
			if b, ok := idx.groupToFiles[gid]; ok {
				b.Remove(id)
			}
		}
	}
	delete(idx.fileToGroups, id)
	delete(idx.fileID, name)
	idx.intFile[id] = ""
}

func (idx *bitmapIndex) removeGroup(name string) {
	id, ok := idx.groupID[name]
	if !ok {
		return
	}
	if files, ok := idx.groupToFiles[id]; ok {
		it := files.Iterator()
		for it.HasNext() {
			fid := it.Next()
			if b, ok := idx.fileToGroups[fid]; ok {
				b.Remove(id)
			}
		}
	}
	delete(idx.groupToFiles, id)
	delete(idx.groupID, name)
	idx.intGroup[id] = ""
}

func (idx *bitmapIndex) link(file, group string) {
	fid, ok := idx.fileID[file]
	if !ok {
		return
	}
	gid, ok := idx.groupID[group]
	if !ok {
		return
	}
	idx.groupToFiles[gid].Add(fid)
	idx.fileToGroups[fid].Add(gid)
}

func (idx *bitmapIndex) unlink(file, group string) {
	fid, ok := idx.fileID[file]
	if !ok {
		return
	}
	gid, ok := idx.groupID[group]
	if !ok {
		return
	}
	idx.groupToFiles[gid].Remove(fid)
	idx.fileToGroups[fid].Remove(gid)
}

func (idx *bitmapIndex) renameFile(oldName, newName string) {
	id, ok := idx.fileID[oldName]
	if !ok {
		return
	}
	delete(idx.fileID, oldName)
	idx.fileID[newName] = id
	idx.intFile[id] = newName
}

func (idx *bitmapIndex) renameGroup(oldName, newName string) {
	id, ok := idx.groupID[oldName]
	if !ok {
		return
	}
	delete(idx.groupID, oldName)
	idx.groupID[newName] = id
	idx.intGroup[id] = newName
}

// filesMatching returns the bitmap of file IDs connected to every group in
// groups. An empty groups slice matches every known file.
func (idx *bitmapIndex) filesMatching(groups []string) *roaring.Bitmap {
	if len(groups) == 0 {
		all := roaring.New()
		for _, id := range idx.fileID {
			all.Add(id)
		}
		return all
	}
	var result *roaring.Bitmap
	for _, g := range groups {
		gid, ok := idx.groupID[g]
		if !ok {
			return roaring.New()
		}
		b := idx.groupToFiles[gid]
		if result == nil {
			result = b.Clone()
		} else {
			result.And(b)
		}
	}
	if result == nil {
		result = roaring.New()
	}
	return result
}

// ListFiles returns the sorted names of every file connected to every group
// in groups.
func (idx *bitmapIndex) ListFiles(groups []string) []string {
	ids := idx.filesMatching(groups)
	names := make([]string, 0, ids.GetCardinality())
	it := ids.Iterator()
	for it.HasNext() {
		id := it.Next()
		if n := idx.intFile[id]; n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// ListGroups returns the sorted names of every refinement group for groups:
// a group not already in groups that narrows the current selection.
func (idx *bitmapIndex) ListGroups(groups []string) []string {
	if len(groups) == 0 {
		names := make([]string, 0, len(idx.groupID))
		for n := range idx.groupID {
			names = append(names, n)
		}
		sort.Strings(names)
		return names
	}

	matching := idx.filesMatching(groups)
	union := roaring.New()
	it := matching.Iterator()
	for it.HasNext() {
		fid := it.Next()
		union.Or(idx.fileToGroups[fid])
	}
	for _, g := range groups {
		if gid, ok := idx.groupID[g]; ok {
			union.Remove(gid)
		}
	}

	names := make([]string, 0, union.GetCardinality())
	uit := union.Iterator()
	for uit.HasNext() {
		id := uit.Next()
		if n := idx.intGroup[id]; n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// ListGroupsUnderFilter implements GraphGateway's refinement-group query.
func (s *Store) ListGroupsUnderFilter(groups []string) ([]string, error) {
	for _, g := range groups {
		if err := validateName("ListGroupsUnderFilter", g); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.ListGroups(groups), nil
}

// ListFilesUnderFilter implements GraphGateway's resident-files query.
func (s *Store) ListFilesUnderFilter(groups []string) ([]string, error) {
	for _, g := range groups {
		if err := validateName("ListFilesUnderFilter", g); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.ListFiles(groups), nil
}
