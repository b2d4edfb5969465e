package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupfs/groupfs/internal/fserr"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GroupFileLifecycle(t *testing.T) {
	s := openTest(t)

	require.NoError(t, s.CreateGroup("vulns"))
	isGroup, err := s.IsGroup("vulns")
	require.NoError(t, err)
	assert.True(t, isGroup)

	require.NoError(t, s.CreateFile("notes"))
	isFile, err := s.IsFile("notes")
	require.NoError(t, err)
	assert.True(t, isFile)

	require.NoError(t, s.LinkFileToGroup("notes", "vulns"))
	hasFiles, err := s.GroupHasFiles("vulns")
	require.NoError(t, err)
	assert.True(t, hasFiles)

	groups, err := s.FileGroups("notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"vulns"}, groups)

	require.NoError(t, s.UnlinkFileFromGroup("notes", "vulns"))
	hasFiles, err = s.GroupHasFiles("vulns")
	require.NoError(t, err)
	assert.False(t, hasFiles)
}

func TestStore_NameUniquenessAcrossKinds(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("shared"))

	_, err := s.db.Exec("INSERT INTO files (name, value) VALUES (?, NULL)", "shared")
	assert.Error(t, err, "PRIMARY KEY collision is not enforced across tables by SQLite alone")
}

func TestStore_ReadWriteFileValue(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateFile("notes"))

	value, err := s.ReadFileValue("notes")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, s.WriteFileValue("notes", []byte("hello")))
	value, err = s.ReadFileValue("notes")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)
}

func TestStore_WriteFileValue_MissingFile(t *testing.T) {
	s := openTest(t)
	err := s.WriteFileValue("ghost", []byte("x"))
	assert.True(t, fserr.Is(err, fserr.NotFound))
}

func TestStore_ReadFileValue_MissingFile(t *testing.T) {
	s := openTest(t)
	_, err := s.ReadFileValue("ghost")
	assert.True(t, fserr.Is(err, fserr.NotFound))
}

func TestStore_ValidateName_RejectsIllegalCharacters(t *testing.T) {
	s := openTest(t)
	err := s.CreateGroup(`bad'name`)
	assert.True(t, fserr.Is(err, fserr.Invalid))
}

func TestStore_DeleteFile_RemovesEdges(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("vulns"))
	require.NoError(t, s.CreateFile("notes"))
	require.NoError(t, s.LinkFileToGroup("notes", "vulns"))

	require.NoError(t, s.DeleteFile("notes"))

	isFile, err := s.IsFile("notes")
	require.NoError(t, err)
	assert.False(t, isFile)

	files, err := s.ListFilesUnderFilter([]string{"vulns"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStore_RenameGroup_EdgesFollow(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("old"))
	require.NoError(t, s.CreateFile("f"))
	require.NoError(t, s.LinkFileToGroup("f", "old"))

	require.NoError(t, s.RenameGroup("old", "new"))

	isGroup, err := s.IsGroup("old")
	require.NoError(t, err)
	assert.False(t, isGroup)

	groups, err := s.FileGroups("f")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, groups)
}

func TestStore_Classify(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("vulns"))
	require.NoError(t, s.CreateFile("notes"))

	class, err := s.Classify("vulns")
	require.NoError(t, err)
	assert.Equal(t, ClassGroup, class)

	class, err = s.Classify("notes")
	require.NoError(t, err)
	assert.Equal(t, ClassFile, class)

	class, err = s.Classify("ghost")
	require.NoError(t, err)
	assert.Equal(t, ClassAbsent, class)
}

func TestStore_Classify_InvalidatedOnRename(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("old"))

	class, err := s.Classify("old")
	require.NoError(t, err)
	assert.Equal(t, ClassGroup, class)

	require.NoError(t, s.RenameGroup("old", "new"))

	class, err = s.Classify("old")
	require.NoError(t, err)
	assert.Equal(t, ClassAbsent, class, "stale cache entry must be invalidated on rename")

	class, err = s.Classify("new")
	require.NoError(t, err)
	assert.Equal(t, ClassGroup, class)
}

func TestStore_Stats(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("a"))
	require.NoError(t, s.CreateGroup("b"))
	require.NoError(t, s.CreateFile("f"))

	groups, files, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, groups)
	assert.Equal(t, 1, files)
}

func TestStore_CreateGroup_RejectsReservedStatsName(t *testing.T) {
	s := openTest(t)
	assert.Error(t, s.CreateGroup("_stats.json"))
}

func TestStore_CreateFile_RejectsReservedStatsName(t *testing.T) {
	s := openTest(t)
	assert.Error(t, s.CreateFile("_stats.json"))
}

func TestStore_CreateFileLinkedToGroups_RejectsReservedStatsName(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("a"))
	assert.Error(t, s.CreateFileLinkedToGroups("_stats.json", []string{"a"}))
}
