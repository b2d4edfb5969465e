package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateFileLinkedToGroups(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("vulns"))
	require.NoError(t, s.CreateGroup("CVE-2024-1234"))

	require.NoError(t, s.CreateFileLinkedToGroups("notes", []string{"vulns", "CVE-2024-1234"}))

	groups, err := s.FileGroups("notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-2024-1234", "vulns"}, groups)

	class, err := s.Classify("notes")
	require.NoError(t, err)
	assert.Equal(t, ClassFile, class)
}

func TestStore_RenameFileAcrossGroups(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("a"))
	require.NoError(t, s.CreateGroup("b"))
	require.NoError(t, s.CreateFileLinkedToGroups("f", []string{"a"}))

	require.NoError(t, s.RenameFileAcrossGroups("f", []string{"a"}, []string{"b"}))

	groups, err := s.FileGroups("f")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, groups)
}

func TestStore_RenameFileRelocate(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("a"))
	require.NoError(t, s.CreateGroup("b"))
	require.NoError(t, s.CreateFileLinkedToGroups("old", []string{"a"}))

	require.NoError(t, s.RenameFileRelocate("old", "new", []string{"a"}, []string{"b"}))

	isFile, err := s.IsFile("old")
	require.NoError(t, err)
	assert.False(t, isFile)

	groups, err := s.FileGroups("new")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, groups)
}

func TestStore_OverwriteFileOnRename(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.CreateGroup("a"))
	require.NoError(t, s.CreateFileLinkedToGroups("old", []string{"a"}))
	require.NoError(t, s.WriteFileValue("old", []byte("payload")))
	require.NoError(t, s.CreateFile("existing"))

	require.NoError(t, s.OverwriteFileOnRename("old", "existing", []string{"a"}))

	isFile, err := s.IsFile("old")
	require.NoError(t, err)
	assert.False(t, isFile)

	value, err := s.ReadFileValue("existing")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)

	groups, err := s.FileGroups("existing")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, groups)
}
