package nfsmount

import (
	"fmt"
	"net"
	"os"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupfs/groupfs/internal/graphstore"
)

func newTestStore(t *testing.T) *graphstore.Store {
	t.Helper()
	s, err := graphstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, g := range []string{"vulns", "CVE-2024-1234", "CVE-2024-5678"} {
		require.NoError(t, s.CreateGroup(g))
	}
	require.NoError(t, s.CreateFileLinkedToGroups("description-1234", []string{"vulns", "CVE-2024-1234"}))
	require.NoError(t, s.CreateFileLinkedToGroups("severity-1234", []string{"vulns", "CVE-2024-1234"}))
	require.NoError(t, s.CreateFileLinkedToGroups("severity-5678", []string{"vulns", "CVE-2024-5678"}))
	require.NoError(t, s.WriteFileValue("severity-1234", []byte("HIGH")))
	return s
}

func TestStatRoot(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	info, err := gfs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())
}

func TestStatGroup(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	info, err := gfs.Stat("/vulns")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "vulns", info.Name())
}

func TestStatFile(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	info, err := gfs.Stat("/severity-1234")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, "severity-1234", info.Name())
	assert.Equal(t, int64(4), info.Size())
}

func TestStatNotFound(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	_, err := gfs.Stat("/nonexistent")
	assert.True(t, os.IsNotExist(err))
}

func TestReadDirRoot(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	entries, err := gfs.ReadDir("/")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	// All groups, since an empty filter degenerates to every group.
	assert.Contains(t, names, "vulns")
	assert.Contains(t, names, "CVE-2024-1234")
	assert.Contains(t, names, "CVE-2024-5678")
}

func TestReadDirGroup(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	entries, err := gfs.ReadDir("/vulns")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	// Refinement groups and the directly-tagged files both appear: every
	// file here is linked to vulns as well as its more specific CVE group.
	assert.Contains(t, names, "CVE-2024-1234")
	assert.Contains(t, names, "CVE-2024-5678")
	assert.Contains(t, names, "description-1234")
	assert.Contains(t, names, "severity-1234")
	assert.Contains(t, names, "severity-5678")
}

func TestReadDirIntersection(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	entries, err := gfs.ReadDir("/vulns/CVE-2024-1234")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.ElementsMatch(t, []string{"description-1234", "severity-1234"}, names)
}

func TestReadDirOnFile_Fails(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	_, err := gfs.ReadDir("/severity-1234")
	assert.Error(t, err)
}

func TestOpenAndRead(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	f, err := gfs.Open("/severity-1234")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	require.True(t, n > 0)
	assert.Equal(t, "HIGH", string(buf[:n]))
}

func TestReadAt(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	f, err := gfs.Open("/severity-1234")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 2)
	n, _ := f.ReadAt(buf, 1)
	require.True(t, n > 0)
	assert.Equal(t, "IG", string(buf[:n]))
}

func TestSeek(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	f, err := gfs.Open("/severity-1234")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	pos, err := f.Seek(2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	buf := make([]byte, 2)
	n, _ := f.Read(buf)
	require.True(t, n > 0)
	assert.Equal(t, "GH", string(buf[:n]))
}

func TestOpenNotFound(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	_, err := gfs.Open("/nonexistent")
	assert.Error(t, err)
}

func TestCreateLinksIntoPrefixGroups(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	f, err := gfs.Create("/vulns/CVE-2024-1234/notes")
	require.NoError(t, err)
	_, err = f.Write([]byte("investigating"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := gfs.ReadDir("/vulns/CVE-2024-1234")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.Contains(t, names, "notes")

	entries, err = gfs.ReadDir("/vulns")
	require.NoError(t, err)
	names = names[:0]
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "notes")
}

func TestWriteReplacesValueWholesale(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	f, err := gfs.OpenFile("/severity-1234", os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("LOW"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := gfs.Open("/severity-1234")
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, _ := f2.Read(buf)
	assert.Equal(t, "LOW", string(buf[:n]))
}

func TestMkdirAll_CreatesGroup(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	require.NoError(t, gfs.MkdirAll("/remediated", 0o755))

	info, err := gfs.Stat("/remediated")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMkdirAll_RootRejected(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))
	assert.Error(t, gfs.MkdirAll("/", 0o755))
}

func TestRemove_DeletesFile(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	require.NoError(t, gfs.Remove("/severity-5678"))

	_, err := gfs.Stat("/severity-5678")
	assert.True(t, os.IsNotExist(err))
}

func TestRemove_OnGroupFails(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))
	assert.Error(t, gfs.Remove("/vulns"))
}

// Rename over NFS runs the same decision matrix as the FUSE transport.
func TestRename_RenamesGroup(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	require.NoError(t, gfs.Rename("/vulns", "/bugs"))

	_, err := gfs.Stat("/vulns")
	assert.True(t, os.IsNotExist(err))
	info, err := gfs.Stat("/bugs")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRename_RootAsSource_Fails(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))
	assert.Error(t, gfs.Rename("/", "/anything"))
}

func TestCapabilities(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	caps := gfs.Capabilities()
	assert.NotZero(t, caps&1) // WriteCapability
	assert.NotZero(t, caps&2) // ReadCapability
	assert.NotZero(t, caps&8) // SeekCapability
}

func TestRoot(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))
	assert.Equal(t, "/", gfs.Root())
}

func TestJoin(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))
	assert.Equal(t, "a/b/c", gfs.Join("a", "b", "c"))
}

func TestSymlinkAndReadlink_Unsupported(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	assert.Equal(t, billy.ErrNotSupported, gfs.Symlink("target", "/link"))
	_, err := gfs.Readlink("/link")
	assert.Equal(t, billy.ErrNotSupported, err)
}

func TestNFSServerStarts(t *testing.T) {
	gfs := NewGraphFS(newTestStore(t))

	srv, err := NewServer(gfs)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	assert.True(t, srv.Port() > 0, "server should be on a valid port")

	conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", srv.Port()))
	require.NoError(t, err)
	_ = conn.Close()
}
