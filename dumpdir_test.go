package dumpdir_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagu-org/dumpdir"
)

func TestCreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd1")

	dd, err := dumpdir.CreateSkeleton(path, -1, 0o640, 0)
	require.NoError(t, err)
	require.NoError(t, dd.CreateBasicFiles(-1, "", 0))
	require.NoError(t, dd.Close())

	opened, err := dumpdir.Open(path, 0)
	require.NoError(t, err)
	defer opened.Close()

	timeVal, err := opened.LoadText("time")
	require.NoError(t, err)
	parsed, err := strconv.ParseInt(timeVal, 10, 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, parsed, time.Now().Unix())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), st.Mode().Perm())
}

func TestStaleLockReclaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd2")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	require.NoError(t, dd.CreateBasicFiles(-1, "", 0))
	require.NoError(t, dd.Close())

	require.NoError(t, os.Symlink("999999999", filepath.Join(path, ".lock")))

	opened, err := dumpdir.Open(path, 0)
	require.NoError(t, err)
	defer opened.Close()

	target, err := os.Readlink(filepath.Join(path, ".lock"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), target)
}

func TestOpenNotADumpDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(path, 0o755))

	start := time.Now()
	dd, err := dumpdir.Open(path, 0)
	elapsed := time.Since(start)
	require.Error(t, err)
	require.Nil(t, dd)
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)

	entries, err := os.ReadDir(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenNotADumpDir_DontWaitForLockIsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(path, 0o755))

	start := time.Now()
	dd, err := dumpdir.Open(path, dumpdir.DontWaitForLock)
	elapsed := time.Since(start)
	require.Error(t, err)
	require.Nil(t, dd)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestReadOnlyDowngrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd4")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	require.NoError(t, dd.CreateBasicFiles(-1, "", 0))
	require.NoError(t, dd.Close())

	require.NoError(t, os.Chmod(path, 0o555))
	t.Cleanup(func() { _ = os.Chmod(path, 0o755) })

	opened, err := dumpdir.Open(path, dumpdir.OpenReadOnly)
	require.NoError(t, err)
	defer opened.Close()

	err = opened.SaveText("whatever", "x")
	require.Error(t, err)
	var derr *dumpdir.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, dumpdir.KindBadLockState, derr.Kind)

	text, err := opened.LoadText("time")
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestSaveTextLoadTextNormalisation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd5")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	defer dd.Close()

	require.NoError(t, dd.SaveText("note", "hello\n"))
	got, err := dd.LoadText("note")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	require.NoError(t, dd.SaveText("multi", "a\nb"))
	got, err = dd.LoadText("multi")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestReportedToDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd6")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	defer dd.Close()

	require.NoError(t, dd.AddReportedTo("URL=http://x/1"))
	require.NoError(t, dd.AddReportedTo("URL=http://x/2"))
	require.NoError(t, dd.AddReportedTo("URL=http://x/1"))

	content, err := dd.LoadText("reported_to")
	require.NoError(t, err)
	assert.Equal(t, "URL=http://x/1\nURL=http://x/2\n", content)

	rec := dd.FindInReportedTo("URL=")
	require.NotNil(t, rec)
	require.NotNil(t, rec.URL)
	assert.Equal(t, "http://x/2", *rec.URL)
	assert.Nil(t, rec.Msg)
}

func TestAccessibleByUIDRootAlwaysTrue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd7")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	defer dd.Close()

	ok, err := dd.AccessibleByUID(0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteRequiresLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd8")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	require.NoError(t, dd.CreateBasicFiles(-1, "", 0))
	require.NoError(t, dd.Close())

	opened, err := dumpdir.Open(path, dumpdir.OpenReadOnly)
	require.NoError(t, err)
	require.False(t, opened.IsLocked())

	code, err := opened.Delete()
	require.Error(t, err)
	assert.Equal(t, dumpdir.DeleteUnlockedAtEntry, code)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "directory must still exist after a refused delete")
}

func TestDeleteRemovesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd9")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	require.NoError(t, dd.CreateBasicFiles(-1, "", 0))
	require.NoError(t, dd.SaveText("extra", "payload"))

	code, err := dd.Delete()
	require.NoError(t, err)
	assert.Equal(t, dumpdir.DeleteOK, code)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExistAndDeleteItem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd10")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	defer dd.Close()

	assert.False(t, dd.Exist("note"))
	require.NoError(t, dd.SaveText("note", "x"))
	assert.True(t, dd.Exist("note"))
	require.NoError(t, dd.DeleteItem("note"))
	assert.False(t, dd.Exist("note"))
	require.NoError(t, dd.DeleteItem("note")) // missing item is not an error
}

func TestIterationSkipsDotEntriesAndSubdirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dd11")
	dd, err := dumpdir.CreateSkeleton(path, -1, 0o700, 0)
	require.NoError(t, err)
	defer dd.Close()

	require.NoError(t, dd.SaveText("a", "1"))
	require.NoError(t, dd.SaveText("b", "2"))
	require.NoError(t, os.Mkdir(filepath.Join(path, "subdir"), 0o755))

	require.NoError(t, dd.InitNextFile())
	seen := map[string]bool{}
	for {
		name, ok, err := dd.GetNextFile()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen[name] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.False(t, seen["subdir"])
	assert.False(t, seen[".lock"])
}

func TestStoreWrapsRootDirectory(t *testing.T) {
	root := t.TempDir()
	store := dumpdir.NewStore(root)

	dd, err := store.CreateSkeleton("dd12", -1, 0o700, 0)
	require.NoError(t, err)
	require.NoError(t, dd.CreateBasicFiles(-1, "", 0))
	require.NoError(t, dd.Close())

	opened, err := store.Open("dd12", 0)
	require.NoError(t, err)
	require.NoError(t, opened.Close())

	code, err := store.Delete("dd12")
	require.NoError(t, err)
	assert.Equal(t, dumpdir.DeleteOK, code)
}
