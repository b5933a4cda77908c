package lock

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dagu-org/dumpdir/internal/diagnostics"
	"github.com/dagu-org/dumpdir/internal/rawfs"
)

func openFixtureDir(t *testing.T) int {
	t.Helper()
	dir := t.TempDir()
	fd, err := rawfs.OpenDirectory(dir)
	require.NoError(t, err)
	t.Cleanup(func() { rawfs.Close(fd) })
	return fd
}

func alwaysValid() (bool, error) { return true, nil }

func TestAcquire_CreatorFastPathNoValidation(t *testing.T) {
	fd := openFixtureDir(t)
	l := New(fd, diagnostics.Discard)

	err := l.Acquire(context.Background(), Creator, false, nil)
	require.NoError(t, err)
	require.True(t, l.IsHeldByMe())

	target, err := rawfs.Readlinkat(fd, lockName)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), target)

	require.NoError(t, l.Release())
	require.False(t, l.IsHeldByMe())
	require.False(t, l.IsLocked())
}

func TestAcquire_OpenerValidatesAfterLock(t *testing.T) {
	fd := openFixtureDir(t)
	l := New(fd, diagnostics.Discard)

	err := l.Acquire(context.Background(), Opener, false, alwaysValid)
	require.NoError(t, err)
	require.True(t, l.IsHeldByMe())
	require.NoError(t, l.Release())
}

func TestAcquire_OpenerGivesUpAfterInvalidRetries(t *testing.T) {
	fd := openFixtureDir(t)
	l := New(fd, diagnostics.Discard)

	calls := 0
	neverValid := func() (bool, error) {
		calls++
		return false, nil
	}

	start := time.Now()
	err := l.Acquire(context.Background(), Opener, false, neverValid)
	require.ErrorIs(t, err, ErrNotADumpDir)
	require.False(t, l.IsHeldByMe())
	require.False(t, l.IsLocked(), "lock must be released on every failed validity check")
	require.Equal(t, NoTimeFileCount, calls)
	require.GreaterOrEqual(t, time.Since(start), (NoTimeFileCount-1)*NoTimeFile)
}

func TestAcquire_DontWaitForValidityFailsImmediately(t *testing.T) {
	fd := openFixtureDir(t)
	l := New(fd, diagnostics.Discard)

	calls := 0
	neverValid := func() (bool, error) {
		calls++
		return false, nil
	}

	err := l.Acquire(context.Background(), Opener, true, neverValid)
	require.ErrorIs(t, err, ErrNotADumpDir)
	require.Equal(t, 1, calls)
}

func TestAcquire_StaleLockIsReclaimed(t *testing.T) {
	fd := openFixtureDir(t)
	// A pid unlikely to exist.
	require.NoError(t, rawfs.Symlinkat("999999999", fd, lockName))

	l := New(fd, diagnostics.Discard)
	err := l.Acquire(context.Background(), Creator, false, nil)
	require.NoError(t, err)

	target, err := rawfs.Readlinkat(fd, lockName)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), target)
}

func TestAcquire_MalformedTargetIsTreatedAsStale(t *testing.T) {
	fd := openFixtureDir(t)
	require.NoError(t, rawfs.Symlinkat("not-a-pid", fd, lockName))

	l := New(fd, diagnostics.Discard)
	require.NoError(t, l.Acquire(context.Background(), Creator, false, nil))
}

func TestAcquire_SelfAlreadyHeldIsAnError(t *testing.T) {
	fd := openFixtureDir(t)
	l1 := New(fd, diagnostics.Discard)
	require.NoError(t, l1.Acquire(context.Background(), Creator, false, nil))

	l2 := New(fd, diagnostics.Discard)
	err := l2.Acquire(context.Background(), Creator, false, nil)
	require.ErrorIs(t, err, ErrLockedBySelf)
}

func TestAcquire_LiveOtherHolderBlocksThenContextCancel(t *testing.T) {
	fd := openFixtureDir(t)
	// pid 1 (init) is reliably alive and not us.
	require.NoError(t, rawfs.Symlinkat("1", fd, lockName))

	l := New(fd, diagnostics.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, Creator, false, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, l.IsHeldByMe())
}

func TestRelease_NoopWhenNotHeld(t *testing.T) {
	fd := openFixtureDir(t)
	l := New(fd, diagnostics.Discard)
	require.NoError(t, l.Release())
}

func TestAcquire_InvalidDirFdIsReported(t *testing.T) {
	l := New(-1, diagnostics.Discard)
	err := l.Acquire(context.Background(), Creator, false, nil)
	require.Error(t, err)
}
