package dumpdir

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dagu-org/dumpdir/internal/rawfs"
	"github.com/dagu-org/dumpdir/internal/retry"
)

// Timing constants for the delete flow's rmdir retry loop, named exactly
// as spec.md §5 does (the lock engine's own constants live in
// internal/lock).
const (
	RmdirFail      = 10 * time.Millisecond
	RmdirFailCount = 50
)

// Delete return codes (spec.md §4.6): the three negative outcomes are
// distinguished so a caller can tell a races-with-another-deleter failure
// from a genuine I/O error.
const (
	DeleteOK                   = 0
	DeleteUnlockedAtEntry      = -1
	DeleteContentRemovalFailed = -2
	DeleteRmdirExhausted       = -3
)

// Delete implements delete(dd) (spec.md C8, §4.6): empties the
// directory's contents, unlinks the lock, then rmdirs the now-empty
// directory, retrying while a racing creator re-populates it — the lock
// engine's own validity check will self-evict that creator once it
// retries the acquire against an emptied, about-to-vanish directory.
func (dd *DumpDir) Delete() (int, error) {
	if !dd.locker.IsHeldByMe() {
		return DeleteUnlockedAtEntry, newError(KindBadLockState, "delete", dd.path, nil)
	}

	if err := removeContents(dd.dirFd, true); err != nil {
		return DeleteContentRemovalFailed, newError(KindIOFailure, "delete", dd.path, err)
	}

	_ = rawfs.UnlinkSymlink(dd.dirFd, ".lock")

	retrier := retry.New(retry.Policy{Interval: RmdirFail, MaxAttempts: RmdirFailCount})
	for {
		err := rawfs.Rmdir(dd.path)
		if err == nil {
			break
		}
		if werr := retrier.Wait(context.Background()); werr != nil {
			return DeleteRmdirExhausted, newError(KindIOFailure, "delete", dd.path, err)
		}
	}

	dd.locker.ForceClear()
	_ = dd.Close()
	return DeleteOK, nil
}

// removeContents implements the recursive content walk of spec §4.6 step
// 1. skipLockFile is true only at the root call: the lock symlink is
// unlinked separately, after the walk, so the handle stays valid for the
// whole removal.
func removeContents(dirfd int, skipLockFile bool) error {
	names, err := rawfs.ListNames(dirfd)
	if err != nil {
		return err
	}

	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		if skipLockFile && name == ".lock" {
			continue
		}

		err := rawfs.UnlinkFile(dirfd, name)
		if err == nil || errors.Is(err, unix.ENOENT) {
			continue
		}
		if !errors.Is(err, unix.EISDIR) {
			return err
		}

		subfd, operr := rawfs.OpenSubdirectory(dirfd, name)
		if operr != nil {
			return operr
		}
		if rerr := removeContents(subfd, false); rerr != nil {
			rawfs.Close(subfd)
			return rerr
		}
		rawfs.Close(subfd)

		if rderr := rawfs.RemoveDirectory(dirfd, name); rderr != nil && !errors.Is(rderr, unix.ENOENT) {
			return rderr
		}
	}
	return nil
}

// DeleteDumpDir implements delete_dump_dir(path) (spec.md §6): the
// path-based convenience that opens, then deletes.
func DeleteDumpDir(path string, opts ...Option) (int, error) {
	dd, err := Open(path, 0, opts...)
	if err != nil {
		return DeleteUnlockedAtEntry, err
	}
	return dd.Delete()
}
