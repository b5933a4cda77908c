// Package dumpdir implements a filesystem-backed, concurrently-accessed
// store of "dump directories" — crash-report-style bags of named text and
// binary items guarded by an advisory inter-process lock. It composes the
// internal/ primitives (path validation, safe dirfd-relative I/O, the time
// item parser, the lock engine, identity resolution, the accessibility
// predicate, and the reported-to journal) into the handle lifecycle and
// flows a caller actually drives: open, create, save/load items, iterate,
// sanitize, delete.
package dumpdir

import (
	"strings"

	"github.com/dagu-org/dumpdir/internal/access"
	"github.com/dagu-org/dumpdir/internal/diagnostics"
	"github.com/dagu-org/dumpdir/internal/lock"
	"github.com/dagu-org/dumpdir/internal/rawfs"
)

// NoSanitisation is the uid/gid sentinel meaning "sanitisation disabled"
// (spec §4.5: "Initial state has... uid = gid = 'no sanitisation'").
const NoSanitisation = -1

// DumpDir is an open handle onto one dump directory. The zero value is
// not usable; construct one with Open, Create, or CreateSkeleton.
type DumpDir struct {
	path     string
	dirFd    int
	locker   *lock.Locker
	itemMode uint32
	uid, gid int
	cursor   *rawfs.DirCursor
	sink     diagnostics.Sink
	policy   access.Policy
}

// Path returns the directory path the handle was opened or created with.
func (dd *DumpDir) Path() string { return dd.path }

// IsLocked reports whether this handle currently holds the directory's
// lock (spec §4.5's "locked" field).
func (dd *DumpDir) IsLocked() bool { return dd.locker != nil && dd.locker.IsHeldByMe() }

// Close releases the lock if held, closes any open iteration cursor, and
// closes the directory fd. It is idempotent and safe to call more than
// once (spec §4.5: "close is idempotent in effect").
func (dd *DumpDir) Close() error {
	if dd == nil {
		return nil
	}
	var lockErr error
	if dd.locker != nil {
		lockErr = dd.locker.Release()
	}
	if dd.cursor != nil {
		_ = dd.cursor.Close()
		dd.cursor = nil
	}
	if dd.dirFd >= 0 {
		rawfs.Close(dd.dirFd)
		dd.dirFd = -1
	}
	return lockErr
}

func (dd *DumpDir) requireLocked(op string) error {
	if dd.locker == nil || !dd.locker.IsHeldByMe() {
		return newError(KindBadLockState, op, dd.path, nil)
	}
	return nil
}

// trimTrailingSlashes implements the "strip trailing /s from path" step
// common to open and create_skeleton (spec §4.5).
func trimTrailingSlashes(path string) string {
	return strings.TrimRight(path, "/")
}

// normalizeItemName implements the historical "release" → "os_release"
// item-name rewrite item access goes through (spec invariant 4).
func normalizeItemName(name string) string {
	if name == "release" {
		return "os_release"
	}
	return name
}
