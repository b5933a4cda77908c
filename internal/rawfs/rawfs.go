// Package rawfs implements the safe, dirfd-relative file I/O primitives
// the store is built on (spec.md C2, §4.2): no-follow opens, hardlink
// rejection, payload normalisation, and atomic-enough item writes. Every
// operation here is relative to an already-open directory file
// descriptor — the store never re-resolves a path from its root, which is
// the core of the path-traversal and symlink-attack defence spec.md §1
// calls for.
//
// Grounded on the teacher's dirfd-oriented stack (golang.org/x/sys/unix is
// in dagu-org-dagu's go.mod) and the atomic-write-via-exclusive-create
// idiom in internal/auth/tokensecret/file.go, adapted here to operate
// against a directory fd instead of an arbitrary path.
package rawfs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Sentinel errors returned by SecureOpenItem, distinguishing the specific
// attacks spec.md §4.2 and invariant 5 call out.
var (
	// ErrNotRegular means the target exists but is not a regular file
	// (e.g. a directory). A symlink never gets this far: the no-follow
	// open itself fails on it.
	ErrNotRegular = errors.New("rawfs: not a regular file")
	// ErrHardlinked means the target is a regular file with more than
	// one hard link — a would-be substitution attack in a group-writable
	// dump directory.
	ErrHardlinked = errors.New("rawfs: item has more than one hard link")
)

// OpenDirectory opens path as a directory, refusing to follow a trailing
// symlink (spec §4.5 step 2: "openat the directory with O_DIRECTORY |
// O_NOFOLLOW").
func OpenDirectory(path string) (int, error) {
	return unix.Open(path, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

// OpenSubdirectory opens name, a child of dirfd, as a directory with the
// same no-follow guarantee. Used by the delete flow (C8) to recurse into
// subdirectories it finds while emptying a dump directory.
func OpenSubdirectory(dirfd int, name string) (int, error) {
	return unix.Openat(dirfd, name, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

// Dup duplicates fd, giving the iteration cursor (spec invariant 1) its
// own lifetime independent of the handle's directory fd.
func Dup(fd int) (int, error) {
	return unix.Dup(fd)
}

// Close closes fd, tolerating an already-invalid descriptor so handle
// close logic can stay idempotent.
func Close(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}

// FstatAt stats name relative to dirfd without following a trailing
// symlink — the building block behind every "is this actually a regular
// file with one link" check in the store.
func FstatAt(dirfd int, name string) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW)
	return st, err
}

// Fstat stats an already-open file descriptor.
func Fstat(fd int) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstat(fd, &st)
	return st, err
}

// Exist reports whether name exists relative to dirfd (any type, without
// following a trailing symlink).
func Exist(dirfd int, name string) bool {
	_, err := FstatAt(dirfd, name)
	return err == nil
}

// SecureOpenItem opens name, a regular-file item inside the directory
// referenced by dirfd, for reading. It refuses to follow symlinks and
// rejects any target that is not a regular file with exactly one hard
// link (spec §4.2, invariant 5) — the defence against hardlink
// substitution in a group-writable dump directory.
func SecureOpenItem(dirfd int, name string) (int, error) {
	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	st, err := Fstat(fd)
	if err != nil {
		Close(fd)
		return -1, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		Close(fd)
		return -1, ErrNotRegular
	}
	if st.Nlink > 1 {
		Close(fd)
		return -1, ErrHardlinked
	}
	return fd, nil
}

// OpenExternal opens an external path (outside any dump directory, e.g.
// /etc/system-release) honouring the caller's choice of whether to follow
// a trailing symlink — spec §4.2's OPEN_FOLLOW flag applies only here,
// never to in-directory items.
func OpenExternal(path string, follow bool) (int, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC
	if !follow {
		flags |= unix.O_NOFOLLOW
	}
	return unix.Open(path, flags, 0)
}

// ReadAll reads the full content of an already-open file descriptor. The
// descriptor is not closed; callers own its lifecycle. This reads via
// unix.Read directly rather than wrapping the fd in an *os.File, because
// os.NewFile attaches a GC finalizer that would close the fd out from
// under the handle that owns it (spec invariant 1: the handle, not Go's
// GC, controls the fd's lifetime).
func ReadAll(fd int) ([]byte, error) {
	var out []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// WriteAll writes the full buffer to an already-open, already-positioned
// file descriptor.
func WriteAll(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		data = data[n:]
	}
	return nil
}

// SaveBinary implements save_binary (spec §4.2): unlink any existing
// regular file named name, then create it with O_EXCL|O_NOFOLLOW so a
// concurrent symlink swap cannot redirect the write, chown it when
// sanitisation is enabled, chmod to mode to override umask, and write the
// payload. A failure partway through may leave a partial file, matching
// spec's documented best-effort semantics.
func SaveBinary(dirfd int, name string, data []byte, mode uint32, uid, gid int, sanitize bool) error {
	if st, err := FstatAt(dirfd, name); err == nil && st.Mode&unix.S_IFMT == unix.S_IFREG {
		if err := unix.Unlinkat(dirfd, name, 0); err != nil && !errors.Is(err, unix.ENOENT) {
			return err
		}
	}

	fd, err := unix.Openat(dirfd, name, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0600)
	if err != nil {
		return err
	}
	defer Close(fd)

	if sanitize {
		if err := unix.Fchown(fd, uid, gid); err != nil {
			return err
		}
	}
	if err := unix.Fchmod(fd, mode); err != nil {
		return err
	}
	return WriteAll(fd, data)
}

// UnlinkFile removes a regular-file item relative to dirfd.
func UnlinkFile(dirfd int, name string) error {
	return unix.Unlinkat(dirfd, name, 0)
}

// RemoveDirectory removes an (expected-empty) subdirectory relative to
// dirfd.
func RemoveDirectory(dirfd int, name string) error {
	return unix.Unlinkat(dirfd, name, unix.AT_REMOVEDIR)
}

// Rmdir removes an empty directory by path — the delete flow's final step
// (spec §4.6 step 3) needs a path-based rmdir because a directory cannot
// remove itself through its own fd.
func Rmdir(path string) error {
	return unix.Rmdir(path)
}

// Mkdir creates a new directory at path with the given mode, failing if
// it already exists — the create flow (spec §4.5) requires the target
// not already exist.
func Mkdir(path string, mode uint32) error {
	return unix.Mkdir(path, mode)
}

// MkdirAllParents creates every missing ancestor directory of path (not
// path itself) with a conservative default mode, for the CREATE_PARENTS
// flag (spec §6).
func MkdirAllParents(path string) error {
	return os.MkdirAll(parentOf(path), 0755)
}

func parentOf(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// Fchmod and Fchown expose the remaining per-fd operations the handle
// lifecycle (C5/C6/C9) needs, without every caller importing
// golang.org/x/sys/unix directly.
func Fchmod(fd int, mode uint32) error { return unix.Fchmod(fd, mode) }
func Fchown(fd int, uid, gid int) error { return unix.Fchown(fd, uid, gid) }

// Faccessat checks whether path is readable by the calling process's
// real uid (spec §4.5's "faccessat R_OK" read-only-downgrade check).
func Faccessat(path string) error {
	return unix.Access(path, unix.R_OK)
}

// Symlinkat creates a symlink named name inside dirfd whose target is
// target, without dereferencing anything (spec §4.4 step 2).
func Symlinkat(target string, dirfd int, name string) error {
	return unix.Symlinkat(target, dirfd, name)
}

// Readlinkat reads the target of a symlink named name inside dirfd.
func Readlinkat(dirfd int, name string) (string, error) {
	buf := make([]byte, 128)
	for {
		n, err := unix.Readlinkat(dirfd, name, buf)
		if err != nil {
			return "", err
		}
		if n < len(buf) {
			return string(buf[:n]), nil
		}
		buf = make([]byte, len(buf)*2)
	}
}

// UnlinkSymlink removes a symlink (or any non-directory) entry.
func UnlinkSymlink(dirfd int, name string) error {
	return unix.Unlinkat(dirfd, name, 0)
}

// ListNames returns the entry names (excluding "." and "..") of the
// directory referenced by dirfd. It reads through a freshly duplicated
// fd and closes it before returning, so dirfd's own read/seek position is
// never disturbed — used by the delete flow's content walk (spec §4.6).
func ListNames(dirfd int) ([]string, error) {
	dup, err := Dup(dirfd)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(dup), "")
	defer func() { _ = f.Close() }()
	return f.Readdirnames(-1)
}

// DirCursor is the iteration cursor of spec invariant 1: an open
// directory stream backed by a duplicated fd, so closing the cursor never
// invalidates the handle's own directory fd.
type DirCursor struct {
	file *os.File
}

// OpenDirCursor duplicates dirfd and opens a directory stream over the
// duplicate.
func OpenDirCursor(dirfd int) (*DirCursor, error) {
	dup, err := Dup(dirfd)
	if err != nil {
		return nil, err
	}
	return &DirCursor{file: os.NewFile(uintptr(dup), "")}, nil
}

// Next returns the next directory entry, or io.EOF once the stream is
// exhausted.
func (c *DirCursor) Next() (os.DirEntry, error) {
	entries, err := c.file.ReadDir(1)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// Close releases the cursor's duplicated fd. Safe to call more than
// once.
func (c *DirCursor) Close() error {
	return c.file.Close()
}
