package dumpdir

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/dagu-org/dumpdir/internal/diagnostics"
	"github.com/dagu-org/dumpdir/internal/lock"
	"github.com/dagu-org/dumpdir/internal/rawfs"
	"github.com/dagu-org/dumpdir/internal/timefile"
)

// Open implements open(path, flags) (spec.md C5, §4.5): it opens the
// directory, acquires the lock on the slow (opener) path, and validates
// the "time" item before handing back a usable handle.
func Open(path string, flags Flag, opts ...Option) (*DumpDir, error) {
	path = trimTrailingSlashes(path)
	fd, err := rawfs.OpenDirectory(path)
	if err != nil {
		return nil, reportOpenDirFailure(path, flags, newConfig(opts).sink, err)
	}
	return openFD(fd, path, flags, opts)
}

// OpenFromFD implements open-from-fd(fd, name, flags) (spec.md §6): the
// same flow, but the directory is resolved relative to an already-open
// parent fd rather than re-resolved from an absolute path — used by
// callers that already hold a directory fd for the store's root.
func OpenFromFD(parentFd int, name string, flags Flag, opts ...Option) (*DumpDir, error) {
	fd, err := rawfs.OpenSubdirectory(parentFd, name)
	if err != nil {
		return nil, reportOpenDirFailure(name, flags, newConfig(opts).sink, err)
	}
	return openFD(fd, name, flags, opts)
}

func reportOpenDirFailure(path string, flags Flag, sink diagnostics.Sink, err error) error {
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
		if flags&FailQuietlyENOENT == 0 {
			sink.Errorf("dumpdir: %s: does not exist: %v", path, err)
		}
		return newError(KindMissingPath, "open", path, err)
	}
	if flags&FailQuietlyEACCES == 0 {
		sink.Errorf("dumpdir: %s: %v", path, err)
	}
	return newError(KindIOFailure, "open", path, err)
}

func openFD(fd int, path string, flags Flag, opts []Option) (*DumpDir, error) {
	cfg := newConfig(opts)

	st, err := rawfs.Fstat(fd)
	if err != nil {
		rawfs.Close(fd)
		return nil, newError(KindIOFailure, "open", path, err)
	}

	dd := &DumpDir{
		path:     path,
		dirFd:    fd,
		itemMode: st.Mode & 0o666,
		uid:      NoSanitisation,
		gid:      NoSanitisation,
		sink:     cfg.sink,
		policy:   cfg.policy,
	}
	dd.locker = lock.New(fd, cfg.sink)

	validate := func() (bool, error) { return dd.validateTimeItem() }
	err = dd.locker.Acquire(context.Background(), lock.Opener, flags&DontWaitForLock != 0, validate)
	if err == nil {
		if os.Geteuid() == 0 {
			dd.uid, dd.gid = int(st.Uid), int(st.Gid)
		}
		return dd, nil
	}

	return dd.recoverFromOpenFailure(err, path, flags)
}

// recoverFromOpenFailure implements the branches of spec §4.5 step 4 that
// run after a failed lock acquisition.
func (dd *DumpDir) recoverFromOpenFailure(err error, path string, flags Flag) (*DumpDir, error) {
	if errors.Is(err, unix.EACCES) && flags&OpenReadOnly != 0 {
		if accErr := rawfs.Faccessat(path); accErr == nil {
			ok, verr := dd.validateTimeItem()
			if verr == nil && ok {
				return dd, nil
			}
			dd.Close()
			return nil, newError(KindNotADumpDir, "open", path, verr)
		}
	}

	switch {
	case errors.Is(err, lock.ErrNotADumpDir):
		dd.sink.Errorf("dumpdir: %s: not a problem directory", path)
		dd.Close()
		return nil, newError(KindNotADumpDir, "open", path, err)
	case errors.Is(err, lock.ErrGone):
		if flags&FailQuietlyENOENT == 0 {
			dd.sink.Errorf("dumpdir: %s: does not exist", path)
		}
		dd.Close()
		return nil, newError(KindMissingPath, "open", path, err)
	case errors.Is(err, unix.EACCES):
		if flags&FailQuietlyEACCES == 0 {
			dd.sink.Errorf("dumpdir: %s: permission denied: %v", path, err)
		}
		dd.Close()
		return nil, newError(KindPermissionDenied, "open", path, err)
	default:
		if flags&FailQuietlyEACCES == 0 {
			dd.sink.Errorf("dumpdir: %s: %v", path, err)
		}
		dd.Close()
		return nil, newError(KindIOFailure, "open", path, err)
	}
}

// validateTimeItem implements the C3 validity predicate the opener's lock
// acquisition calls after locking: the "time" item must exist and parse.
func (dd *DumpDir) validateTimeItem() (bool, error) {
	fd, err := rawfs.SecureOpenItem(dd.dirFd, "time")
	if err != nil {
		return false, nil
	}
	defer rawfs.Close(fd)

	buf := make([]byte, timefile.MaxReadBytes)
	n, rerr := readUpTo(fd, buf)
	if rerr != nil {
		return false, nil
	}
	_, perr := timefile.Parse(buf[:n], n == timefile.MaxReadBytes)
	return perr == nil, nil
}

func readUpTo(fd int, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}
