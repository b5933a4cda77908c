package dumpdir

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"

	"github.com/dagu-org/dumpdir/internal/rawfs"
)

// InitNextFile implements init_next_file(dd) (spec.md C9, §4.7): opens a
// fresh iteration cursor over a duplicated fd, replacing any prior one.
func (dd *DumpDir) InitNextFile() error {
	if dd.cursor != nil {
		_ = dd.cursor.Close()
		dd.cursor = nil
	}
	cur, err := rawfs.OpenDirCursor(dd.dirFd)
	if err != nil {
		return newError(KindIOFailure, "init_next_file", dd.path, err)
	}
	dd.cursor = cur
	return nil
}

// GetNextFile implements get_next_file(dd) (spec.md §4.7): advances the
// cursor and returns the next entry that is a regular file. ok is false
// once the stream is exhausted, at which point the cursor is closed and
// subsequent calls return "end" again until InitNextFile is called anew.
func (dd *DumpDir) GetNextFile() (name string, ok bool, err error) {
	if dd.cursor == nil {
		return "", false, nil
	}
	for {
		entry, nerr := dd.cursor.Next()
		if nerr != nil {
			if errors.Is(nerr, io.EOF) {
				_ = dd.cursor.Close()
				dd.cursor = nil
				return "", false, nil
			}
			return "", false, newError(KindIOFailure, "get_next_file", dd.path, nerr)
		}
		if entry.Name() == "." || entry.Name() == ".." {
			continue
		}
		st, serr := rawfs.FstatAt(dd.dirFd, entry.Name())
		if serr != nil {
			continue
		}
		if st.Mode&unix.S_IFMT != unix.S_IFREG {
			continue
		}
		return entry.Name(), true, nil
	}
}

// SanitizeModeAndOwner implements sanitize_mode_and_owner(dd) (spec.md
// §4.7): requires the lock; a no-op when sanitisation is disabled;
// otherwise walks every regular item, fixing its mode and owner,
// tolerating individual failures with a diagnostic.
func (dd *DumpDir) SanitizeModeAndOwner() error {
	if err := dd.requireLocked("sanitize_mode_and_owner"); err != nil {
		return err
	}
	if dd.uid == NoSanitisation {
		return nil
	}

	if err := dd.InitNextFile(); err != nil {
		return err
	}
	for {
		name, ok, err := dd.GetNextFile()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		itemFd, oerr := rawfs.SecureOpenItem(dd.dirFd, name)
		if oerr != nil {
			dd.sink.Warnf("dumpdir: %s: failed to open item %q for sanitisation: %v", dd.path, name, oerr)
			continue
		}
		if cerr := rawfs.Fchmod(itemFd, dd.itemMode); cerr != nil {
			dd.sink.Warnf("dumpdir: %s: failed to chmod item %q: %v", dd.path, name, cerr)
		}
		if cerr := rawfs.Fchown(itemFd, dd.uid, dd.gid); cerr != nil {
			dd.sink.Warnf("dumpdir: %s: failed to chown item %q: %v", dd.path, name, cerr)
		}
		rawfs.Close(itemFd)
	}
}
