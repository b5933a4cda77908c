package dumpdir

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/dagu-org/dumpdir/internal/pathsafe"
	"github.com/dagu-org/dumpdir/internal/rawfs"
)

// LoadText implements load_text(dd, name): LoadTextExt with no flags.
func (dd *DumpDir) LoadText(name string) (string, error) {
	return dd.LoadTextExt(name, 0)
}

// LoadTextExt implements load_text_ext(dd, name, flags) (spec.md §4.2,
// §6): read and normalise an item's content. On failure it returns an
// empty string with a nil error, unless LoadTextReturnNullOnFailure is
// set, in which case it returns the null indicator (a non-nil error).
func (dd *DumpDir) LoadTextExt(name string, flags Flag) (string, error) {
	realName := normalizeItemName(name)
	if !pathsafe.IsCorrectFilename(realName) {
		return dd.failText(flags, newError(KindInvalidName, "load_text", realName, nil))
	}

	fd, err := rawfs.SecureOpenItem(dd.dirFd, realName)
	if err != nil {
		dd.reportItemFailure(flags, realName, err)
		return dd.failText(flags, newError(KindIOFailure, "load_text", realName, err))
	}
	defer rawfs.Close(fd)

	data, err := rawfs.ReadAll(fd)
	if err != nil {
		dd.reportItemFailure(flags, realName, err)
		return dd.failText(flags, newError(KindIOFailure, "load_text", realName, err))
	}
	return rawfs.Normalize(data), nil
}

func (dd *DumpDir) failText(flags Flag, err error) (string, error) {
	if flags&LoadTextReturnNullOnFailure != 0 {
		return "", err
	}
	return "", nil
}

func (dd *DumpDir) reportItemFailure(flags Flag, name string, err error) {
	quiet := (flags&FailQuietlyENOENT != 0 && errors.Is(err, unix.ENOENT)) ||
		(flags&FailQuietlyEACCES != 0 && errors.Is(err, unix.EACCES))
	if !quiet {
		dd.sink.Warnf("dumpdir: %s: failed to load item %q: %v", dd.path, name, err)
	}
}

// SaveText implements save_text(dd, name, value): SaveBinary over the
// UTF-8 bytes of value.
func (dd *DumpDir) SaveText(name, value string) error {
	return dd.SaveBinary(name, []byte(value))
}

// SaveBinary implements save_binary(dd, name, data) (spec.md §4.2, §6):
// requires the handle to hold the lock; validates the item name; writes
// through rawfs.SaveBinary with the handle's cached item mode and
// sanitisation identity.
func (dd *DumpDir) SaveBinary(name string, data []byte) error {
	if err := dd.requireLocked("save_binary"); err != nil {
		return err
	}
	realName := normalizeItemName(name)
	if !pathsafe.IsCorrectFilename(realName) {
		return newError(KindInvalidName, "save_binary", realName, nil)
	}
	err := rawfs.SaveBinary(dd.dirFd, realName, data, dd.itemMode, dd.uid, dd.gid, dd.uid != NoSanitisation)
	if err != nil {
		return newError(KindIOFailure, "save_binary", realName, err)
	}
	return nil
}

// DeleteItem implements delete_item(dd, name) (spec.md §6): requires the
// lock; a missing item is not an error.
func (dd *DumpDir) DeleteItem(name string) error {
	if err := dd.requireLocked("delete_item"); err != nil {
		return err
	}
	realName := normalizeItemName(name)
	if !pathsafe.IsCorrectFilename(realName) {
		return newError(KindInvalidName, "delete_item", realName, nil)
	}
	err := rawfs.UnlinkFile(dd.dirFd, realName)
	if err != nil && !errors.Is(err, unix.ENOENT) {
		return newError(KindIOFailure, "delete_item", realName, err)
	}
	return nil
}

// Exist implements exist(dd, name) → bool (spec.md §6).
func (dd *DumpDir) Exist(name string) bool {
	return rawfs.Exist(dd.dirFd, normalizeItemName(name))
}
