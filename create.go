package dumpdir

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dagu-org/dumpdir/internal/identity"
	"github.com/dagu-org/dumpdir/internal/lock"
	"github.com/dagu-org/dumpdir/internal/pathsafe"
	"github.com/dagu-org/dumpdir/internal/rawfs"
)

// abrtAccountName is the historical owning account name the creation
// flow resolves for the sanitisation uid (spec §4.5 step 7).
const abrtAccountName = "abrt"

// CreateSkeleton implements create_skeleton(path, crashed_uid, mode,
// flags) (spec.md C6, §4.5): it creates the bare directory, locks it on
// the fast (creator) path, and computes — but does not yet apply — the
// sanitisation identity.
func CreateSkeleton(path string, crashedUID int, mode os.FileMode, flags Flag, opts ...Option) (*DumpDir, error) {
	path = trimTrailingSlashes(path)
	last := lastPathComponent(path)
	if pathsafe.IsDotOrDotDot(last) {
		return nil, newError(KindInvalidName, "create_skeleton", path, nil)
	}

	dirMode := uint32(mode) | ((uint32(mode) & 0o444) >> 2)

	if flags&CreateParents != 0 {
		if err := rawfs.MkdirAllParents(path); err != nil {
			return nil, newError(KindIOFailure, "create_skeleton", path, err)
		}
	}
	if err := rawfs.Mkdir(path, dirMode); err != nil {
		return nil, newError(KindIOFailure, "create_skeleton", path, err)
	}

	fd, err := rawfs.OpenDirectory(path)
	if err != nil {
		return nil, newError(KindIOFailure, "create_skeleton", path, err)
	}

	cfg := newConfig(opts)
	dd := &DumpDir{
		path:     path,
		dirFd:    fd,
		itemMode: uint32(mode) & 0o666,
		uid:      NoSanitisation,
		gid:      NoSanitisation,
		sink:     cfg.sink,
		policy:   cfg.policy,
	}
	dd.locker = lock.New(fd, cfg.sink)

	if err := dd.locker.Acquire(context.Background(), lock.Creator, false, nil); err != nil {
		dd.Close()
		return nil, newError(KindIOFailure, "create_skeleton", path, err)
	}

	if err := rawfs.Fchmod(fd, dirMode); err != nil {
		dd.Close()
		return nil, newError(KindIOFailure, "create_skeleton", path, err)
	}

	if crashedUID != -1 {
		dd.uid = identity.LookupUID(abrtAccountName)
		dd.gid = identity.PrimaryGID(crashedUID)
	}

	return dd, nil
}

// ResetOwnership implements reset_ownership (spec §4.5 step 8): a no-op
// when sanitisation is disabled, otherwise fchown the directory fd to the
// computed (abrt uid, crashed gid) pair.
func (dd *DumpDir) ResetOwnership() error {
	if dd.uid == NoSanitisation {
		return nil
	}
	if err := rawfs.Fchown(dd.dirFd, dd.uid, dd.gid); err != nil {
		return newError(KindIOFailure, "reset_ownership", dd.path, err)
	}
	return nil
}

// Create implements create(path, uid, mode) = create_skeleton +
// reset_ownership (spec §4.5 step 8).
func Create(path string, crashedUID int, mode os.FileMode, flags Flag, opts ...Option) (*DumpDir, error) {
	dd, err := CreateSkeleton(path, crashedUID, mode, flags, opts...)
	if err != nil {
		return nil, err
	}
	if err := dd.ResetOwnership(); err != nil {
		dd.Close()
		return nil, err
	}
	return dd, nil
}

// CreateBasicFiles implements create_basic_files(dd, uid, chroot) (spec
// §4.5 step "create_basic_files"): it populates the standard metadata
// items a freshly created dump directory needs, leaving any item that is
// already present untouched. flags governs the external-path reads
// (/etc/system-release and friends): OpenFollow permits symlink
// dereference on those external paths, per spec §6 (never for items
// inside the dump directory itself).
func (dd *DumpDir) CreateBasicFiles(uid int, chroot string, flags Flag) error {
	if err := dd.requireLocked("create_basic_files"); err != nil {
		return err
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	dd.saveIfAbsent("time", now)
	dd.saveIfAbsent("last_occurrence", now)

	if uid != -1 {
		dd.saveIfAbsent("uid", strconv.Itoa(uid))
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		dd.saveIfAbsent("kernel", utsString(uts.Release[:]))
		dd.saveIfAbsent("architecture", utsString(uts.Machine[:]))
		dd.saveIfAbsent("hostname", utsString(uts.Nodename[:]))
	}

	follow := flags&OpenFollow != 0
	if release, ok := readExternalFirst(follow, "/etc/system-release", "/etc/redhat-release"); ok {
		dd.saveIfAbsent("os_release", release)
	}

	if chroot != "" {
		if release, ok := readExternalFirst(follow, filepath.Join(chroot, "etc", "system-release")); ok {
			dd.saveIfAbsent("os_release_in_rootdir", release)
		}
	}

	return nil
}

func (dd *DumpDir) saveIfAbsent(name, value string) {
	if rawfs.Exist(dd.dirFd, name) {
		return
	}
	if err := dd.SaveText(name, value); err != nil {
		dd.sink.Warnf("dumpdir: %s: failed to populate %q: %v", dd.path, name, err)
	}
}

func readExternalFirst(follow bool, paths ...string) (string, bool) {
	for _, p := range paths {
		fd, err := rawfs.OpenExternal(p, follow)
		if err != nil {
			continue
		}
		data, rerr := rawfs.ReadAll(fd)
		rawfs.Close(fd)
		if rerr != nil {
			continue
		}
		return rawfs.Normalize(data), true
	}
	return "", false
}

func utsString(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// lastPathComponent returns the raw final component of path: the text
// after its last '/', or the whole path when it has none. A literal "."
// or ".." is returned as is — exactly the component create_skeleton
// needs to catch (spec §4.5 step 1).
func lastPathComponent(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
