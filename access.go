package dumpdir

import "github.com/dagu-org/dumpdir/internal/access"

// AccessibleByUID implements accessible-by-uid(dd, uid) (spec.md C11,
// §4.9) for an already-open handle.
func (dd *DumpDir) AccessibleByUID(uid int) (bool, error) {
	ok, err := access.AccessibleByUID(dd.dirFd, uid, dd.policy)
	if err != nil {
		return false, newError(KindIOFailure, "accessible_by_uid", dd.path, err)
	}
	return ok, nil
}

// AccessibleByUIDPath implements the path variant of accessible-by-uid
// (spec.md §6), for callers that do not otherwise need an open handle.
func AccessibleByUIDPath(path string, uid int, opts ...Option) (bool, error) {
	cfg := newConfig(opts)
	ok, err := access.AccessibleByUIDPath(path, uid, cfg.policy)
	if err != nil {
		return false, newError(KindIOFailure, "accessible_by_uid", path, err)
	}
	return ok, nil
}
