// Package access implements the accessibility predicate (spec.md C11,
// §4.9): whether a given uid may read a dump directory, under one of two
// ownership policies chosen by the caller.
package access

import (
	"golang.org/x/sys/unix"

	"github.com/dagu-org/dumpdir/internal/identity"
)

// Policy selects which additional rule, beyond "uid 0" and "world
// readable", grants access. It is passed at construction (spec §9:
// "Represent the policy as a configuration option passed at
// construction... do not reach for process globals") rather than chosen
// by a build tag.
type Policy int

const (
	// OwnedByUser additionally grants access when uid owns the
	// directory (st_uid == uid).
	OwnedByUser Policy = iota
	// GroupMembership additionally grants access when uid is a member of
	// the directory's owning group, either as primary group or listed in
	// the group's member list.
	GroupMembership
)

// Result distinguishes "accessible" (the public predicate, spec §4.9)
// from "owned", which some policies compute along the way but do not
// expose externally.
type Result struct {
	Accessible bool
	OwnedByUID bool
}

// Evaluate implements the predicate for a directory whose stat
// information is st, under the given policy, for the given uid.
func Evaluate(st unix.Stat_t, uid int, policy Policy) Result {
	owned := int(st.Uid) == uid
	if uid == 0 {
		return Result{Accessible: true, OwnedByUID: owned}
	}
	if st.Mode&unix.S_IROTH != 0 {
		return Result{Accessible: true, OwnedByUID: owned}
	}

	switch policy {
	case OwnedByUser:
		if owned {
			return Result{Accessible: true, OwnedByUID: true}
		}
	case GroupMembership:
		if identity.IsGroupMember(uid, int(st.Gid)) {
			return Result{Accessible: true, OwnedByUID: owned}
		}
	}
	return Result{Accessible: false, OwnedByUID: owned}
}

// AccessibleByUID is the public predicate spec.md §6 exposes:
// accessible-by-uid(path or fd, uid). This variant takes an already
// open fd.
func AccessibleByUID(fd int, uid int, policy Policy) (bool, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, err
	}
	return Evaluate(st, uid, policy).Accessible, nil
}

// AccessibleByUIDPath is the path-based variant of AccessibleByUID.
func AccessibleByUIDPath(path string, uid int, policy Policy) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	return Evaluate(st, uid, policy).Accessible, nil
}
