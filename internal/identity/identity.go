// Package identity resolves the uid/gid pairs the creation flow (spec.md
// C6) needs for sanitisation: the owning "abrt" account and the crashed
// user's primary group. Grounded in the pack's os/user-based lookup idiom
// (other_examples' coreutils chown implementation resolves owner/group by
// name the same way) rather than hand-parsing /etc/passwd.
package identity

import (
	"bufio"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// FallbackUID/FallbackGID are used when the named account cannot be
// resolved (spec §4.5: "resolve account named abrt for the owning uid
// (fallback 0)").
const (
	FallbackUID = 0
	FallbackGID = 0
)

// LookupUID resolves username to a uid, returning FallbackUID if the
// account does not exist on this host.
func LookupUID(username string) int {
	u, err := user.Lookup(username)
	if err != nil {
		return FallbackUID
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return FallbackUID
	}
	return uid
}

// PrimaryGID resolves the primary group id of the given uid, returning
// FallbackGID if the uid cannot be resolved.
func PrimaryGID(uid int) int {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return FallbackGID
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return FallbackGID
	}
	return gid
}

// groupMembersByGID returns the usernames listed in /etc/group's member
// field for the given gid. The standard os/user package exposes group
// name/gid lookups but — without cgo — no way to read a group's member
// list, so this reads /etc/group directly; see DESIGN.md for why no
// pack library covers this.
func groupMembersByGID(gid int) []string {
	f, err := os.Open("/etc/group")
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	target := strconv.Itoa(gid)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) != 4 || fields[2] != target {
			continue
		}
		if fields[3] == "" {
			return nil
		}
		return strings.Split(fields[3], ",")
	}
	return nil
}

// IsGroupMember reports whether the account with the given uid is a
// member of the group with the given gid — either as its primary group,
// or listed in the group's member list (spec §4.9).
func IsGroupMember(uid int, gid int) bool {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return false
	}
	if u.Gid == strconv.Itoa(gid) {
		return true
	}
	for _, name := range groupMembersByGID(gid) {
		if name == u.Username {
			return true
		}
	}
	return false
}
