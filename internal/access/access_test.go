package access

import (
	"testing"

	"golang.org/x/sys/unix"
)

func stat(uid, gid uint32, mode uint32) unix.Stat_t {
	return unix.Stat_t{Uid: uid, Gid: gid, Mode: mode}
}

func TestEvaluate_RootAlwaysAccessible(t *testing.T) {
	st := stat(1000, 1000, 0700)
	if !Evaluate(st, 0, OwnedByUser).Accessible {
		t.Fatal("uid 0 must always be accessible")
	}
}

func TestEvaluate_WorldReadable(t *testing.T) {
	st := stat(1000, 1000, unix.S_IROTH)
	if !Evaluate(st, 2000, OwnedByUser).Accessible {
		t.Fatal("world-readable directory must be accessible to any uid")
	}
}

func TestEvaluate_OwnedByUserPolicy(t *testing.T) {
	st := stat(1000, 1000, 0700)
	res := Evaluate(st, 1000, OwnedByUser)
	if !res.Accessible || !res.OwnedByUID {
		t.Fatal("owner must be accessible under OwnedByUser policy")
	}

	res = Evaluate(st, 2000, OwnedByUser)
	if res.Accessible {
		t.Fatal("non-owner, non-world-readable must not be accessible under OwnedByUser")
	}
}

func TestEvaluate_GroupMembershipPolicyDeniesNonMember(t *testing.T) {
	st := stat(1000, 999999, 0770)
	res := Evaluate(st, 123456, GroupMembership)
	if res.Accessible {
		t.Fatal("uid with no relation to the group must not be accessible")
	}
}
