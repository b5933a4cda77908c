// Package pathsafe implements the path and item-name validator (spec.md
// C1, §4.1): the one check every item access runs before touching the
// filesystem.
package pathsafe

// IsCorrectFilename reports whether name is safe to use as a single path
// component inside a dump directory: non-empty, free of '/', not "." or
// "..", and free of non-printable control bytes. It does not reject
// leading dots in general (".foo" is a legal item name) — only the two
// reserved components are rejected.
func IsCorrectFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b == '/' {
			return false
		}
		if b < 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}

// IsDotOrDotDot reports whether lastComponent, a single path component
// the caller has already split off, is "." or "..". create_skeleton (spec §4.1, §4.5) rejects such a target even
// though IsCorrectFilename only validates a single component — the
// skeleton path may be a multi-component path whose last component must
// still satisfy the same rule.
func IsDotOrDotDot(lastComponent string) bool {
	return lastComponent == "." || lastComponent == ".."
}
