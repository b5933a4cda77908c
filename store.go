package dumpdir

import (
	"os"
	"path/filepath"
)

// Store fixes a root directory and a set of Options once, for callers
// that manage many dump directories under one root — crash hooks,
// reporters, and janitors all operate under a single well-known root
// such as /var/tmp/abrt. It is a thin wrapper over the per-directory
// operations of §6; it adds no behaviour of its own beyond joining a
// dump directory's name onto the root. Grounded on the teacher's
// internal/client/client.go, which wraps a lower-level API with a fixed
// set of connection options the same way.
type Store struct {
	root string
	opts []Option
}

// NewStore creates a Store rooted at root, applying opts to every
// operation performed through it.
func NewStore(root string, opts ...Option) *Store {
	return &Store{root: root, opts: opts}
}

// Root returns the store's fixed root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) resolve(name string) string {
	return filepath.Join(s.root, name)
}

// Open opens the dump directory named name under the store's root.
func (s *Store) Open(name string, flags Flag) (*DumpDir, error) {
	return Open(s.resolve(name), flags, s.opts...)
}

// Create creates the dump directory named name under the store's root.
func (s *Store) Create(name string, crashedUID int, mode os.FileMode, flags Flag) (*DumpDir, error) {
	return Create(s.resolve(name), crashedUID, mode, flags, s.opts...)
}

// CreateSkeleton creates the bare (not-yet-owned) dump directory named
// name under the store's root.
func (s *Store) CreateSkeleton(name string, crashedUID int, mode os.FileMode, flags Flag) (*DumpDir, error) {
	return CreateSkeleton(s.resolve(name), crashedUID, mode, flags, s.opts...)
}

// Delete opens then deletes the dump directory named name under the
// store's root.
func (s *Store) Delete(name string) (int, error) {
	return DeleteDumpDir(s.resolve(name), s.opts...)
}

// AccessibleByUID reports whether uid may read the dump directory named
// name under the store's root.
func (s *Store) AccessibleByUID(name string, uid int) (bool, error) {
	return AccessibleByUIDPath(s.resolve(name), uid, s.opts...)
}
