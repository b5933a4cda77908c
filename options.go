package dumpdir

import (
	"github.com/dagu-org/dumpdir/internal/access"
	"github.com/dagu-org/dumpdir/internal/diagnostics"
)

// Flag is the bitmask spec.md §6 describes: a small set of independent
// behaviour switches passed to open/create/item operations.
type Flag uint32

const (
	// FailQuietlyENOENT suppresses the diagnostic when the target is
	// missing.
	FailQuietlyENOENT Flag = 1 << iota
	// FailQuietlyEACCES suppresses the diagnostic when permission is
	// denied.
	FailQuietlyEACCES
	// LoadTextReturnNullOnFailure makes LoadTextExt return the null
	// indicator (a non-nil error) instead of an empty string on failure.
	LoadTextReturnNullOnFailure
	// OpenFollow allows symlink dereference, but only for the external
	// paths CreateBasicFiles reads (/etc/system-release and friends) —
	// never for items inside a dump directory.
	OpenFollow
	// OpenReadOnly makes Open accept a read-only handle when the
	// directory cannot be locked because it isn't writable.
	OpenReadOnly
	// DontWaitForLock skips the opener's validity-fail backoff entirely
	// instead of retrying up to NoTimeFileCount times.
	DontWaitForLock
	// CreateParents makes CreateSkeleton create any missing ancestor
	// directories.
	CreateParents
)

// Option configures a handle at construction, grounded on the teacher's
// functional-options idiom (internal/logger.Option, dirlock.LockOptions).
// Configuration here is deliberately limited to the diagnostic sink and
// the accessibility policy: spec.md's Non-goals exclude a config-file
// layer, so there is nothing else to parameterise.
type Option func(*config)

type config struct {
	sink   diagnostics.Sink
	policy access.Policy
}

func newConfig(opts []Option) *config {
	c := &config{sink: diagnostics.Discard, policy: access.OwnedByUser}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSink directs diagnostics to sink instead of discarding them.
func WithSink(sink diagnostics.Sink) Option {
	return func(c *config) { c.sink = sink }
}

// WithAccessPolicy selects the accessibility predicate's ownership rule
// (spec §4.9's compile-time switch, here a construction-time choice).
func WithAccessPolicy(policy access.Policy) Option {
	return func(c *config) { c.policy = policy }
}
