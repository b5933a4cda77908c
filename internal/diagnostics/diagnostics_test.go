package diagnostics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_Levels(t *testing.T) {
	t.Run("WarnfAlwaysEmits", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(WithWriter(&buf), WithTextFormat())
		l.Warnf("stale lock for pid %d", 123)
		require.Contains(t, buf.String(), "stale lock for pid 123")
	})

	t.Run("DebugfSuppressedByDefault", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(WithWriter(&buf), WithTextFormat())
		l.Debugf("should not appear")
		require.Empty(t, buf.String())
	})

	t.Run("DebugfEmitsWithWithDebug", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(WithWriter(&buf), WithTextFormat(), WithDebug())
		l.Debugf("now it appears")
		require.Contains(t, buf.String(), "now it appears")
	})

	t.Run("DiscardDropsEverything", func(t *testing.T) {
		Discard.Warnf("dropped")
		Discard.Errorf("dropped")
		Discard.Debugf("dropped")
	})
}
