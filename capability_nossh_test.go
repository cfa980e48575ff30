//go:build bridge_nossh

package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSHSchemesUnavailable(t *testing.T) {
	assert.Contains(t, AvailableProtocols(), "sftp")

	for _, raw := range []string{"ssh://host", "scp://host", "sftp://host"} {
		_, err := New(raw, nil)
		require.ErrorIs(t, err, ErrUnsupportedBackend, raw)
		assert.Contains(t, err.Error(), "bridge_nossh")
	}
}
