package pulse

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerLifecycle(t *testing.T) {
	m := NewMarker(filepath.Join(t.TempDir(), "pulse.pid"))
	assert.False(t, m.Exists())
	require.NoError(t, m.Delete())

	require.NoError(t, m.Create())
	assert.True(t, m.Exists())
	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	require.NoError(t, m.Delete())
	assert.False(t, m.Exists())
}
