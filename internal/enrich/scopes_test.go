package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScopeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scopes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScopes(t *testing.T) {
	t.Parallel()

	path := writeScopeFile(t, `
scopes:
  - owner_id: 7
    limit: 200
  - owner_id: 9
    force: true
`)

	scopes, err := LoadScopes(path)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Equal(t, Scope{OwnerID: 7, Limit: 200}, scopes[0])
	assert.Equal(t, Scope{OwnerID: 9, Force: true}, scopes[1])
}

func TestLoadScopes_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeScopeFile(t, "scopes: []\n")
	_, err := LoadScopes(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scopes")
}

func TestLoadScopes_MissingOwner(t *testing.T) {
	t.Parallel()

	path := writeScopeFile(t, "scopes:\n  - limit: 5\n")
	_, err := LoadScopes(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without owner_id")
}
