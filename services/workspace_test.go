package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stars-host/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceManager_AcquireRelease(t *testing.T) {
	root := t.TempDir()
	log, _ := testutil.ObservedLogger()
	m := NewWorkspaceManager(root, log)

	a, err := m.Acquire(7)
	require.NoError(t, err)
	b, err := m.Acquire(7)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each attempt gets its own directory")
	assert.True(t, strings.HasPrefix(filepath.Base(a), "turn-7-"))

	require.NoError(t, os.WriteFile(filepath.Join(a, "game.def"), []byte("x"), 0o644))
	m.Release(a)
	_, err = os.Stat(a)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(b)
	assert.NoError(t, err)
}

func TestWorkspaceManager_ReleaseRefusesForeignPaths(t *testing.T) {
	log, logs := testutil.ObservedLogger()
	m := NewWorkspaceManager(t.TempDir(), log)

	outside := t.TempDir()
	m.Release(outside)
	m.Release(m.Root())

	_, err := os.Stat(outside)
	assert.NoError(t, err)
	_, err = os.Stat(m.Root())
	assert.NoError(t, err)
	assert.Equal(t, 2, logs.FilterMessage("refusing to remove directory outside workspace root").Len())
}

func TestWorkspaceManager_AcquireFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	log, _ := testutil.ObservedLogger()
	m := NewWorkspaceManager(file, log)

	_, err := m.Acquire(1)
	var wsErr *WorkspaceError
	require.ErrorAs(t, err, &wsErr)
}
