package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "host/2026/10/17/abc", []byte{1, 2, 3}))

	data, err := s.Get(ctx, "host/2026/10/17/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = s.Get(ctx, "host/2026/10/17/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../outside", []byte("x"))
	assert.Error(t, err)
}
