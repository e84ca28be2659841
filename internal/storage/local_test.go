package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "lims:pqr:17")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "lims:pqr:17", []byte(`{"form":"pqr"}`)))
	require.NoError(t, s.Put(ctx, "lims:pqr:17", []byte(`{"form":"pqr","record_id":"17"}`)))
	require.NoError(t, s.Put(ctx, "lims:pqr:a/b", []byte(`{}`)))

	got, ok, err := s.Get(ctx, "lims:pqr:17")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"form":"pqr","record_id":"17"}`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")

	require.NoError(t, s.Delete(ctx, "lims:pqr:17"))
	require.NoError(t, s.Delete(ctx, "lims:pqr:17"))
	_, ok, err = s.Get(ctx, "lims:pqr:17")
	require.NoError(t, err)
	assert.False(t, ok)
}
