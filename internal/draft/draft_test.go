package draft

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lims-forms/internal/config"
	"lims-forms/internal/form"
	"lims-forms/internal/metadata"
	"lims-forms/internal/storage"
	"lims-forms/internal/store"
)

func sqlStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "drafts"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	return NewSQLStore(s)
}

func fileStore(t *testing.T) Store {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    sqlStore(t),
		"file":   fileStore(t),
	}
}

func TestStore_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, "k", []byte(`{"a":1}`)))
			require.NoError(t, s.Put(ctx, "k", []byte(`{"a":2}`)))
			v, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"a":2}`, string(v))

			require.NoError(t, s.Delete(ctx, "k"))
			_, ok, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDrafts_SaveLoad(t *testing.T) {
	ctx := context.Background()
	def := metadata.NewDefaultRegistry().GetForm(metadata.FormPQR)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d := New(s, "", zap.NewNop())
			assert.Equal(t, "lims:pqr:42", d.Key("pqr", "42"))

			_, ok := d.Load(ctx, "pqr", "42")
			assert.False(t, ok)

			agg := form.NewAggregator(def, nil, zap.NewNop())
			require.NoError(t, agg.SetCellValue("base_metals", "bm2", "value", "Gr. 70"))
			saved := agg.Serialize()
			require.NoError(t, d.Save(ctx, "42", saved))

			loaded, ok := d.Load(ctx, "pqr", "42")
			require.True(t, ok)
			restored := form.NewAggregator(def, loaded, zap.NewNop())
			assert.Equal(t, saved, restored.Serialize())

			require.NoError(t, d.Discard(ctx, "pqr", "42"))
			_, ok = d.Load(ctx, "pqr", "42")
			assert.False(t, ok)
		})
	}
}

func TestDrafts_CorruptIsAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d := New(s, "lab", nil)

	require.NoError(t, s.Put(ctx, "lab:pqr:7", []byte("{not json")))
	_, ok := d.Load(ctx, "pqr", "7")
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "lab:pqr:8", []byte(`{"form":"test_report"}`)))
	_, ok = d.Load(ctx, "pqr", "8")
	assert.False(t, ok)
}
