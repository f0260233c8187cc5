package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/store"
)

func TestKnownAttributes(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "patrol.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	described, err := st.CreateProduct(ctx, model.Product{
		Name:        "ARB Summit bumper",
		Description: "Steel front bumper with integrated bull bar.",
	})
	require.NoError(t, err)
	bare, err := st.CreateProduct(ctx, model.Product{Name: "Untracked product src-9"})
	require.NoError(t, err)

	assert.True(t, knownAttributes(ctx, st, described.ID), "described product is verified, not rediscovered")
	assert.False(t, knownAttributes(ctx, st, bare.ID), "product without a description still needs discovery")
	assert.False(t, knownAttributes(ctx, st, ""), "unlinked source stays in discovery")
	assert.False(t, knownAttributes(ctx, st, "no-such-product"))
}
