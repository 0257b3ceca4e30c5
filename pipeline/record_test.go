package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/kpreconcile/types"
)

func TestParseEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Environment
	}{
		{"production", EnvProduction},
		{"PROD", EnvProduction},
		{" prod ", EnvProduction},
		{"development", EnvDevelopment},
		{"dev", EnvDevelopment},
		{"Development", EnvDevelopment},
	}
	for _, tt := range tests {
		got, err := ParseEnvironment(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseEnvironment("staging")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidEnvironment))

	_, err = ParseEnvironment("")
	assert.Error(t, err)
}

func TestRecord_RecipeKey(t *testing.T) {
	t.Parallel()

	r := Record{IndexName: "abc"}
	assert.Equal(t, "sync_recipe_abc", r.RecipeKey(""))
	assert.Equal(t, "sync_recipe_abc", r.RecipeKey(DefaultRecipePrefix))
	assert.Equal(t, "custom_abc", r.RecipeKey("custom_"))
}

func TestRecord_IsSyncTarget(t *testing.T) {
	t.Parallel()

	both := Record{ProdSyncTarget: true, DevSyncTarget: true}
	prodOnly := Record{ProdSyncTarget: true}
	devOnly := Record{DevSyncTarget: true}

	assert.True(t, both.IsSyncTarget(EnvProduction))
	assert.True(t, both.IsSyncTarget(EnvDevelopment))
	assert.True(t, prodOnly.IsSyncTarget(EnvProduction))
	assert.False(t, prodOnly.IsSyncTarget(EnvDevelopment))
	assert.False(t, devOnly.IsSyncTarget(EnvProduction))
	assert.True(t, devOnly.IsSyncTarget(EnvDevelopment))
}

func TestRecord_HasIndexName(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Record{}).HasIndexName())
	assert.False(t, (&Record{IndexName: "   "}).HasIndexName())
	assert.True(t, (&Record{IndexName: "idx"}).HasIndexName())
}

func TestLoadStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, LoadRunning.IsTerminal())
	assert.True(t, LoadComplete.IsTerminal())
	assert.True(t, LoadError.IsTerminal())
}
