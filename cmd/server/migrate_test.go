package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/api"
	"github.com/maconsulting/parcours/internal/middleware"
	"github.com/maconsulting/parcours/internal/services"
)

func TestOpenStore(t *testing.T) {
	mem, err := openStore("", "", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &api.MemoryStore{}, mem)

	disk, err := openStore(filepath.Join(t.TempDir(), "sub", "parcours.db"), "", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, disk.Close())
}

func TestSeedQuestCodes(t *testing.T) {
	store := api.NewMemoryStore()
	quest := services.NewQuestService(store, middleware.NewSigner("s").SignQuestToken)

	require.NoError(t, seedQuestCodes(quest, " a@b.fr:1234 , broken ,", zap.NewNop()))
	_, err := quest.Login("a@b.fr", "1234")
	require.NoError(t, err)

	assert.Error(t, seedQuestCodes(quest, "not-an-email:1", zap.NewNop()))
}
