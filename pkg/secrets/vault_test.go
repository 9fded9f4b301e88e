package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roleplay-chat/core/pkg/config"
	"roleplay-chat/core/pkg/logger"
)

func localKeyStore(t *testing.T) *KeyStore {
	t.Helper()
	cfg := &config.Config{}
	cfg.Vault.Enabled = false
	cfg.Vault.Mount = "secret"
	cfg.Vault.KeyPath = "roleplay-chat/provider-keys"

	ks, err := NewKeyStore(cfg, logger.New(logger.Config{Level: "error", JSON: false}))
	require.NoError(t, err)
	return ks
}

func TestLocalKeyLifecycle(t *testing.T) {
	ks := localKeyStore(t)
	ctx := context.Background()

	_, err := ks.GetStoredKey(ctx, "alice")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, ks.SaveStoredKey(ctx, "alice", "sk-alice"))

	key, err := ks.GetStoredKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "sk-alice", key)

	// Keys are per user.
	_, err = ks.GetStoredKey(ctx, "bob")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, ks.DeleteStoredKey(ctx, "alice"))
	_, err = ks.GetStoredKey(ctx, "alice")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSaveRejectsEmptyKey(t *testing.T) {
	ks := localKeyStore(t)
	assert.Error(t, ks.SaveStoredKey(context.Background(), "alice", ""))
}

func TestVaultModeRequiresAddressAndToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Vault.Enabled = true
	log := logger.New(logger.Config{Level: "error", JSON: false})

	_, err := NewKeyStore(cfg, log)
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	cfg.Vault.Address = "http://127.0.0.1:8200"
	_, err = NewKeyStore(cfg, log)
	assert.ErrorIs(t, err, ErrNoVaultToken)
}
