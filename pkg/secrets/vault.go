// Package secrets stores per-user completion-provider API keys. Keys live in
// HashiCorp Vault KV v2 when Vault is configured; otherwise they are held in
// a session-local map so the application still works offline.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"

	"roleplay-chat/core/pkg/config"
	"roleplay-chat/core/pkg/logger"
)

// Common errors
var (
	ErrKeyNotFound    = errors.New("provider key not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

type cachedKey struct {
	value   string
	expires time.Time
}

// KeyStore manages per-user provider API keys with a read-through TTL cache.
type KeyStore struct {
	client   *vault.Client
	mount    string
	keyPath  string
	enabled  bool
	mu       sync.RWMutex
	cache    map[string]cachedKey
	local    map[string]string
	log      *logger.Logger
	cacheTTL time.Duration
}

// NewKeyStore creates a key store from the application configuration.
func NewKeyStore(cfg *config.Config, log *logger.Logger) (*KeyStore, error) {
	ks := &KeyStore{
		mount:    cfg.Vault.Mount,
		keyPath:  cfg.Vault.KeyPath,
		enabled:  cfg.Vault.Enabled,
		cache:    make(map[string]cachedKey),
		local:    make(map[string]string),
		log:      log,
		cacheTTL: 5 * time.Minute,
	}

	if !ks.enabled {
		return ks, nil
	}

	if cfg.Vault.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Vault.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Vault.Address
	vaultConfig.Timeout = cfg.Vault.Timeout
	vaultConfig.MaxRetries = cfg.Vault.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Vault.Token)
	if cfg.Vault.Namespace != "" {
		client.SetNamespace(cfg.Vault.Namespace)
	}
	ks.client = client

	return ks, nil
}

// GetStoredKey retrieves the user's provider key. Returns ErrKeyNotFound when
// the user has never saved one.
func (ks *KeyStore) GetStoredKey(ctx context.Context, userID string) (string, error) {
	ks.mu.RLock()
	cached, found := ks.cache[userID]
	ks.mu.RUnlock()
	if found && time.Now().Before(cached.expires) {
		return cached.value, nil
	}

	if !ks.enabled {
		ks.mu.RLock()
		value, ok := ks.local[userID]
		ks.mu.RUnlock()
		if !ok {
			return "", ErrKeyNotFound
		}
		return value, nil
	}

	secret, err := ks.client.KVv2(ks.mount).Get(ctx, ks.userPath(userID))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrKeyNotFound
		}
		ks.log.LogError(err, "vault read failed", "user_id", userID)
		return "", fmt.Errorf("failed to read provider key: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrKeyNotFound
	}

	value, ok := secret.Data["api_key"].(string)
	if !ok || value == "" {
		return "", ErrKeyNotFound
	}

	ks.cacheKey(userID, value)
	return value, nil
}

// SaveStoredKey stores the user's provider key.
func (ks *KeyStore) SaveStoredKey(ctx context.Context, userID, key string) error {
	if key == "" {
		return errors.New("provider key must not be empty")
	}

	if !ks.enabled {
		ks.mu.Lock()
		ks.local[userID] = key
		ks.mu.Unlock()
		ks.cacheKey(userID, key)
		return nil
	}

	_, err := ks.client.KVv2(ks.mount).Put(ctx, ks.userPath(userID), map[string]any{
		"api_key": key,
	})
	if err != nil {
		return fmt.Errorf("failed to save provider key: %w", err)
	}
	ks.cacheKey(userID, key)
	return nil
}

// DeleteStoredKey removes the user's provider key.
func (ks *KeyStore) DeleteStoredKey(ctx context.Context, userID string) error {
	ks.mu.Lock()
	delete(ks.cache, userID)
	delete(ks.local, userID)
	ks.mu.Unlock()

	if !ks.enabled {
		return nil
	}

	if err := ks.client.KVv2(ks.mount).DeleteMetadata(ctx, ks.userPath(userID)); err != nil {
		return fmt.Errorf("failed to delete provider key: %w", err)
	}
	return nil
}

func (ks *KeyStore) userPath(userID string) string {
	return ks.keyPath + "/" + userID
}

func (ks *KeyStore) cacheKey(userID, value string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.cache[userID] = cachedKey{
		value:   value,
		expires: time.Now().Add(ks.cacheTTL),
	}
}
