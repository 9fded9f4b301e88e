package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"roleplay-chat/core/internal/models"
	apperrors "roleplay-chat/core/pkg/errors"
)

// FileSlot persists the store state as a JSON document on disk. Writes go to
// a temp file in the same directory followed by a rename, so a crashed write
// never leaves a truncated state file behind.
type FileSlot struct {
	path string
}

// NewFileSlot creates a file-backed slot at the given path.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

func (s *FileSlot) Load(_ context.Context) (*models.StoreState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "failed to read state file")
	}

	var state models.StoreState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "state file is corrupt")
	}
	return &state, nil
}

func (s *FileSlot) Save(_ context.Context, state *models.StoreState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistence, "failed to encode state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistence, "failed to create state directory")
	}

	tmp, err := os.CreateTemp(dir, ".store-*.json")
	if err != nil {
		return classifyWriteError(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classifyWriteError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classifyWriteError(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return classifyWriteError(err)
	}
	return nil
}

// classifyWriteError maps a full disk to the quota error code so callers can
// tell "out of space" apart from other storage failures.
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return apperrors.Wrap(err, apperrors.CodeQuotaExceeded, "storage quota exceeded")
	}
	return apperrors.Wrap(err, apperrors.CodePersistence, "failed to write state file")
}
