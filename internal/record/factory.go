package record

import (
	stderrors "errors"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/errors"
)

// ErrNotWatchable is returned by Watch for stores without a watch directory.
var ErrNotWatchable = stderrors.New("store does not support watching")

// Storage backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// NewFromConfig opens the store selected by cfg.
func NewFromConfig(cfg *config.StorageConfig) (Store, error) {
	dir := cfg.ResolveStorageDir()
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(dir)
	default:
		return nil, errors.NewValidationError("unknown storage backend").
			WithField("storage.backend").
			WithValue(cfg.Backend)
	}
}
