// Package vectorstore opens the configured vector index backend.
package vectorstore

import (
	"fmt"
	"os"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/vectorstore/memory"
	"energyrag/internal/vectorstore/qdrant"
	"energyrag/internal/vectorstore/sqlite"
)

// Open returns the backend named by cfg.Type. The caller must Init it with
// the embedding dimensionality before use.
func Open(cfg config.DBConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite":
		return sqlite.NewStorage(cfg.Path)
	case "qdrant":
		var apiKey string
		if cfg.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.URL,
			APIKey:     apiKey,
			Collection: cfg.Collection,
			Timeout:    cfg.Timeout(),
		}), nil
	default:
		return nil, &domain.ConfigError{Field: "db.type", Reason: fmt.Sprintf("unknown vector store %q", cfg.Type)}
	}
}
