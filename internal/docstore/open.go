package docstore

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"herald/internal/config"
	"herald/internal/logging"
	"herald/internal/services"
)

// Open builds the store selected by cfg.Store.Backend. The returned closer
// releases backend resources and is never nil.
func Open(cfg *config.Config, logger *slog.Logger) (Store, io.Closer, error) {
	if cfg == nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "docstore", "open", "config is nil", nil)
	}
	logger = logging.NewComponentLogger(logger, "docstore")
	switch cfg.Store.Backend {
	case config.StoreBackendGitHub:
		store := NewGitHub(GitHubOptions{
			BaseURL:       cfg.GitHub.BaseURL,
			Owner:         cfg.GitHub.Owner,
			Repo:          cfg.GitHub.Repo,
			Branch:        cfg.GitHub.Branch,
			Path:          cfg.Store.Path,
			Token:         cfg.GitHub.Token,
			CommitMessage: cfg.Store.CommitMessage,
			HTTPClient:    &http.Client{Timeout: cfg.GitHubTimeout()},
			Logger:        logger,
		})
		return store, nopCloser{}, nil
	case config.StoreBackendFile:
		return NewFile(cfg.Store.Path), nopCloser{}, nil
	case config.StoreBackendSQLite:
		store, err := OpenSQLite(cfg.Store.Path, "queue")
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, services.Wrap(services.ErrConfiguration, "docstore", "open",
			fmt.Sprintf("unsupported backend %q", cfg.Store.Backend), nil)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
