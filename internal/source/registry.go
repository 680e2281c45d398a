package source

import (
	"fmt"
	"log/slog"

	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
)

// Registry resolves source ids to their fetch clients. Sources are
// registered once at startup; lookup of an unregistered id is a
// configuration error, not a silent fallback.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds the default registry: the EPA API client and the
// local state-file source.
func NewRegistry(cfg config.SourceConfig, logger *slog.Logger) *Registry {
	return &Registry{
		fetchers: map[string]Fetcher{
			SourceIDEPA:       NewEPAClient(cfg, logger),
			SourceIDStateFile: NewLocalDirSource(cfg.RawDataDir, logger),
		},
	}
}

// Register adds or replaces a source client. Tests use this to install
// stub fetchers.
func (r *Registry) Register(sourceID string, f Fetcher) {
	if r.fetchers == nil {
		r.fetchers = make(map[string]Fetcher)
	}
	r.fetchers[sourceID] = f
}

// Lookup returns the fetcher for a source id.
func (r *Registry) Lookup(sourceID string) (Fetcher, error) {
	f, ok := r.fetchers[sourceID]
	if !ok {
		return nil, apperrors.NewConfigError(
			fmt.Sprintf("no source registered with id %q", sourceID), nil)
	}
	return f, nil
}

// SourceIDs lists the registered source ids.
func (r *Registry) SourceIDs() []string {
	ids := make([]string, 0, len(r.fetchers))
	for id := range r.fetchers {
		ids = append(ids, id)
	}
	return ids
}
