package msi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// FileFetcher reads memoranda saved to disk, keyed by source.
// It implements pipeline.BulletinFetcher.
type FileFetcher struct {
	paths map[string]string
	clock clockwork.Clock
}

// NewFileFetcher creates a fetcher over source -> path mappings.
func NewFileFetcher(paths map[string]string) *FileFetcher {
	return &FileFetcher{paths: paths, clock: clockwork.NewRealClock()}
}

// Fetch reads the file registered for source.
func (f *FileFetcher) Fetch(ctx context.Context, source string) (domain.Bulletin, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bulletin{}, err
	}
	path, ok := f.paths[source]
	if !ok {
		return domain.Bulletin{}, fmt.Errorf("%w %q", ErrUnknownSource, source)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.Bulletin{}, fmt.Errorf("read bulletin %s: %w", source, err)
	}
	return domain.Bulletin{Source: source, FetchedAt: f.clock.Now().UTC(), Text: string(data)}, nil
}
