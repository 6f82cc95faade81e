package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"
)

// CachedReader fronts a Source with CSV cache files. With useCache set and
// the cache file present, the file is served and the source is never
// contacted; otherwise the source is queried and the cache rewritten.
type CachedReader struct {
	source Source
	logger zerolog.Logger
}

// NewCachedReader wraps source. source may be nil when every read is
// expected to be served from cache.
func NewCachedReader(source Source, logger zerolog.Logger) *CachedReader {
	return &CachedReader{
		source: source,
		logger: logger.With().Str("component", "cached_reader").Logger(),
	}
}

// Read returns the table for q, from cachePath or from the source.
func (r *CachedReader) Read(ctx context.Context, q Query, cachePath string, useCache bool) (*Table, error) {
	log := r.logger.With().Str("query", q.Name).Str("cache", cachePath).Logger()

	if useCache {
		t, err := ReadCSVTable(cachePath)
		if err == nil {
			log.Info().Int("rows", t.Len()).Msg("served from cache")
			return t, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Info().Msg("cache file missing, querying source")
	}

	if r.source == nil {
		return nil, fmt.Errorf("query %s: no source configured and no cache at %s", q.Name, cachePath)
	}

	start := time.Now()
	t, err := r.source.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", q.Name, err)
	}
	log.Info().Int("rows", t.Len()).Dur("elapsed", time.Since(start)).Msg("fetched from source")

	if err := WriteCSVTable(cachePath, t); err != nil {
		return nil, fmt.Errorf("writing cache for %s: %w", q.Name, err)
	}
	return t, nil
}
