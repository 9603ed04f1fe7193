package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Open picks the backend: Postgres when databaseURL is set, otherwise a
// SQLite file under dataDir.
func Open(ctx context.Context, databaseURL, dataDir string) (Store, error) {
	if databaseURL != "" {
		return OpenPostgres(ctx, databaseURL)
	}
	s, err := OpenSQLite(filepath.Join(dataDir, "trendseer.db"))
	if err != nil {
		return nil, err
	}
	// local files are always migrated; Postgres waits for an explicit migrate
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	return s, nil
}
