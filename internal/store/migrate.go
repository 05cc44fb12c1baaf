package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate executes every .sql file under dir in lexical order. Migrations are
// written with IF NOT EXISTS so re-running them is harmless.
func Migrate(ctx context.Context, db *pgxpool.Pool, dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return nil, fmt.Errorf("apply %s: %w", filepath.Base(f), err)
		}
	}
	return files, nil
}
