package database

import (
	"context"
	"fmt"
	"sort"

	schemasql "github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/database/sql"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// ApplySchema executes the embedded schema files in name order. Statements are
// idempotent (CREATE TABLE IF NOT EXISTS), so running at every startup is safe.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	entries, err := schemasql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := schemasql.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read schema file %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Info("Applied schema file")
	}
	return nil
}
