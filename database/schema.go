// database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

// EnsureSchema creates the cities table and one destination table per table kind when missing.
// Existing tables are left as they are.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (city_id BIGINT PRIMARY KEY, city_name VARCHAR(255) NOT NULL)", CitiesTable),
	}
	for _, kind := range models.TableKinds {
		statements = append(statements,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", kind, ColumnDefinitions(kind.Schema())))
	}

	for _, stmt := range statements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	log.Debug().Int("tables", len(statements)).Msg("Database: schema ensured")
	return nil
}
