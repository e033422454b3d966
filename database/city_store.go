// database/city_store.go
package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

// CitiesTable lists the cities whose feeds are loaded.
const CitiesTable = "cities"

// ListCities returns every row of the cities table ordered by id.
func (s *Store) ListCities(ctx context.Context) ([]models.City, error) {
	query, args, err := s.Builder.
		Select("city_id", "city_name").
		From(CitiesTable).
		OrderBy("city_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cities: %w", err)
	}
	defer rows.Close()

	cities := []models.City{}
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.CityID, &c.CityName); err != nil {
			return nil, fmt.Errorf("failed to scan city row: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating city rows: %w", err)
	}
	return cities, nil
}

// SyncCities makes the cities table hold exactly cities, using a clear and load.
func (s *Store) SyncCities(ctx context.Context, cities []models.City) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for cities: %w", err)
	}
	defer tx.Rollback()

	query, args, err := s.Builder.Delete(CitiesTable).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear cities: %w", err)
	}

	if len(cities) > 0 {
		insert := s.Builder.Insert(CitiesTable).Columns("city_id", "city_name")
		for _, c := range cities {
			insert = insert.Values(c.CityID, c.CityName)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert cities: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cities: %w", err)
	}

	log.Info().Int("cities", len(cities)).Msg("Database: cities table synchronized")
	return nil
}
