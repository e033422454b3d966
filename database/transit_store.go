// database/transit_store.go
package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/gewnthar/transit-feeds/models"
)

// ListRoutes returns every routes row of cityID.
func (s *Store) ListRoutes(ctx context.Context, cityID int64) ([]models.Route, error) {
	return listRecords[models.Route](ctx, s, models.Routes, cityID)
}

// ListTrips returns every trips row of cityID.
func (s *Store) ListTrips(ctx context.Context, cityID int64) ([]models.Trip, error) {
	return listRecords[models.Trip](ctx, s, models.Trips, cityID)
}

// ListStops returns every stops row of cityID.
func (s *Store) ListStops(ctx context.Context, cityID int64) ([]models.Stop, error) {
	return listRecords[models.Stop](ctx, s, models.Stops, cityID)
}

// ListStopTimes returns every stop_times row of cityID. Large cities yield a lot of rows.
func (s *Store) ListStopTimes(ctx context.Context, cityID int64) ([]models.StopTime, error) {
	return listRecords[models.StopTime](ctx, s, models.StopTimes, cityID)
}

// CountRows returns how many rows of cityID the destination table of kind holds.
func (s *Store) CountRows(ctx context.Context, kind models.TableKind, cityID int64) (int, error) {
	query, args, err := s.Builder.
		Select("COUNT(*)").
		From(string(kind)).
		Where(sq.Eq{models.ColumnCityID: cityID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s rows for city %d: %w", kind, cityID, err)
	}
	return n, nil
}

// listRecords reads every schema column of the city's rows in kind into typed records.
func listRecords[T any, P interface {
	*T
	models.Record
}](ctx context.Context, s *Store, kind models.TableKind, cityID int64) ([]T, error) {
	query, args, err := s.Builder.
		Select(kind.Schema().Columns...).
		From(string(kind)).
		Where(sq.Eq{models.ColumnCityID: cityID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for city %d: %w", kind, cityID, err)
	}
	defer rows.Close()

	records := []T{}
	for rows.Next() {
		var rec T
		if err := rows.Scan(P(&rec).Fields()...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", kind, err)
	}
	return records, nil
}
