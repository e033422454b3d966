// services/query_service.go
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

// CityLookup resolves a city name to its descriptor.
type CityLookup interface {
	FindByName(name string) (models.SourceDescriptor, error)
}

// TransitReader reads finished destination tables.
type TransitReader interface {
	ListCities(ctx context.Context) ([]models.City, error)
	ListRoutes(ctx context.Context, cityID int64) ([]models.Route, error)
	ListTrips(ctx context.Context, cityID int64) ([]models.Trip, error)
	ListStops(ctx context.Context, cityID int64) ([]models.Stop, error)
	ListStopTimes(ctx context.Context, cityID int64) ([]models.StopTime, error)
}

// QueryService answers read requests by city name.
type QueryService struct {
	cities CityLookup
	store  TransitReader
}

// NewQueryService resolves city names through cities and reads rows from store.
func NewQueryService(cities CityLookup, store TransitReader) *QueryService {
	return &QueryService{cities: cities, store: store}
}

// CityID returns the id configured for name, or an error wrapping ErrCityNotFound.
func (q *QueryService) CityID(name string) (int64, error) {
	d, err := q.cities.FindByName(name)
	if err != nil {
		return 0, err
	}
	return d.CityID, nil
}

// ListCities returns the cities table.
func (q *QueryService) ListCities(ctx context.Context) ([]models.City, error) {
	return q.store.ListCities(ctx)
}

// RoutesForCity returns the routes of the named city, or ErrCityNotFound.
func (q *QueryService) RoutesForCity(ctx context.Context, name string) ([]models.Route, error) {
	return forCity(ctx, q, name, models.Routes, q.store.ListRoutes)
}

// TripsForCity returns the trips of the named city, or ErrCityNotFound.
func (q *QueryService) TripsForCity(ctx context.Context, name string) ([]models.Trip, error) {
	return forCity(ctx, q, name, models.Trips, q.store.ListTrips)
}

// StopsForCity returns the stops of the named city, or ErrCityNotFound.
func (q *QueryService) StopsForCity(ctx context.Context, name string) ([]models.Stop, error) {
	return forCity(ctx, q, name, models.Stops, q.store.ListStops)
}

// StopTimesForCity returns the stop times of the named city, or ErrCityNotFound.
func (q *QueryService) StopTimesForCity(ctx context.Context, name string) ([]models.StopTime, error) {
	return forCity(ctx, q, name, models.StopTimes, q.store.ListStopTimes)
}

func forCity[T any](ctx context.Context, q *QueryService, name string, kind models.TableKind,
	list func(context.Context, int64) ([]T, error)) ([]T, error) {
	cityID, err := q.CityID(name)
	if err != nil {
		return nil, err
	}

	records, err := list(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for %s: %w", kind, name, err)
	}
	log.Debug().Str("city", name).Str("table", kind.String()).Int("rows", len(records)).Msg("Service: records served")
	return records, nil
}
