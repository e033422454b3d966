package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/transit-feeds/models"
)

type fakeReader struct {
	routes map[int64][]models.Route
	err    error
}

func (f *fakeReader) ListCities(context.Context) ([]models.City, error) {
	return []models.City{{CityID: 1, CityName: "Wroclaw"}}, f.err
}

func (f *fakeReader) ListRoutes(_ context.Context, cityID int64) ([]models.Route, error) {
	return f.routes[cityID], f.err
}

func (f *fakeReader) ListTrips(context.Context, int64) ([]models.Trip, error) {
	return []models.Trip{}, f.err
}

func (f *fakeReader) ListStops(context.Context, int64) ([]models.Stop, error) {
	return []models.Stop{}, f.err
}

func (f *fakeReader) ListStopTimes(context.Context, int64) ([]models.StopTime, error) {
	return []models.StopTime{}, f.err
}

func TestQueryServiceResolvesCityName(t *testing.T) {
	reader := &fakeReader{routes: map[int64][]models.Route{
		1: {{RouteID: "A", CityID: 1}},
		2: {{RouteID: "1", CityID: 2}},
	}}
	q := NewQueryService(&fakeCities{cities: []models.SourceDescriptor{wroclaw, poznan}}, reader)

	id, err := q.CityID("Poznan")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	routes, err := q.RoutesForCity(context.Background(), "Poznan")
	require.NoError(t, err)
	assert.Equal(t, []models.Route{{RouteID: "1", CityID: 2}}, routes)

	cities, err := q.ListCities(context.Background())
	require.NoError(t, err)
	assert.Len(t, cities, 1)
}

func TestQueryServiceUnknownCity(t *testing.T) {
	q := NewQueryService(&fakeCities{cities: []models.SourceDescriptor{wroclaw}}, &fakeReader{})
	ctx := context.Background()

	_, err := q.CityID("Gdansk")
	assert.True(t, errors.Is(err, ErrCityNotFound))

	_, err = q.RoutesForCity(ctx, "Gdansk")
	assert.True(t, errors.Is(err, ErrCityNotFound))
	_, err = q.TripsForCity(ctx, "Gdansk")
	assert.True(t, errors.Is(err, ErrCityNotFound))
	_, err = q.StopsForCity(ctx, "Gdansk")
	assert.True(t, errors.Is(err, ErrCityNotFound))
	_, err = q.StopTimesForCity(ctx, "Gdansk")
	assert.True(t, errors.Is(err, ErrCityNotFound))
}

func TestQueryServiceStoreFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	q := NewQueryService(&fakeCities{cities: []models.SourceDescriptor{wroclaw}}, &fakeReader{err: storeErr})

	_, err := q.StopsForCity(context.Background(), "Wroclaw")
	assert.True(t, errors.Is(err, storeErr))
	assert.False(t, errors.Is(err, ErrCityNotFound))
}
