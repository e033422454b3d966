// handlers/transit_handler.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
	"github.com/gewnthar/transit-feeds/services"
)

// TransitQueries is the read side used by the HTTP API.
type TransitQueries interface {
	ListCities(ctx context.Context) ([]models.City, error)
	RoutesForCity(ctx context.Context, name string) ([]models.Route, error)
	TripsForCity(ctx context.Context, name string) ([]models.Trip, error)
	StopsForCity(ctx context.Context, name string) ([]models.Stop, error)
	StopTimesForCity(ctx context.Context, name string) ([]models.StopTime, error)
}

// TransitHandler serves the loaded GTFS tables.
type TransitHandler struct {
	query TransitQueries
}

// NewTransitHandler serves the read-only API from query.
func NewTransitHandler(query TransitQueries) *TransitHandler {
	return &TransitHandler{query: query}
}

// Hello answers GET /.
func (h *TransitHandler) Hello(w http.ResponseWriter, r *http.Request) {
	respondWithMessage(w, http.StatusOK, "Hello, world!")
}

// Cities answers GET /mpk/ with the rows of the cities table.
func (h *TransitHandler) Cities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.query.ListCities(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list cities: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, cities)
}

// Routes handles GET /routes/{city_name}.
func (h *TransitHandler) Routes(w http.ResponseWriter, r *http.Request) {
	serveTable(w, r, models.Routes, h.query.RoutesForCity)
}

// Trips handles GET /trips/{city_name}.
func (h *TransitHandler) Trips(w http.ResponseWriter, r *http.Request) {
	serveTable(w, r, models.Trips, h.query.TripsForCity)
}

// Stops handles GET /stops/{city_name}.
func (h *TransitHandler) Stops(w http.ResponseWriter, r *http.Request) {
	serveTable(w, r, models.Stops, h.query.StopsForCity)
}

// StopTimes handles GET /stop_times/{city_name}.
func (h *TransitHandler) StopTimes(w http.ResponseWriter, r *http.Request) {
	serveTable(w, r, models.StopTimes, h.query.StopTimesForCity)
}

// serveTable writes the records of {city_name} as a JSON array, or 404 for unknown cities.
func serveTable[T any](w http.ResponseWriter, r *http.Request, kind models.TableKind,
	load func(context.Context, string) ([]T, error)) {
	city := mux.Vars(r)["city_name"]

	records, err := load(r.Context(), city)
	if errors.Is(err, services.ErrCityNotFound) {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("City %s with table %s not found", city, kind))
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load %s for %s: %v", kind, city, err))
		return
	}
	if records == nil {
		records = []T{}
	}

	log.Debug().Str("city", city).Str("table", kind.String()).Int("rows", len(records)).Msg("Handler: table served")
	respondWithJSON(w, http.StatusOK, records)
}
