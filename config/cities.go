// config/cities.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

// ErrCityNotFound is returned when no configured descriptor matches a city name.
var ErrCityNotFound = errors.New("city not found")

// DefaultCitiesJSON is written whenever the cities file is missing or unusable.
const DefaultCitiesJSON = `[
  {
    "city_id": 1,
    "city_name": "Wroclaw",
    "url": "https://www.wroclaw.pl/open-data/dataset/rozkladjazdytransportupublicznegoplik_data/resource/62b3f371-2375-4979-874c-05c6bbb9b09e",
    "direct_link": false
  },
  {
    "city_id": 2,
    "city_name": "Poznan",
    "url": "https://www.ztm.poznan.pl/pl/dla-deweloperow/getGTFSFile",
    "direct_link": true
  }
]
`

// CityStore holds the source descriptors read from the cities file.
type CityStore struct {
	path     string
	validate *validator.Validate

	mu     sync.RWMutex
	cities []models.SourceDescriptor
}

// NewCityStore serves the cities file at path. Nothing is read until Load.
func NewCityStore(path string) *CityStore {
	return &CityStore{path: path, validate: validator.New()}
}

// Load reads and validates the cities file. A missing, malformed or invalid file is
// replaced by the defaults, which are then returned.
func (s *CityStore) Load() ([]models.SourceDescriptor, error) {
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", s.path).Msg("Config: cities file not found, writing defaults")
		return s.heal()
	case err != nil:
		return nil, fmt.Errorf("failed to read cities file %s: %w", s.path, err)
	}

	var cities []models.SourceDescriptor
	if err := json.Unmarshal(raw, &cities); err != nil || cities == nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Config: cities file is not a JSON list of descriptors, regenerating defaults")
		return s.heal()
	}
	if err := ValidateCities(s.validate, cities); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Config: cities file is invalid, regenerating defaults")
		return s.heal()
	}

	s.set(cities)
	log.Info().Int("cities", len(cities)).Str("path", s.path).Msg("Config: cities loaded")
	return cities, nil
}

func (s *CityStore) heal() ([]models.SourceDescriptor, error) {
	if err := WriteDefaultCities(s.path); err != nil {
		return nil, err
	}
	cities, err := DefaultCities()
	if err != nil {
		return nil, err
	}
	s.set(cities)
	return cities, nil
}

func (s *CityStore) set(cities []models.SourceDescriptor) {
	s.mu.Lock()
	s.cities = cities
	s.mu.Unlock()
}

// FindByName looks a descriptor up by its exact city name.
func (s *CityStore) FindByName(name string) (models.SourceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cities {
		if c.CityName == name {
			return c, nil
		}
	}
	return models.SourceDescriptor{}, fmt.Errorf("%w: %s", ErrCityNotFound, name)
}

// ValidateCities checks required fields of every descriptor and that ids and names are unique.
func ValidateCities(v *validator.Validate, cities []models.SourceDescriptor) error {
	ids := make(map[int64]bool, len(cities))
	names := make(map[string]bool, len(cities))
	for i, c := range cities {
		if err := v.Struct(c); err != nil {
			return fmt.Errorf("descriptor %d: %w", i, err)
		}
		if ids[c.CityID] {
			return fmt.Errorf("descriptor %d: duplicate city_id %d", i, c.CityID)
		}
		if names[c.CityName] {
			return fmt.Errorf("descriptor %d: duplicate city_name %q", i, c.CityName)
		}
		ids[c.CityID] = true
		names[c.CityName] = true
	}
	return nil
}

// DefaultCities decodes DefaultCitiesJSON.
func DefaultCities() ([]models.SourceDescriptor, error) {
	var cities []models.SourceDescriptor
	if err := json.Unmarshal([]byte(DefaultCitiesJSON), &cities); err != nil {
		return nil, fmt.Errorf("failed to decode default cities: %w", err)
	}
	return cities, nil
}

// WriteDefaultCities creates or overwrites path with the default descriptors.
func WriteDefaultCities(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for cities file: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(DefaultCitiesJSON), 0644); err != nil {
		return fmt.Errorf("failed to write default cities file %s: %w", path, err)
	}
	return nil
}
