// services/data_update_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/cache"
	"github.com/gewnthar/transit-feeds/models"
	"github.com/gewnthar/transit-feeds/scraper"
)

// CitySource provides the configured feed descriptors.
type CitySource interface {
	Load() ([]models.SourceDescriptor, error)
	FindByName(name string) (models.SourceDescriptor, error)
}

// FreshnessTracker decides whether cached artifacts can be reused and clears them when not.
type FreshnessTracker interface {
	ClassifyCity(city string) cache.Freshness
	ArchiveFresh(city string) bool
	Purge(city string) error
}

// LinkResolver turns a descriptor into the URL of its archive.
type LinkResolver interface {
	ResolveLink(ctx context.Context, d models.SourceDescriptor) (string, error)
}

// ArchiveDownloader stores the archive behind link as the city's cached archive.
type ArchiveDownloader interface {
	Download(ctx context.Context, link, city string) error
}

// ArchiveExtractor unpacks the city's cached archive into its workspace.
type ArchiveExtractor interface {
	Extract(city string) error
}

// TableProjector writes the canonical CSV of one table kind for a city.
type TableProjector interface {
	Project(d models.SourceDescriptor, kind models.TableKind) error
}

// TableReplacer swaps the city's rows in a destination table for a canonical CSV.
type TableReplacer interface {
	Replace(ctx context.Context, kind models.TableKind, cityID int64, csvPath string) error
}

// CitySyncer mirrors the configured cities into the cities table.
type CitySyncer interface {
	SyncCities(ctx context.Context, cities []models.City) error
}

// DataUpdateDeps are the collaborators of a refresh run.
type DataUpdateDeps struct {
	Layout     cache.Layout
	Cities     CitySource
	Tracker    FreshnessTracker
	Resolver   LinkResolver
	Downloader ArchiveDownloader
	Extractor  ArchiveExtractor
	Projector  TableProjector
	Replacer   TableReplacer
	CitySync   CitySyncer

	// Tables restricts projection and replacement to these kinds. Empty means every kind.
	Tables []models.TableKind
}

// CityReport summarizes the refresh of one city.
type CityReport struct {
	City       string
	CityID     int64
	Skipped    bool
	Downloaded bool
	Replaced   []models.TableKind
	Missing    []models.TableKind
	Errors     []*StepError
}

// OK reports whether every attempted step succeeded.
func (r CityReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *CityReport) fail(step Step, table models.TableKind, kind ErrorKind, err error) {
	r.Errors = append(r.Errors, &StepError{Step: step, City: r.City, Table: table, Kind: kind, Err: err})
}

// DataUpdateService runs the refresh pipeline. Only one run is active at a time.
type DataUpdateService struct {
	deps DataUpdateDeps
	mu   sync.Mutex
}

// NewDataUpdateService wires the pipeline collaborators. A nil CitySync skips the cities table.
func NewDataUpdateService(deps DataUpdateDeps) *DataUpdateService {
	if len(deps.Tables) == 0 {
		deps.Tables = models.TableKinds
	}
	return &DataUpdateService{deps: deps}
}

// RefreshAll refreshes every configured city in order. Fresh cities are skipped unless
// force is set. The error is only set when the city list itself cannot be read.
func (s *DataUpdateService) RefreshAll(ctx context.Context, force bool) ([]CityReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	descriptors, err := s.deps.Cities.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cities: %w", err)
	}
	log.Info().Int("cities", len(descriptors)).Bool("force", force).Msg("Service: refresh run started")

	if err := s.syncCities(ctx, descriptors); err != nil {
		log.Error().Err(err).Msg("Service: failed to synchronize cities table")
	}

	reports := make([]CityReport, 0, len(descriptors))
	for _, d := range descriptors {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("Service: refresh run cancelled")
			break
		}
		reports = append(reports, s.refreshCity(ctx, d, force))
	}

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	log.Info().
		Int("cities", len(reports)).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("Service: refresh run finished")
	return reports, nil
}

// RefreshCity refreshes a single descriptor.
func (s *DataUpdateService) RefreshCity(ctx context.Context, d models.SourceDescriptor, force bool) CityReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCity(ctx, d, force)
}

// RefreshNamed looks the city up in cities.json and refreshes it.
func (s *DataUpdateService) RefreshNamed(ctx context.Context, name string, force bool) (CityReport, error) {
	if _, err := s.deps.Cities.Load(); err != nil {
		return CityReport{}, fmt.Errorf("failed to load cities: %w", err)
	}
	d, err := s.deps.Cities.FindByName(name)
	if err != nil {
		return CityReport{}, err
	}
	return s.RefreshCity(ctx, d, force), nil
}

// RunEvery refreshes all cities immediately and then once per interval until ctx ends.
func (s *DataUpdateService) RunEvery(ctx context.Context, interval time.Duration, force bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RefreshAll(ctx, force); err != nil {
			log.Error().Err(err).Msg("Service: scheduled refresh failed")
		}
		log.Info().Dur("interval", interval).Msg("Service: waiting for next scheduled refresh")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start runs RunEvery in its own goroutine. The returned wait blocks until that goroutine
// has returned, which is once ctx is done and any in-flight refresh has finished. Callers
// must wait before closing the database.
func (s *DataUpdateService) Start(ctx context.Context, interval time.Duration, force bool) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.RunEvery(ctx, interval, force); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Service: scheduler stopped")
		}
	}()
	return wg.Wait
}

func (s *DataUpdateService) syncCities(ctx context.Context, descriptors []models.SourceDescriptor) error {
	if s.deps.CitySync == nil {
		return nil
	}
	cities := make([]models.City, 0, len(descriptors))
	for _, d := range descriptors {
		cities = append(cities, d.City())
	}
	if err := s.deps.CitySync.SyncCities(ctx, cities); err != nil {
		return &StepError{Step: StepSyncCities, Kind: Fatal, Err: err}
	}
	return nil
}

func (s *DataUpdateService) refreshCity(ctx context.Context, d models.SourceDescriptor, force bool) CityReport {
	report := CityReport{City: d.CityName, CityID: d.CityID}
	logger := log.With().Str("city", d.CityName).Int64("city_id", d.CityID).Logger()

	freshness := s.deps.Tracker.ClassifyCity(d.CityName)
	logger.Info().Str("freshness", freshness.String()).Bool("force", force).Msg("Service: cache classified")

	if freshness == cache.Fresh && !force {
		report.Skipped = true
		logger.Info().Msg("Service: cached data is fresh, skipping city")
		return report
	}
	if freshness == cache.Stale || force {
		if err := s.deps.Tracker.Purge(d.CityName); err != nil {
			report.fail(StepPurge, "", Fatal, err)
			logger.Error().Err(err).Msg("Service: purge failed, city skipped")
			return report
		}
	}

	if !s.deps.Tracker.ArchiveFresh(d.CityName) {
		link, err := s.deps.Resolver.ResolveLink(ctx, d)
		if err != nil {
			report.fail(StepResolve, "", Transient, err)
			logger.Warn().Err(err).Msg("Service: archive link unavailable, keeping previous data")
			return report
		}
		if !d.IsDirectLink() {
			link = scraper.AbsoluteLink(d.URL, link)
		}

		if err := s.deps.Downloader.Download(ctx, link, d.CityName); err != nil {
			report.fail(StepDownload, "", Transient, err)
			logger.Warn().Err(err).Str("link", link).Msg("Service: download failed, keeping previous data")
			return report
		}
		report.Downloaded = true
	}

	if err := s.deps.Extractor.Extract(d.CityName); err != nil {
		report.fail(StepExtract, "", Transient, err)
		logger.Error().Err(err).Msg("Service: extraction failed, purging city for a clean fetch next run")
		s.purgeAfterFailure(d.CityName)
		return report
	}

	tableFailed := false
	for _, kind := range s.deps.Tables {
		if err := ctx.Err(); err != nil {
			report.fail(StepReplace, kind, Transient, err)
			s.purgeAfterFailure(d.CityName)
			return report
		}

		if err := s.deps.Projector.Project(d, kind); err != nil {
			if errors.Is(err, scraper.ErrTableMissing) {
				report.Missing = append(report.Missing, kind)
				continue
			}
			tableFailed = true
			report.fail(StepProject, kind, Fatal, err)
			logger.Error().Err(err).Str("table", kind.String()).Msg("Service: projection failed")
			continue
		}

		csvPath := s.deps.Layout.CanonicalPath(d.CityName, kind)
		if err := s.deps.Replacer.Replace(ctx, kind, d.CityID, csvPath); err != nil {
			tableFailed = true
			report.fail(StepReplace, kind, Fatal, err)
			logger.Error().Err(err).Str("table", kind.String()).Msg("Service: table replace failed")
			continue
		}
		report.Replaced = append(report.Replaced, kind)
	}

	if tableFailed {
		// Fresh canonical files would otherwise make the next run skip the city.
		s.purgeAfterFailure(d.CityName)
	}

	logger.Info().
		Int("replaced", len(report.Replaced)).
		Int("missing", len(report.Missing)).
		Int("errors", len(report.Errors)).
		Bool("downloaded", report.Downloaded).
		Msg("Service: city refresh finished")
	return report
}

func (s *DataUpdateService) purgeAfterFailure(city string) {
	if err := s.deps.Tracker.Purge(city); err != nil {
		log.Error().Err(err).Str("city", city).Msg("Service: purge after failure did not complete")
	}
}
