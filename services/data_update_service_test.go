package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/transit-feeds/cache"
	"github.com/gewnthar/transit-feeds/config"
	"github.com/gewnthar/transit-feeds/models"
	"github.com/gewnthar/transit-feeds/scraper"
)

type fakeCities struct {
	cities  []models.SourceDescriptor
	loadErr error
}

func (f *fakeCities) Load() ([]models.SourceDescriptor, error) {
	return f.cities, f.loadErr
}

func (f *fakeCities) FindByName(name string) (models.SourceDescriptor, error) {
	for _, c := range f.cities {
		if c.CityName == name {
			return c, nil
		}
	}
	return models.SourceDescriptor{}, config.ErrCityNotFound
}

type fakeTracker struct {
	freshness    map[string]cache.Freshness
	archiveFresh map[string]bool
	purgeErr     error
	purged       []string
}

func (f *fakeTracker) ClassifyCity(city string) cache.Freshness {
	if fr, ok := f.freshness[city]; ok {
		return fr
	}
	return cache.NoFile
}

func (f *fakeTracker) ArchiveFresh(city string) bool {
	return f.archiveFresh[city]
}

func (f *fakeTracker) Purge(city string) error {
	f.purged = append(f.purged, city)
	return f.purgeErr
}

type fakeResolver struct {
	link  string
	err   error
	calls int
}

func (f *fakeResolver) ResolveLink(_ context.Context, d models.SourceDescriptor) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if d.IsDirectLink() {
		return d.URL, nil
	}
	return f.link, nil
}

type fakeDownloader struct {
	links []string
	err   error
}

func (f *fakeDownloader) Download(_ context.Context, link, _ string) error {
	f.links = append(f.links, link)
	return f.err
}

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(string) error {
	f.calls++
	return f.err
}

type fakeProjector struct {
	missing map[models.TableKind]bool
	failing map[models.TableKind]bool
}

func (f *fakeProjector) Project(_ models.SourceDescriptor, kind models.TableKind) error {
	if f.missing[kind] {
		return scraper.ErrTableMissing
	}
	if f.failing[kind] {
		return errors.New("disk full")
	}
	return nil
}

type fakeReplacer struct {
	failing  map[models.TableKind]bool
	replaced []models.TableKind
	paths    []string
}

func (f *fakeReplacer) Replace(_ context.Context, kind models.TableKind, _ int64, csvPath string) error {
	if f.failing[kind] {
		return errors.New("deadlock")
	}
	f.replaced = append(f.replaced, kind)
	f.paths = append(f.paths, csvPath)
	return nil
}

type fakeSyncer struct {
	synced [][]models.City
}

func (f *fakeSyncer) SyncCities(_ context.Context, cities []models.City) error {
	f.synced = append(f.synced, cities)
	return nil
}

type pipelineFakes struct {
	cities     *fakeCities
	tracker    *fakeTracker
	resolver   *fakeResolver
	downloader *fakeDownloader
	extractor  *fakeExtractor
	projector  *fakeProjector
	replacer   *fakeReplacer
	syncer     *fakeSyncer
}

var (
	wroclaw = models.SourceDescriptor{CityID: 1, CityName: "Wroclaw", URL: "https://www.wroclaw.pl/open-data/dataset/rozklad", DirectLink: models.Bool(false)}
	poznan  = models.SourceDescriptor{CityID: 2, CityName: "Poznan", URL: "https://www.ztm.poznan.pl/pl/dla-deweloperow/getGTFSFile", DirectLink: models.Bool(true)}
)

func newFakeService(cities ...models.SourceDescriptor) (*DataUpdateService, *pipelineFakes) {
	f := &pipelineFakes{
		cities:     &fakeCities{cities: cities},
		tracker:    &fakeTracker{freshness: map[string]cache.Freshness{}, archiveFresh: map[string]bool{}},
		resolver:   &fakeResolver{link: "https://cdn.example.org/feed.zip"},
		downloader: &fakeDownloader{},
		extractor:  &fakeExtractor{},
		projector:  &fakeProjector{},
		replacer:   &fakeReplacer{},
		syncer:     &fakeSyncer{},
	}
	svc := NewDataUpdateService(DataUpdateDeps{
		Layout:     cache.NewLayout("/cache"),
		Cities:     f.cities,
		Tracker:    f.tracker,
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Extractor:  f.extractor,
		Projector:  f.projector,
		Replacer:   f.replacer,
		CitySync:   f.syncer,
	})
	return svc, f
}

func TestRefreshFirstRunLoadsEveryTable(t *testing.T) {
	svc, f := newFakeService(poznan)

	report := svc.RefreshCity(context.Background(), poznan, false)

	assert.True(t, report.OK())
	assert.True(t, report.Downloaded)
	assert.Empty(t, f.tracker.purged, "nothing cached, nothing to purge")
	assert.Equal(t, []string{poznan.URL}, f.downloader.links)
	assert.Equal(t, models.TableKinds, report.Replaced)
	assert.Equal(t, "/cache/csv_files/Poznan-stop_times.csv", f.replacer.paths[3])
}

func TestRefreshSkipsFreshCity(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.tracker.freshness["Wroclaw"] = cache.Fresh

	report := svc.RefreshCity(context.Background(), wroclaw, false)

	assert.True(t, report.Skipped)
	assert.Zero(t, f.resolver.calls)
	assert.Zero(t, f.extractor.calls)
	assert.Empty(t, f.replacer.replaced)
}

func TestRefreshForceRefetchesFreshCity(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.tracker.freshness["Wroclaw"] = cache.Fresh

	report := svc.RefreshCity(context.Background(), wroclaw, true)

	assert.False(t, report.Skipped)
	assert.Equal(t, []string{"Wroclaw"}, f.tracker.purged)
	assert.True(t, report.Downloaded)
	assert.Len(t, f.replacer.replaced, len(models.TableKinds))
}

func TestRefreshStalePurgesBeforeFetching(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.tracker.freshness["Wroclaw"] = cache.Stale

	report := svc.RefreshCity(context.Background(), wroclaw, false)

	assert.True(t, report.OK())
	assert.Equal(t, []string{"Wroclaw"}, f.tracker.purged)
	assert.Equal(t, []string{"https://cdn.example.org/feed.zip"}, f.downloader.links)
}

func TestRefreshReusesFreshArchive(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.tracker.archiveFresh["Wroclaw"] = true

	report := svc.RefreshCity(context.Background(), wroclaw, false)

	assert.True(t, report.OK())
	assert.False(t, report.Downloaded)
	assert.Zero(t, f.resolver.calls)
	assert.Equal(t, 1, f.extractor.calls)
}

func TestRefreshResolvesRelativeLinks(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.resolver.link = "/files/OtwartyWroclaw_rozklad_jazdy_GTFS.zip"

	svc.RefreshCity(context.Background(), wroclaw, false)

	assert.Equal(t, []string{"https://www.wroclaw.pl/files/OtwartyWroclaw_rozklad_jazdy_GTFS.zip"}, f.downloader.links)
}

func TestRefreshMissingLinkIsTransient(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.resolver.err = scraper.ErrNoArchiveLink

	report := svc.RefreshCity(context.Background(), wroclaw, false)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepResolve, report.Errors[0].Step)
	assert.True(t, IsTransient(report.Errors[0]))
	assert.True(t, errors.Is(report.Errors[0], scraper.ErrNoArchiveLink))
	assert.Empty(t, f.downloader.links)
	assert.Zero(t, f.extractor.calls)
}

func TestRefreshDownloadFailureIsTransient(t *testing.T) {
	svc, f := newFakeService(poznan)
	f.downloader.err = errors.New("connection reset")

	report := svc.RefreshCity(context.Background(), poznan, false)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepDownload, report.Errors[0].Step)
	assert.Equal(t, Transient, report.Errors[0].Kind)
	assert.Zero(t, f.extractor.calls)
}

func TestRefreshExtractFailurePurgesCity(t *testing.T) {
	svc, f := newFakeService(poznan)
	f.extractor.err = errors.New("zip: not a valid zip file")

	report := svc.RefreshCity(context.Background(), poznan, false)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepExtract, report.Errors[0].Step)
	assert.Equal(t, []string{"Poznan"}, f.tracker.purged)
	assert.Empty(t, f.replacer.replaced)
}

func TestRefreshMissingTableIsSkipped(t *testing.T) {
	svc, f := newFakeService(poznan)
	f.projector.missing = map[models.TableKind]bool{models.StopTimes: true}

	report := svc.RefreshCity(context.Background(), poznan, false)

	assert.True(t, report.OK())
	assert.Equal(t, []models.TableKind{models.StopTimes}, report.Missing)
	assert.Equal(t, []models.TableKind{models.Routes, models.Trips, models.Stops}, report.Replaced)
	assert.Empty(t, f.tracker.purged)
}

func TestRefreshReplaceFailureContinuesAndPurges(t *testing.T) {
	svc, f := newFakeService(poznan)
	f.replacer.failing = map[models.TableKind]bool{models.Trips: true}

	report := svc.RefreshCity(context.Background(), poznan, false)

	require.Len(t, report.Errors, 1)
	stepErr := report.Errors[0]
	assert.Equal(t, StepReplace, stepErr.Step)
	assert.Equal(t, models.Trips, stepErr.Table)
	assert.Equal(t, Fatal, stepErr.Kind)
	assert.False(t, IsTransient(stepErr))
	assert.Contains(t, stepErr.Error(), "Poznan/trips")

	assert.Equal(t, []models.TableKind{models.Routes, models.Stops, models.StopTimes}, report.Replaced)
	assert.Equal(t, []string{"Poznan"}, f.tracker.purged)
}

func TestRefreshPurgeFailureSkipsCity(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	f.tracker.freshness["Wroclaw"] = cache.Stale
	f.tracker.purgeErr = errors.New("permission denied")

	report := svc.RefreshCity(context.Background(), wroclaw, false)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepPurge, report.Errors[0].Step)
	assert.Zero(t, f.resolver.calls)
}

func TestRefreshAllRunsEveryCityAndSyncsCities(t *testing.T) {
	svc, f := newFakeService(wroclaw, poznan)
	f.tracker.freshness["Wroclaw"] = cache.Fresh

	reports, err := svc.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.True(t, reports[0].Skipped)
	assert.Equal(t, "Poznan", reports[1].City)
	assert.True(t, reports[1].OK())

	require.Len(t, f.syncer.synced, 1)
	assert.Equal(t, []models.City{{CityID: 1, CityName: "Wroclaw"}, {CityID: 2, CityName: "Poznan"}}, f.syncer.synced[0])
}

func TestRefreshAllStopsWhenCancelled(t *testing.T) {
	svc, _ := newFakeService(wroclaw, poznan)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := svc.RefreshAll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRefreshAllConfigFailure(t *testing.T) {
	svc, f := newFakeService()
	f.cities.loadErr = errors.New("read cities.json: input/output error")

	_, err := svc.RefreshAll(context.Background(), false)
	assert.Error(t, err)
}

func TestRefreshNamed(t *testing.T) {
	svc, f := newFakeService(wroclaw, poznan)

	report, err := svc.RefreshNamed(context.Background(), "Poznan", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.CityID)
	assert.Equal(t, []string{poznan.URL}, f.downloader.links)

	_, err = svc.RefreshNamed(context.Background(), "Krakow", false)
	assert.True(t, errors.Is(err, ErrCityNotFound))
}

func TestRefreshOnlySelectedTables(t *testing.T) {
	svc, f := newFakeService(poznan)
	svc.deps.Tables = []models.TableKind{models.Stops, models.Routes}

	report := svc.RefreshCity(context.Background(), poznan, false)

	assert.True(t, report.OK())
	assert.Equal(t, []models.TableKind{models.Stops, models.Routes}, report.Replaced)
	assert.Equal(t, []models.TableKind{models.Stops, models.Routes}, f.replacer.replaced)
}

func TestNewDataUpdateServiceDefaultsToEveryTable(t *testing.T) {
	svc, _ := newFakeService()
	assert.Equal(t, models.TableKinds, svc.deps.Tables)
}

func TestStartWaitsForScheduler(t *testing.T) {
	svc, f := newFakeService(wroclaw)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wait := svc.Start(ctx, time.Hour, false)
	wait()

	// The immediate run happened and the loop returned on the cancelled context.
	require.Len(t, f.syncer.synced, 1)
	assert.Empty(t, f.downloader.links)
}
