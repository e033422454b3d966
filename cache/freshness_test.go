package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/transit-feeds/models"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func newTestTracker(t *testing.T) (*Tracker, Layout) {
	t.Helper()
	layout := NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure())
	return NewTracker(layout, 1), layout
}

func TestClassifyNoFile(t *testing.T) {
	tracker, layout := newTestTracker(t)
	assert.Equal(t, NoFile, tracker.Classify())

	// archives and raw extracts do not count as canonical files
	touch(t, layout.ArchivePath("Wroclaw"), time.Hour)
	touch(t, layout.RawTablePath("Wroclaw", models.Routes), time.Hour)
	assert.Equal(t, NoFile, tracker.Classify())
	assert.Equal(t, NoFile, tracker.ClassifyCity("Wroclaw"))
}

func TestClassifyMissingCacheRoot(t *testing.T) {
	tracker := NewTracker(NewLayout(filepath.Join(t.TempDir(), "absent")), 1)
	assert.Equal(t, NoFile, tracker.Classify())
}

func TestClassifyFreshIsIdempotent(t *testing.T) {
	tracker, layout := newTestTracker(t)
	touch(t, layout.CanonicalPath("Wroclaw", models.Routes), time.Hour)
	touch(t, layout.CanonicalPath("Wroclaw", models.Stops), 2*time.Hour)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Fresh, tracker.Classify())
		assert.Equal(t, Fresh, tracker.ClassifyCity("Wroclaw"))
	}
	assert.FileExists(t, layout.CanonicalPath("Wroclaw", models.Routes))
	assert.FileExists(t, layout.CanonicalPath("Wroclaw", models.Stops))
}

func TestClassifyStale(t *testing.T) {
	tracker, layout := newTestTracker(t)
	touch(t, layout.CanonicalPath("Wroclaw", models.Routes), time.Hour)
	touch(t, layout.CanonicalPath("Wroclaw", models.Trips), 25*time.Hour)
	touch(t, layout.CanonicalPath("Poznan", models.Routes), time.Hour)

	assert.Equal(t, Stale, tracker.Classify())
	assert.Equal(t, Stale, tracker.ClassifyCity("Wroclaw"))
	assert.Equal(t, Fresh, tracker.ClassifyCity("Poznan"))
}

func TestClassifyThresholdIsInclusive(t *testing.T) {
	now := time.Now()
	artifacts := []Artifact{{Path: "a", ModTime: now.Add(-24 * time.Hour)}}
	assert.Equal(t, Stale, classify(artifacts, now, 24*time.Hour))

	artifacts[0].ModTime = now.Add(-24*time.Hour + time.Second)
	assert.Equal(t, Fresh, classify(artifacts, now, 24*time.Hour))
}

func TestArchiveFresh(t *testing.T) {
	tracker, layout := newTestTracker(t)
	assert.False(t, tracker.ArchiveFresh("Poznan"))

	touch(t, layout.ArchivePath("Poznan"), time.Hour)
	assert.True(t, tracker.ArchiveFresh("Poznan"))

	touch(t, layout.ArchivePath("Poznan"), 48*time.Hour)
	assert.False(t, tracker.ArchiveFresh("Poznan"))
}

func TestPurgeRemovesOnlyCityArtifacts(t *testing.T) {
	tracker, layout := newTestTracker(t)
	for _, kind := range models.TableKinds {
		touch(t, layout.CanonicalPath("Wroclaw", kind), 30*time.Hour)
		touch(t, layout.RawTablePath("Wroclaw", kind), 30*time.Hour)
	}
	touch(t, layout.ArchivePath("Wroclaw"), 30*time.Hour)
	touch(t, layout.ArchivePath("Poznan"), time.Hour)
	touch(t, layout.CanonicalPath("Poznan", models.Routes), time.Hour)
	touch(t, layout.CanonicalPath("WroclawWest", models.Routes), time.Hour)

	require.NoError(t, tracker.Purge("Wroclaw"))

	assert.NoFileExists(t, layout.ArchivePath("Wroclaw"))
	assert.NoDirExists(t, layout.WorkspaceDir("Wroclaw"))
	for _, kind := range models.TableKinds {
		assert.NoFileExists(t, layout.CanonicalPath("Wroclaw", kind))
	}
	assert.FileExists(t, layout.ArchivePath("Poznan"))
	assert.FileExists(t, layout.CanonicalPath("Poznan", models.Routes))
	assert.FileExists(t, layout.CanonicalPath("WroclawWest", models.Routes))

	assert.Equal(t, NoFile, tracker.ClassifyCity("Wroclaw"))
}

func TestHyphenatedCityNamesDoNotCollide(t *testing.T) {
	tracker, layout := newTestTracker(t)
	touch(t, layout.CanonicalPath("Wroclaw", models.Routes), time.Hour)
	touch(t, layout.CanonicalPath("Wroclaw-West", models.Routes), 30*time.Hour)
	touch(t, layout.ArchivePath("Wroclaw-West"), time.Hour)

	assert.Equal(t, Fresh, tracker.ClassifyCity("Wroclaw"))
	assert.Equal(t, Stale, tracker.ClassifyCity("Wroclaw-West"))

	require.NoError(t, tracker.Purge("Wroclaw"))
	assert.NoFileExists(t, layout.CanonicalPath("Wroclaw", models.Routes))
	assert.FileExists(t, layout.CanonicalPath("Wroclaw-West", models.Routes))
	assert.FileExists(t, layout.ArchivePath("Wroclaw-West"))
	assert.Equal(t, Stale, tracker.ClassifyCity("Wroclaw-West"))
}

func TestClassifyCityIgnoresUnknownTables(t *testing.T) {
	tracker, layout := newTestTracker(t)
	touch(t, filepath.Join(layout.CanonicalDir(), "Wroclaw-shapes.csv"), 30*time.Hour)
	assert.Equal(t, NoFile, tracker.ClassifyCity("Wroclaw"))
}

func TestPurgeNothingCached(t *testing.T) {
	tracker, _ := newTestTracker(t)
	assert.NoError(t, tracker.Purge("Gdansk"))
}

func TestLayoutPaths(t *testing.T) {
	layout := NewLayout("/cache")
	assert.Equal(t, filepath.Join("/cache", "zip_files", "Poznan.zip"), layout.ArchivePath("Poznan"))
	assert.Equal(t, filepath.Join("/cache", "zip_files", "unzipped_Poznan", "stop_times.txt"), layout.RawTablePath("Poznan", models.StopTimes))
	assert.Equal(t, filepath.Join("/cache", "csv_files", "Poznan-trips.csv"), layout.CanonicalPath("Poznan", models.Trips))
}
