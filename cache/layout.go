// cache/layout.go
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gewnthar/transit-feeds/models"
)

const (
	archiveDirName   = "zip_files"
	canonicalDirName = "csv_files"
	workspacePrefix  = "unzipped_"

	ArchiveExt   = ".zip"
	CanonicalExt = ".csv"
	RawTableExt  = ".txt"
)

// Layout addresses every artifact of the cache tree:
//
//	{root}/zip_files/{city}.zip
//	{root}/zip_files/unzipped_{city}/{kind}.txt
//	{root}/csv_files/{city}-{kind}.csv
type Layout struct {
	Root string
}

// NewLayout roots the cache tree at root, usually cache.root from the config.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// ArchiveDir holds downloaded archives and the unzip workspaces.
func (l Layout) ArchiveDir() string {
	return filepath.Join(l.Root, archiveDirName)
}

// ArchivePath is the only archive name the downloader writes and the extractor reads.
func (l Layout) ArchivePath(city string) string {
	return filepath.Join(l.ArchiveDir(), city+ArchiveExt)
}

// WorkspaceDir is where the city's archive is unpacked.
func (l Layout) WorkspaceDir(city string) string {
	return filepath.Join(l.ArchiveDir(), workspacePrefix+city)
}

// RawTablePath is the extracted GTFS file of kind.
func (l Layout) RawTablePath(city string, kind models.TableKind) string {
	return filepath.Join(l.WorkspaceDir(city), string(kind)+RawTableExt)
}

// CanonicalDir holds the projected CSVs of every city.
func (l Layout) CanonicalDir() string {
	return filepath.Join(l.Root, canonicalDirName)
}

// CanonicalPath is the projected CSV of one city and table kind.
func (l Layout) CanonicalPath(city string, kind models.TableKind) string {
	return filepath.Join(l.CanonicalDir(), city+"-"+string(kind)+CanonicalExt)
}

// Ensure creates the archive and canonical directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.ArchiveDir(), l.CanonicalDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}
	return nil
}

// Artifact is a cached file with its last modification time.
type Artifact struct {
	Path    string
	ModTime time.Time
}

// Age is how long ago the artifact was last written.
func (a Artifact) Age(now time.Time) time.Duration {
	return now.Sub(a.ModTime)
}

// listArtifacts returns the regular files of dir accepted by match.
// A missing directory yields no artifacts.
func listArtifacts(dir string, match func(name string) bool) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		artifacts = append(artifacts, Artifact{
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
		})
	}
	return artifacts, nil
}
