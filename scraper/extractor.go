// scraper/extractor.go
package scraper

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/cache"
)

// ErrNoArchive is returned when no archive is cached for a city.
var ErrNoArchive = errors.New("no archive cached")

// Extractor unpacks cached archives into per-city workspaces.
type Extractor struct {
	layout cache.Layout
}

// NewExtractor reads archives from layout and unpacks them into its workspaces.
func NewExtractor(layout cache.Layout) *Extractor {
	return &Extractor{layout: layout}
}

// FindArchive returns the cached archive of city. Only {city}.zip is accepted: it is the
// name the downloader writes and the one the tracker purges.
func (e *Extractor) FindArchive(city string) (string, error) {
	path := e.layout.ArchivePath(city)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w for %s", ErrNoArchive, city)
		}
		return "", fmt.Errorf("failed to stat archive %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w for %s", ErrNoArchive, city)
	}
	return path, nil
}

// Extract unpacks every member of the city's archive into its workspace, creating the
// workspace when needed. Extraction is best effort: members written before a failure stay.
func (e *Extractor) Extract(city string) error {
	archivePath, err := e.FindArchive(city)
	if err != nil {
		log.Warn().Err(err).Str("city", city).Msg("Scraper: nothing to extract")
		return err
	}

	workspace := e.layout.WorkspaceDir(city)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", workspace, err)
	}

	// Insecure member names are reported per member below instead of rejecting the archive.
	reader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	extracted := 0
	for _, member := range reader.File {
		target, ok := memberPath(workspace, member.Name)
		if !ok {
			log.Warn().Str("city", city).Str("member", member.Name).Msg("Scraper: skipping archive member outside workspace")
			continue
		}
		if err := extractMember(member, target); err != nil {
			return fmt.Errorf("failed to extract %s from %s: %w", member.Name, archivePath, err)
		}
		extracted++
	}

	log.Info().Str("city", city).Str("archive", archivePath).Int("members", extracted).Msg("Scraper: archive extracted")
	return nil
}

// memberPath maps an archive member name into dir, rejecting names that escape it.
func memberPath(dir, name string) (string, bool) {
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func extractMember(member *zip.File, target string) error {
	if member.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
