// cache/freshness.go
package cache

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

// Freshness is the verdict of the tracker over a set of canonical CSVs.
type Freshness int

const (
	NoFile Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case NoFile:
		return "no_file"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("freshness(%d)", int(f))
	}
}

// Tracker decides whether cached data must be fetched again and purges what is obsolete.
type Tracker struct {
	layout Layout
	maxAge time.Duration
	now    func() time.Time
}

// NewTracker builds a tracker treating files at least maxAgeDays old as stale.
func NewTracker(layout Layout, maxAgeDays int) *Tracker {
	return &Tracker{
		layout: layout,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
		now:    time.Now,
	}
}

// Classify inspects every canonical CSV in the cache.
func (t *Tracker) Classify() Freshness {
	return t.classifyCanonical(func(name string) bool {
		return strings.HasSuffix(name, CanonicalExt)
	})
}

// ClassifyCity inspects the canonical CSVs of a single city. Only the exact
// {city}-{kind}.csv names count, so a city named "Wroclaw-West" never shares files with "Wroclaw".
func (t *Tracker) ClassifyCity(city string) Freshness {
	artifacts, err := t.cityCanonical(city)
	if err != nil {
		log.Warn().Err(err).Str("city", city).Msg("Freshness: cannot stat canonical files, treating city as empty")
		return NoFile
	}
	return classify(artifacts, t.now(), t.maxAge)
}

func (t *Tracker) classifyCanonical(match func(string) bool) Freshness {
	artifacts, err := listArtifacts(t.layout.CanonicalDir(), match)
	if err != nil {
		log.Warn().Err(err).Msg("Freshness: cannot list canonical files, treating cache as empty")
		return NoFile
	}
	return classify(artifacts, t.now(), t.maxAge)
}

// cityCanonical returns the canonical CSVs present for city, one per table kind at most.
func (t *Tracker) cityCanonical(city string) ([]Artifact, error) {
	var artifacts []Artifact
	for _, kind := range models.TableKinds {
		path := t.layout.CanonicalPath(city, kind)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		artifacts = append(artifacts, Artifact{Path: path, ModTime: info.ModTime()})
	}
	return artifacts, nil
}

func classify(artifacts []Artifact, now time.Time, maxAge time.Duration) Freshness {
	if len(artifacts) == 0 {
		return NoFile
	}
	for _, a := range artifacts {
		if a.Age(now) >= maxAge {
			return Stale
		}
	}
	return Fresh
}

// ArchiveFresh reports whether the city's archive is cached and younger than the threshold.
func (t *Tracker) ArchiveFresh(city string) bool {
	info, err := os.Stat(t.layout.ArchivePath(city))
	if err != nil {
		return false
	}
	return t.now().Sub(info.ModTime()) < t.maxAge
}

// Purge removes the city's archive {city}.zip, its unzip workspace and its canonical CSVs.
// The first removal failure stops the purge and is returned.
func (t *Tracker) Purge(city string) error {
	if err := removeIfExists(t.layout.ArchivePath(city)); err != nil {
		return err
	}

	workspace := t.layout.WorkspaceDir(city)
	if err := os.RemoveAll(workspace); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", workspace, err)
	}

	for _, kind := range models.TableKinds {
		if err := removeIfExists(t.layout.CanonicalPath(city, kind)); err != nil {
			return err
		}
	}

	log.Info().Str("city", city).Msg("Freshness: purged cached data")
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
