// scraper/archive_downloader.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/cache"
)

// ErrEmptyLink is returned when there is nothing to download.
var ErrEmptyLink = errors.New("empty download link")

// Downloader stores feed archives under the cache's zip_files directory.
type Downloader struct {
	client *http.Client
	layout cache.Layout
}

// NewDownloader saves archives under layout. timeout bounds a whole download.
func NewDownloader(layout cache.Layout, timeout time.Duration) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		layout: layout,
	}
}

// Download saves link as {root}/zip_files/{city}.zip, replacing any previous archive.
func (d *Downloader) Download(ctx context.Context, link, city string) error {
	if link == "" {
		log.Warn().Str("city", city).Msg("Scraper: empty link, can't download")
		return ErrEmptyLink
	}
	return DownloadFile(ctx, d.client, link, d.layout.ArchivePath(city))
}

// DownloadFile streams url into localSavePath. The body is written to a temporary file
// next to the destination and renamed into place, so a failed transfer never leaves a
// truncated file behind.
func DownloadFile(ctx context.Context, client *http.Client, url, localSavePath string) error {
	log.Info().Str("url", url).Str("path", localSavePath).Msg("Scraper: downloading file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build GET request to %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file from %s: received status code %d", url, resp.StatusCode)
	}

	dir := filepath.Dir(localSavePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(localSavePath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy downloaded content to %s: %w", localSavePath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), localSavePath); err != nil {
		return fmt.Errorf("failed to move download into %s: %w", localSavePath, err)
	}

	log.Info().Str("url", url).Str("path", localSavePath).Int64("bytes", written).Msg("Scraper: download finished")
	return nil
}
