// scraper/link_resolver.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

const archiveExtension = ".zip"

// ErrNoArchiveLink is returned when a feed page has no anchor pointing at an archive.
var ErrNoArchiveLink = errors.New("no archive link found on page")

// LinkResolver turns a source descriptor into the URL of the feed archive.
type LinkResolver struct {
	client *http.Client
}

// NewLinkResolver builds a resolver whose page requests are bounded by timeout.
func NewLinkResolver(timeout time.Duration) *LinkResolver {
	return &LinkResolver{client: &http.Client{Timeout: timeout}}
}

// ResolveLink returns the descriptor URL unchanged for direct links. Otherwise it scrapes
// the page for the first anchor whose href ends in .zip and returns the href verbatim.
// On any failure the link is empty and the error explains why.
func (r *LinkResolver) ResolveLink(ctx context.Context, d models.SourceDescriptor) (string, error) {
	if d.IsDirectLink() {
		return d.URL, nil
	}

	doc, err := r.fetchDocument(ctx, d.URL)
	if err != nil {
		log.Warn().Err(err).Str("city", d.CityName).Str("url", d.URL).Msg("Scraper: feed page unavailable")
		return "", err
	}

	link := findArchiveLink(doc)
	if link == "" {
		log.Warn().Str("city", d.CityName).Str("url", d.URL).Msg("Scraper: no archive link on feed page")
		return "", fmt.Errorf("%w: %s", ErrNoArchiveLink, d.URL)
	}

	log.Debug().Str("city", d.CityName).Str("link", link).Msg("Scraper: resolved archive link")
	return link, nil
}

func (r *LinkResolver) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get URL %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get URL %s: status code %d", pageURL, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return doc, nil
}

func findArchiveLink(doc *goquery.Document) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasSuffix(href, archiveExtension) {
			link = href
			return false
		}
		return true
	})
	return link
}

// AbsoluteLink resolves a scraped href against the page it was found on.
// Absolute links and unparsable input are returned unchanged.
func AbsoluteLink(pageURL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
