// scraper/csv_projector.go
package scraper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/cache"
	"github.com/gewnthar/transit-feeds/models"
	"github.com/gewnthar/transit-feeds/utils"
)

const (
	// CanonicalDelimiter separates fields of canonical CSVs.
	CanonicalDelimiter = ';'

	// DateLayout formats the fetch timestamp stored in the date column.
	DateLayout = "2006-01-02 15:04:05.000000-07:00"
)

// ErrTableMissing is returned when the workspace has no extract for a table kind.
var ErrTableMissing = errors.New("table extract not found")

// Projector converts raw GTFS extracts into canonical CSVs.
type Projector struct {
	layout cache.Layout
	now    func() time.Time
}

// NewProjector reads raw tables and writes canonical CSVs inside layout.
func NewProjector(layout cache.Layout) *Projector {
	return &Projector{layout: layout, now: time.Now}
}

// Project reads {kind}.txt from the city's workspace and writes {city}-{kind}.csv holding
// exactly the kind's canonical columns, with city_id and date filled in.
func (p *Projector) Project(d models.SourceDescriptor, kind models.TableKind) error {
	src := p.layout.RawTablePath(d.CityName, kind)
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("city", d.CityName).Str("table", kind.String()).Msg("Scraper: table not present in feed")
			return fmt.Errorf("%w: %s", ErrTableMissing, src)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dst := p.layout.CanonicalPath(d.CityName, kind)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	fetchedAt := p.now().UTC().Format(DateLayout)
	rows, err := ProjectRows(in, tmp, kind.Schema(), d.CityID, fetchedAt)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to project %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move projection into %s: %w", dst, err)
	}

	log.Info().Str("city", d.CityName).Str("table", kind.String()).Int("rows", rows).Str("path", dst).Msg("Scraper: canonical CSV written")
	return nil
}

// ProjectRows copies a comma separated GTFS extract from r to w as a semicolon separated
// canonical CSV. Source columns outside the schema are dropped; schema columns missing in
// the source are written empty. It returns the number of data rows written.
func ProjectRows(r io.Reader, w io.Writer, schema models.Schema, cityID int64, fetchedAt string) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return 0, errors.New("extract has no header row")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = utils.NormalizeColumnName(name)
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	cityValue := strconv.FormatInt(cityID, 10)
	source := make([]int, len(schema.Columns))
	for i, column := range schema.Columns {
		pos, ok := positions[column]
		if !ok {
			pos = -1
		}
		source[i] = pos
	}

	writer := csv.NewWriter(w)
	writer.Comma = CanonicalDelimiter
	if err := writer.Write(schema.Columns); err != nil {
		return 0, err
	}

	out := make([]string, len(schema.Columns))
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read row %d: %w", rows+1, err)
		}

		for i, column := range schema.Columns {
			switch {
			case column == models.ColumnCityID:
				out[i] = cityValue
			case column == models.ColumnDate:
				out[i] = fetchedAt
			case source[i] >= 0 && source[i] < len(record):
				out[i] = record[source[i]]
			default:
				out[i] = ""
			}
		}
		if err := writer.Write(out); err != nil {
			return rows, err
		}
		rows++
	}

	writer.Flush()
	return rows, writer.Error()
}
