// database/table_replacer.go
package database

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/models"
)

// Replace steps, in execution order.
const (
	StepStage  = "stage"
	StepDelete = "delete"
	StepInsert = "insert"
	StepCommit = "commit"
)

// DefaultBatchSize is the number of staging rows sent per INSERT statement.
const DefaultBatchSize = 500

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ReplaceError reports which replace step failed for which table and city.
type ReplaceError struct {
	Step   string
	Kind   models.TableKind
	CityID int64
	Err    error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("replace %s for city %d failed at %s: %v", e.Kind, e.CityID, e.Step, e.Err)
}

func (e *ReplaceError) Unwrap() error {
	return e.Err
}

// TableReplacer swaps the rows of one city in a destination table for the contents of a
// canonical CSV, going through the shared staging table temp_{kind}.
type TableReplacer struct {
	store     *Store
	batchSize int

	mu    sync.Mutex
	locks map[models.TableKind]*sync.Mutex
}

// NewTableReplacer replaces rows through store, staging DefaultBatchSize rows per INSERT.
func NewTableReplacer(store *Store) *TableReplacer {
	return &TableReplacer{
		store:     store,
		batchSize: DefaultBatchSize,
		locks:     make(map[models.TableKind]*sync.Mutex),
	}
}

// kindLock returns the mutex guarding the staging table of kind.
func (r *TableReplacer) kindLock(kind models.TableKind) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[kind]
	if !ok {
		l = &sync.Mutex{}
		r.locks[kind] = l
	}
	return l
}

// Replace stages csvPath, then deletes the city's rows and copies the staged rows in one
// transaction. Any failure leaves the previous generation of the city's rows in place.
func (r *TableReplacer) Replace(ctx context.Context, kind models.TableKind, cityID int64, csvPath string) error {
	lock := r.kindLock(kind)
	lock.Lock()
	defer lock.Unlock()

	conn, err := r.store.DB.Conn(ctx)
	if err != nil {
		return &ReplaceError{Step: StepStage, Kind: kind, CityID: cityID, Err: fmt.Errorf("failed to acquire connection: %w", err)}
	}
	defer conn.Close()
	defer r.dropStaging(context.WithoutCancel(ctx), conn, kind)

	staged, err := r.Stage(ctx, conn, kind, csvPath)
	if err != nil {
		return &ReplaceError{Step: StepStage, Kind: kind, CityID: cityID, Err: err}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &ReplaceError{Step: StepDelete, Kind: kind, CityID: cityID, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback()

	deleted, err := r.DeleteCity(ctx, tx, kind, cityID)
	if err != nil {
		return &ReplaceError{Step: StepDelete, Kind: kind, CityID: cityID, Err: err}
	}

	inserted, err := r.InsertCity(ctx, tx, kind, cityID)
	if err != nil {
		return &ReplaceError{Step: StepInsert, Kind: kind, CityID: cityID, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &ReplaceError{Step: StepCommit, Kind: kind, CityID: cityID, Err: err}
	}

	log.Info().
		Str("table", kind.String()).
		Int64("city_id", cityID).
		Int("staged", staged).
		Int64("deleted", deleted).
		Int64("inserted", inserted).
		Msg("Database: city rows replaced")
	return nil
}

// Stage drops and recreates temp_{kind}, then loads every record of the canonical CSV at
// csvPath into it. It returns the number of staged rows.
func (r *TableReplacer) Stage(ctx context.Context, db Execer, kind models.TableKind, csvPath string) (int, error) {
	schema := kind.Schema()
	staging := kind.StagingTable()

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", csvPath, err)
	}
	defer f.Close()

	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return 0, fmt.Errorf("failed to drop %s: %w", staging, err)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", staging, ColumnDefinitions(schema))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", staging, err)
	}

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("canonical CSV %s is empty", csvPath)
		}
		return 0, fmt.Errorf("failed to read header of %s: %w", csvPath, err)
	}

	staged := 0
	batch := r.newBatch(staging, schema)
	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		query, args, err := batch.ToSql()
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", staging, err)
		}
		staged += pending
		batch = r.newBatch(staging, schema)
		pending = 0
		return nil
	}

	for {
		rec := schema.NewRecord()
		if err := dec.Decode(rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return staged, fmt.Errorf("failed to decode %s line %d: %w", csvPath, staged+pending+2, err)
		}
		batch = batch.Values(rec.Values()...)
		pending++
		if pending >= r.batchSize {
			if err := flush(); err != nil {
				return staged, err
			}
		}
	}
	if err := flush(); err != nil {
		return staged, err
	}

	log.Debug().Str("table", staging).Int("rows", staged).Msg("Database: staging table loaded")
	return staged, nil
}

func (r *TableReplacer) newBatch(table string, schema models.Schema) sq.InsertBuilder {
	return r.store.Builder.Insert(table).Columns(schema.Columns...)
}

// DeleteCity removes every row of cityID from the destination table of kind.
func (r *TableReplacer) DeleteCity(ctx context.Context, db Execer, kind models.TableKind, cityID int64) (int64, error) {
	query, args, err := r.store.Builder.
		Delete(string(kind)).
		Where(sq.Eq{models.ColumnCityID: cityID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s rows for city %d: %w", kind, cityID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertCity copies the staged rows of cityID into the destination table of kind.
func (r *TableReplacer) InsertCity(ctx context.Context, db Execer, kind models.TableKind, cityID int64) (int64, error) {
	columns := kind.Schema().Columns
	// Inner select keeps '?' placeholders; the outer builder rewrites them for the driver.
	sel := sq.Select(columns...).
		From(kind.StagingTable()).
		Where(sq.Eq{models.ColumnCityID: cityID})

	query, args, err := r.store.Builder.
		Insert(string(kind)).
		Columns(columns...).
		Select(sel).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to copy staged %s rows for city %d: %w", kind, cityID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *TableReplacer) dropStaging(ctx context.Context, db Execer, kind models.TableKind) {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+kind.StagingTable()); err != nil {
		log.Warn().Err(err).Str("table", kind.StagingTable()).Msg("Database: failed to drop staging table")
	}
}

// ColumnDefinitions renders the column list of a CREATE TABLE for schema. Values are kept
// as published text; city_id is numeric.
func ColumnDefinitions(schema models.Schema) string {
	defs := make([]string, len(schema.Columns))
	for i, column := range schema.Columns {
		if column == models.ColumnCityID {
			defs[i] = column + " BIGINT"
			continue
		}
		defs[i] = column + " TEXT"
	}
	return strings.Join(defs, ", ")
}
