// models/table.go
package models

import (
	"fmt"

	"github.com/jszwec/csvutil"
)

// TableKind names one of the GTFS tables that is loaded per city.
type TableKind string

const (
	Routes    TableKind = "routes"
	Trips     TableKind = "trips"
	Stops     TableKind = "stops"
	StopTimes TableKind = "stop_times"
)

// Provenance columns carried by every canonical record.
const (
	ColumnCityID = "city_id"
	ColumnDate   = "date"
)

// TableKinds lists every table kind in refresh order.
var TableKinds = []TableKind{Routes, Trips, Stops, StopTimes}

// Record is a canonical row. Values and Fields both follow the schema column order.
type Record interface {
	Values() []any
	Fields() []any
}

// Schema is the ordered canonical column set of a table kind.
type Schema struct {
	Kind    TableKind
	Columns []string

	newRecord func() Record
}

// NewRecord returns an empty record of the schema's kind, ready for decoding or scanning.
func (s Schema) NewRecord() Record {
	return s.newRecord()
}

var schemas = map[TableKind]Schema{
	Routes:    newSchema[Route, *Route](Routes),
	Trips:     newSchema[Trip, *Trip](Trips),
	Stops:     newSchema[Stop, *Stop](Stops),
	StopTimes: newSchema[StopTime, *StopTime](StopTimes),
}

// The column list comes from the csv tags of the record type, in field order.
func newSchema[T any, P interface {
	*T
	Record
}](kind TableKind) Schema {
	var zero T
	columns, err := csvutil.Header(zero, "csv")
	if err != nil {
		panic(fmt.Sprintf("models: cannot derive %s schema: %v", kind, err))
	}
	return Schema{
		Kind:    kind,
		Columns: columns,
		newRecord: func() Record {
			return P(new(T))
		},
	}
}

// Schema returns the canonical schema for k. It panics for kinds outside TableKinds.
func (k TableKind) Schema() Schema {
	s, ok := schemas[k]
	if !ok {
		panic(fmt.Sprintf("models: unknown table kind %q", string(k)))
	}
	return s
}

// StagingTable is the name of the shared staging table for k.
func (k TableKind) StagingTable() string {
	return "temp_" + string(k)
}

func (k TableKind) String() string {
	return string(k)
}

// ParseTableKind validates a table name given on the command line (refresh --table).
func ParseTableKind(name string) (TableKind, error) {
	kind := TableKind(name)
	if _, ok := schemas[kind]; !ok {
		return "", fmt.Errorf("unknown table kind %q", name)
	}
	return kind, nil
}
