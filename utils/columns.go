// utils/columns.go
package utils

import "strings"

const byteOrderMark = "\ufeff"

// NormalizeColumnName converts a raw GTFS header cell (e.g., "\ufeff Route_ID ") to the
// canonical column spelling ("route_id"). Feeds exported from spreadsheets often carry a
// BOM on the first cell and stray spaces around names.
func NormalizeColumnName(name string) string {
	name = strings.TrimPrefix(name, byteOrderMark)
	return strings.ToLower(strings.TrimSpace(name))
}
