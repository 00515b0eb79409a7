// Package sqlclient queries the SQL backend behind the CLI under test directly,
// so tests can assert on what the CLI persisted.
//
// Rows are rendered one per line with columns separated by a tab. NULL renders
// as an empty string, matching the unaligned output of psql and sqlite3.
package sqlclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode selects how backend queries reach the database
type Mode string

const (
	// ModeDriver queries in-process through pgx or go-sqlite3
	ModeDriver Mode = "driver"
	// ModeShell runs the psql or sqlite3 executables
	ModeShell Mode = "shell"
)

// IsValid reports whether m is a recognized mode
func (m Mode) IsValid() bool {
	return m == ModeDriver || m == ModeShell
}

// Client runs a query and returns its rendered rows
type Client interface {
	Query(ctx context.Context, query string) (string, error)
	Close() error
}

const (
	columnSeparator = "\t"
	rowSeparator    = "\n"
)

func renderRows(rows [][]string) string {
	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, columnSeparator))
		sb.WriteString(rowSeparator)
	}
	return sb.String()
}

// renderValue formats a scanned database value the way the sqlite3 shell prints it
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(val)
	}
}
