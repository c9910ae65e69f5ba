package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the few places where SQLite and Postgres SQL differ.
type Dialect struct {
	Name string
	// NumberedPlaceholders rewrites ? to $1, $2, ...
	NumberedPlaceholders bool
	// GroupConcat is the ordered string aggregate, GROUP_CONCAT or string_agg.
	GroupConcat string
}

var (
	SQLite   = Dialect{Name: "sqlite", GroupConcat: "GROUP_CONCAT"}
	Postgres = Dialect{Name: "postgres", NumberedPlaceholders: true, GroupConcat: "string_agg"}
)

func (d Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// upsertSQL builds INSERT ... ON CONFLICT (key) DO UPDATE for every non-key
// column except those listed in keep.
func upsertSQL(table string, key string, columns []string, keep ...string) string {
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, col := range columns {
		placeholders[i] = "?"
		if col == key || contains(keep, col) {
			continue
		}
		updates = append(updates, col+" = excluded."+col)
	}
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON CONFLICT (" + key + ") DO UPDATE SET " +
		strings.Join(updates, ", ")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
