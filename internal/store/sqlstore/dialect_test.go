package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebindNumbersPlaceholdersForPostgres(t *testing.T) {
	q := "SELECT * FROM receipts WHERE store_id = ? AND receipt_type = ?"

	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM receipts WHERE store_id = $1 AND receipt_type = $2", Postgres.Rebind(q))
}

func TestUpsertSQLSkipsKeyAndKeptColumns(t *testing.T) {
	got := upsertSQL("manual_product_categories", "override_key",
		[]string{"override_key", "category", "created_at", "updated_at"}, "created_at")

	assert.Equal(t,
		"INSERT INTO manual_product_categories (override_key, category, created_at, updated_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (override_key) DO UPDATE SET category = excluded.category, updated_at = excluded.updated_at",
		got)
}
