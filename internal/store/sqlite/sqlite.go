package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"posdash/internal/store/sqlstore"
)

const MemoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		name TEXT,
		customer_code TEXT,
		email TEXT,
		phone TEXT,
		total_visits INTEGER NOT NULL DEFAULT 0,
		total_spent TEXT NOT NULL DEFAULT '0',
		first_visit TEXT,
		last_visit TEXT,
		raw_data TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS receipts (
		receipt_id TEXT PRIMARY KEY,
		receipt_number TEXT,
		receipt_date TEXT,
		created_at TEXT,
		updated_at TEXT,
		store_id TEXT,
		customer_id TEXT,
		employee_id TEXT,
		total_money TEXT NOT NULL DEFAULT '0',
		total_tax TEXT NOT NULL DEFAULT '0',
		total_discount TEXT NOT NULL DEFAULT '0',
		receipt_type TEXT,
		source TEXT,
		dining_option TEXT,
		location TEXT,
		raw_data TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS line_items (
		line_item_id TEXT PRIMARY KEY,
		receipt_id TEXT NOT NULL,
		item_id TEXT,
		variant_id TEXT,
		item_name TEXT,
		sku TEXT,
		quantity TEXT NOT NULL DEFAULT '0',
		price TEXT NOT NULL DEFAULT '0',
		total_money TEXT NOT NULL DEFAULT '0',
		cost TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		receipt_id TEXT NOT NULL,
		payment_type_id TEXT,
		payment_name TEXT,
		payment_type TEXT,
		money_amount TEXT NOT NULL DEFAULT '0',
		paid_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sync_metadata (
		key TEXT PRIMARY KEY,
		value TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payment_types (
		id TEXT PRIMARY KEY,
		name TEXT,
		type TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stores (
		store_id TEXT PRIMARY KEY,
		name TEXT,
		address_line1 TEXT,
		address_line2 TEXT,
		city TEXT,
		country TEXT,
		phone TEXT,
		raw_data TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		employee_id TEXT PRIMARY KEY,
		name TEXT,
		email TEXT,
		phone TEXT,
		raw_data TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		category_id TEXT PRIMARY KEY,
		name TEXT,
		color TEXT,
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		item_id TEXT PRIMARY KEY,
		variant_id TEXT,
		name TEXT,
		sku TEXT,
		category_id TEXT,
		price TEXT NOT NULL DEFAULT '0',
		cost TEXT NOT NULL DEFAULT '0',
		last_updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS manual_product_categories (
		override_key TEXT PRIMARY KEY,
		item_id TEXT,
		product_name TEXT,
		category TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_date ON receipts(receipt_date)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_store ON receipts(store_id)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_type ON receipts(receipt_type)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_created ON receipts(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_line_items_receipt ON line_items(receipt_id)`,
	`CREATE INDEX IF NOT EXISTS idx_line_items_item ON line_items(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_receipt ON payments(receipt_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_category ON items(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_manual_categories_item ON manual_product_categories(item_id)`,
}

type Store struct {
	*sqlstore.Store
	path string
}

// Open opens (creating if needed) the SQLite file at path and applies the
// schema. Pass MemoryPath for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}

	// One writer at a time; also keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s := &Store{Store: sqlstore.New(db, sqlstore.SQLite), path: path}
	if err := s.Migrate(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func dsn(path string) string {
	if path == MemoryPath {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
