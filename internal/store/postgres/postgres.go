package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"posdash/internal/store/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		name TEXT,
		customer_code TEXT,
		email TEXT,
		phone TEXT,
		total_visits INTEGER NOT NULL DEFAULT 0,
		total_spent NUMERIC NOT NULL DEFAULT 0,
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
		total_money NUMERIC NOT NULL DEFAULT 0,
		total_tax NUMERIC NOT NULL DEFAULT 0,
		total_discount NUMERIC NOT NULL DEFAULT 0,
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
		quantity NUMERIC NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL DEFAULT 0,
		total_money NUMERIC NOT NULL DEFAULT 0,
		cost NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		receipt_id TEXT NOT NULL,
		payment_type_id TEXT,
		payment_name TEXT,
		payment_type TEXT,
		money_amount NUMERIC NOT NULL DEFAULT 0,
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
		price NUMERIC NOT NULL DEFAULT 0,
		cost NUMERIC NOT NULL DEFAULT 0,
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
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{Store: sqlstore.New(db, sqlstore.Postgres)}
	if err := s.Migrate(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
