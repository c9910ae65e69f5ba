package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posdash/internal/domain"
	"posdash/internal/store"
)

// Store implements store.Repository on database/sql. The sqlite and
// postgres packages own connection setup and schema; everything else lives
// here.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs schema statements in order inside one transaction.
func (s *Store) Migrate(ctx context.Context, statements []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...)
	return err
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

var receiptColumns = []string{
	"receipt_id", "receipt_number", "receipt_date", "created_at", "updated_at",
	"store_id", "customer_id", "employee_id", "total_money", "total_tax", "total_discount",
	"receipt_type", "source", "dining_option", "location", "raw_data", "last_updated",
}

// UpsertReceipts writes the batch in one transaction. On error nothing is
// committed and the count is zero.
func (s *Store) UpsertReceipts(ctx context.Context, receipts []domain.Receipt) (int, error) {
	if len(receipts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	upsert := upsertSQL("receipts", "receipt_id", receiptColumns)
	stamp := s.stamp()
	written := 0
	for _, raw := range receipts {
		r, err := store.NormalizeReceipt(raw)
		if err != nil {
			return 0, err
		}

		if err := s.exec(ctx, tx, upsert,
			r.ReceiptID, nullIfEmpty(r.ReceiptNumber), nullIfEmpty(r.ReceiptDate), nullIfEmpty(r.CreatedAt), nullIfEmpty(r.UpdatedAt),
			nullIfEmpty(r.StoreID), nullIfEmpty(r.CustomerID), nullIfEmpty(r.EmployeeID),
			r.TotalMoney.String(), r.TotalTax.String(), r.TotalDiscount.String(),
			nullIfEmpty(r.ReceiptType), nullIfEmpty(r.Source), nullIfEmpty(r.DiningOption), nullIfEmpty(r.DiningOption),
			nullRaw(r.Raw), stamp,
		); err != nil {
			return 0, fmt.Errorf("upsert receipt %s: %w", r.ReceiptID, err)
		}

		if err := s.exec(ctx, tx, `DELETE FROM line_items WHERE receipt_id = ?`, r.ReceiptID); err != nil {
			return 0, err
		}
		if err := s.exec(ctx, tx, `DELETE FROM payments WHERE receipt_id = ?`, r.ReceiptID); err != nil {
			return 0, err
		}

		for _, li := range r.LineItems {
			if err := s.exec(ctx, tx, `
				INSERT INTO line_items (line_item_id, receipt_id, item_id, variant_id, item_name, sku, quantity, price, total_money, cost)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (line_item_id) DO UPDATE SET
					receipt_id = excluded.receipt_id, item_id = excluded.item_id, variant_id = excluded.variant_id,
					item_name = excluded.item_name, sku = excluded.sku, quantity = excluded.quantity,
					price = excluded.price, total_money = excluded.total_money, cost = excluded.cost
			`, li.LineItemID, li.ReceiptID, nullIfEmpty(li.ItemID), nullIfEmpty(li.VariantID), nullIfEmpty(li.ItemName),
				nullIfEmpty(li.SKU), li.Quantity.String(), li.Price.String(), li.TotalMoney.String(), li.Cost.String(),
			); err != nil {
				return 0, fmt.Errorf("insert line item %s: %w", li.LineItemID, err)
			}
		}

		for _, p := range r.Payments {
			if err := s.exec(ctx, tx, `
				INSERT INTO payments (receipt_id, payment_type_id, payment_name, payment_type, money_amount, paid_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, p.ReceiptID, nullIfEmpty(p.PaymentTypeID), nullIfEmpty(p.Name), nullIfEmpty(p.Type),
				p.MoneyAmount.String(), nullIfEmpty(p.PaidAt),
			); err != nil {
				return 0, fmt.Errorf("insert payment for %s: %w", p.ReceiptID, err)
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return 0, nil
}

// upsertRows runs one upsert statement per row inside a single transaction.
func (s *Store) upsertRows(ctx context.Context, query string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(query))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) UpsertCustomers(ctx context.Context, customers []domain.Customer) (int, error) {
	query := upsertSQL("customers", "customer_id", []string{
		"customer_id", "name", "customer_code", "email", "phone", "total_visits", "total_spent",
		"first_visit", "last_visit", "raw_data", "last_updated",
	})
	stamp := s.stamp()
	rows := make([][]any, 0, len(customers))
	for _, c := range customers {
		if strings.TrimSpace(c.CustomerID) == "" {
			continue
		}
		rows = append(rows, []any{
			c.CustomerID, nullIfEmpty(c.Name), nullIfEmpty(c.CustomerCode), nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
			c.TotalVisits, c.TotalSpent.String(), nullIfEmpty(c.FirstVisit), nullIfEmpty(c.LastVisit), nullRaw(c.Raw), stamp,
		})
	}
	return s.upsertRows(ctx, query, rows)
}

func (s *Store) UpsertStores(ctx context.Context, stores []domain.Store) (int, error) {
	query := upsertSQL("stores", "store_id", []string{
		"store_id", "name", "address_line1", "address_line2", "city", "country", "phone", "raw_data", "last_updated",
	})
	stamp := s.stamp()
	rows := make([][]any, 0, len(stores))
	for _, st := range stores {
		if strings.TrimSpace(st.StoreID) == "" {
			continue
		}
		rows = append(rows, []any{
			st.StoreID, nullIfEmpty(st.Name), nullIfEmpty(st.AddressLine1), nullIfEmpty(st.AddressLine2),
			nullIfEmpty(st.City), nullIfEmpty(st.Country), nullIfEmpty(st.Phone), nullRaw(st.Raw), stamp,
		})
	}
	return s.upsertRows(ctx, query, rows)
}

func (s *Store) UpsertEmployees(ctx context.Context, employees []domain.Employee) (int, error) {
	query := upsertSQL("employees", "employee_id", []string{
		"employee_id", "name", "email", "phone", "raw_data", "last_updated",
	})
	stamp := s.stamp()
	rows := make([][]any, 0, len(employees))
	for _, e := range employees {
		if strings.TrimSpace(e.EmployeeID) == "" {
			continue
		}
		rows = append(rows, []any{e.EmployeeID, nullIfEmpty(e.Name), nullIfEmpty(e.Email), nullIfEmpty(e.Phone), nullRaw(e.Raw), stamp})
	}
	return s.upsertRows(ctx, query, rows)
}

func (s *Store) UpsertCategories(ctx context.Context, categories []domain.Category) (int, error) {
	query := upsertSQL("categories", "category_id", []string{"category_id", "name", "color", "last_updated"})
	stamp := s.stamp()
	rows := make([][]any, 0, len(categories))
	for _, c := range categories {
		if strings.TrimSpace(c.CategoryID) == "" {
			continue
		}
		rows = append(rows, []any{c.CategoryID, nullIfEmpty(c.Name), nullIfEmpty(c.Color), stamp})
	}
	return s.upsertRows(ctx, query, rows)
}

func (s *Store) UpsertPaymentTypes(ctx context.Context, paymentTypes []domain.PaymentType) (int, error) {
	query := upsertSQL("payment_types", "id", []string{"id", "name", "type", "last_updated"})
	stamp := s.stamp()
	rows := make([][]any, 0, len(paymentTypes))
	for _, p := range paymentTypes {
		if strings.TrimSpace(p.ID) == "" {
			continue
		}
		rows = append(rows, []any{p.ID, nullIfEmpty(p.Name), nullIfEmpty(p.Type), stamp})
	}
	return s.upsertRows(ctx, query, rows)
}

func (s *Store) UpsertCatalogItems(ctx context.Context, items []domain.CatalogItem) (int, error) {
	query := upsertSQL("items", "item_id", []string{
		"item_id", "variant_id", "name", "sku", "category_id", "price", "cost", "last_updated",
	})
	stamp := s.stamp()
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ItemID) == "" {
			continue
		}
		rows = append(rows, []any{
			it.ItemID, nullIfEmpty(it.VariantID), nullIfEmpty(it.Name), nullIfEmpty(it.SKU),
			nullIfEmpty(it.CategoryID), it.Price.String(), it.Cost.String(), stamp,
		})
	}
	return s.upsertRows(ctx, query, rows)
}

func (s *Store) ReceiptsView(ctx context.Context, filter domain.ViewFilter) ([]domain.ViewRow, error) {
	var (
		where []string
		args  []any
	)
	if filter.StartDate != "" {
		where = append(where, "substr(r.created_at, 1, 10) >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where = append(where, "substr(r.created_at, 1, 10) <= ?")
		args = append(args, filter.EndDate)
	}
	if filter.StoreID != "" {
		where = append(where, "r.store_id = ?")
		args = append(args, filter.StoreID)
	}

	query := `
		SELECT
			COALESCE(r.created_at, ''), r.receipt_id, COALESCE(r.store_id, ''), COALESCE(r.customer_id, ''),
			COALESCE(r.receipt_number, ''), COALESCE(r.dining_option, ''), COALESCE(r.employee_id, ''),
			COALESCE(r.receipt_type, ''),
			li.line_item_id, li.item_id, li.sku, li.item_name, li.quantity, li.price, li.total_money,
			r.total_money, r.total_discount, r.total_tax,
			i.category_id, c.name,
			COALESCE(p.payment_type_ids, '')
		FROM receipts r
		LEFT JOIN line_items li ON li.receipt_id = r.receipt_id
		LEFT JOIN items i ON i.item_id = li.item_id
		LEFT JOIN categories c ON c.category_id = i.category_id
		LEFT JOIN (
			SELECT receipt_id, ` + s.dialect.GroupConcat + `(COALESCE(payment_type_id, ''), '+' ORDER BY id) AS payment_type_ids
			FROM payments
			GROUP BY receipt_id
		) p ON p.receipt_id = r.receipt_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY r.created_at, r.receipt_id, li.line_item_id"

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ViewRow, 0, 256)
	for rows.Next() {
		var (
			row                           domain.ViewRow
			lineID, itemID, sku, itemName sql.NullString
			categoryID, categoryName      sql.NullString
			total, discount, tax          decimal.NullDecimal
		)
		if err := rows.Scan(
			&row.Date, &row.ReceiptID, &row.StoreID, &row.CustomerID,
			&row.BillNumber, &row.DiningOption, &row.EmployeeID, &row.ReceiptType,
			&lineID, &itemID, &sku, &itemName, &row.Quantity, &row.Price, &row.LineTotal,
			&total, &discount, &tax,
			&categoryID, &categoryName,
			&row.PaymentTypeIDs,
		); err != nil {
			return nil, err
		}
		row.LineItemID = lineID.String
		row.ItemID = itemID.String
		row.SKU = sku.String
		row.ItemName = itemName.String
		row.ReceiptTotal = total.Decimal
		row.ReceiptDiscount = discount.Decimal
		row.ReceiptTax = tax.Decimal
		row.CategoryID = categoryID.String
		if row.HasLineItem() {
			row.LocationName = categoryName.String
			if !categoryName.Valid || strings.TrimSpace(categoryName.String) == "" {
				row.LocationName = store.Uncategorized
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DateRange(ctx context.Context) (domain.DateBounds, error) {
	var minAt, maxAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(created_at), MAX(created_at)
		FROM receipts
		WHERE created_at IS NOT NULL
	`).Scan(&minAt, &maxAt)
	if err != nil {
		return domain.DateBounds{}, err
	}
	var bounds domain.DateBounds
	if minAt.Valid {
		bounds.Min = &minAt.String
	}
	if maxAt.Valid {
		bounds.Max = &maxAt.String
	}
	return bounds, nil
}

func (s *Store) ReceiptCount(ctx context.Context) (int, error) {
	return s.count(ctx, "receipts")
}

// countedTables is also the allow-list for count().
var countedTables = []string{
	"customers", "receipts", "line_items", "payments", "payment_types",
	"stores", "employees", "categories", "items", "manual_product_categories",
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	if !contains(countedTables, table) {
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats := domain.StoreStats{Backend: s.dialect.Name}
	targets := map[string]*int{
		"customers":                 &stats.Customers,
		"receipts":                  &stats.Receipts,
		"line_items":                &stats.LineItems,
		"payments":                  &stats.Payments,
		"payment_types":             &stats.PaymentTypes,
		"stores":                    &stats.Stores,
		"employees":                 &stats.Employees,
		"categories":                &stats.Categories,
		"items":                     &stats.Items,
		"manual_product_categories": &stats.ManualCategories,
	}
	for _, table := range countedTables {
		n, err := s.count(ctx, table)
		if err != nil {
			return domain.StoreStats{}, err
		}
		*targets[table] = n
	}

	bounds, err := s.DateRange(ctx)
	if err != nil {
		return domain.StoreStats{}, err
	}
	stats.DateRange = bounds

	syncs, err := s.ListSyncMetadata(ctx)
	if err != nil {
		return domain.StoreStats{}, err
	}
	stats.LastSyncs = syncs
	return stats, nil
}

func (s *Store) UpdateSyncMetadata(ctx context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(upsertSQL("sync_metadata", "key",
		[]string{"key", "value", "last_updated"})), key, value, s.stamp())
	return err
}

func (s *Store) ListSyncMetadata(ctx context.Context) ([]domain.SyncMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, COALESCE(value, ''), last_updated FROM sync_metadata ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SyncMetadata, 0, 8)
	for rows.Next() {
		var (
			m       domain.SyncMetadata
			updated string
		)
		if err := rows.Scan(&m.Key, &m.Value, &updated); err != nil {
			return nil, err
		}
		m.LastUpdated, _ = time.Parse(time.RFC3339Nano, updated)
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) nameMap(ctx context.Context, query string, display func(id, name, extra string) string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]string, 64)
	for rows.Next() {
		var id, name, extra sql.NullString
		if err := rows.Scan(&id, &name, &extra); err != nil {
			return nil, err
		}
		if !id.Valid || id.String == "" {
			continue
		}
		names[id.String] = display(id.String, name.String, extra.String)
	}
	return names, rows.Err()
}

func (s *Store) CustomerNames(ctx context.Context) (map[string]string, error) {
	return s.nameMap(ctx, `SELECT customer_id, name, customer_code FROM customers`, func(_, name, code string) string {
		return store.CustomerDisplayName(domain.Customer{Name: name, CustomerCode: code})
	})
}

func (s *Store) PaymentTypeNames(ctx context.Context) (map[string]string, error) {
	return s.nameMap(ctx, `SELECT id, name, type FROM payment_types`, func(_, name, _ string) string {
		return store.PaymentTypeDisplayName(domain.PaymentType{Name: name})
	})
}

func (s *Store) StoreNames(ctx context.Context) (map[string]string, error) {
	return s.nameMap(ctx, `SELECT store_id, name, city FROM stores`, func(_, name, _ string) string {
		return store.StoreDisplayName(domain.Store{Name: name})
	})
}

func (s *Store) EmployeeNames(ctx context.Context) (map[string]string, error) {
	return s.nameMap(ctx, `SELECT employee_id, name, email FROM employees`, func(_, name, _ string) string {
		return store.EmployeeDisplayName(domain.Employee{Name: name})
	})
}

func (s *Store) SaveManualCategories(ctx context.Context, overrides []domain.ManualCategory) error {
	query := upsertSQL("manual_product_categories", "override_key",
		[]string{"override_key", "item_id", "product_name", "category", "created_at", "updated_at"}, "created_at")
	stamp := s.stamp()
	rows := make([][]any, 0, len(overrides))
	for _, mc := range overrides {
		if strings.TrimSpace(mc.Category) == "" || (strings.TrimSpace(mc.ItemID) == "" && strings.TrimSpace(mc.ProductName) == "") {
			return store.ErrInvalidRecord
		}
		rows = append(rows, []any{
			store.ManualCategoryKey(mc), nullIfEmpty(strings.TrimSpace(mc.ItemID)), strings.TrimSpace(mc.ProductName),
			strings.TrimSpace(mc.Category), stamp, stamp,
		})
	}
	_, err := s.upsertRows(ctx, query, rows)
	return err
}

func (s *Store) ListManualCategories(ctx context.Context) ([]domain.ManualCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(item_id, ''), COALESCE(product_name, ''), category, created_at, updated_at
		FROM manual_product_categories
		ORDER BY product_name, item_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ManualCategory, 0, 32)
	for rows.Next() {
		var (
			mc               domain.ManualCategory
			created, updated string
		)
		if err := rows.Scan(&mc.ItemID, &mc.ProductName, &mc.Category, &created, &updated); err != nil {
			return nil, err
		}
		mc.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		mc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		result = append(result, mc)
	}
	return result, rows.Err()
}

func (s *Store) ClearManualCategories(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM manual_product_categories`)
	return err
}

// ClearAllData drops synced transactional data and sync history. Catalog
// and reference tables other than customers are kept.
func (s *Store) ClearAllData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"customers", "line_items", "payments", "receipts", "sync_metadata"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
