package store

import (
	"context"
	"errors"

	"posdash/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Sync metadata keys written after each sync.
const (
	SyncKeyReceipts     = "receipts"
	SyncKeyCustomers    = "customers"
	SyncKeyPaymentTypes = "payment_types"
	SyncKeyStores       = "stores"
	SyncKeyEmployees    = "employees"
	SyncKeyCategories   = "categories"
	SyncKeyItems        = "items"
)

type Repository interface {
	ReceiptWriter
	ReferenceWriter
	ReferenceReader

	ReceiptsView(ctx context.Context, filter domain.ViewFilter) ([]domain.ViewRow, error)
	DateRange(ctx context.Context) (domain.DateBounds, error)
	ReceiptCount(ctx context.Context) (int, error)
	Stats(ctx context.Context) (domain.StoreStats, error)

	UpdateSyncMetadata(ctx context.Context, key string, value string) error
	ListSyncMetadata(ctx context.Context) ([]domain.SyncMetadata, error)

	SaveManualCategories(ctx context.Context, overrides []domain.ManualCategory) error
	ListManualCategories(ctx context.Context) ([]domain.ManualCategory, error)
	ClearManualCategories(ctx context.Context) error

	ClearAllData(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// ReceiptWriter replaces receipts wholesale, children included. Each call is
// one transaction.
type ReceiptWriter interface {
	UpsertReceipts(ctx context.Context, receipts []domain.Receipt) (int, error)
}

type ReferenceWriter interface {
	UpsertCustomers(ctx context.Context, customers []domain.Customer) (int, error)
	UpsertStores(ctx context.Context, stores []domain.Store) (int, error)
	UpsertEmployees(ctx context.Context, employees []domain.Employee) (int, error)
	UpsertCategories(ctx context.Context, categories []domain.Category) (int, error)
	UpsertPaymentTypes(ctx context.Context, paymentTypes []domain.PaymentType) (int, error)
	UpsertCatalogItems(ctx context.Context, items []domain.CatalogItem) (int, error)
}

// ReferenceReader yields id to display-name maps for the reference cache.
type ReferenceReader interface {
	CustomerNames(ctx context.Context) (map[string]string, error)
	PaymentTypeNames(ctx context.Context) (map[string]string, error)
	StoreNames(ctx context.Context) (map[string]string, error)
	EmployeeNames(ctx context.Context) (map[string]string, error)
}
