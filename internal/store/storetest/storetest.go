// Package storetest holds behaviour checks shared by every
// store.Repository implementation.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posdash/internal/domain"
	"posdash/internal/store"
)

type Factory func(t *testing.T) store.Repository

func Run(t *testing.T, newRepo Factory) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIsIdempotent(t, newRepo(t)) })
	t.Run("FailedBatchWritesNothing", func(t *testing.T) { testFailedBatchWritesNothing(t, newRepo(t)) })
	t.Run("ChildrenAreReplaced", func(t *testing.T) { testChildrenAreReplaced(t, newRepo(t)) })
	t.Run("ViewRowCount", func(t *testing.T) { testViewRowCount(t, newRepo(t)) })
	t.Run("ViewJoinsLocationAndPayments", func(t *testing.T) { testViewJoinsLocationAndPayments(t, newRepo(t)) })
	t.Run("DateFilterIsInclusive", func(t *testing.T) { testDateFilterIsInclusive(t, newRepo(t)) })
	t.Run("StoreFilter", func(t *testing.T) { testStoreFilter(t, newRepo(t)) })
	t.Run("DateRange", func(t *testing.T) { testDateRange(t, newRepo(t)) })
	t.Run("ReferenceNames", func(t *testing.T) { testReferenceNames(t, newRepo(t)) })
	t.Run("ManualCategories", func(t *testing.T) { testManualCategories(t, newRepo(t)) })
	t.Run("SyncMetadataAndStats", func(t *testing.T) { testSyncMetadataAndStats(t, newRepo(t)) })
	t.Run("ClearAllData", func(t *testing.T) { testClearAllData(t, newRepo(t)) })
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// Receipt builds a sale with one payment per payment type id and a line item
// per line id.
func Receipt(id string, createdAt string, lineIDs []string, paymentTypeIDs ...string) domain.Receipt {
	r := domain.Receipt{
		ReceiptID:     id,
		ReceiptNumber: "1-" + id,
		CreatedAt:     createdAt,
		StoreID:       "store-1",
		CustomerID:    "cust-1",
		EmployeeID:    "emp-1",
		TotalMoney:    money("1000"),
		TotalTax:      money("70"),
		TotalDiscount: money("100"),
		ReceiptType:   domain.ReceiptTypeSale,
		DiningOption:  "Take out",
		Raw:           json.RawMessage(`{"receipt_number":"1-` + id + `","extra":{"k":1}}`),
	}
	for _, lineID := range lineIDs {
		r.LineItems = append(r.LineItems, domain.LineItem{
			LineItemID: lineID,
			ItemID:     "item-" + lineID,
			ItemName:   "Item " + lineID,
			SKU:        "SKU-" + lineID,
			Quantity:   money("1"),
			Price:      money("500"),
			TotalMoney: money("500"),
		})
	}
	for _, pt := range paymentTypeIDs {
		r.Payments = append(r.Payments, domain.Payment{PaymentTypeID: pt, Name: pt, MoneyAmount: money("900")})
	}
	return r
}

func testUpsertIsIdempotent(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	r := Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A", "B"}, "cash")

	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{r})
	require.NoError(t, err)
	first, err := repo.Stats(ctx)
	require.NoError(t, err)

	_, err = repo.UpsertReceipts(ctx, []domain.Receipt{r})
	require.NoError(t, err)
	second, err := repo.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Receipts)
	assert.Equal(t, first.Receipts, second.Receipts)
	assert.Equal(t, first.LineItems, second.LineItems)
	assert.Equal(t, first.Payments, second.Payments)
	assert.Equal(t, 2, second.LineItems)
	assert.Equal(t, 1, second.Payments)
}

func testFailedBatchWritesNothing(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	good := Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A"}, "cash")
	bad := Receipt("", "2024-01-01T11:00:00Z", nil)
	bad.ReceiptNumber = ""

	n, err := repo.UpsertReceipts(ctx, []domain.Receipt{good, bad})

	require.ErrorIs(t, err, store.ErrInvalidRecord)
	assert.Zero(t, n)
	count, err := repo.ReceiptCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "the valid receipt before the failure is rolled back")
}

func testChildrenAreReplaced(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A", "B"}, "cash", "card")})
	require.NoError(t, err)
	_, err = repo.UpsertReceipts(ctx, []domain.Receipt{Receipt("R-1", "2024-01-01T10:00:00Z", []string{"C"}, "card")})
	require.NoError(t, err)

	rows, err := repo.ReceiptsView(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "C", rows[0].LineItemID)
	assert.Equal(t, "card", rows[0].PaymentTypeIDs)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LineItems)
	assert.Equal(t, 1, stats.Payments)
}

func testViewRowCount(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{
		Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A", "B", "C"}, "cash"),
		Receipt("R-2", "2024-01-01T11:00:00Z", []string{"D"}, "cash"),
		Receipt("R-3", "2024-01-01T12:00:00Z", nil),
	})
	require.NoError(t, err)

	rows, err := repo.ReceiptsView(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 5)

	last := rows[4]
	assert.Equal(t, "R-3", last.ReceiptID)
	assert.False(t, last.HasLineItem())
	assert.False(t, last.Quantity.Valid)
	assert.Empty(t, last.LocationName)
	assert.True(t, last.ReceiptTotal.Equal(money("1000")))

	for _, row := range rows[:3] {
		assert.Equal(t, "R-1", row.ReceiptID)
		assert.True(t, row.ReceiptDiscount.Equal(money("100")))
	}
}

func testViewJoinsLocationAndPayments(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.UpsertCategories(ctx, []domain.Category{{CategoryID: "cat-1", Name: "Warehouse A"}})
	require.NoError(t, err)
	_, err = repo.UpsertCatalogItems(ctx, []domain.CatalogItem{{ItemID: "item-A", CategoryID: "cat-1", Name: "Item A"}})
	require.NoError(t, err)

	_, err = repo.UpsertReceipts(ctx, []domain.Receipt{
		Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A", "B"}, "cash", "credit"),
	})
	require.NoError(t, err)

	rows, err := repo.ReceiptsView(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "A", rows[0].LineItemID)
	assert.Equal(t, "cat-1", rows[0].CategoryID)
	assert.Equal(t, "Warehouse A", rows[0].LocationName)
	assert.Equal(t, "cash+credit", rows[0].PaymentTypeIDs)
	assert.True(t, rows[0].Quantity.Valid)
	assert.True(t, rows[0].LineTotal.Decimal.Equal(money("500")))

	assert.Equal(t, "B", rows[1].LineItemID)
	assert.Equal(t, store.Uncategorized, rows[1].LocationName)
	assert.Equal(t, "1-R-1", rows[1].BillNumber)
	assert.Equal(t, "2024-01-01T10:00:00.000Z", rows[1].Date)
}

func testDateFilterIsInclusive(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{
		Receipt("R-1", "2024-01-30T08:00:00Z", []string{"A"}),
		Receipt("R-2", "2024-01-31T23:59:59Z", []string{"B"}),
		Receipt("R-3", "2024-02-01T00:00:00Z", []string{"C"}),
	})
	require.NoError(t, err)

	rows, err := repo.ReceiptsView(ctx, domain.ViewFilter{StartDate: "2024-01-31", EndDate: "2024-01-31"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "R-2", rows[0].ReceiptID)

	rows, err = repo.ReceiptsView(ctx, domain.ViewFilter{EndDate: "2024-01-31"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func testStoreFilter(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	other := Receipt("R-2", "2024-01-01T11:00:00Z", []string{"B"})
	other.StoreID = "store-2"
	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A"}), other})
	require.NoError(t, err)

	rows, err := repo.ReceiptsView(ctx, domain.ViewFilter{StoreID: "store-2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "R-2", rows[0].ReceiptID)
}

func testDateRange(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	bounds, err := repo.DateRange(ctx)
	require.NoError(t, err)
	assert.True(t, bounds.Empty())
	assert.Nil(t, bounds.Min)

	_, err = repo.UpsertReceipts(ctx, []domain.Receipt{
		Receipt("R-1", "2024-01-01T10:00:00Z", nil),
		Receipt("R-2", "2024-01-03T09:30:00+07:00", nil),
	})
	require.NoError(t, err)

	bounds, err = repo.DateRange(ctx)
	require.NoError(t, err)
	require.NotNil(t, bounds.Min)
	require.NotNil(t, bounds.Max)
	assert.Equal(t, "2024-01-01T10:00:00.000Z", *bounds.Min)
	assert.Equal(t, "2024-01-03T02:30:00.000Z", *bounds.Max)

	n, err := repo.ReceiptCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testReferenceNames(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.UpsertCustomers(ctx, []domain.Customer{
		{CustomerID: "c1", Name: "Somchai"},
		{CustomerID: "c2", CustomerCode: "VIP-2"},
		{CustomerID: "c3"},
	})
	require.NoError(t, err)
	_, err = repo.UpsertPaymentTypes(ctx, []domain.PaymentType{{ID: "p1", Name: "Cash"}, {ID: "p2"}})
	require.NoError(t, err)
	_, err = repo.UpsertStores(ctx, []domain.Store{{StoreID: "s1", Name: "Main"}})
	require.NoError(t, err)
	_, err = repo.UpsertEmployees(ctx, []domain.Employee{{EmployeeID: "e1"}})
	require.NoError(t, err)

	customers, err := repo.CustomerNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c1": "Somchai", "c2": "VIP-2", "c3": store.UnnamedCustomer}, customers)

	payments, err := repo.PaymentTypeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p1": "Cash", "p2": store.UnnamedPaymentType}, payments)

	stores, err := repo.StoreNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Main", stores["s1"])

	employees, err := repo.EmployeeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.UnnamedEmployee, employees["e1"])

	_, err = repo.UpsertCustomers(ctx, []domain.Customer{{CustomerID: "c1", Name: "Somchai J."}})
	require.NoError(t, err)
	customers, err = repo.CustomerNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Somchai J.", customers["c1"])
	assert.Len(t, customers, 3)
}

func testManualCategories(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.SaveManualCategories(ctx, []domain.ManualCategory{
		{ProductName: "Ice bag", Category: "Crushed"},
		{ItemID: "item-9", ProductName: "Tube", Category: "Small Tube"},
	}))
	first, err := repo.ListManualCategories(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.SaveManualCategories(ctx, []domain.ManualCategory{
		{ProductName: "Ice bag", Category: "Other"},
	}))
	second, err := repo.ListManualCategories(ctx)
	require.NoError(t, err)
	require.Len(t, second, 2)

	var ice domain.ManualCategory
	for _, mc := range second {
		if mc.ProductName == "Ice bag" {
			ice = mc
		}
	}
	assert.Equal(t, "Other", ice.Category)
	assert.True(t, ice.CreatedAt.Before(ice.UpdatedAt), "created_at must survive an update")

	err = repo.SaveManualCategories(ctx, []domain.ManualCategory{{Category: "x"}})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	require.NoError(t, repo.ClearManualCategories(ctx))
	empty, err := repo.ListManualCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testSyncMetadataAndStats(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.UpdateSyncMetadata(ctx, store.SyncKeyCustomers, "3 customers"))
	require.NoError(t, repo.UpdateSyncMetadata(ctx, store.SyncKeyCustomers, "4 customers"))
	require.NoError(t, repo.UpdateSyncMetadata(ctx, store.SyncKeyStores, "1 stores"))

	metas, err := repo.ListSyncMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, store.SyncKeyCustomers, metas[0].Key)
	assert.Equal(t, "4 customers", metas[0].Value)
	assert.False(t, metas[0].LastUpdated.IsZero())

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats.LastSyncs, 2)
	assert.NotEmpty(t, stats.Backend)
}

func testClearAllData(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{Receipt("R-1", "2024-01-01T10:00:00Z", []string{"A"}, "cash")})
	require.NoError(t, err)
	_, err = repo.UpsertCustomers(ctx, []domain.Customer{{CustomerID: "c1", Name: "A"}})
	require.NoError(t, err)
	_, err = repo.UpsertStores(ctx, []domain.Store{{StoreID: "s1", Name: "Main"}})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateSyncMetadata(ctx, store.SyncKeyReceipts, "1 receipts"))

	require.NoError(t, repo.ClearAllData(ctx))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Receipts)
	assert.Zero(t, stats.LineItems)
	assert.Zero(t, stats.Payments)
	assert.Zero(t, stats.Customers)
	assert.Equal(t, 1, stats.Stores)
	assert.Empty(t, stats.LastSyncs)
}
