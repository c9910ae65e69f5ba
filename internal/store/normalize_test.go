package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posdash/internal/domain"
)

func TestNormalizeReceiptFallsBackToReceiptNumber(t *testing.T) {
	r, err := NormalizeReceipt(domain.Receipt{
		ReceiptNumber: "1-1001",
		CreatedAt:     "2024-03-05T08:15:00Z",
		LineItems:     []domain.LineItem{{ItemName: "Ice"}, {LineItemID: "L-2"}},
		Payments:      []domain.Payment{{PaymentTypeID: "cash"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "1-1001", r.ReceiptID)
	assert.Equal(t, "2024-03-05T08:15:00.000Z", r.CreatedAt)
	assert.NotEmpty(t, r.LineItems[0].LineItemID)
	assert.Equal(t, "L-2", r.LineItems[1].LineItemID)
	assert.Equal(t, "1-1001", r.LineItems[0].ReceiptID)
	assert.Equal(t, "1-1001", r.Payments[0].ReceiptID)
}

func TestNormalizeReceiptDerivesStableLineIDs(t *testing.T) {
	in := domain.Receipt{ReceiptID: "R-1", LineItems: []domain.LineItem{{ItemName: "Ice"}}}

	first, err := NormalizeReceipt(in)
	require.NoError(t, err)
	second, err := NormalizeReceipt(in)
	require.NoError(t, err)

	assert.Equal(t, first.LineItems[0].LineItemID, second.LineItems[0].LineItemID)
	assert.Empty(t, in.LineItems[0].LineItemID, "input must not be mutated")
}

func TestNormalizeReceiptRejectsMissingKey(t *testing.T) {
	_, err := NormalizeReceipt(domain.Receipt{})
	assert.True(t, errors.Is(err, ErrInvalidRecord))
}

func TestNormalizeReceiptKeepsUnparseableTimestamp(t *testing.T) {
	r, err := NormalizeReceipt(domain.Receipt{ReceiptID: "R-1", CreatedAt: "yesterday"})
	require.NoError(t, err)
	assert.Equal(t, "yesterday", r.CreatedAt)
}

func TestInDateRangeIsInclusive(t *testing.T) {
	assert.True(t, InDateRange("2024-01-31T23:59:59.000Z", "2024-01-01", "2024-01-31"))
	assert.True(t, InDateRange("2024-01-01T00:00:00.000Z", "2024-01-01", "2024-01-31"))
	assert.False(t, InDateRange("2024-02-01T00:00:00.000Z", "2024-01-01", "2024-01-31"))
	assert.True(t, InDateRange("2024-02-01T00:00:00.000Z", "", ""))
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "C-7", CustomerDisplayName(domain.Customer{CustomerCode: "C-7"}))
	assert.Equal(t, UnnamedCustomer, CustomerDisplayName(domain.Customer{}))
	assert.Equal(t, UnnamedStore, StoreDisplayName(domain.Store{Name: "  "}))
	assert.Equal(t, "QR", PaymentTypeDisplayName(domain.PaymentType{Name: "QR"}))
}
