package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"posdash/internal/domain"
)

func sampleReport() Report {
	row := domain.NetRow{
		EnrichedRow: domain.EnrichedRow{
			ViewRow: domain.ViewRow{
				Date:            "2024-01-01T10:00:00.000Z",
				ReceiptID:       "R-1",
				BillNumber:      "1-1001",
				ReceiptType:     "SALE",
				ItemName:        "Crushed ice",
				LineItemID:      "L-1",
				Quantity:        decimal.NewNullDecimal(decimal.NewFromInt(2)),
				ReceiptTotal:    decimal.NewFromInt(1000),
				ReceiptDiscount: decimal.NewFromInt(100),
				LocationName:    "Cold room",
			},
			CustomerName: "Somchai",
		},
		SignedNet: decimal.NewFromInt(900),
	}
	noLine := row
	noLine.ReceiptID = "R-2"
	noLine.LineItemID = ""
	noLine.ItemName = ""
	noLine.Quantity = decimal.NullDecimal{}

	return Report{
		GeneratedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Filter:      domain.ViewFilter{StartDate: "2024-01-01", EndDate: "2024-01-01"},
		Summary: domain.SalesSummary{
			TotalSales:        decimal.NewFromInt(1800),
			Receipts:          2,
			DaysInPeriod:      4,
			ItemsPerDay:       decimal.RequireFromString("2.5"),
			UnrecognizedTypes: []string{"exchange"},
		},
		Daily:     []domain.DailyPoint{{Date: "2024-01-01", SignedNet: decimal.NewFromInt(1800), Receipts: 2, MovingAvg7: decimal.NewFromInt(1800)}},
		Locations: []domain.NetSalesBucket{{Key: "Cold room", SignedNet: decimal.NewFromInt(1800), Receipts: 2}},
		Rows:      []domain.NetRow{row, noLine},
	}
}

func TestWriteProducesReadableWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetDaily, SheetLocations, SheetReceipts}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Contains(t, summary, []string{"Total Sales", "1800"})
	assert.Contains(t, summary, []string{"Days In Period", "4"})
	assert.Contains(t, summary, []string{"Items Per Day", "2.5"})
	assert.Contains(t, summary, []string{"Unrecognized Receipt Type", "exchange"})

	receipts, err := f.GetRows(SheetReceipts)
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	assert.Equal(t, receiptHeaders, receipts[0])
	assert.Equal(t, "R-1", receipts[1][1])
	assert.Equal(t, "Crushed ice", receipts[1][11])
	assert.Equal(t, "2", receipts[1][12])
	assert.Equal(t, "900", receipts[1][18])
	assert.Equal(t, "Cold room", receipts[1][19])
	assert.Equal(t, "", receipts[2][12], "no line item leaves quantity blank")

	daily, err := f.GetRows(SheetDaily)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "1800", "2", "1800"}, daily[1])
}

func TestWorkbookWithNoRows(t *testing.T) {
	f, err := Workbook(Report{})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetReceipts)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
