// Package export renders reconciled sales into an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"posdash/internal/domain"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SheetSummary   = "Summary"
	SheetDaily     = "Daily"
	SheetLocations = "Locations"
	SheetReceipts  = "Receipts"
)

type Report struct {
	GeneratedAt time.Time
	Filter      domain.ViewFilter
	Summary     domain.SalesSummary
	Daily       []domain.DailyPoint
	Locations   []domain.NetSalesBucket
	Rows        []domain.NetRow
}

var receiptHeaders = []string{
	"Date", "Receipt ID", "Bill Number", "Receipt Type", "Store", "Customer", "Employee",
	"Payment", "Dining Option", "Item ID", "SKU", "Item", "Quantity", "Price", "Line Total",
	"Receipt Total", "Discount", "Tax", "Signed Net", "Location",
}

// Workbook builds the four report sheets. The caller closes the file.
func Workbook(r Report) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: header style: %w", err)
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]any
	}{
		{SheetSummary, []string{"Metric", "Value"}, summaryRows(r)},
		{SheetDaily, []string{"Date", "Signed Net", "Receipts", "7-day Average"}, dailyRows(r.Daily)},
		{SheetLocations, []string{"Location", "Signed Net", "Receipts", "Quantity"}, bucketRows(r.Locations)},
		{SheetReceipts, receiptHeaders, receiptRows(r.Rows)},
	}
	for i, sheet := range sheets {
		if err := writeSheet(f, sheet.name, sheet.headers, sheet.rows, headerStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
		if i == 0 {
			if idx, err := f.GetSheetIndex(sheet.name); err == nil {
				f.SetActiveSheet(idx)
			}
		}
	}
	if f.GetSheetName(0) != SheetSummary {
		f.DeleteSheet("Sheet1")
	}
	return f, nil
}

// Write streams the workbook for r to w.
func Write(w io.Writer, r Report) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, headers []string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("export: create sheet %s: %w", name, err)
	}
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("export: %s header: %w", name, err)
	}
	if err := f.SetRowStyle(name, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("export: %s header style: %w", name, err)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &rows[i]); err != nil {
			return fmt.Errorf("export: %s row %d: %w", name, i+2, err)
		}
	}
	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return f.SetColWidth(name, "A", last, 16)
}

func summaryRows(r Report) [][]any {
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	rows := [][]any{
		{"Generated At", generated.UTC().Format(time.RFC3339)},
		{"Start Date", r.Filter.StartDate},
		{"End Date", r.Filter.EndDate},
		{"Store", r.Filter.StoreID},
		{"Total Sales", num(r.Summary.TotalSales)},
		{"Total Items", num(r.Summary.TotalItems)},
		{"Receipts", r.Summary.Receipts},
		{"Refunds", r.Summary.Refunds},
		{"Unique Customers", r.Summary.UniqueCustomers},
		{"Average Transaction", num(r.Summary.AverageTransaction)},
		{"Days In Period", r.Summary.DaysInPeriod},
		{"Items Per Day", num(r.Summary.ItemsPerDay)},
	}
	for _, t := range r.Summary.UnrecognizedTypes {
		rows = append(rows, []any{"Unrecognized Receipt Type", t})
	}
	return rows
}

func dailyRows(points []domain.DailyPoint) [][]any {
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{p.Date, num(p.SignedNet), p.Receipts, num(p.MovingAvg7)})
	}
	return rows
}

func bucketRows(buckets []domain.NetSalesBucket) [][]any {
	rows := make([][]any, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []any{b.Key, num(b.SignedNet), b.Receipts, num(b.Quantity)})
	}
	return rows
}

func receiptRows(netRows []domain.NetRow) [][]any {
	rows := make([][]any, 0, len(netRows))
	for _, r := range netRows {
		rows = append(rows, []any{
			r.Date, r.ReceiptID, r.BillNumber, r.ReceiptType, r.StoreName, r.CustomerName, r.EmployeeName,
			r.PaymentName, r.DiningOption, r.ItemID, r.SKU, r.ItemName,
			nullNum(r.Quantity), nullNum(r.Price), nullNum(r.LineTotal),
			num(r.ReceiptTotal), num(r.ReceiptDiscount), num(r.ReceiptTax), num(r.SignedNet), r.LocationName,
		})
	}
	return rows
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func nullNum(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
