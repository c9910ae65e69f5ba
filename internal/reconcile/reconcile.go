// Package reconcile turns line-level view rows into receipt-level signed net
// sales and re-aggregates them without counting a receipt twice.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posdash/internal/domain"
)

// ReceiptNet is the signed net of one receipt: total minus discount,
// negated for refunds.
type ReceiptNet struct {
	ReceiptID   string
	ReceiptType string
	SignedNet   decimal.Decimal
}

func IsRefund(receiptType string) bool {
	return strings.EqualFold(strings.TrimSpace(receiptType), domain.ReceiptTypeRefund)
}

func isSale(receiptType string) bool {
	return strings.EqualFold(strings.TrimSpace(receiptType), domain.ReceiptTypeSale)
}

func SignedNet(total decimal.Decimal, discount decimal.Decimal, receiptType string) decimal.Decimal {
	net := total.Sub(discount)
	if IsRefund(receiptType) {
		return net.Neg()
	}
	return net
}

type receiptKey struct {
	id  string
	typ string
}

// ReceiptNets collapses rows to one entry per (receipt id, receipt type),
// using the first row's totals, in first-seen order.
func ReceiptNets(rows []domain.EnrichedRow) []ReceiptNet {
	seen := make(map[receiptKey]struct{}, len(rows))
	out := make([]ReceiptNet, 0, len(rows))
	for _, row := range rows {
		key := receiptKey{id: row.ReceiptID, typ: row.ReceiptType}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ReceiptNet{
			ReceiptID:   row.ReceiptID,
			ReceiptType: row.ReceiptType,
			SignedNet:   SignedNet(row.ReceiptTotal, row.ReceiptDiscount, row.ReceiptType),
		})
	}
	return out
}

// Attach copies each receipt's signed net onto all of its rows. Summing the
// result directly over-counts; use SumBy.
func Attach(rows []domain.EnrichedRow) []domain.NetRow {
	nets := ReceiptNets(rows)
	byKey := make(map[receiptKey]decimal.Decimal, len(nets))
	for _, n := range nets {
		byKey[receiptKey{id: n.ReceiptID, typ: n.ReceiptType}] = n.SignedNet
	}
	out := make([]domain.NetRow, len(rows))
	for i, row := range rows {
		out[i] = domain.NetRow{
			EnrichedRow: row,
			SignedNet:   byKey[receiptKey{id: row.ReceiptID, typ: row.ReceiptType}],
		}
	}
	return out
}

// UnrecognizedTypes lists receipt types that are neither sale nor refund.
// They are counted as sales.
func UnrecognizedTypes(rows []domain.NetRow) []string {
	set := map[string]struct{}{}
	for _, row := range rows {
		if isSale(row.ReceiptType) || IsRefund(row.ReceiptType) {
			continue
		}
		set[row.ReceiptType] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SumBy totals signed net per dimension value. A receipt contributes once to
// every distinct value it touches, so a receipt spanning two locations counts
// toward both. Quantity is summed per line.
func SumBy(rows []domain.NetRow, dim Dimension) []domain.NetSalesBucket {
	type acc struct {
		net      decimal.Decimal
		qty      decimal.Decimal
		receipts map[string]struct{}
	}
	buckets := make(map[string]*acc)
	for _, row := range rows {
		key := dim.Key(row)
		b, ok := buckets[key]
		if !ok {
			b = &acc{receipts: make(map[string]struct{})}
			buckets[key] = b
		}
		if row.Quantity.Valid {
			b.qty = b.qty.Add(row.Quantity.Decimal)
		}
		if _, counted := b.receipts[row.ReceiptID]; counted {
			continue
		}
		b.receipts[row.ReceiptID] = struct{}{}
		b.net = b.net.Add(row.SignedNet)
	}

	out := make([]domain.NetSalesBucket, 0, len(buckets))
	for key, b := range buckets {
		out = append(out, domain.NetSalesBucket{
			Key:       key,
			SignedNet: b.net,
			Receipts:  len(b.receipts),
			Quantity:  b.qty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func Summarize(rows []domain.NetRow) domain.SalesSummary {
	summary := domain.SalesSummary{UnrecognizedTypes: UnrecognizedTypes(rows)}

	seen := make(map[string]struct{}, len(rows))
	customers := make(map[string]struct{})
	salesNet := decimal.Zero
	sales := 0
	for _, row := range rows {
		if row.Quantity.Valid {
			summary.TotalItems = summary.TotalItems.Add(row.Quantity.Decimal)
		}
		if _, ok := seen[row.ReceiptID]; ok {
			continue
		}
		seen[row.ReceiptID] = struct{}{}

		summary.Receipts++
		summary.TotalSales = summary.TotalSales.Add(row.SignedNet)
		if id := strings.TrimSpace(row.CustomerID); id != "" {
			customers[id] = struct{}{}
		}
		if IsRefund(row.ReceiptType) {
			summary.Refunds++
			continue
		}
		sales++
		salesNet = salesNet.Add(row.SignedNet)
	}
	summary.UniqueCustomers = len(customers)
	if sales > 0 {
		summary.AverageTransaction = salesNet.Div(decimal.NewFromInt(int64(sales))).Round(2)
	}
	return summary
}

// PeriodDays counts calendar days from start to end inclusive (YYYY-MM-DD).
// An open bound is taken from the earliest or latest row in loc. It is zero
// when the period cannot be determined or is inverted.
func PeriodDays(start string, end string, rows []domain.NetRow, loc *time.Location) int {
	first, last := start, end
	if first == "" || last == "" {
		for _, row := range rows {
			day := LocalDay(row, loc)
			if start == "" && (first == "" || day < first) {
				first = day
			}
			if end == "" && (last == "" || day > last) {
				last = day
			}
		}
	}
	from, errFrom := time.Parse("2006-01-02", first)
	to, errTo := time.Parse("2006-01-02", last)
	if errFrom != nil || errTo != nil || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// WithPeriod sets the average items sold per day over days.
func WithPeriod(summary domain.SalesSummary, days int) domain.SalesSummary {
	summary.DaysInPeriod = days
	summary.ItemsPerDay = decimal.Zero
	if days > 0 {
		summary.ItemsPerDay = summary.TotalItems.Div(decimal.NewFromInt(int64(days))).Round(1)
	}
	return summary
}
