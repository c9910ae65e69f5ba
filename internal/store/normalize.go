package store

import (
	"fmt"
	"strconv"
	"strings"

	"posdash/internal/domain"
	"posdash/internal/xid"
)

// Display-name fallbacks applied when building reference maps.
const (
	UnnamedCustomer    = "Unknown"
	UnnamedPaymentType = "Unknown Payment"
	UnnamedStore       = "Unknown Store"
	UnnamedEmployee    = "Unknown Employee"
	Uncategorized      = "Uncategorized"
)

// NormalizeReceipt prepares a receipt for persistence: it resolves the
// primary key, rewrites created_at to the canonical UTC layout and gives
// every child the parent id. Line items without an upstream id get one
// derived from the receipt id and position.
func NormalizeReceipt(r domain.Receipt) (domain.Receipt, error) {
	r.ReceiptID = strings.TrimSpace(r.ReceiptID)
	if r.ReceiptID == "" {
		r.ReceiptID = strings.TrimSpace(r.ReceiptNumber)
	}
	if r.ReceiptID == "" {
		return domain.Receipt{}, fmt.Errorf("%w: receipt without id or number", ErrInvalidRecord)
	}
	r.CreatedAt = domain.NormalizeTimestamp(r.CreatedAt)

	lines := make([]domain.LineItem, len(r.LineItems))
	for i, line := range r.LineItems {
		line.ReceiptID = r.ReceiptID
		if strings.TrimSpace(line.LineItemID) == "" {
			line.LineItemID = xid.Derived(r.ReceiptID, "line", strconv.Itoa(i))
		}
		lines[i] = line
	}
	r.LineItems = lines

	payments := make([]domain.Payment, len(r.Payments))
	for i, p := range r.Payments {
		p.ReceiptID = r.ReceiptID
		payments[i] = p
	}
	r.Payments = payments
	return r, nil
}

func CustomerDisplayName(c domain.Customer) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	if code := strings.TrimSpace(c.CustomerCode); code != "" {
		return code
	}
	return UnnamedCustomer
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func PaymentTypeDisplayName(p domain.PaymentType) string {
	return orDefault(p.Name, UnnamedPaymentType)
}

func StoreDisplayName(s domain.Store) string {
	return orDefault(s.Name, UnnamedStore)
}

func EmployeeDisplayName(e domain.Employee) string {
	return orDefault(e.Name, UnnamedEmployee)
}

// DateOf returns the calendar-date prefix of a stored created_at value.
func DateOf(createdAt string) string {
	if len(createdAt) < 10 {
		return createdAt
	}
	return createdAt[:10]
}

// InDateRange reports whether a stored created_at falls inside the inclusive
// [start, end] calendar-date bounds; empty bounds are open.
func InDateRange(createdAt string, start string, end string) bool {
	day := DateOf(createdAt)
	if start != "" && day < start {
		return false
	}
	if end != "" && day > end {
		return false
	}
	return true
}

// ManualCategoryKey identifies an override row. Item ids take precedence
// over product names.
func ManualCategoryKey(mc domain.ManualCategory) string {
	if id := strings.TrimSpace(mc.ItemID); id != "" {
		return "item:" + id
	}
	return "name:" + strings.TrimSpace(mc.ProductName)
}
