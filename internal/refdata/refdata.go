// Package refdata keeps id to display-name lookups for customers, payment
// types, stores and employees. It only changes on an explicit Refresh.
package refdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"posdash/internal/domain"
	"posdash/internal/store"
)

type Kind string

const (
	KindCustomer    Kind = "customer"
	KindPaymentType Kind = "payment_type"
	KindStore       Kind = "store"
	KindEmployee    Kind = "employee"
)

var Kinds = []Kind{KindCustomer, KindPaymentType, KindStore, KindEmployee}

const (
	WalkInCustomer  = "Walk-in Customer"
	UnknownCustomer = "Unknown Customer"
	UnknownPayment  = "Unknown Payment"
	UnknownStore    = "Unknown Store"
	UnknownEmployee = "Unknown Employee"
	Unknown         = "Unknown"
)

func unknownFor(kind Kind) string {
	switch kind {
	case KindCustomer:
		return UnknownCustomer
	case KindPaymentType:
		return UnknownPayment
	case KindStore:
		return UnknownStore
	case KindEmployee:
		return UnknownEmployee
	default:
		return Unknown
	}
}

// isAbsentID matches the ways an upstream or dataframe-era export spells
// "no customer".
func isAbsentID(id string) bool {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "null", "none", "nan":
		return true
	}
	return false
}

type Cache struct {
	source store.ReferenceReader

	mu       sync.RWMutex
	names    map[Kind]map[string]string
	loadedAt time.Time
}

func New(source store.ReferenceReader) *Cache {
	return &Cache{source: source, names: emptySnapshot()}
}

func emptySnapshot() map[Kind]map[string]string {
	snap := make(map[Kind]map[string]string, len(Kinds))
	for _, k := range Kinds {
		snap[k] = map[string]string{}
	}
	return snap
}

// Refresh reloads every kind. On error the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	loaders := map[Kind]func(context.Context) (map[string]string, error){
		KindCustomer:    c.source.CustomerNames,
		KindPaymentType: c.source.PaymentTypeNames,
		KindStore:       c.source.StoreNames,
		KindEmployee:    c.source.EmployeeNames,
	}
	next := make(map[Kind]map[string]string, len(loaders))
	for _, kind := range Kinds {
		names, err := loaders[kind](ctx)
		if err != nil {
			return fmt.Errorf("refresh %s names: %w", kind, err)
		}
		if names == nil {
			names = map[string]string{}
		}
		next[kind] = names
	}

	c.mu.Lock()
	c.names = next
	c.loadedAt = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

func (c *Cache) NameFor(kind Kind, id string) string {
	if kind == KindCustomer && isAbsentID(id) {
		return WalkInCustomer
	}
	c.mu.RLock()
	name, ok := c.names[kind][strings.TrimSpace(id)]
	c.mu.RUnlock()
	if !ok {
		return unknownFor(kind)
	}
	return name
}

// NamesForConcatenatedIDs resolves a delimiter-joined id list, e.g. the
// payment type ids of a split-payment receipt.
func (c *Cache) NamesForConcatenatedIDs(kind Kind, ids string, delimiter string) string {
	if strings.TrimSpace(ids) == "" {
		return Unknown
	}
	parts := strings.Split(ids, delimiter)
	names := make([]string, 0, len(parts))
	for _, id := range parts {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		names = append(names, c.NameFor(kind, id))
	}
	if len(names) == 0 {
		return Unknown
	}
	return strings.Join(names, delimiter)
}

// Enrich returns new rows with display names attached; rows is not modified.
func (c *Cache) Enrich(rows []domain.ViewRow) []domain.EnrichedRow {
	out := make([]domain.EnrichedRow, len(rows))
	for i, row := range rows {
		out[i] = domain.EnrichedRow{
			ViewRow:      row,
			CustomerName: c.NameFor(KindCustomer, row.CustomerID),
			PaymentName:  c.NamesForConcatenatedIDs(KindPaymentType, row.PaymentTypeIDs, "+"),
			StoreName:    c.NameFor(KindStore, row.StoreID),
			EmployeeName: c.NameFor(KindEmployee, row.EmployeeID),
		}
	}
	return out
}

func (c *Cache) Status() domain.ReferenceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := domain.ReferenceStatus{
		Customers:    len(c.names[KindCustomer]),
		PaymentTypes: len(c.names[KindPaymentType]),
		Stores:       len(c.names[KindStore]),
		Employees:    len(c.names[KindEmployee]),
	}
	status.Missing = c.missingLocked()
	if !c.loadedAt.IsZero() {
		status.LoadedAt = c.loadedAt.Format(time.RFC3339)
	}
	return status
}

// Missing lists kinds with no loaded names.
func (c *Cache) Missing() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.missingLocked()
}

func (c *Cache) missingLocked() []string {
	var missing []string
	for _, kind := range Kinds {
		if len(c.names[kind]) == 0 {
			missing = append(missing, string(kind))
		}
	}
	return missing
}
