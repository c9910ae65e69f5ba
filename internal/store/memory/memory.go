package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"posdash/internal/domain"
	"posdash/internal/store"
)

// Store is the non-persistent repository used when no database can be
// opened. All data is lost on restart.
type Store struct {
	mu               sync.RWMutex
	receipts         map[string]domain.Receipt
	customers        map[string]domain.Customer
	stores           map[string]domain.Store
	employees        map[string]domain.Employee
	categories       map[string]domain.Category
	paymentTypes     map[string]domain.PaymentType
	items            map[string]domain.CatalogItem
	manualCategories map[string]domain.ManualCategory
	syncMetadata     map[string]domain.SyncMetadata
	nextPaymentID    int64
	now              func() time.Time
}

func New() *Store {
	return &Store{
		receipts:         make(map[string]domain.Receipt),
		customers:        make(map[string]domain.Customer),
		stores:           make(map[string]domain.Store),
		employees:        make(map[string]domain.Employee),
		categories:       make(map[string]domain.Category),
		paymentTypes:     make(map[string]domain.PaymentType),
		items:            make(map[string]domain.CatalogItem),
		manualCategories: make(map[string]domain.ManualCategory),
		syncMetadata:     make(map[string]domain.SyncMetadata),
		now:              time.Now,
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) UpsertReceipts(_ context.Context, receipts []domain.Receipt) (int, error) {
	normalized := make([]domain.Receipt, 0, len(receipts))
	for _, r := range receipts {
		n, err := store.NormalizeReceipt(r)
		if err != nil {
			return 0, err
		}
		normalized = append(normalized, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range normalized {
		for i := range r.Payments {
			s.nextPaymentID++
			r.Payments[i].ID = s.nextPaymentID
		}
		s.receipts[r.ReceiptID] = r
	}
	if len(normalized) > 0 {
		log.Debug().Str("component", "memory-store").Int("receipts", len(normalized)).Msg("receipts replaced")
	}
	return len(normalized), nil
}

func (s *Store) UpsertCustomers(_ context.Context, customers []domain.Customer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range customers {
		if strings.TrimSpace(c.CustomerID) == "" {
			continue
		}
		s.customers[c.CustomerID] = c
		n++
	}
	return n, nil
}

func (s *Store) UpsertStores(_ context.Context, stores []domain.Store) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range stores {
		if strings.TrimSpace(st.StoreID) == "" {
			continue
		}
		s.stores[st.StoreID] = st
		n++
	}
	return n, nil
}

func (s *Store) UpsertEmployees(_ context.Context, employees []domain.Employee) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range employees {
		if strings.TrimSpace(e.EmployeeID) == "" {
			continue
		}
		s.employees[e.EmployeeID] = e
		n++
	}
	return n, nil
}

func (s *Store) UpsertCategories(_ context.Context, categories []domain.Category) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range categories {
		if strings.TrimSpace(c.CategoryID) == "" {
			continue
		}
		s.categories[c.CategoryID] = c
		n++
	}
	return n, nil
}

func (s *Store) UpsertPaymentTypes(_ context.Context, paymentTypes []domain.PaymentType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range paymentTypes {
		if strings.TrimSpace(p.ID) == "" {
			continue
		}
		s.paymentTypes[p.ID] = p
		n++
	}
	return n, nil
}

func (s *Store) UpsertCatalogItems(_ context.Context, items []domain.CatalogItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range items {
		if strings.TrimSpace(it.ItemID) == "" {
			continue
		}
		s.items[it.ItemID] = it
		n++
	}
	return n, nil
}

func (s *Store) ReceiptsView(_ context.Context, filter domain.ViewFilter) ([]domain.ViewRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		if !store.InDateRange(r.CreatedAt, filter.StartDate, filter.EndDate) {
			continue
		}
		if filter.StoreID != "" && r.StoreID != filter.StoreID {
			continue
		}
		receipts = append(receipts, r)
	}
	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].CreatedAt != receipts[j].CreatedAt {
			return receipts[i].CreatedAt < receipts[j].CreatedAt
		}
		return receipts[i].ReceiptID < receipts[j].ReceiptID
	})

	rows := make([]domain.ViewRow, 0, len(receipts)*2)
	for _, r := range receipts {
		paymentIDs := make([]string, 0, len(r.Payments))
		for _, p := range r.Payments {
			paymentIDs = append(paymentIDs, p.PaymentTypeID)
		}
		base := domain.ViewRow{
			Date:            r.CreatedAt,
			ReceiptID:       r.ReceiptID,
			StoreID:         r.StoreID,
			CustomerID:      r.CustomerID,
			BillNumber:      r.ReceiptNumber,
			DiningOption:    r.DiningOption,
			EmployeeID:      r.EmployeeID,
			ReceiptType:     r.ReceiptType,
			ReceiptTotal:    r.TotalMoney,
			ReceiptDiscount: r.TotalDiscount,
			ReceiptTax:      r.TotalTax,
			PaymentTypeIDs:  strings.Join(paymentIDs, "+"),
		}
		if len(r.LineItems) == 0 {
			rows = append(rows, base)
			continue
		}

		lines := append([]domain.LineItem(nil), r.LineItems...)
		sort.Slice(lines, func(i, j int) bool { return lines[i].LineItemID < lines[j].LineItemID })
		for _, li := range lines {
			row := base
			row.LineItemID = li.LineItemID
			row.ItemID = li.ItemID
			row.SKU = li.SKU
			row.ItemName = li.ItemName
			row.Quantity = decimal.NewNullDecimal(li.Quantity)
			row.Price = decimal.NewNullDecimal(li.Price)
			row.LineTotal = decimal.NewNullDecimal(li.TotalMoney)
			row.LocationName = store.Uncategorized
			if item, ok := s.items[li.ItemID]; ok {
				row.CategoryID = item.CategoryID
				if cat, ok := s.categories[item.CategoryID]; ok && strings.TrimSpace(cat.Name) != "" {
					row.LocationName = cat.Name
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *Store) DateRange(_ context.Context) (domain.DateBounds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var minAt, maxAt string
	for _, r := range s.receipts {
		if r.CreatedAt == "" {
			continue
		}
		if minAt == "" || r.CreatedAt < minAt {
			minAt = r.CreatedAt
		}
		if maxAt == "" || r.CreatedAt > maxAt {
			maxAt = r.CreatedAt
		}
	}
	if maxAt == "" {
		return domain.DateBounds{}, nil
	}
	return domain.DateBounds{Min: &minAt, Max: &maxAt}, nil
}

func (s *Store) ReceiptCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts), nil
}

func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	bounds, _ := s.DateRange(ctx)
	syncs, _ := s.ListSyncMetadata(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.StoreStats{
		Backend:          "memory",
		Customers:        len(s.customers),
		Receipts:         len(s.receipts),
		PaymentTypes:     len(s.paymentTypes),
		Stores:           len(s.stores),
		Employees:        len(s.employees),
		Categories:       len(s.categories),
		Items:            len(s.items),
		ManualCategories: len(s.manualCategories),
		DateRange:        bounds,
		LastSyncs:        syncs,
	}
	for _, r := range s.receipts {
		stats.LineItems += len(r.LineItems)
		stats.Payments += len(r.Payments)
	}
	return stats, nil
}

func (s *Store) UpdateSyncMetadata(_ context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncMetadata[key] = domain.SyncMetadata{Key: key, Value: value, LastUpdated: s.now().UTC()}
	return nil
}

func (s *Store) ListSyncMetadata(_ context.Context) ([]domain.SyncMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.SyncMetadata, 0, len(s.syncMetadata))
	for _, m := range s.syncMetadata {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) CustomerNames(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(s.customers))
	for id, c := range s.customers {
		names[id] = store.CustomerDisplayName(c)
	}
	return names, nil
}

func (s *Store) PaymentTypeNames(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(s.paymentTypes))
	for id, p := range s.paymentTypes {
		names[id] = store.PaymentTypeDisplayName(p)
	}
	return names, nil
}

func (s *Store) StoreNames(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(s.stores))
	for id, st := range s.stores {
		names[id] = store.StoreDisplayName(st)
	}
	return names, nil
}

func (s *Store) EmployeeNames(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(s.employees))
	for id, e := range s.employees {
		names[id] = store.EmployeeDisplayName(e)
	}
	return names, nil
}

func (s *Store) SaveManualCategories(_ context.Context, overrides []domain.ManualCategory) error {
	for _, mc := range overrides {
		if strings.TrimSpace(mc.Category) == "" || (strings.TrimSpace(mc.ItemID) == "" && strings.TrimSpace(mc.ProductName) == "") {
			return store.ErrInvalidRecord
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, mc := range overrides {
		key := store.ManualCategoryKey(mc)
		mc.ItemID = strings.TrimSpace(mc.ItemID)
		mc.ProductName = strings.TrimSpace(mc.ProductName)
		mc.Category = strings.TrimSpace(mc.Category)
		mc.CreatedAt = now
		if existing, ok := s.manualCategories[key]; ok {
			mc.CreatedAt = existing.CreatedAt
		}
		mc.UpdatedAt = now
		s.manualCategories[key] = mc
	}
	return nil
}

func (s *Store) ListManualCategories(_ context.Context) ([]domain.ManualCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.ManualCategory, 0, len(s.manualCategories))
	for _, mc := range s.manualCategories {
		result = append(result, mc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ProductName != result[j].ProductName {
			return result[i].ProductName < result[j].ProductName
		}
		return result[i].ItemID < result[j].ItemID
	})
	return result, nil
}

func (s *Store) ClearManualCategories(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualCategories = make(map[string]domain.ManualCategory)
	return nil
}

func (s *Store) ClearAllData(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = make(map[string]domain.Customer)
	s.receipts = make(map[string]domain.Receipt)
	s.syncMetadata = make(map[string]domain.SyncMetadata)
	log.Warn().Str("component", "memory-store").Msg("all synced data cleared")
	return nil
}
