package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posdash/internal/domain"
	"posdash/internal/loyverse"
	"posdash/internal/refdata"
	"posdash/internal/store"
	"posdash/internal/store/memory"
	"posdash/internal/store/storetest"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeUpstream struct {
	mu           sync.Mutex
	configured   bool
	pages        [][]domain.Receipt
	failAtPage   int
	failErr      error
	queries      []loyverse.ReceiptQuery
	started      chan struct{}
	release      chan struct{}
	customers    []domain.Customer
	paymentTypes []domain.PaymentType
	stores       []domain.Store
	employees    []domain.Employee
	categories   []domain.Category
	items        []domain.CatalogItem
	employeesErr error
	metaCalls    int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{configured: true, failAtPage: -1}
}

func (f *fakeUpstream) Configured() bool { return f.configured }

func (f *fakeUpstream) Receipts(_ context.Context, q loyverse.ReceiptQuery, fn func([]domain.Receipt) error) (loyverse.Progress, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	pages := f.pages
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
		<-f.release
	}

	var progress loyverse.Progress
	for i, page := range pages {
		if i == f.failAtPage {
			return progress, f.failErr
		}
		if err := fn(page); err != nil {
			return progress, err
		}
		progress.Pages++
		progress.Records += len(page)
	}
	return progress, nil
}

func (f *fakeUpstream) count() {
	f.mu.Lock()
	f.metaCalls++
	f.mu.Unlock()
}

func (f *fakeUpstream) Customers(context.Context) ([]domain.Customer, error) {
	f.count()
	return f.customers, nil
}

func (f *fakeUpstream) Items(context.Context) ([]domain.CatalogItem, error) {
	f.count()
	return f.items, nil
}

func (f *fakeUpstream) PaymentTypes(context.Context) ([]domain.PaymentType, error) {
	f.count()
	return f.paymentTypes, nil
}

func (f *fakeUpstream) Stores(context.Context) ([]domain.Store, error) {
	f.count()
	return f.stores, nil
}

func (f *fakeUpstream) Employees(context.Context) ([]domain.Employee, error) {
	f.count()
	return f.employees, f.employeesErr
}

func (f *fakeUpstream) Categories(context.Context) ([]domain.Category, error) {
	f.count()
	return f.categories, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func newTestService(upstream Upstream) (*Service, *memory.Store) {
	repo := memory.New()
	svc := New(repo, upstream, nil, Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	return svc, repo
}

func TestSyncMissingColdStartThenResume(t *testing.T) {
	up := newFakeUpstream()
	up.pages = [][]domain.Receipt{
		{storetest.Receipt("R-1", "2024-03-01T10:00:00.000Z", []string{"L-1"}, "cash")},
		{
			storetest.Receipt("R-2", "2024-03-02T09:00:00.000Z", nil, "cash"),
			storetest.Receipt("R-3", "2024-03-01T11:00:00.000Z", []string{"L-3"}, "cash"),
		},
	}
	svc, repo := newTestService(up)
	ctx := context.Background()

	plan, err := svc.PlanSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cold_start", plan.Mode)

	result, err := svc.SyncMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Records)
	assert.False(t, result.Partial)
	assert.True(t, strings.HasPrefix(result.RunID, "sync-"), result.RunID)
	require.Len(t, up.queries, 1)
	assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), up.queries[0].Start)

	count, err := repo.ReceiptCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	firstRun := result.RunID
	up.pages = nil
	result, err = svc.SyncMissing(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, firstRun, result.RunID)
	require.Len(t, up.queries, 2)
	assert.Equal(t, "resume", result.Range.Mode)
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 1, 0, time.UTC), up.queries[1].Start)
	assert.Equal(t, testNow, up.queries[1].End)
}

func TestSyncReceiptsPartialKeepsCommittedPages(t *testing.T) {
	up := newFakeUpstream()
	up.pages = [][]domain.Receipt{
		{storetest.Receipt("R-1", "2024-03-01T10:00:00.000Z", []string{"L-1"})},
		{storetest.Receipt("R-2", "2024-03-01T11:00:00.000Z", []string{"L-2"})},
	}
	up.failAtPage = 1
	up.failErr = &loyverse.StatusError{Path: "/receipts", StatusCode: 429}
	svc, repo := newTestService(up)
	ctx := context.Background()

	result, err := svc.SyncReceipts(ctx, domain.ReceiptSyncRequest{Start: "2024-03-01", End: "2024-03-01", StoreID: "store-1"})

	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 1, result.Pages)
	assert.Contains(t, result.Error, "429")
	assert.Equal(t, "store-1", up.queries[0].StoreID)
	assert.Equal(t, "manual", result.Range.Mode)

	count, err := repo.ReceiptCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	meta, err := repo.ListSyncMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, meta, 1)
	assert.Equal(t, store.SyncKeyReceipts, meta[0].Key)
	assert.True(t, strings.HasSuffix(meta[0].Value, "partial"), meta[0].Value)
}

func TestSyncRunsToCompletionWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	next := map[string]string{"": "p2", "p2": "p3", "p3": ""}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		if cursor == "" {
			// The dashboard client goes away while the first page is served.
			cancel()
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"receipts":[{"id":"R-%[1]s","receipt_number":"1-%[1]s","created_at":"2024-03-01T10:00:00.000Z",
			"receipt_type":"SALE","total_money":100}],"cursor":%[2]q}`, cursor+"x", next[cursor])
	}))
	defer srv.Close()
	svc, repo := newTestService(loyverse.New(loyverse.Config{BaseURL: srv.URL, Token: "secret-token"}))

	result, err := svc.SyncReceipts(ctx, domain.ReceiptSyncRequest{Start: "2024-03-01", End: "2024-03-01"})

	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, 3, result.Pages)
	assert.False(t, result.Partial)
	count, err := repo.ReceiptCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSyncReceiptsFailsWhenNothingCommitted(t *testing.T) {
	up := newFakeUpstream()
	up.pages = [][]domain.Receipt{{storetest.Receipt("R-1", "2024-03-01T10:00:00.000Z", nil)}}
	up.failAtPage = 0
	up.failErr = &loyverse.StatusError{Path: "/receipts", StatusCode: 401}
	svc, _ := newTestService(up)

	result, err := svc.SyncMissing(context.Background())

	var statusErr *loyverse.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Zero(t, result.Pages)
	assert.False(t, result.Partial)
}

func TestSyncReceiptsRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(newFakeUpstream())

	_, err := svc.SyncReceipts(context.Background(), domain.ReceiptSyncRequest{Start: "2024-03-05", End: "2024-03-01"})

	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSyncRequiresConfiguredUpstream(t *testing.T) {
	up := newFakeUpstream()
	up.configured = false
	svc, _ := newTestService(up)
	ctx := context.Background()

	_, err := svc.SyncMissing(ctx)
	require.ErrorIs(t, err, ErrUpstreamNotConfigured)
	_, err = svc.SyncMetadata(ctx, false)
	require.ErrorIs(t, err, ErrUpstreamNotConfigured)

	svc = New(memory.New(), nil, nil, Options{})
	_, err = svc.SyncMissing(ctx)
	require.ErrorIs(t, err, ErrUpstreamNotConfigured)
}

func TestSecondSyncIsRejectedWhileOneRuns(t *testing.T) {
	up := newFakeUpstream()
	up.started = make(chan struct{})
	up.release = make(chan struct{})
	svc, _ := newTestService(up)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.SyncMissing(ctx)
		done <- err
	}()
	<-up.started

	_, err := svc.SyncMissing(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = svc.SyncMetadata(ctx, false)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.ErrorIs(t, svc.ClearAllData(ctx), ErrSyncInProgress)

	close(up.release)
	require.NoError(t, <-done)
}

func seedMetadata(up *fakeUpstream) {
	up.customers = []domain.Customer{{CustomerID: "cust-1", Name: "Somchai"}}
	up.paymentTypes = []domain.PaymentType{{ID: "cash", Name: "Cash"}, {ID: "credit", Name: "เครดิต"}}
	up.stores = []domain.Store{{StoreID: "store-1", Name: "Main"}}
	up.employees = []domain.Employee{{EmployeeID: "emp-1", Name: "Nok"}}
	up.categories = []domain.Category{{CategoryID: "cat-1", Name: "Cold room"}}
	up.items = []domain.CatalogItem{{ItemID: "item-L-1", Name: "Item L-1", CategoryID: "cat-1"}}
}

func TestSyncMetadataRefreshesReferences(t *testing.T) {
	up := newFakeUpstream()
	seedMetadata(up)
	up.employeesErr = errors.New("timeout")
	svc, repo := newTestService(up)
	ctx := context.Background()
	_, err := repo.UpsertReceipts(ctx, []domain.Receipt{storetest.Receipt("R-1", "2024-03-01T10:00:00.000Z", []string{"L-1"}, "cash", "credit")})
	require.NoError(t, err)
	assert.Len(t, svc.MissingReferences(), len(refdata.Kinds))

	results, err := svc.SyncMetadata(ctx, false)

	require.NoError(t, err)
	require.Len(t, results, 6)
	byEntity := map[string]domain.SyncResult{}
	for _, r := range results {
		byEntity[r.Entity] = r
	}
	assert.Equal(t, 1, byEntity[store.SyncKeyCustomers].Records)
	assert.Equal(t, 2, byEntity[store.SyncKeyPaymentTypes].Records)
	assert.Contains(t, byEntity[store.SyncKeyEmployees].Error, "timeout")

	rows, err := svc.ReceiptsView(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Somchai", rows[0].CustomerName)
	assert.Equal(t, "Cash+เครดิต", rows[0].PaymentName)
	assert.Equal(t, "Main", rows[0].StoreName)
	assert.Equal(t, refdata.UnknownEmployee, rows[0].EmployeeName)
	assert.Equal(t, "Cold room", rows[0].LocationName)

	status := svc.ReferenceStatus()
	assert.Equal(t, []string{string(refdata.KindEmployee)}, status.Missing)
	assert.Equal(t, status.Missing, svc.MissingReferences())

	meta, err := repo.ListSyncMetadata(ctx)
	require.NoError(t, err)
	values := map[string]string{}
	for _, m := range meta {
		values[m.Key] = m.Value
	}
	assert.Equal(t, "1 customers", values[store.SyncKeyCustomers])
	_, hasEmployees := values[store.SyncKeyEmployees]
	assert.False(t, hasEmployees)
}

func TestSyncMetadataServesFromCacheUnlessFresh(t *testing.T) {
	up := newFakeUpstream()
	seedMetadata(up)
	repo := memory.New()
	svc := New(repo, up, &mapCache{}, Options{Now: func() time.Time { return testNow }})
	ctx := context.Background()

	_, err := svc.SyncMetadata(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 6, up.metaCalls)

	_, err = svc.SyncMetadata(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 6, up.metaCalls, "second run is served from cache")

	names, err := repo.CustomerNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Somchai", names["cust-1"])

	_, err = svc.SyncMetadata(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 12, up.metaCalls)
}

func TestSyncMetadataFailsWhenEveryEntityFails(t *testing.T) {
	up := newFakeUpstream()
	svc, _ := newTestService(up)
	svc.upstream = failingUpstream{up}

	results, err := svc.SyncMetadata(context.Background(), false)

	require.Error(t, err)
	assert.Len(t, results, 6)
}

type failingUpstream struct{ *fakeUpstream }

var errDown = errors.New("upstream down")

func (failingUpstream) Customers(context.Context) ([]domain.Customer, error) {
	return nil, errDown
}

func (failingUpstream) Items(context.Context) ([]domain.CatalogItem, error) {
	return nil, errDown
}

func (failingUpstream) PaymentTypes(context.Context) ([]domain.PaymentType, error) {
	return nil, errDown
}

func (failingUpstream) Stores(context.Context) ([]domain.Store, error) {
	return nil, errDown
}

func (failingUpstream) Employees(context.Context) ([]domain.Employee, error) {
	return nil, errDown
}

func (failingUpstream) Categories(context.Context) ([]domain.Category, error) {
	return nil, errDown
}

func seedReports(t *testing.T, svc *Service, repo *memory.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := repo.UpsertPaymentTypes(ctx, []domain.PaymentType{{ID: "cash", Name: "Cash"}, {ID: "credit", Name: "เครดิต"}})
	require.NoError(t, err)

	sale := storetest.Receipt("R-1", "2024-03-01T10:00:00.000Z", []string{"L-1", "L-2", "L-3"}, "credit")
	refund := storetest.Receipt("R-2", "2024-03-01T11:00:00.000Z", []string{"L-4"}, "cash")
	refund.ReceiptType = "refund"
	refund.TotalMoney = decimal.NewFromInt(300)
	refund.TotalDiscount = decimal.Zero
	later := storetest.Receipt("R-3", "2024-03-03T11:00:00.000Z", nil, "cash")
	_, err = repo.UpsertReceipts(ctx, []domain.Receipt{sale, refund, later})
	require.NoError(t, err)
	require.NoError(t, svc.RefreshReferences(ctx))
}

func TestReportsReconcileSignedNet(t *testing.T) {
	svc, repo := newTestService(newFakeUpstream())
	seedReports(t, svc, repo)
	ctx := context.Background()

	summary, err := svc.Summary(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	// 900 - 300 + 900
	assert.True(t, summary.TotalSales.Equal(decimal.NewFromInt(1500)), summary.TotalSales.String())
	assert.Equal(t, 3, summary.Receipts)
	assert.Equal(t, 1, summary.Refunds)
	// 4 items over 2024-03-01..2024-03-03
	assert.Equal(t, 3, summary.DaysInPeriod)
	assert.True(t, summary.ItemsPerDay.Equal(decimal.RequireFromString("1.3")), summary.ItemsPerDay.String())

	byDay, err := svc.NetSales(ctx, domain.ViewFilter{}, "day")
	require.NoError(t, err)
	require.Len(t, byDay, 2)
	assert.Equal(t, "2024-03-01", byDay[0].Key)
	assert.True(t, byDay[0].SignedNet.Equal(decimal.NewFromInt(600)), byDay[0].SignedNet.String())

	filtered, err := svc.Summary(ctx, domain.ViewFilter{StartDate: "2024-03-03", EndDate: "2024-03-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Receipts)
	assert.Equal(t, 1, filtered.DaysInPeriod)
	assert.True(t, filtered.ItemsPerDay.IsZero())

	_, err = svc.NetSales(ctx, domain.ViewFilter{}, "weekday")
	require.ErrorIs(t, err, ErrInvalidInput)

	daily, err := svc.Daily(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, daily, 3)
	assert.True(t, daily[1].SignedNet.IsZero())

	credit, err := svc.Credit(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, credit, 1)
	assert.Equal(t, "cust-1", credit[0].CustomerID)
	assert.True(t, credit[0].Outstanding.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, 9, credit[0].DaysOutstanding)
	assert.Equal(t, domain.CreditCurrent, credit[0].Status)
}

func TestForecastPerLocationIsCachedUntilDataChanges(t *testing.T) {
	repo := memory.New()
	c := &mapCache{}
	svc := New(repo, newFakeUpstream(), c, Options{Location: time.UTC, Now: func() time.Time { return testNow }})
	ctx := context.Background()
	_, err := repo.UpsertCategories(ctx, []domain.Category{{CategoryID: "cat-1", Name: "Cold room"}})
	require.NoError(t, err)
	_, err = repo.UpsertCatalogItems(ctx, []domain.CatalogItem{{ItemID: "item-L-1", Name: "Item L-1", CategoryID: "cat-1"}})
	require.NoError(t, err)
	first := storetest.Receipt("R-1", "2024-03-01T10:00:00.000Z", []string{"L-1"}, "cash")
	second := storetest.Receipt("R-2", "2024-03-02T10:00:00.000Z", []string{"L-2"}, "cash")
	second.LineItems[0].ItemID = "item-L-1"
	_, err = repo.UpsertReceipts(ctx, []domain.Receipt{first, second})
	require.NoError(t, err)

	out, err := svc.Forecast(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Cold room", out[0].Location)
	assert.True(t, out[0].SalesAvg7.Equal(decimal.NewFromInt(900)), out[0].SalesAvg7.String())
	other := out[0].Groups[len(out[0].Groups)-1]
	assert.Equal(t, "📦 อื่นๆ (Other)", other.Group)
	assert.True(t, other.QuantityAvg7.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 2, other.Days)
	assert.Len(t, c.data, 1)

	_, err = svc.Forecast(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	assert.Len(t, c.data, 1, "same data is served from cache")

	_, err = svc.SaveManualCategories(ctx, domain.ManualCategoryRequest{Overrides: []domain.ManualCategoryInput{
		{ItemID: "item-L-1", Category: "Cubes"},
	}})
	require.NoError(t, err)
	out, err = svc.Forecast(ctx, domain.ViewFilter{})
	require.NoError(t, err)
	assert.Len(t, c.data, 2)
	groups := out[0].Groups
	assert.Equal(t, "Cubes", groups[len(groups)-1].Group)
	assert.True(t, groups[len(groups)-1].QuantityAvg7.Equal(decimal.NewFromInt(1)))
}

func TestManualCategoriesDriveCategoryDimension(t *testing.T) {
	svc, repo := newTestService(newFakeUpstream())
	seedReports(t, svc, repo)
	ctx := context.Background()

	saved, err := svc.SaveManualCategories(ctx, domain.ManualCategoryRequest{Overrides: []domain.ManualCategoryInput{
		{ItemID: "item-L-1", Category: " Pinned "},
		{ProductName: "Item L-4", Category: "Returned"},
	}})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	buckets, err := svc.NetSales(ctx, domain.ViewFilter{}, "category")
	require.NoError(t, err)
	keys := map[string]decimal.Decimal{}
	for _, b := range buckets {
		keys[b.Key] = b.SignedNet
	}
	assert.True(t, keys["Pinned"].Equal(decimal.NewFromInt(900)))
	assert.True(t, keys["Returned"].Equal(decimal.NewFromInt(-300)))

	_, err = svc.SaveManualCategories(ctx, domain.ManualCategoryRequest{Overrides: []domain.ManualCategoryInput{{Category: "x"}}})
	require.ErrorIs(t, err, store.ErrInvalidRecord)

	require.NoError(t, svc.ClearManualCategories(ctx))
	list, err := svc.ListManualCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExportWritesWorkbook(t *testing.T) {
	svc, repo := newTestService(newFakeUpstream())
	seedReports(t, svc, repo)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), domain.ViewFilter{}, &buf))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestStatsAndClearAllData(t *testing.T) {
	repo := memory.New()
	svc := New(repo, newFakeUpstream(), nil, Options{Degraded: true})
	seedReports(t, svc, repo)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Degraded)
	assert.Equal(t, 3, stats.Receipts)

	require.NoError(t, svc.ClearAllData(ctx))
	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Receipts)
	assert.Equal(t, 2, stats.PaymentTypes, "reference tables survive a clear")
}

func TestActorContext(t *testing.T) {
	ctx := WithActor(context.Background(), domain.Actor{Username: "owner", Role: "admin"})

	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "owner", actor.Username)
	assert.Equal(t, "owner", actorName(ctx))
	assert.Equal(t, "system", actorName(context.Background()))
}
