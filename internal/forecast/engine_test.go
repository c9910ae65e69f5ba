package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posdash/internal/categorize"
	"posdash/internal/domain"
	"posdash/internal/store"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func netRow(receiptID string, day int, location string, item string, qty int64, net int64) domain.NetRow {
	row := domain.NetRow{SignedNet: decimal.NewFromInt(net)}
	row.ReceiptID = receiptID
	row.Date = fmt.Sprintf("2024-03-%02dT10:00:00.000Z", day)
	row.LocationName = location
	if item != "" {
		row.LineItemID = receiptID + "-" + item
		row.ItemID = "item-" + item
		row.ItemName = item
		row.Quantity = decimal.NewNullDecimal(decimal.NewFromInt(qty))
	}
	return row
}

func groupsOf(c *categorize.Categorizer) Input {
	return Input{Classifier: c, Groups: c.Categories()}
}

func TestBuildAveragesLastSevenTradingDays(t *testing.T) {
	in := groupsOf(categorize.New(nil, nil))
	for day := 1; day <= 9; day++ {
		in.Rows = append(in.Rows, netRow(fmt.Sprintf("R-%d", day), day, "Cold room", "น้ำแข็งป่น", int64(day), int64(100*day)))
	}
	in.Rows = append(in.Rows,
		netRow("S-1", 1, "Shop", "น้ำแข็งหลอดเล็ก", 2, 50),
		netRow("S-2", 5, "Shop", "น้ำแข็งหลอดเล็ก", 4, 150),
		netRow("U-1", 5, store.Uncategorized, "น้ำแข็งป่น", 10, 10000),
	)

	out := Build(in, time.UTC)

	require.Len(t, out, 2)
	assert.Equal(t, "Cold room", out[0].Location)
	// days 3..9
	assert.True(t, out[0].SalesAvg7.Equal(d("600")), out[0].SalesAvg7.String())
	require.Len(t, out[0].Groups, 4)
	assert.Equal(t, categorize.CrushedIce, out[0].Groups[0].Group)
	assert.True(t, out[0].Groups[0].QuantityAvg7.Equal(d("6")), out[0].Groups[0].QuantityAvg7.String())
	assert.Equal(t, 9, out[0].Groups[0].Days)
	assert.True(t, out[0].Groups[1].QuantityAvg7.IsZero())
	assert.Zero(t, out[0].Groups[1].Days)

	assert.Equal(t, "Shop", out[1].Location)
	assert.True(t, out[1].SalesAvg7.Equal(d("100")), out[1].SalesAvg7.String())
	assert.Equal(t, categorize.SmallTube, out[1].Groups[1].Group)
	assert.True(t, out[1].Groups[1].QuantityAvg7.Equal(d("3")))
}

func TestBuildCountsReceiptOncePerDay(t *testing.T) {
	in := groupsOf(categorize.New(nil, nil))
	in.Rows = []domain.NetRow{
		netRow("R-1", 1, "Cold room", "น้ำแข็งป่น", 1, 900),
		netRow("R-1", 1, "Cold room", "น้ำแข็งหลอดใหญ่", 2, 900),
		netRow("R-2", 1, "Cold room", "", 0, -300),
	}

	out := Build(in, time.UTC)

	require.Len(t, out, 1)
	assert.True(t, out[0].SalesAvg7.Equal(d("600")), out[0].SalesAvg7.String())
	assert.True(t, out[0].Groups[2].QuantityAvg7.Equal(d("2")))
	assert.Equal(t, 1, out[0].Groups[2].Days)
}

func TestBuildKeepsOverrideGroups(t *testing.T) {
	c := categorize.New(nil, []domain.ManualCategory{{ItemID: "item-cup", Category: "Cups"}})
	in := groupsOf(c)
	in.Rows = []domain.NetRow{netRow("R-1", 1, "Shop", "cup", 3, 30)}

	out := Build(in, time.UTC)

	require.Len(t, out, 1)
	groups := out[0].Groups
	require.Len(t, groups, 5)
	assert.Equal(t, "Cups", groups[4].Group)
	assert.True(t, groups[4].QuantityAvg7.Equal(d("3")))
}

func TestBuildEmpty(t *testing.T) {
	out := Build(Input{}, time.UTC)

	assert.NotNil(t, out)
	assert.Empty(t, out)
}

type jsonCache struct {
	data    map[string][]byte
	readErr error
}

func (c *jsonCache) Get(_ context.Context, key string, dst any) (bool, error) {
	if c.readErr != nil {
		return false, c.readErr
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *jsonCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = raw
	return nil
}

func (c *jsonCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func TestForecastServesRepeatScopeFromCache(t *testing.T) {
	c := &jsonCache{}
	engine := NewEngine(c, time.Minute, time.UTC)
	loads := 0
	load := func(context.Context) (Input, error) {
		loads++
		in := groupsOf(categorize.New(nil, nil))
		in.Rows = []domain.NetRow{netRow("R-1", 1, "Shop", "น้ำแข็งป่น", 4, 400)}
		return in, nil
	}
	ctx := context.Background()

	first, err := engine.Forecast(ctx, "receipts=1", load)
	require.NoError(t, err)
	second, err := engine.Forecast(ctx, "receipts=1", load)
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
	require.Len(t, second, 1)
	assert.True(t, second[0].SalesAvg7.Equal(first[0].SalesAvg7))
	assert.True(t, second[0].Groups[0].QuantityAvg7.Equal(d("4")))
	assert.Contains(t, c.data, buildCacheKey("receipts=1"))

	_, err = engine.Forecast(ctx, "receipts=2", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestForecastComputesWhenCacheFails(t *testing.T) {
	engine := NewEngine(&jsonCache{readErr: errors.New("redis down")}, 0, nil)

	out, err := engine.Forecast(context.Background(), "s", func(context.Context) (Input, error) {
		return Input{Rows: []domain.NetRow{netRow("R-1", 1, "Shop", "", 0, 70)}}, nil
	})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].SalesAvg7.Equal(d("70")))
}

func TestForecastReturnsLoadError(t *testing.T) {
	engine := NewEngine(nil, 0, nil)
	boom := errors.New("view failed")

	_, err := engine.Forecast(context.Background(), "s", func(context.Context) (Input, error) {
		return Input{}, boom
	})

	require.ErrorIs(t, err, boom)
}

func TestCacheKeyIsNamespaced(t *testing.T) {
	key := buildCacheKey("a")

	assert.Contains(t, key, "posdash:metadata:forecast:")
	assert.NotEqual(t, key, buildCacheKey("b"))
}
