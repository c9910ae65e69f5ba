// Package forecast projects next-day demand per location and product group
// from recent trading days.
package forecast

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"posdash/internal/cache"
	"posdash/internal/domain"
	"posdash/internal/reconcile"
	"posdash/internal/store"
)

const (
	DefaultTTL = 5 * time.Minute
	window     = 7
)

// Input is what a forecast is computed from. Groups lists the product groups
// every location reports, in display order, even when nothing was sold.
type Input struct {
	Rows       []domain.NetRow
	Classifier reconcile.Classifier
	Groups     []string
}

type Engine struct {
	cache    cache.MetadataCache
	cacheTTL time.Duration
	loc      *time.Location
}

func NewEngine(cacheStore cache.MetadataCache, cacheTTL time.Duration, loc *time.Location) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopMetadataCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultTTL
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{cache: cacheStore, cacheTTL: cacheTTL, loc: loc}
}

// Forecast returns the cached forecast for scope, or loads the input and
// computes it. scope must change whenever the underlying data does.
func (e *Engine) Forecast(ctx context.Context, scope string, load func(context.Context) (Input, error)) ([]domain.LocationForecast, error) {
	logger := log.With().Str("component", "forecast").Logger()
	key := buildCacheKey(scope)

	var cached []domain.LocationForecast
	ok, err := e.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn().Err(err).Msg("forecast cache read failed")
	}
	if ok {
		return cached, nil
	}

	in, err := load(ctx)
	if err != nil {
		return nil, err
	}
	out := Build(in, e.loc)
	if err := e.cache.Set(ctx, key, out, e.cacheTTL); err != nil {
		logger.Warn().Err(err).Msg("forecast cache write failed")
	}
	return out, nil
}

// Build averages the last seven trading days of each location: quantity per
// product group and receipt-level signed net. With fewer days on record the
// average covers what there is. Rows without a location are left out.
// Locations are ordered by expected sales, highest first.
func Build(in Input, loc *time.Location) []domain.LocationForecast {
	byLocation := make(map[string][]domain.NetRow)
	for _, row := range in.Rows {
		name := reconcile.ByLocation.Key(row)
		if name == store.Uncategorized {
			continue
		}
		byLocation[name] = append(byLocation[name], row)
	}

	names := make([]string, 0, len(byLocation))
	for name := range byLocation {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.LocationForecast, 0, len(names))
	for _, name := range names {
		rows := byLocation[name]
		out = append(out, domain.LocationForecast{
			Location:  name,
			SalesAvg7: salesAverage(rows, loc),
			Groups:    groupAverages(rows, in.Classifier, in.Groups, loc),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SalesAvg7.GreaterThan(out[j].SalesAvg7)
	})
	return out
}

func salesAverage(rows []domain.NetRow, loc *time.Location) decimal.Decimal {
	buckets := reconcile.SumBy(rows, reconcile.ByDay(loc))
	values := make([]decimal.Decimal, len(buckets))
	for i, b := range buckets {
		values[i] = b.SignedNet
	}
	return trailingMean(values).Round(0)
}

func groupAverages(rows []domain.NetRow, classifier reconcile.Classifier, groups []string, loc *time.Location) []domain.GroupForecast {
	daily := make(map[string]map[string]decimal.Decimal)
	for _, row := range rows {
		if row.LineItemID == "" || !row.Quantity.Valid || classifier == nil {
			continue
		}
		group := classifier.Category(row.ItemID, row.ItemName)
		days, ok := daily[group]
		if !ok {
			days = make(map[string]decimal.Decimal)
			daily[group] = days
		}
		day := reconcile.LocalDay(row, loc)
		days[day] = days[day].Add(row.Quantity.Decimal)
	}

	order := append([]string(nil), groups...)
	known := make(map[string]struct{}, len(order))
	for _, g := range order {
		known[g] = struct{}{}
	}
	var extra []string
	for g := range daily {
		if _, ok := known[g]; !ok {
			extra = append(extra, g)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := make([]domain.GroupForecast, 0, len(order))
	for _, g := range order {
		days := daily[g]
		keys := make([]string, 0, len(days))
		for day := range days {
			keys = append(keys, day)
		}
		sort.Strings(keys)
		values := make([]decimal.Decimal, len(keys))
		for i, day := range keys {
			values[i] = days[day]
		}
		out = append(out, domain.GroupForecast{
			Group:        g,
			QuantityAvg7: trailingMean(values).Round(1),
			Days:         len(keys),
		})
	}
	return out
}

// trailingMean averages the last seven values, or all of them when fewer.
func trailingMean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func buildCacheKey(scope string) string {
	hash := sha1.Sum([]byte(strings.TrimSpace(scope)))
	return cache.Key("forecast", hex.EncodeToString(hash[:]))
}
