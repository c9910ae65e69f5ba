package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"posdash/internal/categorize"
	"posdash/internal/domain"
	"posdash/internal/export"
	"posdash/internal/forecast"
	"posdash/internal/reconcile"
)

// ReceiptsView returns the reporting view with display names attached.
func (s *Service) ReceiptsView(ctx context.Context, filter domain.ViewFilter) ([]domain.EnrichedRow, error) {
	rows, err := s.repo.ReceiptsView(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.refs.Enrich(rows), nil
}

func (s *Service) netRows(ctx context.Context, filter domain.ViewFilter) ([]domain.NetRow, error) {
	rows, err := s.ReceiptsView(ctx, filter)
	if err != nil {
		return nil, err
	}
	net := reconcile.Attach(rows)
	if unknown := reconcile.UnrecognizedTypes(net); len(unknown) > 0 {
		log.Warn().Str("component", "reports").Strs("receipt_types", unknown).Msg("unrecognized receipt types counted as sales")
	}
	return net, nil
}

// NetSales totals signed net per dimension value; by is one of
// reconcile.DimensionNames and defaults to day.
func (s *Service) NetSales(ctx context.Context, filter domain.ViewFilter, by string) ([]domain.NetSalesBucket, error) {
	classifier, err := s.categorizer(ctx)
	if err != nil {
		return nil, err
	}
	dim, err := reconcile.DimensionByName(by, s.loc, classifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rows, err := s.netRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	return reconcile.SumBy(rows, dim), nil
}

func (s *Service) Summary(ctx context.Context, filter domain.ViewFilter) (domain.SalesSummary, error) {
	rows, err := s.netRows(ctx, filter)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return s.summarize(rows, filter), nil
}

// summarize adds the per-day item rate over the filter's period; open
// bounds come from the data.
func (s *Service) summarize(rows []domain.NetRow, filter domain.ViewFilter) domain.SalesSummary {
	days := reconcile.PeriodDays(filter.StartDate, filter.EndDate, rows, s.loc)
	return reconcile.WithPeriod(reconcile.Summarize(rows), days)
}

func (s *Service) Daily(ctx context.Context, filter domain.ViewFilter) ([]domain.DailyPoint, error) {
	rows, err := s.netRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	return reconcile.DailySeries(rows, s.loc), nil
}

func (s *Service) Credit(ctx context.Context, filter domain.ViewFilter) ([]domain.CreditBalance, error) {
	rows, err := s.netRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	return reconcile.CreditAging(rows, s.creditKeywords, s.now(), s.loc), nil
}

// Export writes an XLSX workbook of the reconciled view for filter.
func (s *Service) Export(ctx context.Context, filter domain.ViewFilter, w io.Writer) error {
	rows, err := s.netRows(ctx, filter)
	if err != nil {
		return err
	}
	return export.Write(w, export.Report{
		GeneratedAt: s.now(),
		Filter:      filter,
		Summary:     s.summarize(rows, filter),
		Daily:       reconcile.DailySeries(rows, s.loc),
		Locations:   reconcile.SumBy(rows, reconcile.ByLocation),
		Rows:        rows,
	})
}

// Forecast projects next-day quantity per location and product group from
// the last seven trading days in filter. Results are cached until a sync,
// a manual category change or a wipe alters the data behind them.
func (s *Service) Forecast(ctx context.Context, filter domain.ViewFilter) ([]domain.LocationForecast, error) {
	overrides, err := s.repo.ListManualCategories(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := s.forecastScope(ctx, filter, overrides)
	if err != nil {
		return nil, err
	}
	return s.forecast.Forecast(ctx, scope, func(ctx context.Context) (forecast.Input, error) {
		rows, err := s.netRows(ctx, filter)
		if err != nil {
			return forecast.Input{}, err
		}
		classifier := categorize.New(nil, overrides)
		return forecast.Input{Rows: rows, Classifier: classifier, Groups: classifier.Categories()}, nil
	})
}

// forecastScope fingerprints everything a forecast depends on: the filter,
// the report timezone, the stored receipts, every sync run and the overrides.
func (s *Service) forecastScope(ctx context.Context, filter domain.ViewFilter, overrides []domain.ManualCategory) (string, error) {
	count, err := s.repo.ReceiptCount(ctx)
	if err != nil {
		return "", err
	}
	bounds, err := s.repo.DateRange(ctx)
	if err != nil {
		return "", err
	}
	history, err := s.repo.ListSyncMetadata(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "filter=%s|%s|%s;tz=%s;receipts=%d", filter.StartDate, filter.EndDate, filter.StoreID, s.loc.String(), count)
	if bounds.Max != nil {
		fmt.Fprintf(&b, ";max=%s", *bounds.Max)
	}
	for _, m := range history {
		fmt.Fprintf(&b, ";sync=%s@%s", m.Key, m.LastUpdated.UTC().Format(time.RFC3339Nano))
	}
	for _, o := range overrides {
		fmt.Fprintf(&b, ";override=%s|%s|%s", o.ItemID, o.ProductName, o.Category)
	}
	return b.String(), nil
}
