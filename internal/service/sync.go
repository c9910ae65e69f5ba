package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"posdash/internal/cache"
	"posdash/internal/domain"
	"posdash/internal/loyverse"
	"posdash/internal/store"
	"posdash/internal/syncplan"
	"posdash/internal/xid"
)

// PlanSync reports the window the next "sync missing data" run would fetch.
func (s *Service) PlanSync(ctx context.Context) (domain.SyncRange, error) {
	bounds, err := s.repo.DateRange(ctx)
	if err != nil {
		return domain.SyncRange{}, err
	}
	return syncplan.Plan(bounds, s.now(), s.loc), nil
}

// SyncMissing fetches receipts created after the newest stored one.
func (s *Service) SyncMissing(ctx context.Context) (domain.SyncResult, error) {
	plan, err := s.PlanSync(ctx)
	if err != nil {
		return domain.SyncResult{Entity: store.SyncKeyReceipts}, err
	}
	return s.syncReceipts(ctx, plan, "")
}

// SyncReceipts fetches receipts for whole calendar days in the report location.
func (s *Service) SyncReceipts(ctx context.Context, req domain.ReceiptSyncRequest) (domain.SyncResult, error) {
	window, err := syncplan.DayWindow(req.Start, req.End, s.loc)
	if err != nil {
		return domain.SyncResult{Entity: store.SyncKeyReceipts}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.syncReceipts(ctx, window, req.StoreID)
}

// syncReceipts walks the upstream pages for window and commits each page in
// its own transaction. When the walk fails after at least one page the result
// is marked partial and no error is returned; committed pages stay.
//
// The walk is detached from ctx cancellation: it ends on completion, an
// upstream error or process exit, never because the caller went away.
func (s *Service) syncReceipts(ctx context.Context, window domain.SyncRange, storeID string) (domain.SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	result := domain.SyncResult{RunID: xid.New("sync"), Entity: store.SyncKeyReceipts, Range: &window}
	if s.upstream == nil || !s.upstream.Configured() {
		return result, ErrUpstreamNotConfigured
	}
	if !s.syncMu.TryLock() {
		return result, ErrSyncInProgress
	}
	defer s.syncMu.Unlock()

	started := s.now()
	result.StartedAt = started.UTC()
	logger := log.With().
		Str("component", "sync").
		Str("run_id", result.RunID).
		Str("actor", actorName(ctx)).
		Str("mode", window.Mode).
		Time("start", window.Start).
		Time("end", window.End).
		Logger()
	logger.Info().Str("reason", window.Reason).Msg("receipt sync started")

	progress, err := s.upstream.Receipts(ctx, loyverse.ReceiptQuery{
		Start:   window.Start,
		End:     window.End,
		StoreID: storeID,
	}, func(page []domain.Receipt) error {
		if len(page) == 0 {
			return nil
		}
		if _, err := s.repo.UpsertReceipts(ctx, page); err != nil {
			return fmt.Errorf("store page: %w", err)
		}
		return nil
	})
	result.Pages = progress.Pages
	result.Records = progress.Records
	result.Duration = s.now().Sub(started).Round(time.Millisecond).String()

	if err != nil {
		result.Error = err.Error()
		if progress.Pages == 0 {
			logger.Error().Err(err).Msg("receipt sync failed")
			return result, err
		}
		result.Partial = true
		logger.Warn().Err(err).Int("pages", progress.Pages).Int("receipts", progress.Records).Msg("receipt sync stopped early")
	} else {
		logger.Info().Int("pages", progress.Pages).Int("receipts", progress.Records).Str("took", result.Duration).Msg("receipt sync finished")
	}

	summary := fmt.Sprintf("%d receipts (%s to %s)", progress.Records,
		domain.FormatTimestamp(window.Start), domain.FormatTimestamp(window.End))
	if result.Partial {
		summary += " partial"
	}
	if err := s.repo.UpdateSyncMetadata(ctx, store.SyncKeyReceipts, summary); err != nil {
		logger.Warn().Err(err).Msg("failed to record sync metadata")
	}
	return result, nil
}

type metadataStep struct {
	entity string
	run    func(ctx context.Context) (int, error)
}

// SyncMetadata refreshes every reference entity and then reloads the
// display-name cache. One failing entity does not stop the others; an error
// is returned only when all of them failed. fresh bypasses the fetch cache.
// Like the receipt walk it runs to the end once started.
func (s *Service) SyncMetadata(ctx context.Context, fresh bool) ([]domain.SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	if s.upstream == nil || !s.upstream.Configured() {
		return nil, ErrUpstreamNotConfigured
	}
	if !s.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.syncMu.Unlock()

	if fresh {
		keys := make([]string, 0, 6)
		for _, entity := range []string{
			store.SyncKeyCustomers, store.SyncKeyPaymentTypes, store.SyncKeyStores,
			store.SyncKeyEmployees, store.SyncKeyCategories, store.SyncKeyItems,
		} {
			keys = append(keys, cache.Key(entity))
		}
		if err := s.metadata.Delete(ctx, keys...); err != nil {
			log.Warn().Str("component", "sync").Err(err).Msg("metadata cache invalidation failed")
		}
	}

	steps := []metadataStep{
		{store.SyncKeyCustomers, func(ctx context.Context) (int, error) {
			rows, err := cachedFetch(ctx, s, store.SyncKeyCustomers, s.upstream.Customers)
			if err != nil {
				return 0, err
			}
			return s.repo.UpsertCustomers(ctx, rows)
		}},
		{store.SyncKeyPaymentTypes, func(ctx context.Context) (int, error) {
			rows, err := cachedFetch(ctx, s, store.SyncKeyPaymentTypes, s.upstream.PaymentTypes)
			if err != nil {
				return 0, err
			}
			return s.repo.UpsertPaymentTypes(ctx, rows)
		}},
		{store.SyncKeyStores, func(ctx context.Context) (int, error) {
			rows, err := cachedFetch(ctx, s, store.SyncKeyStores, s.upstream.Stores)
			if err != nil {
				return 0, err
			}
			return s.repo.UpsertStores(ctx, rows)
		}},
		{store.SyncKeyEmployees, func(ctx context.Context) (int, error) {
			rows, err := cachedFetch(ctx, s, store.SyncKeyEmployees, s.upstream.Employees)
			if err != nil {
				return 0, err
			}
			return s.repo.UpsertEmployees(ctx, rows)
		}},
		{store.SyncKeyCategories, func(ctx context.Context) (int, error) {
			rows, err := cachedFetch(ctx, s, store.SyncKeyCategories, s.upstream.Categories)
			if err != nil {
				return 0, err
			}
			return s.repo.UpsertCategories(ctx, rows)
		}},
		{store.SyncKeyItems, func(ctx context.Context) (int, error) {
			rows, err := cachedFetch(ctx, s, store.SyncKeyItems, s.upstream.Items)
			if err != nil {
				return 0, err
			}
			return s.repo.UpsertCatalogItems(ctx, rows)
		}},
	}

	runID := xid.New("sync")
	results := make([]domain.SyncResult, 0, len(steps))
	var errs []error
	for _, step := range steps {
		started := s.now()
		n, err := step.run(ctx)
		result := domain.SyncResult{
			RunID:     runID,
			Entity:    step.entity,
			Pages:     1,
			Records:   n,
			StartedAt: started.UTC(),
			Duration:  s.now().Sub(started).Round(time.Millisecond).String(),
		}
		logger := log.With().Str("component", "sync").Str("run_id", runID).Str("entity", step.entity).Logger()
		if err != nil {
			result.Pages = 0
			result.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", step.entity, err))
			logger.Error().Err(err).Msg("metadata sync failed")
		} else {
			logger.Info().Int("records", n).Msg("metadata synced")
			if err := s.repo.UpdateSyncMetadata(ctx, step.entity, fmt.Sprintf("%d %s", n, step.entity)); err != nil {
				logger.Warn().Err(err).Msg("failed to record sync metadata")
			}
		}
		results = append(results, result)
	}

	if err := s.refs.Refresh(ctx); err != nil {
		log.Warn().Str("component", "sync").Err(err).Msg("reference refresh failed, keeping previous names")
	} else if missing := s.refs.Missing(); len(missing) > 0 {
		log.Warn().Str("component", "sync").Str("run_id", runID).Strs("kinds", missing).Msg("reference data still empty after metadata sync")
	}
	if len(errs) == len(steps) {
		return results, errors.Join(errs...)
	}
	return results, nil
}

// cachedFetch serves an entity list from the metadata cache, fetching and
// storing it on a miss. Cache failures only cost a fetch.
func cachedFetch[T any](ctx context.Context, s *Service, entity string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	key := cache.Key(entity)
	var cached []T
	ok, err := s.metadata.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Str("component", "sync").Str("entity", entity).Err(err).Msg("metadata cache read failed")
	}
	if ok {
		return cached, nil
	}

	rows, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.metadata.Set(ctx, key, rows, s.metadataTTL); err != nil {
		log.Warn().Str("component", "sync").Str("entity", entity).Err(err).Msg("metadata cache write failed")
	}
	return rows, nil
}
