package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"posdash/internal/cache"
	"posdash/internal/categorize"
	"posdash/internal/domain"
	"posdash/internal/forecast"
	"posdash/internal/loyverse"
	"posdash/internal/refdata"
	"posdash/internal/store"
)

var (
	ErrSyncInProgress        = errors.New("a sync is already running")
	ErrUpstreamNotConfigured = errors.New("upstream api token is not configured")
	ErrInvalidInput          = errors.New("invalid input")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

// Upstream is the subset of the Loyverse client the service drives.
type Upstream interface {
	Configured() bool
	Receipts(ctx context.Context, q loyverse.ReceiptQuery, fn func(page []domain.Receipt) error) (loyverse.Progress, error)
	Customers(ctx context.Context) ([]domain.Customer, error)
	Items(ctx context.Context) ([]domain.CatalogItem, error)
	PaymentTypes(ctx context.Context) ([]domain.PaymentType, error)
	Stores(ctx context.Context) ([]domain.Store, error)
	Employees(ctx context.Context) ([]domain.Employee, error)
	Categories(ctx context.Context) ([]domain.Category, error)
}

type Options struct {
	Location       *time.Location
	CreditKeywords []string
	MetadataTTL    time.Duration
	ForecastTTL    time.Duration
	// Degraded marks a store that fell back to memory at startup.
	Degraded bool
	Now      func() time.Time
}

type Service struct {
	repo     store.Repository
	refs     *refdata.Cache
	upstream Upstream
	metadata cache.MetadataCache
	forecast *forecast.Engine

	loc            *time.Location
	creditKeywords []string
	metadataTTL    time.Duration
	degraded       bool
	now            func() time.Time

	syncMu sync.Mutex
}

func New(repo store.Repository, upstream Upstream, metadata cache.MetadataCache, opts Options) *Service {
	if metadata == nil {
		metadata = cache.NoopMetadataCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MetadataTTL <= 0 {
		opts.MetadataTTL = cache.DefaultMetadataTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:           repo,
		refs:           refdata.New(repo),
		upstream:       upstream,
		metadata:       metadata,
		forecast:       forecast.NewEngine(metadata, opts.ForecastTTL, opts.Location),
		loc:            opts.Location,
		creditKeywords: opts.CreditKeywords,
		metadataTTL:    opts.MetadataTTL,
		degraded:       opts.Degraded,
		now:            opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Degraded() bool {
	return s.degraded
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// RefreshReferences reloads the display-name lookups from the store.
func (s *Service) RefreshReferences(ctx context.Context) error {
	return s.refs.Refresh(ctx)
}

func (s *Service) ReferenceStatus() domain.ReferenceStatus {
	return s.refs.Status()
}

// MissingReferences lists the reference kinds that have no names loaded;
// rows of those kinds show raw ids.
func (s *Service) MissingReferences() []string {
	return s.refs.Missing()
}

func (s *Service) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return domain.StoreStats{}, err
	}
	stats.Degraded = s.degraded
	return stats, nil
}

func (s *Service) ListManualCategories(ctx context.Context) ([]domain.ManualCategory, error) {
	return s.repo.ListManualCategories(ctx)
}

func (s *Service) SaveManualCategories(ctx context.Context, req domain.ManualCategoryRequest) ([]domain.ManualCategory, error) {
	overrides := make([]domain.ManualCategory, 0, len(req.Overrides))
	for _, in := range req.Overrides {
		override := domain.ManualCategory{
			ItemID:      strings.TrimSpace(in.ItemID),
			ProductName: strings.TrimSpace(in.ProductName),
			Category:    strings.TrimSpace(in.Category),
		}
		if override.Category == "" || (override.ItemID == "" && override.ProductName == "") {
			return nil, store.ErrInvalidRecord
		}
		overrides = append(overrides, override)
	}
	if err := s.repo.SaveManualCategories(ctx, overrides); err != nil {
		return nil, err
	}
	log.Info().Str("component", "service").Str("actor", actorName(ctx)).Int("overrides", len(overrides)).Msg("manual categories saved")
	return s.repo.ListManualCategories(ctx)
}

func (s *Service) ClearManualCategories(ctx context.Context) error {
	if err := s.repo.ClearManualCategories(ctx); err != nil {
		return err
	}
	log.Info().Str("component", "service").Str("actor", actorName(ctx)).Msg("manual categories cleared")
	return nil
}

// ClearAllData wipes receipts, customers and sync history. Catalog and
// reference tables stay. It refuses while a sync is running.
func (s *Service) ClearAllData(ctx context.Context) error {
	if !s.syncMu.TryLock() {
		return ErrSyncInProgress
	}
	defer s.syncMu.Unlock()

	if err := s.repo.ClearAllData(ctx); err != nil {
		return err
	}
	log.Warn().Str("component", "service").Str("actor", actorName(ctx)).Msg("all synced data cleared")
	return s.refs.Refresh(ctx)
}

func (s *Service) categorizer(ctx context.Context) (*categorize.Categorizer, error) {
	overrides, err := s.repo.ListManualCategories(ctx)
	if err != nil {
		return nil, err
	}
	return categorize.New(nil, overrides), nil
}
