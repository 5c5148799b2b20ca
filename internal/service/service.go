package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/catalog"
	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/lock"
	"bakerypos/backend/internal/pricing"
	"bakerypos/backend/internal/recommendation"
	"bakerypos/backend/internal/store"
	"bakerypos/backend/internal/xid"
)

var (
	ErrForbidden         = errors.New("admin role required")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrUnsupportedFormat = errors.New("unsupported sheet format")
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Location      *time.Location
	ReportTTL     time.Duration
	Suggestions   cache.SuggestionCache
	SuggestionTTL time.Duration

	// Locker serialises settlements of one order across replicas.
	Locker lock.Locker
	Now    func() time.Time
}

type Service struct {
	repo      store.Repository
	drafts    checkout.DraftStore
	checkout  *checkout.Orchestrator
	reports   cache.ReportCache
	loc       *time.Location
	reportTTL time.Duration
	suggest   *recommendation.Engine
	locker    lock.Locker
	now       func() time.Time
	logger    *log.Entry
}

func New(repo store.Repository, drafts checkout.DraftStore, orchestrator *checkout.Orchestrator, reports cache.ReportCache, opts Options) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker()
	}
	if orchestrator == nil {
		orchestrator = checkout.NewOrchestrator(drafts, repo, checkout.Options{Now: opts.Now})
	}

	return &Service{
		repo:      repo,
		drafts:    drafts,
		checkout:  orchestrator,
		reports:   reports,
		loc:       opts.Location,
		reportTTL: opts.ReportTTL,
		suggest:   recommendation.NewEngine(opts.Suggestions, opts.SuggestionTTL),
		locker:    opts.Locker,
		now:       opts.Now,
		logger:    log.WithField("component", "service"),
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.InventoryItem, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.InventoryItem{}, err
	}

	item := domain.InventoryItem{
		Name:       strings.TrimSpace(req.Name),
		Price:      req.Price,
		Category:   strings.TrimSpace(req.Category),
		Stock:      req.Stock,
		TrackStock: req.TrackStock,
		Image:      strings.TrimSpace(req.Image),
		Variants:   append([]domain.Variant(nil), req.Variants...),
	}
	if item.Category == "" {
		item.Category = catalog.DefaultCategory
	}
	for i := range item.Variants {
		item.Variants[i].Name = strings.TrimSpace(item.Variants[i].Name)
		if item.Variants[i].ID == "" {
			item.Variants[i].ID = xid.New("VAR")
		}
	}

	created, err := s.repo.AddItem(ctx, item)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.logAudit(ctx, "item_create", "item", created.ID, fmt.Sprintf("name=%s,price=%.2f,stock=%d", created.Name, created.Price, created.Stock))
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.InventoryItem, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.InventoryItem{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InventoryItem{}, store.ErrInvalidInput
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}

	updated, err := s.repo.UpdateItem(ctx, id, patch)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.logAudit(ctx, "item_update", "item", updated.ID, fmt.Sprintf("name=%s,price=%.2f,stock=%d", updated.Name, updated.Price, updated.Stock))
	return *updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logAudit(ctx, "item_delete", "item", id, "")
	return nil
}

// AddVariant appends a "<value> <unit>" variant to an item. Without an explicit
// price the variant is priced off the item's first variant by weight or volume.
func (s *Service) AddVariant(ctx context.Context, itemID string, req domain.VariantCreateRequest) (domain.InventoryItem, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.InventoryItem{}, err
	}

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	name := strings.TrimSpace(req.Value) + " " + strings.TrimSpace(req.Unit)
	name = strings.TrimSpace(name)
	for _, v := range item.Variants {
		if strings.EqualFold(v.Name, name) {
			return domain.InventoryItem{}, fmt.Errorf("%w: variant %q already exists", store.ErrConflict, name)
		}
	}

	var price float64
	switch {
	case req.Price != nil:
		price = *req.Price
	case len(item.Variants) > 0:
		suggested, ok := pricing.EstimatePrice(item.Variants[0].Price, item.Variants[0].Name, name)
		if !ok {
			return domain.InventoryItem{}, fmt.Errorf("%w: price required, no estimate for %q", store.ErrInvalidInput, name)
		}
		price = suggested
	default:
		return domain.InventoryItem{}, fmt.Errorf("%w: price required for the first variant", store.ErrInvalidInput)
	}

	variants := append(append([]domain.Variant(nil), item.Variants...), domain.Variant{
		ID:    xid.New("VAR"),
		Name:  name,
		Price: price,
		Stock: req.Stock,
	})
	updated, err := s.repo.UpdateItem(ctx, item.ID, domain.ItemPatch{Variants: &variants})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.logAudit(ctx, "variant_create", "item", updated.ID, fmt.Sprintf("variant=%s,price=%.2f", name, price))
	return *updated, nil
}

// SuggestVariantPrice never fails on an unknown unit; it reports Available=false.
func (s *Service) SuggestVariantPrice(ctx context.Context, itemID string, target string) (domain.VariantSuggestion, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.VariantSuggestion{}, err
	}
	suggestion := domain.VariantSuggestion{ItemID: item.ID, Target: strings.TrimSpace(target)}
	if len(item.Variants) == 0 {
		return suggestion, nil
	}
	base := item.Variants[0]
	suggestion.BaseLabel = base.Name
	suggestion.Price, suggestion.Available = pricing.EstimatePrice(base.Price, base.Name, suggestion.Target)
	return suggestion, nil
}

func parseSheet(r io.Reader, format string) ([]catalog.Row, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatCSV:
		return catalog.ParseCSV(r)
	case FormatXLSX:
		return catalog.ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ImportItems applies an uploaded sheet. Rows that fail to apply are logged and
// counted as skipped; the import itself only fails when the sheet is unreadable.
func (s *Service) ImportItems(ctx context.Context, r io.Reader, format string, skipDuplicates bool) (domain.ImportSummary, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ImportSummary{}, err
	}

	rows, err := parseSheet(r, format)
	if errors.Is(err, ErrUnsupportedFormat) {
		return domain.ImportSummary{}, err
	}
	if err != nil {
		return domain.ImportSummary{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	existing, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.ImportSummary{}, err
	}

	plan := catalog.Reconcile(rows, existing, skipDuplicates)
	summary := domain.ImportSummary{Duplicates: plan.Duplicates, Skipped: plan.Skipped}
	for _, item := range plan.Inserts {
		if _, err := s.repo.AddItem(ctx, item); err != nil {
			s.logger.WithError(err).WithField("name", item.Name).Warn("import insert failed")
			summary.Skipped++
			continue
		}
		summary.Inserted++
	}
	for _, item := range plan.Updates {
		patch := domain.ItemPatch{
			Price:      &item.Price,
			Category:   &item.Category,
			Stock:      &item.Stock,
			TrackStock: &item.TrackStock,
		}
		if _, err := s.repo.UpdateItem(ctx, item.ID, patch); err != nil {
			s.logger.WithError(err).WithField("item_id", item.ID).Warn("import update failed")
			summary.Skipped++
			continue
		}
		summary.Updated++
	}

	s.logAudit(ctx, "items_import", "item", "bulk", fmt.Sprintf("inserted=%d,updated=%d,duplicates=%d,skipped=%d", summary.Inserted, summary.Updated, summary.Duplicates, summary.Skipped))
	return summary, nil
}

func (s *Service) ExportItems(ctx context.Context, w io.Writer, format string) error {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatCSV:
		return catalog.WriteCSV(w, items)
	case FormatXLSX:
		return catalog.WriteXLSX(w, items)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.CustomerProfile, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	// Without a date: the last 24 hours, open ended.
	if strings.TrimSpace(date) == "" {
		return s.repo.ListAuditLogs(ctx, s.now().Add(-24*time.Hour), zeroTime, limit)
	}
	from, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, from.AddDate(0, 0, 1), limit)
}

// parseDay reads yyyy-MM-dd as the start of that business day.
func (s *Service) parseDay(date string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be yyyy-mm-dd", store.ErrInvalidInput)
	}
	return day, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("AUD"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"action": action, "entity": entityType + "/" + entityID}).Warn("failed to write audit log")
	}
}
