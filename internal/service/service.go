package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tirepos/backend/internal/cache"
	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/events"
	"tirepos/backend/internal/invoice"
	"tirepos/backend/internal/metrics"
	"tirepos/backend/internal/scope"
	"tirepos/backend/internal/store"
	"tirepos/backend/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("session required")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError describes a rejected request. It matches store.ErrInvalid
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalid
}

func invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type sessionContextKey struct{}

func WithSession(ctx context.Context, session scope.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func SessionFromContext(ctx context.Context) (scope.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(scope.Session)
	return session, ok
}

type Options struct {
	Logger               *slog.Logger
	ScopeCache           cache.ScopeCache
	ScopeCacheTTL        time.Duration
	Events               events.Publisher
	Metrics              *metrics.Metrics
	Invoices             invoice.Submitter
	LowStockThreshold    int
	DefaultResetPassword string
}

type Service struct {
	repo                 store.Repository
	logger               *slog.Logger
	scopeCache           cache.ScopeCache
	scopeCacheTTL        time.Duration
	events               events.Publisher
	metrics              *metrics.Metrics
	invoices             invoice.Submitter
	lowStockThreshold    int
	defaultResetPassword string
	now                  func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ScopeCache == nil {
		opts.ScopeCache = cache.NoopScopeCache{}
	}
	if opts.ScopeCacheTTL <= 0 {
		opts.ScopeCacheTTL = time.Minute
	}
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Invoices == nil {
		opts.Invoices = invoice.NewSimulatedSubmitter(0)
	}
	if opts.LowStockThreshold < 0 {
		opts.LowStockThreshold = 0
	}
	if strings.TrimSpace(opts.DefaultResetPassword) == "" {
		opts.DefaultResetPassword = "1234"
	}

	return &Service{
		repo:                 repo,
		logger:               opts.Logger.With("component", "service"),
		scopeCache:           opts.ScopeCache,
		scopeCacheTTL:        opts.ScopeCacheTTL,
		events:               opts.Events,
		metrics:              opts.Metrics,
		invoices:             opts.Invoices,
		lowStockThreshold:    opts.LowStockThreshold,
		defaultResetPassword: opts.DefaultResetPassword,
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) session(ctx context.Context) (scope.Session, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.Identity.ID == "" {
		return scope.Session{}, ErrUnauthenticated
	}
	return session, nil
}

// require returns the session when its effective capability covers
// capability. Identity role plays no part.
func (s *Service) require(ctx context.Context, capability string) (scope.Session, error) {
	session, err := s.session(ctx)
	if err != nil {
		return scope.Session{}, err
	}
	if !session.Can(capability) {
		return scope.Session{}, fmt.Errorf("%w: %s capability required", ErrForbidden, strings.ToLower(capability))
	}
	return session, nil
}

// visibility resolves the identity's branch set, going through the scope
// cache for owners.
func (s *Service) visibility(ctx context.Context, identity scope.Identity) (scope.Visibility, error) {
	if identity.Role == domain.RoleSuperAdmin {
		return scope.Unrestricted(), nil
	}

	if ids, ok, err := s.scopeCache.Get(ctx, identity.ID); err != nil {
		s.logger.Warn("scope cache read failed", "owner_id", identity.ID, "error", err)
	} else if ok {
		return scope.FromStoreIDs(ids), nil
	}

	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return scope.Visibility{}, err
	}
	v := scope.Visible(identity, stores)
	if err := s.scopeCache.Set(ctx, identity.ID, v.StoreIDs(), s.scopeCacheTTL); err != nil {
		s.logger.Warn("scope cache write failed", "owner_id", identity.ID, "error", err)
	}
	return v, nil
}

// targetStore picks the branch a write lands in and checks it is visible.
func (s *Service) targetStore(ctx context.Context, session scope.Session, requested string) (string, error) {
	storeID := strings.TrimSpace(requested)
	if storeID == "" {
		storeID = session.DefaultStore()
	}
	if storeID == "" || storeID == domain.AllStores {
		return "", invalid("store_id", "a branch is required")
	}
	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return "", err
	}
	if !v.Contains(storeID) {
		return "", fmt.Errorf("%w: branch %s is not visible", ErrForbidden, storeID)
	}
	return storeID, nil
}

// readScope narrows a listing to one branch when the request names one,
// otherwise to everything the identity sees.
func (s *Service) readScope(ctx context.Context, session scope.Session, storeID string) (scope.Visibility, error) {
	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return scope.Visibility{}, err
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" || storeID == domain.AllStores {
		return v, nil
	}
	if !v.Contains(storeID) {
		return scope.Visibility{}, fmt.Errorf("%w: branch %s is not visible", ErrForbidden, storeID)
	}
	return scope.FromStoreIDs([]string{storeID}), nil
}

func (s *Service) invalidateScope(ctx context.Context, ownerID string) {
	if err := s.scopeCache.Invalidate(ctx, ownerID); err != nil {
		s.logger.Warn("scope cache invalidate failed", "owner_id", ownerID, "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	session, ok := SessionFromContext(ctx)
	actorID, actorRole := "system", "system"
	if ok {
		actorID, actorRole = session.Identity.ID, session.Capability
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		StoreID:    storeID,
		ActorID:    actorID,
		ActorRole:  actorRole,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, subject string, storeID string, entityID string, payload any) {
	actorID := ""
	if session, ok := SessionFromContext(ctx); ok {
		actorID = session.Identity.ID
	}
	if err := s.events.Publish(ctx, events.Event{
		Subject:    subject,
		StoreID:    storeID,
		EntityID:   entityID,
		ActorID:    actorID,
		OccurredAt: s.now(),
		Payload:    payload,
	}); err != nil {
		s.logger.Warn("event publish failed", "subject", subject, "entity_id", entityID, "error", err)
	}
}

// parseDay reads a YYYY-MM-DD date as a UTC day range. An empty date means
// today.
func (s *Service) parseDay(date string) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return time.Time{}, time.Time{}, invalid("date", "expected YYYY-MM-DD")
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), nil
}

// parseRange reads optional from/to dates; to is inclusive of its whole day.
func parseRange(from string, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	if strings.TrimSpace(from) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(from))
		if err != nil {
			return time.Time{}, time.Time{}, invalid("from", "expected YYYY-MM-DD")
		}
		start = parsed.UTC()
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(to))
		if err != nil {
			return time.Time{}, time.Time{}, invalid("to", "expected YYYY-MM-DD")
		}
		end = parsed.UTC().Add(24 * time.Hour)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return time.Time{}, time.Time{}, invalid("from", "must not be after to")
	}
	return start, end, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
