package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/pkg/tracing"
)

// Config is fixed at startup.
type Config struct {
	// Enabled turns permission evaluation on. When false every request is
	// authorized.
	Enabled bool
}

// PermissionLister reads the grants of a role.
type PermissionLister interface {
	ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error)
}

// Evaluator decides whether a role may perform a request. Grants are
// additive: a request is allowed iff at least one grant matches.
type Evaluator struct {
	cfg         Config
	permissions PermissionLister
	logger      *slog.Logger

	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg Config, permissions PermissionLister, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		cfg:         cfg,
		permissions: permissions,
		logger:      logger,
		patterns:    make(map[string]*Pattern),
	}
}

// Enabled reports whether permission evaluation is on.
func (e *Evaluator) Enabled() bool { return e.cfg.Enabled }

// IsAuthorized reports whether role may perform method on path. Admin roles
// are always authorized. A nil role is never authorized while RBAC is on.
func (e *Evaluator) IsAuthorized(ctx context.Context, role *domain.Role, method, path string) (allowed bool, err error) {
	if !e.cfg.Enabled {
		rbacDecisions.WithLabelValues(outcomeDisabled).Inc()
		return true, nil
	}
	if role == nil {
		rbacDecisions.WithLabelValues(outcomeDenied).Inc()
		return false, nil
	}
	if role.IsAdmin {
		rbacDecisions.WithLabelValues(outcomeAdmin).Inc()
		return true, nil
	}

	ctx, end := tracing.StartSpan(ctx, "authcore/rbac", "rbac.IsAuthorized",
		attribute.String("rbac.role_id", role.ID),
		attribute.String("http.method", method),
	)
	defer func() { end(err) }()

	grants, err := e.permissions.ListByRole(ctx, role.ID)
	if err != nil {
		rbacDecisions.WithLabelValues(outcomeError).Inc()
		return false, fmt.Errorf("list permissions for role %s: %w", role.ID, err)
	}

	for _, g := range grants {
		p, err := e.pattern(g.Method, g.Path)
		if err != nil {
			e.logger.WarnContext(ctx, "skipping permission with invalid path pattern",
				slog.String("permission_id", g.ID),
				slog.String("method", g.Method),
				slog.String("path", g.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if p.Match(method, path) {
			rbacDecisions.WithLabelValues(outcomeAllowed).Inc()
			return true, nil
		}
	}

	rbacDecisions.WithLabelValues(outcomeDenied).Inc()
	return false, nil
}

// pattern returns the compiled form of a grant, compiling it once.
func (e *Evaluator) pattern(method, raw string) (*Pattern, error) {
	key := domain.NormalizeMethod(method) + " " + raw

	e.mu.RLock()
	p, ok := e.patterns[key]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := CompileGrant(method, raw)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.patterns[key] = p
	e.mu.Unlock()
	return p, nil
}
