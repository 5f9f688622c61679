package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-tours/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/db"
)

// DefaultCacheTTL bounds how long a permission change may take to apply.
const DefaultCacheTTL = time.Minute

// Service resolves user permissions from roles, cached in Redis.
type Service struct {
	db     db.DBTX
	cache  redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewService constructs a Service. cache may be nil to always hit the database.
func NewService(conn db.DBTX, cache redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: conn, cache: cache, ttl: ttl, logger: logger}
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	key := cacheKey(userID)
	if s.cache != nil {
		var perms []string
		found, err := cache.GetJSON(ctx, s.cache, key, &perms)
		if err != nil {
			s.logger.Warn("rbac cache read", slog.Int64("user_id", userID), slog.Any("error", err))
		} else if found {
			return perms, nil
		}
	}

	rows, err := s.db.Query(ctx, `SELECT DISTINCT lower(p.name)
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, perms, s.ttl); err != nil {
			s.logger.Warn("rbac cache write", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	return perms, nil
}

// Invalidate drops the cached permissions of a user.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKey(userID)).Err()
}

// EnsurePermissions upserts the named permissions so roles can reference them.
func (s *Service) EnsurePermissions(ctx context.Context, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		_, err := s.db.Exec(ctx, `INSERT INTO permissions (name, description) VALUES ($1, '')
			ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("rbac: ensure permission %s: %w", name, err)
		}
	}
	return nil
}

func cacheKey(userID int64) string {
	return "rbac:perms:" + strconv.FormatInt(userID, 10)
}
