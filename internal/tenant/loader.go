package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// ErrCompanyNotConfigured indicates no posting policy row exists for the
// company.
var ErrCompanyNotConfigured = errors.New("company posting policy not configured")

// RepositoryPort provides the persistent settings lookups.
type RepositoryPort interface {
	GetPolicy(ctx context.Context, companyID int64) (*PostingPolicy, error)
	ListTypeSettings(ctx context.Context, companyID int64) ([]TypeSettings, error)
}

// Loader serves posting settings with a redis cache in front of the
// repository. Concurrent cold reads for one company collapse through
// singleflight so a busy terminal fleet does not stampede the database.
type Loader struct {
	repo  RepositoryPort
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader constructs a loader. A nil redis client disables caching.
func NewLoader(repo RepositoryPort, client *redis.Client, ttl time.Duration) *Loader {
	return &Loader{repo: repo, redis: client, ttl: ttl}
}

func cacheKey(companyID int64) string {
	return fmt.Sprintf("tenant:settings:%d", companyID)
}

// Settings returns the posting settings for a company.
func (l *Loader) Settings(ctx context.Context, companyID int64) (*Settings, error) {
	// Cache miss or unavailability falls through to the repository.
	if l.redis != nil {
		if raw, err := l.redis.Get(ctx, cacheKey(companyID)).Bytes(); err == nil {
			var s Settings
			if json.Unmarshal(raw, &s) == nil {
				return &s, nil
			}
		}
	}

	v, err, _ := l.group.Do(cacheKey(companyID), func() (interface{}, error) {
		return l.load(ctx, companyID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Settings), nil
}

func (l *Loader) load(ctx context.Context, companyID int64) (*Settings, error) {
	policy, err := l.repo.GetPolicy(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: company %d", ErrCompanyNotConfigured, companyID)
	}
	typeRows, err := l.repo.ListTypeSettings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	settings := &Settings{Policy: *policy, Types: map[documents.DocumentType]TypeSettings{}}
	for _, ts := range typeRows {
		settings.Types[ts.DocumentType] = ts
	}

	if l.redis != nil {
		if raw, err := json.Marshal(settings); err == nil {
			_ = l.redis.Set(ctx, cacheKey(companyID), raw, l.ttl).Err()
		}
	}
	return settings, nil
}

// Invalidate drops the cached settings after configuration changes.
func (l *Loader) Invalidate(ctx context.Context, companyID int64) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Del(ctx, cacheKey(companyID)).Err()
}
