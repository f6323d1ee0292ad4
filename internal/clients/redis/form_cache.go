package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/envutil"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

// FormCache is a read-through cache for published form definitions. Forms are
// read on every conversation turn but change rarely, so a short TTL keeps the
// hot path off Postgres without a separate invalidation protocol.
type FormCache interface {
	Get(ctx context.Context, formID uuid.UUID) (*domain.Form, bool)
	Set(ctx context.Context, form *domain.Form)
	Invalidate(ctx context.Context, formID uuid.UUID) error
	Close() error
}

type formCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewFormCache(log *logger.Logger) (FormCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttl := envutil.Duration("REDIS_FORM_TTL", 5*time.Minute)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &formCache{
		log: log.With("client", "RedisFormCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func formKey(formID uuid.UUID) string {
	return "form:" + formID.String()
}

func (c *formCache) Get(ctx context.Context, formID uuid.UUID) (*domain.Form, bool) {
	raw, err := c.rdb.Get(ctx, formKey(formID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("form cache get failed", "form_id", formID, "error", err)
		}
		return nil, false
	}
	var form domain.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		c.log.Warn("form cache entry corrupt, dropping", "form_id", formID, "error", err)
		_ = c.rdb.Del(ctx, formKey(formID)).Err()
		return nil, false
	}
	return &form, true
}

func (c *formCache) Set(ctx context.Context, form *domain.Form) {
	if form == nil || form.ID == uuid.Nil {
		return
	}
	raw, err := json.Marshal(form)
	if err != nil {
		c.log.Warn("form cache marshal failed", "form_id", form.ID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, formKey(form.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("form cache set failed", "form_id", form.ID, "error", err)
	}
}

func (c *formCache) Invalidate(ctx context.Context, formID uuid.UUID) error {
	return c.rdb.Del(ctx, formKey(formID)).Err()
}

func (c *formCache) Close() error {
	return c.rdb.Close()
}
