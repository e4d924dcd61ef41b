package server

import (
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"musubi/config"
)

// ReadyState tracks initialization state for health checks
type ReadyState struct {
	db            *pgxpool.Pool
	rdb           *redis.Client
	config        *config.Config
	schemaReady   atomic.Bool
	redisReady    atomic.Bool
	webhooksReady atomic.Bool
}

// NewReadyState creates a new ReadyState instance
func NewReadyState(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *ReadyState {
	return &ReadyState{db: db, rdb: rdb, config: cfg}
}

// MarkSchemaReady marks the database migration step as complete
func (r *ReadyState) MarkSchemaReady() {
	r.schemaReady.Store(true)
}

// MarkRedisReady marks the Redis initialization as complete
func (r *ReadyState) MarkRedisReady() {
	r.redisReady.Store(true)
}

// MarkWebhooksReady marks Telegram webhook registration as complete
func (r *ReadyState) MarkWebhooksReady() {
	r.webhooksReady.Store(true)
}

// IsFullyReady returns true if all initialization steps are complete
func (r *ReadyState) IsFullyReady() bool {
	return r.schemaReady.Load() &&
		r.redisReady.Load() &&
		r.webhooksReady.Load()
}

// GetDB returns the database connection pool
func (r *ReadyState) GetDB() *pgxpool.Pool {
	return r.db
}

// GetRedis returns the Redis client
func (r *ReadyState) GetRedis() *redis.Client {
	return r.rdb
}

// GetConfig returns the application configuration
func (r *ReadyState) GetConfig() *config.Config {
	return r.config
}

// IsSchemaReady returns true if migrations have run
func (r *ReadyState) IsSchemaReady() bool {
	return r.schemaReady.Load()
}

// IsRedisReady returns true if Redis initialization is complete
func (r *ReadyState) IsRedisReady() bool {
	return r.redisReady.Load()
}

// IsWebhooksReady returns true if webhook registration is complete
func (r *ReadyState) IsWebhooksReady() bool {
	return r.webhooksReady.Load()
}
