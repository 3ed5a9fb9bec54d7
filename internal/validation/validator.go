package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/engagement/internal/config"
)

var ErrInvalidAPIKey = errors.New("invalid API key")

// keyPrefixLen is how much of a key is used for the cache entry.
const keyPrefixLen = 12

type Validator struct {
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
}

func NewValidator(cfg *config.Config) (*Validator, error) {
	// Connect to PostgreSQL
	db, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &Validator{
		db:    db,
		redis: rdb,
		cfg:   cfg,
	}, nil
}

// ValidateAPIKey resolves a project key to its project id.
func (v *Validator) ValidateAPIKey(ctx context.Context, apiKey string) (string, error) {
	if len(apiKey) < keyPrefixLen {
		return "", ErrInvalidAPIKey
	}

	// Check cache first
	cacheKey := "apikey:" + apiKey[:keyPrefixLen]
	projectID, err := v.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		return projectID, nil
	}

	keyHash := HashKey(apiKey)

	var id string
	err = v.db.QueryRow(ctx, `
		SELECT project_id::text FROM api_keys
		WHERE key_hash = $1 AND is_active = true
		AND (expires_at IS NULL OR expires_at > NOW())
	`, keyHash).Scan(&id)

	if err != nil {
		return "", ErrInvalidAPIKey
	}

	// Cache for 5 minutes
	v.redis.Set(ctx, cacheKey, id, 5*time.Minute)

	// Update last used
	go func() {
		if _, err := v.db.Exec(context.Background(), `
			UPDATE api_keys
			SET last_used_at = NOW(), request_count = request_count + 1
			WHERE key_hash = $1
		`, keyHash); err != nil {
			log.Warn().Err(err).Msg("Failed to update api key usage")
		}
	}()

	return id, nil
}

// CheckRateLimit applies a fixed one-second window per project. Redis errors
// let the request through.
func (v *Validator) CheckRateLimit(ctx context.Context, projectID string) bool {
	key := "ratelimit:" + projectID

	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}

	// Set expiry on first request
	if count == 1 {
		v.redis.Expire(ctx, key, time.Second)
	}

	return count <= int64(v.cfg.RateLimit.RequestsPerSecond+v.cfg.RateLimit.Burst)
}

// HashKey is the stored form of an API key.
func HashKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

func (v *Validator) Close() {
	if v.db != nil {
		v.db.Close()
	}
	if v.redis != nil {
		v.redis.Close()
	}
}
