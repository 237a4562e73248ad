package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yektayar/gateway/internal/common/config"
	"go.uber.org/zap"
)

// RedisValidator implements Validator against the platform session store in Redis
type RedisValidator struct {
	logger *zap.Logger
	client *redis.Client
	prefix string
}

var _ Validator = (*RedisValidator)(nil)

// NewRedisValidator creates a Redis-backed session validator
func NewRedisValidator(logger *zap.Logger, cfg config.SessionRedisConfig) (*RedisValidator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "session:"
	}

	return &RedisValidator{
		logger: logger.Named("session.validator.redis"),
		client: client,
		prefix: prefix,
	}, nil
}

// Validate implements Validator.Validate
func (v *RedisValidator) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	data, err := v.client.Get(ctx, v.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		v.logger.Error("failed to unmarshal session record",
			zap.String("token", token[:min(len(token), 8)]),
			zap.Error(err))
		return nil, ErrSessionNotFound
	}

	if sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}

	// Refresh last activity on a best-effort basis. The gateway does not
	// read this field back, so failures are only logged.
	go v.touch(sess.Token)

	return &sess, nil
}

func (v *RedisValidator) touch(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := v.client.HSet(ctx, v.prefix+token+":activity", "last_activity_at", time.Now().Format(time.RFC3339)).Err(); err != nil {
		v.logger.Debug("failed to refresh session activity", zap.Error(err))
	}
}

// Close releases the Redis client.
func (v *RedisValidator) Close() error {
	return v.client.Close()
}
