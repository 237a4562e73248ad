package session

import (
	"fmt"

	"github.com/yektayar/gateway/internal/common/config"
	"go.uber.org/zap"
)

// Type represents the type of session validator backend
type Type string

const (
	// TypeMemory represents the in-memory validator
	TypeMemory Type = "memory"
	// TypeRedis represents the Redis-backed validator
	TypeRedis Type = "redis"
)

// NewValidator creates a session validator based on configuration
func NewValidator(logger *zap.Logger, cfg *config.SessionConfig) (Validator, error) {
	logger.Info("Initializing session validator", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeMemory:
		return NewMemoryValidator(), nil
	case TypeRedis:
		return NewRedisValidator(logger, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported session validator type: %s", cfg.Type)
	}
}
