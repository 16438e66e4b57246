package lock

import (
	"fmt"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/infrastructure/config"
	"go.uber.org/zap"
)

// New creates the run lock for cfg.
// With Redis disabled the in-memory lock is used. When Redis is enabled but unreachable the
// in-memory lock is used only if fallback is allowed.
func New(cfg config.RedisConfig, allowFallback bool, logger *zap.Logger) (importapp.RunLock, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("Using in-memory run lock")
		return NewInMemoryLock(), nil
	}

	redisLock, err := NewRedisLock(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err == nil {
		logger.Info("Using Redis run lock")
		return redisLock, nil
	}
	if !allowFallback {
		return nil, fmt.Errorf("Redis required for the run lock but unavailable: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory run lock. "+
		"Runs started from other processes will not be serialized.",
		zap.Error(err))
	return NewInMemoryLock(), nil
}
