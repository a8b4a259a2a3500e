package conf

import (
	"context"
	"errors"
)

var (
	ErrConfigNotFound = errors.New("config not found in context")
	ErrInvalidConfig  = errors.New("invalid config in context")
)

// configKey carries the config parsed before the command runs
type configKey struct{}

// GetConfigFromContext returns the config stored by ContextWithConfig.
// It fails with ErrInvalidConfig if the stored config is not a C.
func GetConfigFromContext[C any](ctx context.Context) (C, error) {
	var c C

	value := ctx.Value(configKey{})
	if value == nil {
		return c, ErrConfigNotFound
	}

	config, ok := value.(C)
	if !ok {
		return c, ErrInvalidConfig
	}

	return config, nil
}

func ContextWithConfig[C any](ctx context.Context, config C) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}
