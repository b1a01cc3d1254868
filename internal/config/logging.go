package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger from the logging section.
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if l.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	if l.Level != "" {
		level, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}
