package main

import (
	"github.com/septivank/energy-measurements-api/internal/config"
	"github.com/septivank/energy-measurements-api/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
