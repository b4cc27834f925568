// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// SignalHandler is a Runner returning once one of its signals is received,
// which ends the run group and triggers shutdown
type SignalHandler struct {
	logger  *slog.Logger
	signals []os.Signal
	notify  chan os.Signal
}

var _ Runner = (*SignalHandler)(nil)

func NewSignalHandler(logger *slog.Logger, signals ...os.Signal) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalHandler{
		logger:  logger.With("service", "signal-handler"),
		signals: signals,
		notify:  make(chan os.Signal, 1),
	}
}

func (sh *SignalHandler) Name() string {
	return "signal-handler"
}

func (sh *SignalHandler) Run(ctx context.Context) error {
	signal.Notify(sh.notify, sh.signals...)
	defer signal.Stop(sh.notify)

	select {
	case sig := <-sh.notify:
		sh.logger.Info("Received signal, shutting down", "signal", sig.String())
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}
