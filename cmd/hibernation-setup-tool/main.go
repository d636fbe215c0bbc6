// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command hibernation-setup-tool provisions a swap area sized for resuming
// this virtual machine from hibernation and points the boot configuration at
// it. It takes no arguments and is meant to run once per boot or
// hibernation-trigger event.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dcui/hibernation-setup-tool/hibernate"
)

func buildLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewProductionEncoderConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	// output lands in the journal, which timestamps on its own
	cfg.EncoderConfig.TimeKey = ""
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return zap.Must(cfg.Build())
}

func main() {
	logger := buildLogger()

	agent := hibernate.New(hibernate.WithLogger(logger))

	if err := agent.Run(context.Background()); err != nil {
		logger.Error("hibernation setup failed", zap.Error(err))
		logger.Sync() //nolint:errcheck

		os.Exit(1)
	}

	logger.Sync() //nolint:errcheck
}
