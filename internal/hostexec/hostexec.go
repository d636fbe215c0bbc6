// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package hostexec runs external host tools on behalf of the agent.
package hostexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/siderolabs/go-cmd/pkg/cmd"
	"go.uber.org/zap"
)

// Command describes a single external program invocation.
type Command struct {
	Name string
	Args []string
}

// String returns the command in a loggable form.
func (c Command) String() string {
	out := c.Name

	for _, arg := range c.Args {
		out += " " + arg
	}

	return out
}

// Runner executes commands on the host.
//
// The production implementation spawns processes; tests substitute fakes.
type Runner interface {
	// Run executes the command and returns an error on non-zero exit.
	Run(ctx context.Context, c Command) error
	// LookPath reports whether an executable with the given name is installed.
	LookPath(name string) (string, bool)
}

// HostRunner executes commands via go-cmd.
type HostRunner struct {
	logger *zap.Logger
}

// NewRunner creates a HostRunner.
func NewRunner(logger *zap.Logger) *HostRunner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HostRunner{logger: logger}
}

// Run implements Runner.
func (r *HostRunner) Run(ctx context.Context, c Command) error {
	r.logger.Info("running command", zap.String("command", c.String()))

	_, err := cmd.RunContext(ctx, c.Name, c.Args...)
	if err != nil {
		var exitError *cmd.ExitError

		if errors.As(err, &exitError) {
			return fmt.Errorf("%s exited with code %d: %s", c.Name, exitError.ExitCode, string(exitError.Output))
		}

		return fmt.Errorf("failed to run %s: %w", c.Name, err)
	}

	r.logger.Info("command finished", zap.String("command", c.Name))

	return nil
}

// LookPath implements Runner.
func (r *HostRunner) LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)

	return path, err == nil
}
