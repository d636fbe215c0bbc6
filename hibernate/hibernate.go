// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package hibernate orchestrates swap provisioning and resume configuration
// so the machine can hibernate and resume.
package hibernate

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
	"github.com/dcui/hibernation-setup-tool/swap"
)

// State identifies a phase of the setup pipeline.
type State int

// Pipeline states.
const (
	StateDisabled State = iota
	StateSizing
	StateLocating
	StateReusing
	StateResizing
	StateCreating
	StateActivating
	StateResumeConfiguring
	StateDone
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateSizing:
		return "sizing"
	case StateLocating:
		return "locating"
	case StateReusing:
		return "reusing"
	case StateResizing:
		return "resizing"
	case StateCreating:
		return "creating"
	case StateActivating:
		return "activating"
	case StateResumeConfiguring:
		return "resume-configuring"
	case StateDone:
		return "done"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Agent runs the swap provisioning and resume configuration pipeline.
//
// The Agent keeps no state between invocations: correctness is re-derived
// from on-disk and kernel state every run, so repeated runs converge.
type Agent struct {
	logger   *zap.Logger
	fs       afero.Fs
	runner   hostexec.Runner
	procPath string
	swapPath string

	state State
}

// Option configures the Agent.
type Option func(*Agent)

// WithLogger sets the logger for the Agent.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithFs overrides the filesystem used for configuration artifacts and
// capability probes.
func WithFs(fs afero.Fs) Option {
	return func(a *Agent) {
		a.fs = fs
	}
}

// WithRunner overrides the external command runner.
func WithRunner(runner hostexec.Runner) Option {
	return func(a *Agent) {
		a.runner = runner
	}
}

// WithProcPath overrides the proc filesystem mount point.
func WithProcPath(path string) Option {
	return func(a *Agent) {
		a.procPath = path
	}
}

// WithSwapPath overrides the swap file location.
func WithSwapPath(path string) Option {
	return func(a *Agent) {
		a.swapPath = path
	}
}

// New creates an Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		logger:   zap.NewNop(),
		fs:       afero.NewOsFs(),
		procPath: "/proc",
		swapPath: swap.DefaultPath,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.runner == nil {
		a.runner = hostexec.NewRunner(a.logger)
	}

	return a
}

// State returns the pipeline state the Agent last reached.
func (a *Agent) State() State {
	return a.state
}

func (a *Agent) transition(s State) {
	a.state = s

	a.logger.Debug("state transition", zap.Stringer("state", s))
}

func (a *Agent) fatal(err error) error {
	a.state = StateFatal

	return err
}

// planAction is the decision on what to do with an existing swap file.
type planAction int

const (
	actionCreate planAction = iota
	actionRecreate
	actionReuse
)

// plan decides whether an existing swap file can be reused.
//
// An undersized file is always torn down and recreated: growing in place
// cannot be trusted to keep the already-mapped extents contiguous. The
// capacity check tolerates the swap-header page the kernel withholds from
// active areas, so a file this tool provisioned keeps qualifying on later
// runs.
func plan(existing *swap.File, neededSize uint64) planAction {
	switch {
	case existing == nil:
		return actionCreate
	case !swap.Fits(existing.Capacity, neededSize):
		return actionRecreate
	default:
		return actionReuse
	}
}
