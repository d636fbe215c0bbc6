// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bootcfg persists the kernel parameters needed to resume from
// hibernation across reboots.
package bootcfg

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

// ErrNoToolchain means no known bootloader toolchain is installed, so the
// resume parameters cannot be persisted. The swap area still works for the
// current boot.
var ErrNoToolchain = errors.New("could not determine how the system was booted to update kernel parameters")

// Params are the kernel command line arguments pointing at the resume swap
// area.
type Params struct {
	// DeviceUUID is the filesystem UUID of the block device hosting the swap
	// file, as named under /dev/disk/by-uuid. Not necessarily RFC 4122: VFAT
	// uses short serial-style names.
	DeviceUUID string
	// ResumeOffset is the physical block number of the swap file's first
	// block.
	ResumeOffset uint64
}

// DevicePath returns the stable by-uuid path of the resume device.
func (p Params) DevicePath() string {
	return "/dev/disk/by-uuid/" + p.DeviceUUID
}

// KernelArgs renders the three kernel command line arguments.
func (p Params) KernelArgs() string {
	return fmt.Sprintf("resume=%s resume_offset=%d no_console_suspend=1", p.DevicePath(), p.ResumeOffset)
}

// Updater rewrites the persistent boot configuration artifacts. Every
// artifact is fully regenerated on each run, so repeated runs converge
// instead of accumulating duplicates.
type Updater struct {
	logger *zap.Logger
	runner hostexec.Runner
	fs     afero.Fs
}

// Option configures an Updater.
type Option func(*Updater)

// WithFs overrides the filesystem the Updater operates on.
func WithFs(fs afero.Fs) Option {
	return func(u *Updater) {
		u.fs = fs
	}
}

// NewUpdater creates an Updater operating on the host filesystem by default.
func NewUpdater(logger *zap.Logger, runner hostexec.Runner, opts ...Option) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}

	u := &Updater{
		logger: logger,
		runner: runner,
		fs:     afero.NewOsFs(),
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// strategy applies resume parameters through one bootloader toolchain.
type strategy struct {
	name   string
	detect func() bool
	apply  func(ctx context.Context, p Params) error
}

func (u *Updater) strategies() []strategy {
	return []strategy{
		{name: "initramfs-tools", detect: u.toolDetector("update-initramfs"), apply: u.applyInitramfs},
		{name: "grubby", detect: u.toolDetector("grubby"), apply: u.applyGrubby},
		{
			name: "grub-mkconfig",
			detect: func() bool {
				return u.hasTool("update-grub2") || u.hasTool("grub2-mkconfig")
			},
			apply: u.applyGrubDefault,
		},
	}
}

// Update makes the next boot resume from the given swap area.
//
// When the running kernel was already booted with matching parameters nothing
// is written; otherwise the first installed toolchain from the ordered
// strategy list is used. ErrNoToolchain is returned when none is found.
func (u *Updater) Update(ctx context.Context, p Params) error {
	if u.isCurrent(p) {
		u.logger.Info("kernel command line already carries the resume parameters")

		return nil
	}

	u.logger.Info("kernel command line is missing resume parameters, updating boot configuration")

	for _, s := range u.strategies() {
		if !s.detect() {
			continue
		}

		u.logger.Info("applying resume parameters", zap.String("toolchain", s.name))

		return s.apply(ctx, p)
	}

	return ErrNoToolchain
}

func (u *Updater) hasTool(name string) bool {
	_, ok := u.runner.LookPath(name)

	return ok
}

func (u *Updater) toolDetector(name string) func() bool {
	return func() bool {
		return u.hasTool(name)
	}
}
