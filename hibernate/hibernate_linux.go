// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package hibernate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/procfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dcui/hibernation-setup-tool/bootcfg"
	"github.com/dcui/hibernation-setup-tool/resume"
	"github.com/dcui/hibernation-setup-tool/swap"
)

// Run executes the pipeline once.
//
// A nil return means either full success or that hibernation is not
// applicable to this machine; both map to a zero exit code. Any error is
// fatal and the process should exit non-zero after logging it.
func (a *Agent) Run(ctx context.Context) error {
	if !a.enabled() {
		a.transition(StateDisabled)
		a.logger.Info("hibernation is not enabled for this machine")

		return nil
	}

	a.transition(StateSizing)

	proc, err := procfs.NewFS(a.procPath)
	if err != nil {
		return a.fatal(fmt.Errorf("failed to open %s: %w", a.procPath, err))
	}

	physMem, err := swap.PhysicalMemory(proc)
	if err != nil {
		return a.fatal(err)
	}

	neededSize, err := swap.NeededSize(physMem)
	if err != nil {
		return a.fatal(err)
	}

	a.logger.Info("computed the required swap capacity",
		zap.String("physical_memory", humanize.IBytes(physMem)),
		zap.String("needed_swap", humanize.IBytes(neededSize)))

	a.transition(StateLocating)

	file, err := swap.Find(proc, a.swapPath, neededSize)
	if err != nil {
		return a.fatal(err)
	}

	if file == nil {
		a.logger.Info("no usable swap file found")
	} else {
		a.logger.Info("found a swap file",
			zap.String("path", file.Path),
			zap.String("capacity", humanize.IBytes(file.Capacity)))
	}

	if plan(file, neededSize) == actionRecreate {
		a.transition(StateResizing)
		a.logger.Info("swap file is too small, recreating it; the machine runs without swap meanwhile",
			zap.String("path", file.Path),
			zap.String("capacity", humanize.IBytes(file.Capacity)),
			zap.String("needed", humanize.IBytes(neededSize)))

		if err = a.teardown(file.Path); err != nil {
			return a.fatal(err)
		}

		file = nil
	}

	created := false

	if file == nil {
		a.transition(StateCreating)

		provisioner := swap.NewProvisioner(a.logger, a.runner)

		file, err = provisioner.Provision(ctx, a.swapPath, neededSize)
		if err != nil {
			return a.fatal(err)
		}

		created = true
	} else {
		a.transition(StateReusing)
	}

	a.transition(StateActivating)

	if err = swap.Enable(file.Path, created); err != nil {
		return a.fatal(err)
	}

	bootConfig := bootcfg.NewUpdater(a.logger, a.runner, bootcfg.WithFs(a.fs))

	if err = bootConfig.EnsureFstab(file.Path); err != nil {
		return a.fatal(err)
	}

	a.transition(StateResumeConfiguring)

	area, err := resume.FileSwapArea(file.Path, os.Getpagesize())
	if err != nil {
		return a.fatal(err)
	}

	a.logger.Info("resume swap area located",
		zap.String("path", file.Path),
		zap.Uint64("device", area.Device),
		zap.Uint64("offset", area.Offset))

	if err = resume.Register(area); err != nil {
		return a.fatal(err)
	}

	deviceUUID, err := resume.DiskUUID(a.logger, file.Path)
	if err != nil {
		return a.fatal(err)
	}

	params := bootcfg.Params{DeviceUUID: deviceUUID, ResumeOffset: area.Offset}

	if err = bootConfig.Update(ctx, params); err != nil {
		if !errors.Is(err, bootcfg.ErrNoToolchain) {
			return a.fatal(err)
		}

		// The swap area still works for the current boot; report and carry on.
		a.logger.Error("machine will not be able to resume until the boot configuration is fixed", zap.Error(err))
	}

	if err = bootConfig.EnsureHibernateRule(ctx); err != nil {
		// the machine still hibernates on demand, just not on platform events
		a.logger.Warn("could not install the hibernation event rule", zap.Error(err))
	}

	a.transition(StateDone)
	a.logger.Info("swap area for hibernation set up successfully")

	return nil
}

// teardown deactivates and removes an undersized swap file so it can be
// recreated from scratch.
func (a *Agent) teardown(path string) error {
	if err := swap.Disable(path); err != nil {
		if !errors.Is(err, swap.ErrNotActive) {
			return err
		}

		a.logger.Info("swap file was not active, nothing to deactivate", zap.String("path", path))
	}

	if err := a.fs.Remove(path); err != nil {
		// only a problem if the file is actually still there
		if ok, _ := afero.Exists(a.fs, path); ok {
			return fmt.Errorf("failed to remove swap file %s: %w", path, err)
		}
	}

	return nil
}
