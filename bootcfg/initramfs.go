// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootcfg

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

const initramfsResumeConf = "/etc/initramfs-tools/conf.d/resume"

// applyInitramfs declares the resume device to initramfs-tools and
// regenerates the initramfs so the early boot environment knows where to look
// for the hibernation image.
func (u *Updater) applyInitramfs(ctx context.Context, p Params) error {
	u.logger.Info("declaring the resume device to initramfs-tools", zap.String("path", initramfsResumeConf))

	conf := fmt.Sprintf("# Updated automatically by hibernation-setup-tool. Do not modify.\nRESUME=UUID=%s\n", p.DeviceUUID)

	if err := afero.WriteFile(u.fs, initramfsResumeConf, []byte(conf), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", initramfsResumeConf, err)
	}

	return u.runner.Run(ctx, hostexec.Command{Name: "update-initramfs", Args: []string{"-u"}})
}

// applyGrubby patches the three kernel parameters into every installed kernel
// entry directly; no configuration file needs to be reconstructed.
func (u *Updater) applyGrubby(ctx context.Context, p Params) error {
	return u.runner.Run(ctx, hostexec.Command{
		Name: "grubby",
		Args: []string{"--update-kernel=ALL", "--args", p.KernelArgs()},
	})
}
