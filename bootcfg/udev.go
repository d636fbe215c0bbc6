// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootcfg

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

const (
	udevRuleName = "99-vm-hibernation.rules"
	vmbusDirPath = "/sys/bus/vmbus"
)

// udevRuleDirs are probed in order for a place to install the rule.
var udevRuleDirs = []string{
	"/usr/lib/udev/rules.d",
	"/etc/udev/rules.d",
	"/lib/udev/rules.d",
}

// EnsureHibernateRule installs a udev rule that hibernates the machine when
// the platform requests it over VMBus, then tells udev to pick it up.
//
// On machines that are not Hyper-V guests, or without systemd, there is
// nothing to install and the call is a no-op.
func (u *Updater) EnsureHibernateRule(ctx context.Context) error {
	systemctl, ok := u.runner.LookPath("systemctl")
	if !ok {
		u.logger.Info("systemctl not found, skipping the hibernation event rule")

		return nil
	}

	if !u.hasTool("udevadm") {
		u.logger.Info("udevadm not found, skipping the hibernation event rule")

		return nil
	}

	if ok, _ := afero.DirExists(u.fs, vmbusDirPath); !ok {
		u.logger.Info("machine is not running on Hyper-V, the hibernation event rule is not needed")

		return nil
	}

	dir, ok := u.udevRulesDir()
	if !ok {
		u.logger.Info("could not find where udev stores rules; machine may not hibernate on platform events")

		return nil
	}

	rulePath := filepath.Join(dir, udevRuleName)
	rule := fmt.Sprintf(
		"SUBSYSTEM==\"vmbus\", ACTION==\"change\", DRIVER==\"hv_utils\", ENV{EVENT}==\"hibernate\", RUN+=\"%s hibernate\"\n",
		systemctl)

	if err := afero.WriteFile(u.fs, rulePath, []byte(rule), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rulePath, err)
	}

	u.logger.Info("installed the hibernation event rule", zap.String("path", rulePath))

	if err := u.runner.Run(ctx, hostexec.Command{Name: "udevadm", Args: []string{"control", "--reload-rules"}}); err != nil {
		return err
	}

	return u.runner.Run(ctx, hostexec.Command{Name: "udevadm", Args: []string{"trigger"}})
}

func (u *Updater) udevRulesDir() (string, bool) {
	for _, dir := range udevRuleDirs {
		if ok, _ := afero.DirExists(u.fs, dir); ok {
			return dir, true
		}
	}

	return "", false
}
