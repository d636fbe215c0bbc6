// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hibernate

import (
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	snapshotDevicePath   = "/dev/snapshot"
	powerDiskPath        = "/sys/power/disk"
	vmbusDirPath         = "/sys/bus/vmbus"
	vmbusHibernationPath = "/sys/bus/vmbus/hibernation"
)

// enabled reports whether the kernel and platform support hibernation and it
// has not been switched off.
//
// TODO: detect running inside a container and bail out early.
func (a *Agent) enabled() bool {
	if ok, _ := afero.Exists(a.fs, snapshotDevicePath); !ok {
		a.logger.Info("kernel does not support hibernation or /dev/snapshot has not been found")

		return false
	}

	modes, err := a.readFirstLine(powerDiskPath)
	if err != nil {
		a.logger.Info("kernel does not support hibernation",
			zap.String("path", powerDiskPath), zap.Error(err))

		return false
	}

	switch {
	case strings.Contains(modes, "platform"):
		a.logger.Info("machine supports hibernation with platform-supported events")

		return true
	case strings.Contains(modes, "shutdown"):
		a.logger.Info("machine supports hibernation only with the shutdown method; this is not ideal")
	case strings.Contains(modes, "suspend"):
		a.logger.Info("machine supports hibernation only with the suspend method; this is not ideal")
	default:
		a.logger.Info("unknown hibernation support mode", zap.String("modes", modes))
	}

	if ok, _ := afero.DirExists(a.fs, vmbusDirPath); ok {
		a.logger.Info("machine runs on Hyper-V, checking whether hibernation is enabled through VMBus events")

		// The flag is absent on images that predate VMBus hibernation
		// support; only an explicit value other than "1" disables the agent.
		flag, err := a.readFirstLine(vmbusHibernationPath)
		if err == nil {
			if flag == "1" {
				a.logger.Info("hibernation is enabled according to VMBus")

				return true
			}

			a.logger.Info("hibernation is disabled according to VMBus")
		}
	}

	a.logger.Info("machine is capable of hibernation, but it appears to be disabled")

	return false
}

func (a *Agent) readFirstLine(path string) (string, error) {
	contents, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(string(contents), "\n")

	return line, nil
}
