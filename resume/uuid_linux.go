// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package resume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const byUUIDDir = "/dev/disk/by-uuid"

// DiskUUID resolves the filesystem UUID of the block device hosting path.
//
// The UUID is the stable name under which the resume device is persisted in
// boot configuration, where raw device numbers would not survive a reboot.
func DiskUUID(logger *zap.Logger, path string) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var st unix.Stat_t

	if err := unix.Stat(path, &st); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	device, err := hostingDevice(uint64(st.Dev))
	if err != nil {
		return "", err
	}

	id, err := uuidForDevice(device)
	if err != nil {
		return "", err
	}

	logger.Info("resolved hosting device",
		zap.String("path", path),
		zap.String("device", device),
		zap.String("uuid", id))

	return id, nil
}

// hostingDevice finds the source device of the mounted filesystem living on
// the given device number.
func hostingDevice(dev uint64) (string, error) {
	mounts, err := procfs.GetMounts()
	if err != nil {
		return "", fmt.Errorf("failed to read the mount table: %w", err)
	}

	for _, mount := range mounts {
		var st unix.Stat_t

		if err := unix.Stat(mount.MountPoint, &st); err != nil {
			continue
		}

		if uint64(st.Dev) == dev {
			return mount.Source, nil
		}
	}

	return "", fmt.Errorf("no mounted filesystem found on device %d:%d", unix.Major(dev), unix.Minor(dev))
}

// uuidForDevice matches the device node against the kernel-maintained by-uuid
// symlink directory.
func uuidForDevice(devPath string) (string, error) {
	var devSt unix.Stat_t

	if err := unix.Stat(devPath, &devSt); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", devPath, err)
	}

	entries, err := os.ReadDir(byUUIDDir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", byUUIDDir, err)
	}

	for _, entry := range entries {
		var st unix.Stat_t

		if err := unix.Stat(filepath.Join(byUUIDDir, entry.Name()), &st); err != nil {
			continue
		}

		if st.Mode&unix.S_IFMT != unix.S_IFBLK {
			continue
		}

		if st.Rdev == devSt.Rdev {
			return canonicalUUID(entry.Name()), nil
		}
	}

	return "", fmt.Errorf("no UUID entry found for device %s", devPath)
}
