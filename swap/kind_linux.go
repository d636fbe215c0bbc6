// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package swap

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

// DetectKind returns the kind of the filesystem hosting path.
func DetectKind(path string) (Kind, error) {
	var sfs unix.Statfs_t

	if err := unix.Statfs(path, &sfs); err != nil {
		return KindOther, fmt.Errorf("failed to statfs %s: %w", path, err)
	}

	return kindFromMagic(int64(sfs.Type)), nil
}

// maintenancePlan is the filesystem-specific work needed before the file can
// back hibernation.
type maintenancePlan struct {
	// precheck rejects configurations that cannot host a swap file at all.
	precheck func() error
	// defrag is the defragmentation tool invocation, if the kind has one.
	defrag *hostexec.Command
}

func (k Kind) maintenancePlan(path string) maintenancePlan {
	switch k {
	case KindExt4:
		return maintenancePlan{
			defrag: &hostexec.Command{Name: "e4defrag", Args: []string{path}},
		}
	case KindBtrfs:
		return maintenancePlan{
			precheck: btrfsSupportsSwapFiles,
			defrag:   &hostexec.Command{Name: "btrfs", Args: []string{"filesystem", "defragment", path}},
		}
	case KindXFS:
		return maintenancePlan{
			defrag: &hostexec.Command{Name: "xfs_fsr", Args: []string{"-v", path}},
		}
	default:
		return maintenancePlan{}
	}
}

// btrfsSupportsSwapFiles rejects kernels older than 5.0, which cannot host
// swap files on btrfs.
func btrfsSupportsSwapFiles() error {
	var uts unix.Utsname

	if err := unix.Uname(&uts); err != nil {
		return fmt.Errorf("failed to determine the kernel version: %w", err)
	}

	release := unix.ByteSliceToString(uts.Release[:])

	major, err := parseKernelMajor(release)
	if err != nil {
		return err
	}

	if major < 5 {
		return fmt.Errorf("swap files are not supported on btrfs running on kernel %s", release)
	}

	return nil
}
