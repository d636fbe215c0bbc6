// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootcfg

import (
	"fmt"
	"strings"

	"github.com/siderolabs/gen/xslices"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const fstabPath = "/etc/fstab"

// EnsureFstab rewrites fstab so it carries exactly one entry activating the
// swap file at boot. Every existing line referencing the path is dropped
// first, no matter how many stale ones accumulated.
func (u *Updater) EnsureFstab(swapPath string) error {
	u.logger.Info("updating fstab", zap.String("swap", swapPath))

	contents, err := afero.ReadFile(u.fs, fstabPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fstabPath, err)
	}

	var lines []string

	if len(contents) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(contents), "\n"), "\n")
	}

	lines = xslices.Filter(lines, func(line string) bool {
		return !strings.Contains(line, swapPath)
	})

	lines = append(lines, fmt.Sprintf("%s\tnone\tswap\tswap\t0\t0", swapPath))

	if err := afero.WriteFile(u.fs, fstabPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", fstabPath, err)
	}

	return nil
}
