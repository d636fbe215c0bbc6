// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootcfg

import (
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const cmdlinePath = "/proc/cmdline"

// isCurrent reports whether the running kernel was booted with the wanted
// resume parameters. This is the idempotence fast path: when it holds, no
// artifact needs rewriting.
func (u *Updater) isCurrent(p Params) bool {
	contents, err := afero.ReadFile(u.fs, cmdlinePath)
	if err != nil {
		u.logger.Info("could not read the kernel command line, assuming it is stale", zap.Error(err))

		return false
	}

	line, _, _ := strings.Cut(string(contents), "\n")

	var resumeDevice, resumeOffset, noConsoleSuspend string

	for _, field := range strings.Fields(line) {
		switch {
		case strings.HasPrefix(field, "resume="):
			resumeDevice = strings.TrimPrefix(field, "resume=")
		case strings.HasPrefix(field, "resume_offset="):
			resumeOffset = strings.TrimPrefix(field, "resume_offset=")
		case strings.HasPrefix(field, "no_console_suspend="):
			noConsoleSuspend = strings.TrimPrefix(field, "no_console_suspend=")
		}
	}

	return resumeDevice == p.DevicePath() &&
		resumeOffset == strconv.FormatUint(p.ResumeOffset, 10) &&
		noConsoleSuspend == "1"
}
