// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootcfg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/siderolabs/gen/xslices"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

const (
	grubDefaultPath = "/etc/default/grub"
	grubDropInDir   = "/etc/default/grub.d"
	grubDropInPath  = "/etc/default/grub.d/99-hibernate-settings.cfg"

	markerStart = "# hibernation-setup-tool:start"
	markerEnd   = "# hibernation-setup-tool:end"
)

// grubCfgPaths are the conventional locations of the generated GRUB
// configuration, in probe order.
var grubCfgPaths = []string{
	"/boot/grub2/grub.cfg",
	"/boot/grub/grub.cfg",
}

// applyGrubDefault rewrites the GRUB default kernel arguments and regenerates
// the boot configuration.
func (u *Updater) applyGrubDefault(ctx context.Context, p Params) error {
	path, err := u.grubDefaultTarget()
	if err != nil {
		return err
	}

	line := fmt.Sprintf("GRUB_CMDLINE_LINUX_DEFAULT=\"$GRUB_CMDLINE_LINUX_DEFAULT %s\"", p.KernelArgs())

	if err := u.rewriteMarkedBlock(path, line); err != nil {
		return err
	}

	if u.hasTool("update-grub2") {
		u.logger.Info("regenerating GRUB configuration", zap.String("tool", "update-grub2"), zap.String("defaults", path))

		return u.runner.Run(ctx, hostexec.Command{Name: "update-grub2"})
	}

	cfg, err := u.findGrubCfg()
	if err != nil {
		return err
	}

	u.logger.Info("regenerating GRUB configuration", zap.String("tool", "grub2-mkconfig"), zap.String("output", cfg))

	return u.runner.Run(ctx, hostexec.Command{Name: "grub2-mkconfig", Args: []string{"-o", cfg}})
}

// grubDefaultTarget picks the file carrying the default kernel arguments.
//
// A drop-in directory with existing fragments wins over the monolithic file:
// fragments such as cloud image settings can override
// GRUB_CMDLINE_LINUX_DEFAULT, so the resume parameters must land in a
// higher-priority fragment of their own.
func (u *Updater) grubDefaultTarget() (string, error) {
	entries, err := afero.ReadDir(u.fs, grubDropInDir)
	if err == nil && len(entries) > 0 {
		return grubDropInPath, nil
	}

	if ok, _ := afero.Exists(u.fs, grubDefaultPath); ok {
		return grubDefaultPath, nil
	}

	return "", errors.New("could not determine where the GRUB default configuration lives; is /boot mounted?")
}

func (u *Updater) findGrubCfg() (string, error) {
	for _, path := range grubCfgPaths {
		if ok, _ := afero.Exists(u.fs, path); ok {
			return path, nil
		}
	}

	return "", errors.New("could not find the generated GRUB configuration; is /boot mounted?")
}

// rewriteMarkedBlock strips any previously-inserted marker-delimited block
// from the file and appends a fresh one containing line. Unrelated content is
// preserved byte for byte.
func (u *Updater) rewriteMarkedBlock(path, line string) error {
	contents, err := afero.ReadFile(u.fs, path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var lines []string

	if len(contents) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(contents), "\n"), "\n")
	}

	lines = stripMarkedBlock(lines)
	lines = append(lines, markerStart, line, markerEnd)

	out := strings.Join(lines, "\n") + "\n"

	if err := afero.WriteFile(u.fs, path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// stripMarkedBlock drops the lines between (and including) the start and end
// markers.
func stripMarkedBlock(lines []string) []string {
	inBlock := false

	return xslices.Filter(lines, func(line string) bool {
		switch {
		case inBlock:
			if strings.Contains(line, markerEnd) {
				inBlock = false
			}

			return false
		case strings.Contains(line, markerStart):
			inBlock = true

			return false
		default:
			return true
		}
	})
}
