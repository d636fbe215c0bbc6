// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootcfg_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dcui/hibernation-setup-tool/bootcfg"
	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

const testUUID = "c1b9d5a2-f162-11cf-9ece-0020afc76f16"

type fakeRunner struct {
	tools    map[string]string
	failures map[string]error
	commands []hostexec.Command
}

func (r *fakeRunner) Run(_ context.Context, c hostexec.Command) error {
	r.commands = append(r.commands, c)

	return r.failures[c.Name]
}

func (r *fakeRunner) LookPath(name string) (string, bool) {
	path, ok := r.tools[name]

	return path, ok
}

func testParams() bootcfg.Params {
	return bootcfg.Params{DeviceUUID: testUUID, ResumeOffset: 38912}
}

func TestKernelArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"resume=/dev/disk/by-uuid/c1b9d5a2-f162-11cf-9ece-0020afc76f16 resume_offset=38912 no_console_suspend=1",
		testParams().KernelArgs())
}

func TestUpdateFastPath(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proc/cmdline",
		[]byte("BOOT_IMAGE=/boot/vmlinuz root=/dev/sda1 "+testParams().KernelArgs()+"\n"), 0o444))

	runner := &fakeRunner{tools: map[string]string{"grubby": "/usr/sbin/grubby"}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(fs))

	require.NoError(t, u.Update(context.Background(), testParams()))

	// the running kernel already matches: nothing may be executed or written
	assert.Empty(t, runner.commands)

	ok, _ := afero.Exists(fs, "/etc/initramfs-tools/conf.d/resume")
	assert.False(t, ok)
}

func TestUpdateInitramfsStrategy(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	runner := &fakeRunner{tools: map[string]string{
		"update-initramfs": "/usr/sbin/update-initramfs",
		"grubby":           "/usr/sbin/grubby",
	}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(fs))

	require.NoError(t, u.Update(context.Background(), testParams()))

	conf, err := afero.ReadFile(fs, "/etc/initramfs-tools/conf.d/resume")
	require.NoError(t, err)

	assert.Contains(t, string(conf), "RESUME=UUID=c1b9d5a2-f162-11cf-9ece-0020afc76f16")

	// initramfs-tools precedes grubby in the strategy order
	require.Len(t, runner.commands, 1)
	assert.Equal(t, hostexec.Command{Name: "update-initramfs", Args: []string{"-u"}}, runner.commands[0])
}

func TestUpdateGrubbyStrategy(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	runner := &fakeRunner{tools: map[string]string{"grubby": "/usr/sbin/grubby"}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(fs))

	require.NoError(t, u.Update(context.Background(), testParams()))

	require.Len(t, runner.commands, 1)
	assert.Equal(t, hostexec.Command{
		Name: "grubby",
		Args: []string{"--update-kernel=ALL", "--args", testParams().KernelArgs()},
	}, runner.commands[0])
}

func TestUpdateGrubDropIn(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	// a populated drop-in directory wins over the monolithic file
	require.NoError(t, afero.WriteFile(fs, "/etc/default/grub.d/50-cloudimg-settings.cfg",
		[]byte("GRUB_CMDLINE_LINUX_DEFAULT=\"console=tty1\"\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/default/grub", []byte("GRUB_TIMEOUT=5\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/boot/grub/grub.cfg", []byte("# generated\n"), 0o644))

	runner := &fakeRunner{tools: map[string]string{"grub2-mkconfig": "/usr/sbin/grub2-mkconfig"}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(fs))

	require.NoError(t, u.Update(context.Background(), testParams()))

	dropIn, err := afero.ReadFile(fs, "/etc/default/grub.d/99-hibernate-settings.cfg")
	require.NoError(t, err)

	assert.Contains(t, string(dropIn),
		fmt.Sprintf("GRUB_CMDLINE_LINUX_DEFAULT=\"$GRUB_CMDLINE_LINUX_DEFAULT %s\"", testParams().KernelArgs()))

	// the monolithic file is left alone
	global, err := afero.ReadFile(fs, "/etc/default/grub")
	require.NoError(t, err)
	assert.Equal(t, "GRUB_TIMEOUT=5\n", string(global))

	require.Len(t, runner.commands, 1)
	assert.Equal(t, hostexec.Command{Name: "grub2-mkconfig", Args: []string{"-o", "/boot/grub/grub.cfg"}}, runner.commands[0])
}

func TestUpdateGrubDefaultIsIdempotent(t *testing.T) {
	t.Parallel()

	const original = "GRUB_TIMEOUT=5\nGRUB_CMDLINE_LINUX_DEFAULT=\"console=tty1\"\n# user comment\n"

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/default/grub", []byte(original), 0o644))

	runner := &fakeRunner{tools: map[string]string{"update-grub2": "/usr/sbin/update-grub2"}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(fs))

	require.NoError(t, u.Update(context.Background(), testParams()))

	// re-run with a different offset, as if the swap file had been recreated
	changed := testParams()
	changed.ResumeOffset = 77824

	require.NoError(t, u.Update(context.Background(), changed))

	contents, err := afero.ReadFile(fs, "/etc/default/grub")
	require.NoError(t, err)

	// exactly one delimited block, at the end, with the surrounding content
	// preserved byte for byte
	assert.Equal(t, 1, strings.Count(string(contents), "# hibernation-setup-tool:start"))
	assert.Equal(t, 1, strings.Count(string(contents), "# hibernation-setup-tool:end"))
	assert.True(t, strings.HasPrefix(string(contents), original))
	assert.Contains(t, string(contents), "resume_offset=77824")
	assert.NotContains(t, string(contents), "resume_offset=38912")
	assert.True(t, strings.HasSuffix(string(contents), "# hibernation-setup-tool:end\n"))
}

func TestUpdateNoToolchain(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(afero.NewMemMapFs()))

	err := u.Update(context.Background(), testParams())
	assert.ErrorIs(t, err, bootcfg.ErrNoToolchain)
}

func TestEnsureFstab(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/fstab", []byte(
		"UUID=c1b9d5a2-f162-11cf-9ece-0020afc76f16 / ext4 defaults 0 1\n"+
			"/hibfile.sys\tnone\tswap\tswap\t0\t0\n"+
			"/hibfile.sys none swap sw 0 0\n"+
			"tmpfs /tmp tmpfs defaults 0 0\n"), 0o644))

	u := bootcfg.NewUpdater(zaptest.NewLogger(t), &fakeRunner{}, bootcfg.WithFs(fs))

	require.NoError(t, u.EnsureFstab("/hibfile.sys"))

	contents, err := afero.ReadFile(fs, "/etc/fstab")
	require.NoError(t, err)

	// every stale line is gone, exactly one correct entry remains
	assert.Equal(t,
		"UUID=c1b9d5a2-f162-11cf-9ece-0020afc76f16 / ext4 defaults 0 1\n"+
			"tmpfs /tmp tmpfs defaults 0 0\n"+
			"/hibfile.sys\tnone\tswap\tswap\t0\t0\n",
		string(contents))
}

func TestEnsureHibernateRule(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/sys/bus/vmbus", 0o755))
	require.NoError(t, fs.MkdirAll("/etc/udev/rules.d", 0o755))

	runner := &fakeRunner{tools: map[string]string{
		"systemctl": "/usr/bin/systemctl",
		"udevadm":   "/usr/bin/udevadm",
	}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(fs))

	require.NoError(t, u.EnsureHibernateRule(context.Background()))

	rule, err := afero.ReadFile(fs, "/etc/udev/rules.d/99-vm-hibernation.rules")
	require.NoError(t, err)

	assert.Equal(t,
		"SUBSYSTEM==\"vmbus\", ACTION==\"change\", DRIVER==\"hv_utils\", ENV{EVENT}==\"hibernate\", RUN+=\"/usr/bin/systemctl hibernate\"\n",
		string(rule))

	require.Len(t, runner.commands, 2)
	assert.Equal(t, hostexec.Command{Name: "udevadm", Args: []string{"control", "--reload-rules"}}, runner.commands[0])
	assert.Equal(t, hostexec.Command{Name: "udevadm", Args: []string{"trigger"}}, runner.commands[1])
}

func TestEnsureHibernateRuleSkippedWithoutHyperV(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{tools: map[string]string{
		"systemctl": "/usr/bin/systemctl",
		"udevadm":   "/usr/bin/udevadm",
	}}
	u := bootcfg.NewUpdater(zaptest.NewLogger(t), runner, bootcfg.WithFs(afero.NewMemMapFs()))

	require.NoError(t, u.EnsureHibernateRule(context.Background()))
	assert.Empty(t, runner.commands)
}
