// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package swap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcui/hibernation-setup-tool/swap"
)

func TestEnableRejectsUnformattedFile(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}

	path := filepath.Join(t.TempDir(), "hibfile.sys")
	require.NoError(t, os.WriteFile(path, make([]byte, 64*1024), 0o600))

	// the file carries no swap signature, so the kernel must reject it
	err := swap.Enable(path, false)
	assert.ErrorIs(t, err, swap.ErrNotAccepted)
}

func TestDisableInactiveFile(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}

	path := filepath.Join(t.TempDir(), "hibfile.sys")
	require.NoError(t, os.WriteFile(path, make([]byte, 64*1024), 0o600))

	assert.ErrorIs(t, swap.Disable(path), swap.ErrNotActive)
}
