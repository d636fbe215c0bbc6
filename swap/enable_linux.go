// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package swap

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Activation errors.
var (
	// ErrNotActive is returned by Disable when the file was not an active
	// swap area to begin with.
	ErrNotActive = errors.New("file is not an active swap area")
	// ErrNotAccepted is returned by Enable when the kernel rejects a
	// pre-existing file as swap.
	ErrNotAccepted = errors.New("kernel is not accepting the file as a swap area")
)

// swapon(2) and swapoff(2) have no wrappers in x/sys/unix.
func swapon(path string, flags int) error {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}

	if _, _, errno := unix.Syscall(unix.SYS_SWAPON, uintptr(unsafe.Pointer(p)), uintptr(flags), 0); errno != 0 {
		return errno
	}

	return nil
}

func swapoff(path string) error {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}

	if _, _, errno := unix.Syscall(unix.SYS_SWAPOFF, uintptr(unsafe.Pointer(p)), 0, 0); errno != 0 {
		return errno
	}

	return nil
}

// Enable activates the file as a swap area with swapon(2).
//
// An already-active file is fine. When the kernel rejects a file this run did
// not create, ErrNotAccepted is returned: the file is likely stale or
// corrupted and should be removed before re-running.
func Enable(path string, created bool) error {
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	err := swapon(path, 0)

	switch {
	case err == nil, errors.Is(err, unix.EBUSY):
		return nil
	case errors.Is(err, unix.EINVAL) && !created:
		return fmt.Errorf("%w: %s exists but is not usable; try removing it and re-running", ErrNotAccepted, path)
	default:
		return fmt.Errorf("failed to enable swap file %s: %w", path, err)
	}
}

// Disable deactivates the swap area with swapoff(2).
func Disable(path string) error {
	err := swapoff(path)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL):
		return ErrNotActive
	default:
		return fmt.Errorf("failed to disable swap file %s: %w", path, err)
	}
}
