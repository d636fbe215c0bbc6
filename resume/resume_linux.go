// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package resume

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SnapshotDevice is the kernel's hibernation control channel.
const SnapshotDevice = "/dev/snapshot"

// SNAPSHOT_SET_SWAP_AREA from <linux/suspend_ioctls.h>, FIBMAP and FIGETBSZ
// from <linux/fs.h>.
//
// Hardcoded here to avoid CGo dependency.
const (
	snapshotSetSwapArea = 0x400c330d
	fibmap              = 0x1
	figetbsz            = 0x2
)

// resumeSwapArea mirrors the kernel's packed struct resume_swap_area: a
// 64-bit offset followed by a 32-bit device number. The kernel only reads the
// first 12 bytes, so the trailing alignment padding is harmless.
type resumeSwapArea struct {
	offset int64
	dev    uint32
	_      uint32
}

// FileSwapArea determines the resume swap area for the given swap file.
//
// The physical block number of each block composing the file's first page is
// queried via FIBMAP; the walk accumulates a contiguous run and stops at the
// first discontinuity. ErrNotContiguous is returned unless the run covers at
// least one full page.
func FileSwapArea(path string, pageSize int) (SwapArea, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return SwapArea{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	var st unix.Stat_t

	if err = unix.Fstat(int(f.Fd()), &st); err != nil {
		return SwapArea{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return SwapArea{}, fmt.Errorf("swap file %s is not a regular file", path)
	}

	blockSize, err := unix.IoctlGetInt(int(f.Fd()), figetbsz)
	if err != nil {
		return SwapArea{}, fmt.Errorf("failed to get the block size of %s: %w", path, err)
	}

	blocksPerPage := pageSize / blockSize
	if blocksPerPage < 1 {
		blocksPerPage = 1
	}

	blocks := make([]uint32, 0, blocksPerPage)

	for i := 0; i < blocksPerPage; i++ {
		block, err := bmap(f.Fd(), uint32(i))
		if err != nil {
			return SwapArea{}, fmt.Errorf("failed to get the physical block number for block #%d of %s: %w", i, path, err)
		}

		blocks = append(blocks, block)
	}

	first, run := contiguousRun(blocks)

	if run*blockSize < pageSize {
		return SwapArea{}, fmt.Errorf("%w: only the first %d blocks of %d bytes are contiguous", ErrNotContiguous, run, blockSize)
	}

	return SwapArea{Device: uint64(st.Dev), Offset: uint64(first)}, nil
}

// bmap resolves the physical block number of a logical file block via FIBMAP.
func bmap(fd uintptr, block uint32) (uint32, error) {
	b := block

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, fibmap, uintptr(unsafe.Pointer(&b))); errno != 0 {
		return 0, errno
	}

	return b, nil
}

// Register points the kernel's hibernation subsystem at the swap area for the
// current boot. The setting is transient and does not survive a reboot; the
// persistent counterpart is the boot configuration.
func Register(area SwapArea) error {
	f, err := os.OpenFile(SnapshotDevice, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", SnapshotDevice, err)
	}

	defer f.Close() //nolint:errcheck

	arg := resumeSwapArea{
		offset: int64(area.Offset),
		dev:    uint32(area.Device),
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), snapshotSetSwapArea, uintptr(unsafe.Pointer(&arg))); errno != 0 {
		return fmt.Errorf("failed to set the resume swap area: %w", errno)
	}

	return nil
}
