// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package swap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/dcui/hibernation-setup-tool/internal/hostexec"
)

// fillerPattern is the marker written at every block stride when extents have
// to be materialized with explicit writes.
const fillerPattern = 'T'<<24 | 'F'<<16 | 'S'<<8 | 'M'

// I/O priority constants.
//
// Hardcoded here to avoid CGo dependency.
const (
	ioprioWhoProcess = 1
	ioprioClassIdle  = 3
	ioprioClassShift = 13
)

// Inode flags from <linux/fs.h>.
//
// Hardcoded here to avoid CGo dependency.
const (
	fsComprFl  = 0x4
	fsNocompFl = 0x400
	fsNocowFl  = 0x800000
)

// Provisioner creates fully-allocated swap files suitable for hibernation.
type Provisioner struct {
	logger *zap.Logger
	runner hostexec.Runner
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(logger *zap.Logger, runner hostexec.Runner) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provisioner{logger: logger, runner: runner}
}

// Provision creates a swap file of exactly size fully-allocated,
// zero-initialized bytes at path and formats it as swap.
//
// The file must have no sparse holes when Provision returns, as the resume
// offset can only be derived from concretely allocated extents.
func (p *Provisioner) Provision(ctx context.Context, path string, size uint64) (*File, error) {
	p.logger.Info("creating hibernation swap file",
		zap.String("path", path),
		zap.String("size", humanize.IBytes(size)))

	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_CLOEXEC|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	p.clearAttributes(f, path)

	kind, err := DetectKind(path)
	if err != nil {
		f.Close() //nolint:errcheck

		return nil, err
	}

	// XFS does not honor ftruncate-based sizing reliably for this use case:
	// the explicit writes below size the file instead.
	if kind != KindXFS {
		if err = p.reserve(f, path, size); err != nil {
			f.Close() //nolint:errcheck

			return nil, err
		}
	}

	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", path, err)
	}

	// Allocating a file sized after physical memory can take a while; drop to
	// idle I/O priority so the workload is not starved meanwhile.
	setIdleIOPriority(p.logger)

	p.logger.Info("ensuring the swap file has no holes", zap.String("path", path))

	if err = p.materialize(path, size, kind); err != nil {
		return nil, err
	}

	if err = p.maintain(ctx, kind, path); err != nil {
		return nil, err
	}

	if err = p.runner.Run(ctx, hostexec.Command{Name: "mkswap", Args: []string{path}}); err != nil {
		return nil, fmt.Errorf("failed to format %s as swap: %w", path, err)
	}

	return &File{Path: path, Capacity: size}, nil
}

// clearAttributes disables copy-on-write and compression on the file.
//
// CoW must be off for the file's blocks to stay put, and compression breaks
// the physical block mapping; neither is supported on every filesystem, so
// failures are logged and ignored.
func (p *Provisioner) clearAttributes(f *os.File, path string) {
	if err := setFileFlags(f, fsNocowFl, 0); err != nil && !errors.Is(err, unix.EOPNOTSUPP) {
		p.logger.Info("could not disable copy-on-write, will try setting up swap anyway",
			zap.String("path", path), zap.Error(err))
	}

	if err := setFileFlags(f, fsNocompFl, fsComprFl); err != nil && !errors.Is(err, unix.EOPNOTSUPP) {
		p.logger.Info("could not disable compression, will try setting up swap anyway",
			zap.String("path", path), zap.Error(err))
	}
}

func setFileFlags(f *os.File, set, clear int) error {
	flags, err := unix.IoctlGetInt(int(f.Fd()), unix.FS_IOC_GETFLAGS)
	if err != nil {
		return err
	}

	flags |= set
	flags &^= clear

	return unix.IoctlSetPointerInt(int(f.Fd()), unix.FS_IOC_SETFLAGS, flags)
}

func (p *Provisioner) reserve(f *os.File, path string, size uint64) error {
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		if errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EPERM) {
			return fmt.Errorf("%w: resizing %s to %s", ErrInsufficientSpace, path, humanize.IBytes(size))
		}

		return fmt.Errorf("failed to resize %s to %s: %w", path, humanize.IBytes(size), err)
	}

	return nil
}

// materialize guarantees every extent of the file is concretely allocated.
//
// fallocate(2) is preferred; on filesystems where it is unreliable for swap
// files, or if it fails, the fallback writes a filler pattern at every block
// stride across the whole file.
func (p *Provisioner) materialize(path string, size uint64, kind Kind) error {
	switch kind {
	case KindXFS:
		p.logger.Info("fast allocation is not reliable on XFS, using the slower method")
	default:
		err := allocate(path, size)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrInsufficientSpace) {
			return err
		}

		p.logger.Info("fast allocation failed, falling back to the slower method", zap.Error(err))
	}

	blockSize, err := hostBlockSize(path)
	if err != nil {
		return err
	}

	return writeFiller(path, size, blockSize)
}

func allocate(path string, size uint64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s for allocation: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	if err := unix.Fallocate(int(f.Fd()), 0, 0, int64(size)); err != nil {
		if errors.Is(err, unix.ENOSPC) {
			return fmt.Errorf("%w: allocating %s", ErrInsufficientSpace, path)
		}

		return fmt.Errorf("failed to allocate %s: %w", path, err)
	}

	return nil
}

func hostBlockSize(path string) (int64, error) {
	var sfs unix.Statfs_t

	if err := unix.Statfs(path, &sfs); err != nil {
		return 0, fmt.Errorf("failed to determine the block size for %s: %w", path, err)
	}

	return sfs.Bsize, nil
}

// writeFiller writes a small marker at every blockSize stride so each extent
// is concretely allocated, then flushes to stable storage.
func writeFiller(path string, size uint64, blockSize int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	var marker [4]byte

	binary.LittleEndian.PutUint32(marker[:], fillerPattern)

	writeMarker := func(offset int64) error {
		if _, err := f.WriteAt(marker[:], offset); err != nil {
			if errors.Is(err, unix.ENOSPC) {
				return fmt.Errorf("%w: writing filler to %s", ErrInsufficientSpace, path)
			}

			return fmt.Errorf("failed to write filler to %s: %w", path, err)
		}

		return nil
	}

	for offset := int64(0); offset < int64(size); offset += blockSize {
		if err := writeMarker(offset); err != nil {
			return err
		}
	}

	// the stride writes end short of size; a final marker at the tail brings
	// the file to its full capacity even when sizing was skipped
	if size >= uint64(len(marker)) {
		if err := writeMarker(int64(size) - int64(len(marker))); err != nil {
			return err
		}
	}

	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	return nil
}

// maintain runs the filesystem-specific maintenance for the kind hosting the
// swap file. Missing tools are skipped silently; a tool that runs and fails
// is logged but not fatal, as contiguity is re-verified downstream anyway.
func (p *Provisioner) maintain(ctx context.Context, kind Kind, path string) error {
	plan := kind.maintenancePlan(path)

	if plan.precheck != nil {
		if err := plan.precheck(); err != nil {
			return err
		}
	}

	if plan.defrag == nil {
		return nil
	}

	if _, ok := p.runner.LookPath(plan.defrag.Name); !ok {
		return nil
	}

	if err := p.runner.Run(ctx, *plan.defrag); err != nil {
		p.logger.Warn("defragmentation failed, continuing anyway",
			zap.String("filesystem", kind.String()), zap.Error(err))
	}

	return nil
}

func setIdleIOPriority(logger *zap.Logger) {
	prio := ioprioClassIdle<<ioprioClassShift | 7

	if _, _, errno := unix.Syscall(unix.SYS_IOPRIO_SET, ioprioWhoProcess, 0, uintptr(prio)); errno != 0 {
		logger.Info("could not lower I/O priority for allocation", zap.Error(errno))
	}
}
