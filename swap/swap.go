// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package swap plans, provisions and activates the swap file backing hibernation.
package swap

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/procfs"
)

// DefaultPath is the conventional location of the hibernation swap file.
const DefaultPath = "/hibfile.sys"

// Byte size units.
const (
	MiB = 1 << 20
	GiB = 1 << 30
)

// Common errors.
var (
	ErrMemoryTooLarge    = errors.New("hibernation is not supported on machines with more than 256 GiB of RAM")
	ErrInsufficientSpace = errors.New("not enough disk space for the hibernation file")
)

// File describes the swap file backing the hibernation image.
type File struct {
	// Path is the location of the backing file.
	Path string
	// Capacity is the size in bytes, as reported by the swap table for active
	// files or by stat for inactive candidates.
	Capacity uint64
}

// NeededSize returns the swap capacity required to hibernate a machine with
// physMem bytes of physical memory.
//
// The tiers follow the common sizing guidance: smaller machines need
// proportionally more headroom, and the policy is extended up to a hard cap of
// 256 GiB beyond which hibernation is refused.
func NeededSize(physMem uint64) (uint64, error) {
	switch {
	case physMem <= 2*GiB:
		return 3 * physMem, nil
	case physMem <= 8*GiB:
		return 2 * physMem, nil
	case physMem <= 64*GiB:
		return 3 * physMem / 2, nil
	case physMem <= 256*GiB:
		return 5 * physMem / 4, nil
	default:
		return 0, ErrMemoryTooLarge
	}
}

// Fits reports whether a swap area of the given capacity satisfies
// neededSize.
//
// The kernel reports an active swap area one page short of the backing file:
// the first page holds the swap header. That page of slack is tolerated, or a
// file provisioned at exactly the needed size would never qualify once
// active.
func Fits(capacity, neededSize uint64) bool {
	return capacity+uint64(os.Getpagesize()) >= neededSize
}

// PhysicalMemory returns the total physical memory of the machine in bytes.
func PhysicalMemory(proc procfs.FS) (uint64, error) {
	meminfo, err := proc.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read meminfo: %w", err)
	}

	if meminfo.MemTotal == nil || *meminfo.MemTotal == 0 {
		return 0, errors.New("could not determine the total physical memory of this machine")
	}

	// meminfo reports kibibytes
	return *meminfo.MemTotal * 1024, nil
}

// Find looks for a swap file that can back hibernation.
//
// The active swap table is scanned for a file-backed entry with capacity of at
// least neededSize bytes. When none qualifies, the conventional path is
// checked for an inactive candidate, which may be undersized; the caller
// decides whether to reuse or recreate it. Returns nil when no swap file
// exists at all.
func Find(proc procfs.FS, path string, neededSize uint64) (*File, error) {
	swaps, err := proc.Swaps()
	if err != nil {
		return nil, fmt.Errorf("failed to read the swap table: %w", err)
	}

	for _, entry := range swaps {
		if entry.Type != "file" {
			continue
		}

		// the swap table reports kibibytes
		capacity := uint64(entry.Size) * 1024
		if !Fits(capacity, neededSize) {
			continue
		}

		return &File{Path: entry.Filename, Capacity: capacity}, nil
	}

	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return nil, nil //nolint:nilnil
	}

	return &File{Path: path, Capacity: uint64(st.Size())}, nil
}
