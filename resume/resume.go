// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package resume locates the swap file's first page on disk and hands that
// location to the kernel's hibernation subsystem.
package resume

import (
	"errors"

	"github.com/google/uuid"
)

// SwapArea locates the start of the hibernation image inside the swap file.
//
// It is recomputed on every run from the current swap file and never cached,
// as the file may have been recreated since the last run.
type SwapArea struct {
	// Device is the raw device number of the block device hosting the file.
	Device uint64
	// Offset is the physical block number of the file's first block. It is
	// only meaningful when the file's first page is stored in one contiguous
	// physical run.
	Offset uint64
}

// ErrNotContiguous means the first page of the swap file is not backed by
// physically consecutive blocks, so no single offset can locate it. The
// kernel cannot resume from such a file.
var ErrNotContiguous = errors.New("first page of the swap file is not contiguous")

// canonicalUUID normalizes RFC 4122 names to their lowercase form.
//
// Not every filesystem uses RFC 4122 UUIDs: VFAT exposes short serial-style
// names under by-uuid, and those are carried verbatim.
func canonicalUUID(name string) string {
	if id, err := uuid.Parse(name); err == nil {
		return id.String()
	}

	return name
}

// contiguousRun returns the first physical block number and the length of the
// leading run of physically consecutive blocks.
func contiguousRun(blocks []uint32) (first uint32, run int) {
	for i, block := range blocks {
		if i == 0 {
			first = block
			run = 1

			continue
		}

		if block != blocks[i-1]+1 {
			break
		}

		run++
	}

	return first, run
}
