// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swap

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the filesystem type hosting the swap file.
//
// Only kinds that require special handling are enumerated; everything else is
// KindOther.
type Kind int

// Filesystem kinds.
const (
	KindOther Kind = iota
	KindExt4
	KindBtrfs
	KindXFS
)

// Filesystem magic numbers.
//
// Hardcoded here to avoid CGo dependency.
const (
	magicExt4  = 0xef53
	magicBtrfs = 0x9123683e
	magicXFS   = 0x58465342
)

func (k Kind) String() string {
	switch k {
	case KindExt4:
		return "ext4"
	case KindBtrfs:
		return "btrfs"
	case KindXFS:
		return "xfs"
	default:
		return "other"
	}
}

func kindFromMagic(magic int64) Kind {
	switch magic {
	case magicExt4:
		return KindExt4
	case magicBtrfs:
		return KindBtrfs
	case magicXFS:
		return KindXFS
	default:
		return KindOther
	}
}

// parseKernelMajor extracts the major version from a kernel release string
// like "5.15.0-1051-azure".
func parseKernelMajor(release string) (int, error) {
	major, _, found := strings.Cut(release, ".")
	if !found {
		return 0, fmt.Errorf("could not parse kernel release %q", release)
	}

	version, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("could not parse kernel release %q: %w", release, err)
	}

	return version, nil
}
