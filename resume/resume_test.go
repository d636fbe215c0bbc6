// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package resume

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalUUID(t *testing.T) {
	t.Parallel()

	// RFC 4122 names are normalized to lowercase
	assert.Equal(t, "c1b9d5a2-f162-11cf-9ece-0020afc76f16", canonicalUUID("C1B9D5A2-F162-11CF-9ECE-0020AFC76F16"))

	// VFAT serial-style names pass through untouched
	assert.Equal(t, "1A2B-3C4D", canonicalUUID("1A2B-3C4D"))
}

func TestContiguousRun(t *testing.T) {
	t.Parallel()

	for _, test := range []struct { //nolint:govet
		name          string
		blocks        []uint32
		expectedFirst uint32
		expectedRun   int
	}{
		{
			name:          "fully contiguous",
			blocks:        []uint32{100, 101, 102, 103},
			expectedFirst: 100,
			expectedRun:   4,
		},
		{
			name:          "discontinuity midway",
			blocks:        []uint32{100, 101, 200, 201},
			expectedFirst: 100,
			expectedRun:   2,
		},
		{
			name:          "immediate discontinuity",
			blocks:        []uint32{100, 200, 300},
			expectedFirst: 100,
			expectedRun:   1,
		},
		{
			name:          "single block",
			blocks:        []uint32{42},
			expectedFirst: 42,
			expectedRun:   1,
		},
		{
			name:          "no blocks",
			blocks:        nil,
			expectedFirst: 0,
			expectedRun:   0,
		},
		{
			name:          "descending is not contiguous",
			blocks:        []uint32{100, 99, 98},
			expectedFirst: 100,
			expectedRun:   1,
		},
	} {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			first, run := contiguousRun(test.blocks)

			assert.Equal(t, test.expectedFirst, first)
			assert.Equal(t, test.expectedRun, run)
		})
	}
}
