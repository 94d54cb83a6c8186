// Package alignment reads nucleotide alignments and compresses them into
// weighted site patterns.
package alignment

import (
	"fmt"
	"math/bits"
)

//StateCount is the number of nucleotide states.
const StateCount = 4

//Missing is the fully ambiguous state mask (gaps, N, ?).
const Missing uint32 = 1<<StateCount - 1

var nucleotideCodes = map[byte]uint32{
	'A': 1, 'C': 2, 'G': 4, 'T': 8, 'U': 8,
	'R': 1 | 4, 'Y': 2 | 8, 'M': 1 | 2, 'K': 4 | 8, 'S': 2 | 4, 'W': 1 | 8,
	'H': 1 | 2 | 8, 'B': 2 | 4 | 8, 'V': 1 | 2 | 4, 'D': 1 | 4 | 8,
	'N': Missing, '?': Missing, '-': Missing, '.': Missing,
}

//StateMask will return the bitmask of states compatible with an IUPAC
//nucleotide character (bit i set means state i is possible, order ACGT).
func StateMask(c byte) (uint32, error) {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	m, ok := nucleotideCodes[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCharacter, c)
	}
	return m, nil
}

//IsAmbiguous reports whether a mask admits more than one state.
func IsAmbiguous(mask uint32) bool {
	return bits.OnesCount32(mask) != 1
}

//StateIndex returns the single state of an unambiguous mask.
func StateIndex(mask uint32) int {
	return bits.TrailingZeros32(mask)
}

//StateChar renders a mask back to a character, for diagnostics.
func StateChar(mask uint32) byte {
	for c, m := range nucleotideCodes {
		if m == mask && c != 'U' && c != '?' && c != '-' && c != '.' {
			return c
		}
	}
	return '?'
}
