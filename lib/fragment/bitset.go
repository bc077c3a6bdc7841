// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fragment

import "math/bits"

// indexSet records which fragment indexes have been delivered.
type indexSet []uint64

func newIndexSet(size int) indexSet {
	return make(indexSet, (size+63)/64)
}

// add marks index as seen and reports whether it was new.
func (s indexSet) add(index int) bool {
	word, bit := index/64, uint(index%64)
	if s[word]&(1<<bit) != 0 {
		return false
	}
	s[word] |= 1 << bit
	return true
}

func (s indexSet) count() int {
	total := 0
	for _, word := range s {
		total += bits.OnesCount64(word)
	}
	return total
}
