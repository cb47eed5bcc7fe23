// Package collections provides the small generic containers used by the
// collector's traversals: a growable bitset, LIFO/FIFO work lists and a
// pool of scratch maps.
package collections

import "math/bits"

// Bitset is a growable set of small non-negative integers. The prober uses
// it to mark dense node indices as accessible.
type Bitset struct {
	words []uint64
	size  int
}

// NewBitset creates a bitset able to hold size bits without growing.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	return &Bitset{
		words: make([]uint64, (size+63)/64),
		size:  size,
	}
}

// Set sets bit i, growing the set as needed. Negative indexes are ignored.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	w := i / 64
	if w >= len(b.words) {
		b.grow(i + 1)
	}
	b.words[w] |= 1 << (uint(i) % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// TestAndSet sets bit i and reports whether it was already set.
func (b *Bitset) TestAndSet(i int) bool {
	if b.Test(i) {
		return true
	}
	b.Set(i)
	return false
}

// Clear clears bit i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.words) {
		return
	}
	b.words[i/64] &^= 1 << (uint(i) % 64)
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.words) {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Reset clears every bit and keeps the backing storage.
func (b *Bitset) Reset() {
	clear(b.words)
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Size returns the number of addressable bits.
func (b *Bitset) Size() int {
	return b.size
}

// Iterate calls fn for each set bit in ascending order until fn returns false.
func (b *Bitset) Iterate(fn func(i int) bool) {
	for wi, w := range b.words {
		base := wi * 64
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			if !fn(base + tz) {
				return
			}
			w &= w - 1
		}
	}
}

func (b *Bitset) grow(n int) {
	need := (n + 63) / 64
	if need <= len(b.words) {
		return
	}
	newLen := max(len(b.words)*2, need)
	words := make([]uint64, newLen)
	copy(words, b.words)
	b.words = words
}
