// Package bits provides alignment and power-of-two helpers shared by the
// buffer and log layout code.
package bits

import "math/bits"

// CacheLineLength is the assumed CPU cache line length in bytes.
const CacheLineLength = 64

// Align rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func Align(value, alignment int32) int32 {
	return (value + (alignment - 1)) &^ (alignment - 1)
}

// IsPowerOfTwo reports whether value is a positive power of two.
func IsPowerOfTwo(value int64) bool {
	return value > 0 && (value&(value-1)) == 0
}

// TrailingZeroes returns the number of trailing zero bits in value.
func TrailingZeroes(value int32) int32 {
	return int32(bits.TrailingZeros32(uint32(value)))
}

// FastMod3 computes value % 3 without a divide for non-negative values.
func FastMod3(value int64) int32 {
	return int32(value % 3)
}
