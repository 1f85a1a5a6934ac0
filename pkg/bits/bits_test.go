package bits

import "testing"

func TestAlign(t *testing.T) {
	tests := []struct {
		value     int32
		alignment int32
		expected  int32
	}{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
		{100, 8, 104},
		{104, 8, 104},
	}

	for _, tt := range tests {
		if got := Align(tt.value, tt.alignment); got != tt.expected {
			t.Errorf("Align(%d, %d) = %d, expected %d", tt.value, tt.alignment, got, tt.expected)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []int64{1, 2, 4, 65536, 1 << 30} {
		if !IsPowerOfTwo(v) {
			t.Errorf("IsPowerOfTwo(%d) = false, expected true", v)
		}
	}
	for _, v := range []int64{0, -1, 3, 6, 65535} {
		if IsPowerOfTwo(v) {
			t.Errorf("IsPowerOfTwo(%d) = true, expected false", v)
		}
	}
}

func TestTrailingZeroes(t *testing.T) {
	if got := TrailingZeroes(65536); got != 16 {
		t.Errorf("TrailingZeroes(65536) = %d, expected 16", got)
	}
	if got := TrailingZeroes(1); got != 0 {
		t.Errorf("TrailingZeroes(1) = %d, expected 0", got)
	}
}

func TestFastMod3(t *testing.T) {
	for i := int64(0); i < 12; i++ {
		if got := FastMod3(i); got != int32(i%3) {
			t.Errorf("FastMod3(%d) = %d, expected %d", i, got, i%3)
		}
	}
}
