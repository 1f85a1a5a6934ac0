package buffers

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// AtomicBuffer is a view over a byte region supporting aligned atomic 32 and
// 64-bit access. The region is typically a slice of a memory-mapped file
// shared with the media driver. Capacity is fixed for the lifetime of the
// view.
//
// Volatile reads carry acquire ordering and Ordered writes carry release
// ordering. On platforms without lock-free 64-bit atomics the Go runtime
// faults on unaligned access, which satisfies the fail-on-start requirement
// for the offsets this package validates.
//
// All integers are little-endian, matching the driver's on-disk layout.
type AtomicBuffer struct {
	data []byte
}

// MakeAtomicBuffer wraps data in an AtomicBuffer.
func MakeAtomicBuffer(data []byte) *AtomicBuffer {
	return &AtomicBuffer{data: data}
}

// Capacity returns the length of the underlying region in bytes.
func (b *AtomicBuffer) Capacity() int32 {
	return int32(len(b.data))
}

// Data returns the underlying byte region.
func (b *AtomicBuffer) Data() []byte {
	return b.data
}

// Slice returns an AtomicBuffer view over [offset, offset+length).
func (b *AtomicBuffer) Slice(offset, length int32) *AtomicBuffer {
	b.boundsCheck(offset, length)
	return &AtomicBuffer{data: b.data[offset : offset+length : offset+length]}
}

func (b *AtomicBuffer) boundsCheck(offset, length int32) {
	if offset < 0 || length < 0 || int(offset)+int(length) > len(b.data) {
		panic(fmt.Sprintf("index out of bounds: offset=%d length=%d capacity=%d", offset, length, len(b.data)))
	}
}

func (b *AtomicBuffer) alignCheck(offset, size int32) {
	if offset&(size-1) != 0 {
		panic(fmt.Sprintf("unaligned atomic access: offset=%d size=%d", offset, size))
	}
}

func (b *AtomicBuffer) ptr32(offset int32) *uint32 {
	b.boundsCheck(offset, 4)
	b.alignCheck(offset, 4)
	return (*uint32)(unsafe.Pointer(&b.data[offset]))
}

func (b *AtomicBuffer) ptr64(offset int32) *uint64 {
	b.boundsCheck(offset, 8)
	b.alignCheck(offset, 8)
	return (*uint64)(unsafe.Pointer(&b.data[offset]))
}

// GetInt32 reads a plain 32-bit value at offset.
func (b *AtomicBuffer) GetInt32(offset int32) int32 {
	b.boundsCheck(offset, 4)
	return int32(binary.LittleEndian.Uint32(b.data[offset:]))
}

// PutInt32 writes a plain 32-bit value at offset.
func (b *AtomicBuffer) PutInt32(offset int32, value int32) {
	b.boundsCheck(offset, 4)
	binary.LittleEndian.PutUint32(b.data[offset:], uint32(value))
}

// GetInt64 reads a plain 64-bit value at offset.
func (b *AtomicBuffer) GetInt64(offset int32) int64 {
	b.boundsCheck(offset, 8)
	return int64(binary.LittleEndian.Uint64(b.data[offset:]))
}

// PutInt64 writes a plain 64-bit value at offset.
func (b *AtomicBuffer) PutInt64(offset int32, value int64) {
	b.boundsCheck(offset, 8)
	binary.LittleEndian.PutUint64(b.data[offset:], uint64(value))
}

// GetInt32Volatile reads a 32-bit value with acquire ordering.
func (b *AtomicBuffer) GetInt32Volatile(offset int32) int32 {
	return int32(atomic.LoadUint32(b.ptr32(offset)))
}

// PutInt32Ordered writes a 32-bit value with release ordering.
func (b *AtomicBuffer) PutInt32Ordered(offset int32, value int32) {
	atomic.StoreUint32(b.ptr32(offset), uint32(value))
}

// GetInt64Volatile reads a 64-bit value with acquire ordering.
func (b *AtomicBuffer) GetInt64Volatile(offset int32) int64 {
	return int64(atomic.LoadUint64(b.ptr64(offset)))
}

// PutInt64Ordered writes a 64-bit value with release ordering.
func (b *AtomicBuffer) PutInt64Ordered(offset int32, value int64) {
	atomic.StoreUint64(b.ptr64(offset), uint64(value))
}

// CompareAndSetInt32 atomically replaces the value at offset if it equals
// expected, reporting whether the swap happened.
func (b *AtomicBuffer) CompareAndSetInt32(offset int32, expected, updated int32) bool {
	return atomic.CompareAndSwapUint32(b.ptr32(offset), uint32(expected), uint32(updated))
}

// CompareAndSetInt64 atomically replaces the value at offset if it equals
// expected, reporting whether the swap happened.
func (b *AtomicBuffer) CompareAndSetInt64(offset int32, expected, updated int64) bool {
	return atomic.CompareAndSwapUint64(b.ptr64(offset), uint64(expected), uint64(updated))
}

// GetAndAddInt64 atomically adds delta to the value at offset and returns the
// previous value.
func (b *AtomicBuffer) GetAndAddInt64(offset int32, delta int64) int64 {
	return int64(atomic.AddUint64(b.ptr64(offset), uint64(delta))) - delta
}

// GetUInt8 reads a single byte at offset.
func (b *AtomicBuffer) GetUInt8(offset int32) uint8 {
	b.boundsCheck(offset, 1)
	return b.data[offset]
}

// PutUInt8 writes a single byte at offset.
func (b *AtomicBuffer) PutUInt8(offset int32, value uint8) {
	b.boundsCheck(offset, 1)
	b.data[offset] = value
}

// GetUInt16 reads a 16-bit value at offset.
func (b *AtomicBuffer) GetUInt16(offset int32) uint16 {
	b.boundsCheck(offset, 2)
	return binary.LittleEndian.Uint16(b.data[offset:])
}

// PutUInt16 writes a 16-bit value at offset.
func (b *AtomicBuffer) PutUInt16(offset int32, value uint16) {
	b.boundsCheck(offset, 2)
	binary.LittleEndian.PutUint16(b.data[offset:], value)
}

// GetBytes copies length bytes starting at offset into a new slice.
func (b *AtomicBuffer) GetBytes(offset, length int32) []byte {
	b.boundsCheck(offset, length)
	out := make([]byte, length)
	copy(out, b.data[offset:offset+length])
	return out
}

// PutBytes copies src into the buffer starting at offset.
func (b *AtomicBuffer) PutBytes(offset int32, src []byte) {
	b.boundsCheck(offset, int32(len(src)))
	copy(b.data[offset:], src)
}

// GetStringUTF8 reads a 32-bit length-prefixed UTF-8 string at offset.
func (b *AtomicBuffer) GetStringUTF8(offset int32) string {
	length := b.GetInt32(offset)
	b.boundsCheck(offset+4, length)
	return string(b.data[offset+4 : offset+4+length])
}

// PutStringUTF8 writes a 32-bit length-prefixed UTF-8 string at offset and
// returns the number of bytes consumed.
func (b *AtomicBuffer) PutStringUTF8(offset int32, value string) int32 {
	b.PutInt32(offset, int32(len(value)))
	b.PutBytes(offset+4, []byte(value))
	return 4 + int32(len(value))
}

// SetMemory fills [offset, offset+length) with value.
func (b *AtomicBuffer) SetMemory(offset, length int32, value byte) {
	b.boundsCheck(offset, length)
	region := b.data[offset : offset+length]
	for i := range region {
		region[i] = value
	}
}
