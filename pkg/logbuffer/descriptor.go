package logbuffer

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// A log is three equal-length term partitions followed by a metadata
// section:
//
//	+----------------------------+
//	|           Term 0           |
//	+----------------------------+
//	|           Term 1           |
//	+----------------------------+
//	|           Term 2           |
//	+----------------------------+
//	|        Log Meta Data       |
//	+----------------------------+
//
// Metadata layout (offsets below): per-partition tail counters, the active
// partition index, time of last status message, registration correlation id,
// initial term id, default frame header length, MTU length, and the default
// frame header template. Tail counters pack termId in the high 32 bits and
// the tail byte offset in the low 32.
const (
	// PartitionCount is fixed at three; readers may assume it.
	PartitionCount = 3

	// TermMinLength is the smallest permitted term partition length.
	TermMinLength = 64 * 1024

	TermTailCounterOffset = 0

	LogActivePartitionIndexOffset = PartitionCount * 8

	LogTimeOfLastStatusMessageOffset = 2 * bits.CacheLineLength

	LogCorrelationIDOffset            = 4 * bits.CacheLineLength
	LogInitialTermIDOffset            = LogCorrelationIDOffset + 8
	LogDefaultFrameHeaderLengthOffset = LogInitialTermIDOffset + 4
	LogMTULengthOffset                = LogDefaultFrameHeaderLengthOffset + 4

	logMetaDataStructLength = 5 * bits.CacheLineLength

	LogDefaultFrameHeaderOffset    = logMetaDataStructLength
	LogDefaultFrameHeaderMaxLength = 2 * bits.CacheLineLength

	// LogMetaDataLength is the full length of the metadata section.
	LogMetaDataLength = logMetaDataStructLength + LogDefaultFrameHeaderMaxLength
)

// CheckTermLength validates a term partition length.
func CheckTermLength(termLength int64) error {
	if termLength < TermMinLength {
		return fmt.Errorf("term length %d less than min size %d", termLength, TermMinLength)
	}
	if !bits.IsPowerOfTwo(termLength) {
		return fmt.Errorf("term length %d not a power of two", termLength)
	}
	return nil
}

// InitialTermID reads the initial term id from the log metadata.
func InitialTermID(logMetaDataBuffer *buffers.AtomicBuffer) int32 {
	return logMetaDataBuffer.GetInt32(LogInitialTermIDOffset)
}

// MTULength reads the MTU length from the log metadata.
func MTULength(logMetaDataBuffer *buffers.AtomicBuffer) int32 {
	return logMetaDataBuffer.GetInt32(LogMTULengthOffset)
}

// CorrelationID reads the registration correlation id from the log metadata.
func CorrelationID(logMetaDataBuffer *buffers.AtomicBuffer) int64 {
	return logMetaDataBuffer.GetInt64(LogCorrelationIDOffset)
}

// ActivePartitionIndex reads the active partition index with acquire
// ordering.
func ActivePartitionIndex(logMetaDataBuffer *buffers.AtomicBuffer) int32 {
	return logMetaDataBuffer.GetInt32Volatile(LogActivePartitionIndexOffset)
}

// SetActivePartitionIndex publishes a new active partition index with
// release ordering.
func SetActivePartitionIndex(logMetaDataBuffer *buffers.AtomicBuffer, index int32) {
	logMetaDataBuffer.PutInt32Ordered(LogActivePartitionIndexOffset, index)
}

// TimeOfLastStatusMessage reads the status message timestamp with acquire
// ordering.
func TimeOfLastStatusMessage(logMetaDataBuffer *buffers.AtomicBuffer) int64 {
	return logMetaDataBuffer.GetInt64Volatile(LogTimeOfLastStatusMessageOffset)
}

// SetTimeOfLastStatusMessage writes the status message timestamp with
// release ordering.
func SetTimeOfLastStatusMessage(logMetaDataBuffer *buffers.AtomicBuffer, value int64) {
	logMetaDataBuffer.PutInt64Ordered(LogTimeOfLastStatusMessageOffset, value)
}

// TailCounterOffset returns the metadata offset of a partition's raw tail.
func TailCounterOffset(partitionIndex int32) int32 {
	return TermTailCounterOffset + partitionIndex*8
}

// RawTailVolatile reads a partition's raw tail with acquire ordering.
func RawTailVolatile(logMetaDataBuffer *buffers.AtomicBuffer, partitionIndex int32) int64 {
	return logMetaDataBuffer.GetInt64Volatile(TailCounterOffset(partitionIndex))
}

// NextPartitionIndex returns the partition that follows currentIndex in
// rotation order.
func NextPartitionIndex(currentIndex int32) int32 {
	return (currentIndex + 1) % PartitionCount
}

// IndexByTerm maps a term id to its partition index.
func IndexByTerm(initialTermID, activeTermID int32) int32 {
	return bits.FastMod3(int64(activeTermID - initialTermID))
}

// IndexByPosition maps a stream position to its partition index. The shift
// is log2 of the term length.
func IndexByPosition(position int64, positionBitsToShift int32) int32 {
	return bits.FastMod3(int64(uint64(position) >> uint(positionBitsToShift)))
}

// ComputePosition converts an (activeTermID, termOffset) pair to a stream
// position.
func ComputePosition(activeTermID, termOffset, positionBitsToShift, initialTermID int32) int64 {
	termCount := int64(activeTermID - initialTermID)
	return (termCount << uint(positionBitsToShift)) + int64(termOffset)
}

// ComputeTermBeginPosition returns the stream position of the start of the
// given term.
func ComputeTermBeginPosition(activeTermID, positionBitsToShift, initialTermID int32) int64 {
	termCount := int64(activeTermID - initialTermID)
	return termCount << uint(positionBitsToShift)
}

// ComputeLogLength returns the file length of a log with the given term
// length.
func ComputeLogLength(termLength int64) int64 {
	return termLength*PartitionCount + LogMetaDataLength
}

// ComputeTermLength derives the term length from a log file length.
func ComputeTermLength(logLength int64) int64 {
	return (logLength - LogMetaDataLength) / PartitionCount
}

// TermID extracts the term id from a raw tail value.
func TermID(rawTail int64) int32 {
	return int32(rawTail >> 32)
}

// TermOffset extracts the tail byte offset from a raw tail value, clamped to
// the term length.
func TermOffset(rawTail, termLength int64) int32 {
	tail := rawTail & 0xFFFFFFFF
	return int32(min(tail, termLength))
}

// DefaultFrameHeader returns a view over the default frame header template
// in the log metadata.
func DefaultFrameHeader(logMetaDataBuffer *buffers.AtomicBuffer) *buffers.AtomicBuffer {
	return logMetaDataBuffer.Slice(LogDefaultFrameHeaderOffset, DataFrameHeaderLength)
}
