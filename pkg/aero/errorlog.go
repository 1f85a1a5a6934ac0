package aero

import (
	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Distinct error log record layout:
//
//	+-----------------------------+
//	|       Length (i32)          |
//	+-----------------------------+
//	|  Observation Count (i32)    |
//	+-----------------------------+
//	| Last Observation Ts (i64)   |
//	+-----------------------------+
//	| First Observation Ts (i64)  |
//	+-----------------------------+
//	|     Encoded Error (UTF-8)  ...
//	+-----------------------------+
//
// Records are 8-byte aligned; a zero length terminates the log.
const (
	errorLogLengthOffset           = 0
	errorLogObservationCountOffset = 4
	errorLogLastObservationOffset  = 8
	errorLogFirstObservationOffset = 16
	errorLogEncodedErrorOffset     = 24

	errorLogRecordAlignment = 8
)

// ErrorObservation is one distinct error recorded by the driver.
type ErrorObservation struct {
	ObservationCount     int32
	FirstObservationMs   int64
	LastObservationMs    int64
	EncodedError         string
}

// ErrorLogReader iterates the distinct error log in the CnC file.
type ErrorLogReader struct {
	buffer *buffers.AtomicBuffer
}

// NewErrorLogReader creates a reader over the error log sub-buffer.
func NewErrorLogReader(buffer *buffers.AtomicBuffer) *ErrorLogReader {
	return &ErrorLogReader{buffer: buffer}
}

// ForEach walks the recorded errors in order, returning the count visited.
func (r *ErrorLogReader) ForEach(fn func(observation ErrorObservation)) int {
	count := 0
	offset := int32(0)
	capacity := r.buffer.Capacity()

	for offset+errorLogEncodedErrorOffset < capacity {
		length := r.buffer.GetInt32Volatile(offset + errorLogLengthOffset)
		if length <= 0 {
			break
		}

		fn(ErrorObservation{
			ObservationCount:   r.buffer.GetInt32Volatile(offset + errorLogObservationCountOffset),
			LastObservationMs:  r.buffer.GetInt64Volatile(offset + errorLogLastObservationOffset),
			FirstObservationMs: r.buffer.GetInt64(offset + errorLogFirstObservationOffset),
			EncodedError:       string(r.buffer.GetBytes(offset+errorLogEncodedErrorOffset, length-errorLogEncodedErrorOffset)),
		})

		count++
		offset += bits.Align(length, errorLogRecordAlignment)
	}

	return count
}
