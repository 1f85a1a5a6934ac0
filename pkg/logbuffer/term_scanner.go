package logbuffer

import "github.com/aeroipc/aeroipc-go/pkg/buffers"

// BlockScan returns the offset one past the largest contiguous range of
// fully committed frames in [termOffset, limit) that ends on a frame
// boundary. Padding terminates the block at its start, except when the scan
// begins on the padding frame itself, in which case the padding alone is
// consumed so the consumer can move past the term end.
func BlockScan(termBuffer *buffers.AtomicBuffer, termOffset, limit int32) int32 {
	offset := termOffset

	for offset < limit {
		frameLength := FrameLengthVolatile(termBuffer, offset)
		if frameLength <= 0 {
			break
		}

		alignedFrameLength := align(frameLength)

		if IsPaddingFrame(termBuffer, offset) {
			if termOffset == offset {
				offset += alignedFrameLength
			}
			break
		}

		if offset+alignedFrameLength > limit {
			break
		}

		offset += alignedFrameLength
	}

	return offset
}
