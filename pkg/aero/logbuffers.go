package aero

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/internal/memmap"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

// LogBuffers owns the mapping of one log file and the term partition and
// metadata views over it. Publications and Images share them by reference
// count so the conductor can linger the mapping after close.
type LogBuffers struct {
	mapped   *memmap.File
	terms    [logbuffer.PartitionCount]*buffers.AtomicBuffer
	metadata *buffers.AtomicBuffer
	refs     int
}

// MapLogBuffers maps the log file at path and carves its partitions.
func MapLogBuffers(path string) (*LogBuffers, error) {
	mapped, err := memmap.MapExisting(path, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("map log file: %w", err)
	}

	logLength := int64(len(mapped.Data()))
	termLength := logbuffer.ComputeTermLength(logLength)
	if err := logbuffer.CheckTermLength(termLength); err != nil {
		mapped.Close()
		return nil, fmt.Errorf("log file %s: %w", path, err)
	}

	whole := buffers.MakeAtomicBuffer(mapped.Data())
	lb := &LogBuffers{mapped: mapped, refs: 1}
	for i := int32(0); i < logbuffer.PartitionCount; i++ {
		lb.terms[i] = whole.Slice(i*int32(termLength), int32(termLength))
	}
	lb.metadata = whole.Slice(int32(termLength)*logbuffer.PartitionCount, logbuffer.LogMetaDataLength)

	return lb, nil
}

// TermBuffer returns the term partition at index.
func (l *LogBuffers) TermBuffer(index int32) *buffers.AtomicBuffer { return l.terms[index] }

// MetaDataBuffer returns the log metadata section.
func (l *LogBuffers) MetaDataBuffer() *buffers.AtomicBuffer { return l.metadata }

// TermLength returns the length of each term partition.
func (l *LogBuffers) TermLength() int32 { return l.terms[0].Capacity() }

// FileName returns the path of the mapped log file.
func (l *LogBuffers) FileName() string { return l.mapped.Name() }

// incRef is called by the conductor when a handle shares the mapping.
func (l *LogBuffers) incRef() { l.refs++ }

// decRef releases one reference, unmapping when the last is gone. Returns
// the remaining count.
func (l *LogBuffers) decRef() int {
	l.refs--
	if l.refs == 0 {
		l.mapped.Close()
	}
	return l.refs
}
