package aero

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/internal/memmap"
	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// CncFile is the name of the command-and-control file under the driver
// directory.
const CncFile = "cnc.dat"

// CncVersion is the protocol version this client implements. A driver
// writing any other version is refused.
const CncVersion int32 = 5

// CnC file layout:
//
//	+----------------------------+
//	|   version + metadata       |  128 bytes
//	+----------------------------+
//	|      to-driver ring        |
//	+----------------------------+
//	|    to-clients broadcast    |
//	+----------------------------+
//	|   counters metadata        |
//	+----------------------------+
//	|    counters values         |
//	+----------------------------+
//	|         error log          |
//	+----------------------------+
//
// Metadata fields, little-endian, 4-byte aligned:
const (
	cncVersionFieldOffset            = 0
	cncToDriverBufferLengthOffset    = 4
	cncToClientsBufferLengthOffset   = 8
	cncCounterMetadataLengthOffset   = 12
	cncCounterValuesLengthOffset     = 16
	cncClientLivenessTimeoutOffset   = 20
	cncErrorLogBufferLengthOffset    = 28
	cncVersionAndMetaDataLengthValue = 2 * bits.CacheLineLength
)

// CncMetadata is the decoded header of a mapped CnC file.
type CncMetadata struct {
	Version                  int32
	ToDriverBufferLength     int32
	ToClientsBufferLength    int32
	CounterMetadataLength    int32
	CounterValuesLength      int32
	ClientLivenessTimeoutNs  int64
	ErrorLogBufferLength     int32
}

// CncBuffers carves the sub-buffers out of one CnC mapping.
type CncBuffers struct {
	Metadata        CncMetadata
	ToDriver        *buffers.AtomicBuffer
	ToClients       *buffers.AtomicBuffer
	CounterMetadata *buffers.AtomicBuffer
	CounterValues   *buffers.AtomicBuffer
	ErrorLog        *buffers.AtomicBuffer
}

// MapCncFile maps the CnC file at path, validates its version and sub-buffer
// lengths, and returns the mapping with its carved buffers.
func MapCncFile(path string) (*memmap.File, *CncBuffers, error) {
	mapped, err := memmap.MapExisting(path, 0, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("map CnC file: %w", err)
	}

	cnc, err := WrapCnc(buffers.MakeAtomicBuffer(mapped.Data()))
	if err != nil {
		mapped.Close()
		return nil, nil, err
	}

	return mapped, cnc, nil
}

// WrapCnc validates and carves an already-mapped CnC region.
func WrapCnc(buffer *buffers.AtomicBuffer) (*CncBuffers, error) {
	if buffer.Capacity() < cncVersionAndMetaDataLengthValue {
		return nil, fmt.Errorf("CnC file too short: %d bytes", buffer.Capacity())
	}

	meta := CncMetadata{
		Version:                 buffer.GetInt32Volatile(cncVersionFieldOffset),
		ToDriverBufferLength:    buffer.GetInt32(cncToDriverBufferLengthOffset),
		ToClientsBufferLength:   buffer.GetInt32(cncToClientsBufferLengthOffset),
		CounterMetadataLength:   buffer.GetInt32(cncCounterMetadataLengthOffset),
		CounterValuesLength:     buffer.GetInt32(cncCounterValuesLengthOffset),
		ClientLivenessTimeoutNs: buffer.GetInt64(cncClientLivenessTimeoutOffset),
		ErrorLogBufferLength:    buffer.GetInt32(cncErrorLogBufferLengthOffset),
	}

	if meta.Version != CncVersion {
		return nil, fmt.Errorf("%w: file=%d supported=%d", ErrCncVersionMismatch, meta.Version, CncVersion)
	}

	if meta.ToDriverBufferLength < 0 || meta.ToClientsBufferLength < 0 || meta.CounterMetadataLength < 0 ||
		meta.CounterValuesLength < 0 || meta.ErrorLogBufferLength < 0 ||
		ComputeCncFileLength(meta) > int(buffer.Capacity()) {
		return nil, fmt.Errorf("CnC sub-buffer lengths do not fit the %d-byte file", buffer.Capacity())
	}

	offset := int32(cncVersionAndMetaDataLengthValue)
	toDriver := buffer.Slice(offset, meta.ToDriverBufferLength)
	offset += meta.ToDriverBufferLength
	toClients := buffer.Slice(offset, meta.ToClientsBufferLength)
	offset += meta.ToClientsBufferLength
	counterMetadata := buffer.Slice(offset, meta.CounterMetadataLength)
	offset += meta.CounterMetadataLength
	counterValues := buffer.Slice(offset, meta.CounterValuesLength)
	offset += meta.CounterValuesLength
	errorLog := buffer.Slice(offset, meta.ErrorLogBufferLength)

	return &CncBuffers{
		Metadata:        meta,
		ToDriver:        toDriver,
		ToClients:       toClients,
		CounterMetadata: counterMetadata,
		CounterValues:   counterValues,
		ErrorLog:        errorLog,
	}, nil
}

// WriteCncHeader initializes the metadata header of a fresh CnC region.
// Only driver harnesses and tests use this; a real driver writes its own.
func WriteCncHeader(buffer *buffers.AtomicBuffer, meta CncMetadata) {
	buffer.PutInt32(cncToDriverBufferLengthOffset, meta.ToDriverBufferLength)
	buffer.PutInt32(cncToClientsBufferLengthOffset, meta.ToClientsBufferLength)
	buffer.PutInt32(cncCounterMetadataLengthOffset, meta.CounterMetadataLength)
	buffer.PutInt32(cncCounterValuesLengthOffset, meta.CounterValuesLength)
	buffer.PutInt64(cncClientLivenessTimeoutOffset, meta.ClientLivenessTimeoutNs)
	buffer.PutInt32(cncErrorLogBufferLengthOffset, meta.ErrorLogBufferLength)
	buffer.PutInt32Ordered(cncVersionFieldOffset, meta.Version)
}

// ComputeCncFileLength returns the total file length for the given
// sub-buffer lengths.
func ComputeCncFileLength(meta CncMetadata) int {
	return cncVersionAndMetaDataLengthValue +
		int(meta.ToDriverBufferLength) +
		int(meta.ToClientsBufferLength) +
		int(meta.CounterMetadataLength) +
		int(meta.CounterValuesLength) +
		int(meta.ErrorLogBufferLength)
}
