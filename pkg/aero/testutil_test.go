package aero

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aeroipc/aeroipc-go/internal/memmap"
	"github.com/aeroipc/aeroipc-go/pkg/broadcast"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
	"github.com/aeroipc/aeroipc-go/pkg/ringbuffer"
)

const (
	testTermLength = 64 * 1024
	testMTU        = 4096
)

// capturedCommand is one command the fake driver side read off the ring.
type capturedCommand struct {
	typeID        int32
	clientID      int64
	correlationID int64
	registration  int64
	streamID      int32
	channel       string
}

// testHarness stands in for the media driver: it owns the driver side of
// the ring and broadcast plus the counters, and drives a conductor whose
// clock the test controls.
type testHarness struct {
	t           *testing.T
	nowMs       int64
	ring        *ringbuffer.ManyToOneRingBuffer
	transmitter *broadcast.Transmitter
	countersMgr *counters.Manager
	conductor   *ClientConductor
	proxy       *DriverProxy
	errors      []error
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	toDriver := buffers.MakeAtomicBuffer(make([]byte, 64*1024+ringbuffer.TrailerLength))
	toClients := buffers.MakeAtomicBuffer(make([]byte, 64*1024+broadcast.TrailerLength))
	counterMetadata := buffers.MakeAtomicBuffer(make([]byte, 64*counters.MetadataLength))
	counterValues := buffers.MakeAtomicBuffer(make([]byte, 64*counters.CounterLength))

	ring, err := ringbuffer.NewManyToOneRingBuffer(toDriver)
	require.NoError(t, err)
	transmitter, err := broadcast.NewTransmitter(toClients)
	require.NoError(t, err)
	receiver, err := broadcast.NewReceiver(toClients)
	require.NoError(t, err)

	h := &testHarness{
		t:           t,
		nowMs:       time.Now().UnixMilli(),
		ring:        ring,
		transmitter: transmitter,
		countersMgr: counters.NewManager(counterMetadata, counterValues),
	}

	ctx := NewContext().
		WithErrorHandler(func(err error) { h.errors = append(h.errors, err) })
	ctx.DriverTimeout = 500 * time.Millisecond
	ctx.KeepaliveInterval = 50 * time.Millisecond
	ctx.InterServiceTimeout = time.Hour
	ctx.ResourceLinger = 10 * time.Millisecond
	ctx.PublicationConnectionTimeout = 5 * time.Second

	h.proxy = NewDriverProxy(ring)
	h.conductor = newClientConductor(h.proxy, broadcast.NewCopyReceiver(receiver), counterValues, ctx)

	// The test owns time.
	h.conductor.epochClock = func() int64 { return h.nowMs }
	h.conductor.timeOfLastKeepaliveMs = h.nowMs
	h.conductor.timeOfLastResourceCheckMs = h.nowMs
	h.conductor.timeOfLastDoWorkMs = h.nowMs
	h.driverHeartbeat()

	return h
}

// advance moves the test clock and keeps the driver heartbeat fresh unless
// frozen.
func (h *testHarness) advance(d time.Duration, freezeDriver bool) {
	h.nowMs += d.Milliseconds()
	if !freezeDriver {
		h.driverHeartbeat()
	}
}

func (h *testHarness) driverHeartbeat() {
	h.ring.SetConsumerHeartbeatTime(h.nowMs)
}

// drainCommands consumes every command currently on the to-driver ring.
func (h *testHarness) drainCommands() []capturedCommand {
	var commands []capturedCommand

	h.ring.Read(func(msgTypeID int32, buf *buffers.AtomicBuffer, offset, length int32) {
		cmd := capturedCommand{
			typeID:        msgTypeID,
			clientID:      buf.GetInt64(offset),
			correlationID: buf.GetInt64(offset + 8),
		}
		switch msgTypeID {
		case AddPublicationCmd:
			cmd.streamID = buf.GetInt32(offset + 16)
			cmd.channel = buf.GetStringUTF8(offset + 20)
		case AddSubscriptionCmd:
			cmd.registration = buf.GetInt64(offset + 16)
			cmd.streamID = buf.GetInt32(offset + 24)
			cmd.channel = buf.GetStringUTF8(offset + 28)
		case RemovePublicationCmd, RemoveSubscriptionCmd:
			cmd.registration = buf.GetInt64(offset + 16)
		}
		commands = append(commands, cmd)
	}, 100)

	return commands
}

func (h *testHarness) transmit(typeID int32, encode func(buf *buffers.AtomicBuffer) int32) {
	h.t.Helper()
	scratch := buffers.MakeAtomicBuffer(make([]byte, 1024))
	length := encode(scratch)
	require.NoError(h.t, h.transmitter.Transmit(typeID, scratch, 0, length))
}

func (h *testHarness) sendPublicationReady(correlationID int64, sessionID, streamID, limitCounterID int32, logFileName string) {
	h.transmit(OnPublicationReadyEvent, func(buf *buffers.AtomicBuffer) int32 {
		return EncodePublicationReady(buf, correlationID, sessionID, streamID, limitCounterID, logFileName)
	})
}

func (h *testHarness) sendSubscriptionReady(correlationID int64, channelStatusID int32) {
	h.transmit(OnSubscriptionReadyEvent, func(buf *buffers.AtomicBuffer) int32 {
		return EncodeSubscriptionReady(buf, correlationID, channelStatusID)
	})
}

func (h *testHarness) sendImageReady(correlationID int64, sessionID, streamID, positionCounterID int32, subscriptionRegistrationID int64, logFileName string) {
	h.transmit(OnAvailableImageEvent, func(buf *buffers.AtomicBuffer) int32 {
		return EncodeImageReady(buf, correlationID, sessionID, streamID,
			[]int32{positionCounterID}, []int64{subscriptionRegistrationID},
			logFileName, "aeron:ipc")
	})
}

func (h *testHarness) sendImageUnavailable(correlationID, subscriptionRegistrationID int64) {
	h.transmit(OnUnavailableImageEvent, func(buf *buffers.AtomicBuffer) int32 {
		return EncodeImageMessage(buf, correlationID, subscriptionRegistrationID, 0)
	})
}

func (h *testHarness) sendError(offendingCorrelationID int64, code int32, message string) {
	h.transmit(OnErrorEvent, func(buf *buffers.AtomicBuffer) int32 {
		return EncodeErrorResponse(buf, offendingCorrelationID, code, message)
	})
}

// allocateCounter allocates a driver-side counter and sets its value.
func (h *testHarness) allocateCounter(label string, value int64) int32 {
	h.t.Helper()
	id, err := h.countersMgr.Allocate(label, 1)
	require.NoError(h.t, err)
	h.countersMgr.SetCounterValue(id, value)
	return id
}

// createLogFile lays out an initialized log file the way the driver would.
func createLogFile(t *testing.T, sessionID, streamID, initialTermID int32) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "publication.logbuffer")
	mapped, err := memmap.MapNew(path, int(logbuffer.ComputeLogLength(testTermLength)))
	require.NoError(t, err)
	defer mapped.Close()

	whole := buffers.MakeAtomicBuffer(mapped.Data())
	metadata := whole.Slice(testTermLength*logbuffer.PartitionCount, logbuffer.LogMetaDataLength)

	metadata.PutInt64(logbuffer.TailCounterOffset(0), int64(initialTermID)<<32)
	metadata.PutInt32(logbuffer.LogActivePartitionIndexOffset, 0)
	metadata.PutInt32(logbuffer.LogInitialTermIDOffset, initialTermID)
	metadata.PutInt32(logbuffer.LogDefaultFrameHeaderLengthOffset, logbuffer.DataFrameHeaderLength)
	metadata.PutInt32(logbuffer.LogMTULengthOffset, testMTU)
	metadata.PutInt64(logbuffer.LogTimeOfLastStatusMessageOffset, time.Now().UnixMilli())

	defaultHeader := logbuffer.DefaultFrameHeader(metadata)
	defaultHeader.PutUInt8(logbuffer.VersionFieldOffset, logbuffer.CurrentVersion)
	defaultHeader.PutUInt8(logbuffer.FlagsFieldOffset, logbuffer.UnfragmentedFlag)
	defaultHeader.PutUInt16(logbuffer.TypeFieldOffset, logbuffer.FrameTypeData)
	defaultHeader.PutInt32(logbuffer.SessionIDFieldOffset, sessionID)
	defaultHeader.PutInt32(logbuffer.StreamIDFieldOffset, streamID)

	return path
}
