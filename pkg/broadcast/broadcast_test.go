package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

const testBroadcastCapacity = 1024

func makePair(t *testing.T) (*Transmitter, *Receiver) {
	t.Helper()
	buffer := buffers.MakeAtomicBuffer(make([]byte, testBroadcastCapacity+TrailerLength))

	transmitter, err := NewTransmitter(buffer)
	require.NoError(t, err)
	receiver, err := NewReceiver(buffer)
	require.NoError(t, err)

	return transmitter, receiver
}

func transmitString(t *testing.T, transmitter *Transmitter, typeID int32, payload string) {
	t.Helper()
	src := buffers.MakeAtomicBuffer([]byte(payload))
	require.NoError(t, transmitter.Transmit(typeID, src, 0, int32(len(payload))))
}

func TestBroadcast_SingleMessage(t *testing.T) {
	transmitter, receiver := makePair(t)
	transmitString(t, transmitter, 5, "event one")

	require.True(t, receiver.ReceiveNext())
	assert.EqualValues(t, 5, receiver.TypeID())
	assert.Equal(t, "event one", string(receiver.Buffer().GetBytes(receiver.Offset(), receiver.Length())))
	assert.True(t, receiver.Validate(receiver.cursor))

	assert.False(t, receiver.ReceiveNext())
}

func TestBroadcast_MessagesInOrder(t *testing.T) {
	transmitter, receiver := makePair(t)
	transmitString(t, transmitter, 1, "first")
	transmitString(t, transmitter, 2, "second")

	require.True(t, receiver.ReceiveNext())
	assert.Equal(t, "first", string(receiver.Buffer().GetBytes(receiver.Offset(), receiver.Length())))
	require.True(t, receiver.ReceiveNext())
	assert.Equal(t, "second", string(receiver.Buffer().GetBytes(receiver.Offset(), receiver.Length())))
}

func TestBroadcast_IndependentReceivers(t *testing.T) {
	buffer := buffers.MakeAtomicBuffer(make([]byte, testBroadcastCapacity+TrailerLength))
	transmitter, err := NewTransmitter(buffer)
	require.NoError(t, err)
	first, err := NewReceiver(buffer)
	require.NoError(t, err)
	second, err := NewReceiver(buffer)
	require.NoError(t, err)

	transmitString(t, transmitter, 1, "shared")

	require.True(t, first.ReceiveNext())
	require.True(t, second.ReceiveNext())
	assert.Equal(t, "shared", string(first.Buffer().GetBytes(first.Offset(), first.Length())))
	assert.Equal(t, "shared", string(second.Buffer().GetBytes(second.Offset(), second.Length())))
}

func TestBroadcast_WrapsAroundBuffer(t *testing.T) {
	transmitter, receiver := makePair(t)

	// Push enough records through to wrap several times, consuming as we
	// go so the receiver is never lapped.
	for i := 0; i < 100; i++ {
		transmitString(t, transmitter, 1, "abcdefghijklmnopqrstuvwxyz0123456789")
		require.True(t, receiver.ReceiveNext(), "iteration %d", i)
		assert.Equal(t, "abcdefghijklmnopqrstuvwxyz0123456789",
			string(receiver.Buffer().GetBytes(receiver.Offset(), receiver.Length())))
	}
	assert.Zero(t, receiver.LappedCount())
}

func TestBroadcast_LapDetectedAndResynchronized(t *testing.T) {
	transmitter, receiver := makePair(t)

	// Overrun the idle receiver by more than a full buffer.
	payload := make([]byte, 100)
	src := buffers.MakeAtomicBuffer(payload)
	for i := 0; i < 50; i++ {
		require.NoError(t, transmitter.Transmit(1, src, 0, int32(len(payload))))
	}

	require.True(t, receiver.ReceiveNext())
	assert.GreaterOrEqual(t, receiver.LappedCount(), int64(1))

	// After resynchronizing the receiver drains to the tail and catches up.
	drained := 1
	for receiver.ReceiveNext() {
		drained++
	}
	assert.Greater(t, drained, 0)

	lapsAfterResync := receiver.LappedCount()
	transmitString(t, transmitter, 2, "fresh")
	require.True(t, receiver.ReceiveNext())
	assert.Equal(t, "fresh", string(receiver.Buffer().GetBytes(receiver.Offset(), receiver.Length())))
	assert.Equal(t, lapsAfterResync, receiver.LappedCount())
}

func TestCopyReceiver_DeliversCopies(t *testing.T) {
	transmitter, receiver := makePair(t)
	copyReceiver := NewCopyReceiver(receiver)

	transmitString(t, transmitter, 9, "copied event")

	var gotType int32
	var gotPayload string
	n, err := copyReceiver.Receive(func(msgTypeID int32, buf *buffers.AtomicBuffer, offset, length int32) {
		gotType = msgTypeID
		gotPayload = string(buf.GetBytes(offset, length))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 9, gotType)
	assert.Equal(t, "copied event", gotPayload)

	n, err = copyReceiver.Receive(func(int32, *buffers.AtomicBuffer, int32, int32) {})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyReceiver_SkipsBacklogAtCreation(t *testing.T) {
	transmitter, receiver := makePair(t)
	transmitString(t, transmitter, 1, "stale")

	copyReceiver := NewCopyReceiver(receiver)

	n, err := copyReceiver.Receive(func(int32, *buffers.AtomicBuffer, int32, int32) {
		t.Error("stale event must not be delivered")
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyReceiver_ReportsLap(t *testing.T) {
	transmitter, receiver := makePair(t)
	copyReceiver := NewCopyReceiver(receiver)

	payload := make([]byte, 100)
	src := buffers.MakeAtomicBuffer(payload)
	for i := 0; i < 50; i++ {
		require.NoError(t, transmitter.Transmit(1, src, 0, int32(len(payload))))
	}

	n, err := copyReceiver.Receive(func(int32, *buffers.AtomicBuffer, int32, int32) {})
	require.Error(t, err)

	var lapped *LappedError
	require.ErrorAs(t, err, &lapped)
	assert.GreaterOrEqual(t, lapped.Laps, int64(1))
	assert.LessOrEqual(t, n, 1)
}
