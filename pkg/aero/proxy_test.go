package aero

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/ringbuffer"
)

func makeProxy(t *testing.T) (*DriverProxy, *ringbuffer.ManyToOneRingBuffer) {
	t.Helper()
	ring, err := ringbuffer.NewManyToOneRingBuffer(
		buffers.MakeAtomicBuffer(make([]byte, 4096+ringbuffer.TrailerLength)))
	require.NoError(t, err)
	return NewDriverProxy(ring), ring
}

func TestDriverProxy_ClientIDFromCorrelationCounter(t *testing.T) {
	proxy, ring := makeProxy(t)

	// The client id consumed the first correlation id; commands draw later
	// ones.
	correlationID, err := proxy.AddPublication("aeron:ipc", 1)
	require.NoError(t, err)
	assert.Greater(t, correlationID, proxy.ClientID())
	assert.Less(t, correlationID, ring.NextCorrelationID())
}

func TestDriverProxy_CommandEncodings(t *testing.T) {
	proxy, ring := makeProxy(t)

	addPubID, err := proxy.AddPublication("aeron:ipc", 1001)
	require.NoError(t, err)
	addSubID, err := proxy.AddSubscription("aeron:udp?endpoint=localhost:40123", 77)
	require.NoError(t, err)
	removePubID, err := proxy.RemovePublication(addPubID)
	require.NoError(t, err)
	removeSubID, err := proxy.RemoveSubscription(addSubID)
	require.NoError(t, err)
	require.NoError(t, proxy.SendClientKeepalive())

	type record struct {
		typeID  int32
		payload []byte
	}
	var records []record
	n := ring.Read(func(msgTypeID int32, buf *buffers.AtomicBuffer, offset, length int32) {
		records = append(records, record{msgTypeID, buf.GetBytes(offset, length)})
	}, 10)
	require.Equal(t, 5, n)

	decode := func(r record) *buffers.AtomicBuffer { return buffers.MakeAtomicBuffer(r.payload) }

	addPub := decode(records[0])
	assert.Equal(t, AddPublicationCmd, records[0].typeID)
	assert.Equal(t, proxy.ClientID(), addPub.GetInt64(0))
	assert.Equal(t, addPubID, addPub.GetInt64(8))
	assert.EqualValues(t, 1001, addPub.GetInt32(16))
	assert.Equal(t, "aeron:ipc", addPub.GetStringUTF8(20))

	addSub := decode(records[1])
	assert.Equal(t, AddSubscriptionCmd, records[1].typeID)
	assert.Equal(t, addSubID, addSub.GetInt64(8))
	assert.EqualValues(t, -1, addSub.GetInt64(16))
	assert.EqualValues(t, 77, addSub.GetInt32(24))
	assert.Equal(t, "aeron:udp?endpoint=localhost:40123", addSub.GetStringUTF8(28))

	removePub := decode(records[2])
	assert.Equal(t, RemovePublicationCmd, records[2].typeID)
	assert.Equal(t, removePubID, removePub.GetInt64(8))
	assert.Equal(t, addPubID, removePub.GetInt64(16))

	removeSub := decode(records[3])
	assert.Equal(t, RemoveSubscriptionCmd, records[3].typeID)
	assert.Equal(t, removeSubID, removeSub.GetInt64(8))
	assert.Equal(t, addSubID, removeSub.GetInt64(16))

	keepalive := decode(records[4])
	assert.Equal(t, ClientKeepaliveCmd, records[4].typeID)
	assert.Equal(t, proxy.ClientID(), keepalive.GetInt64(0))
	assert.Zero(t, keepalive.GetInt64(8))
}

func TestDriverProxy_BackPressure(t *testing.T) {
	proxy, _ := makeProxy(t)

	// Fill the small ring without a consumer until the claim fails.
	var err error
	for i := 0; i < 1000; i++ {
		if _, err = proxy.AddPublication("aeron:ipc", 1); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrBackPressured)
}

func TestFlyweights_ImageReadyRoundTrip(t *testing.T) {
	buf := buffers.MakeAtomicBuffer(make([]byte, 512))

	length := EncodeImageReady(buf, 5000, 7, 77,
		[]int32{3, 9}, []int64{100, 200}, "/dev/shm/stream.logbuffer", "aeron:udp?endpoint=127.0.0.1:40123")
	require.Positive(t, length)

	ev := decodeImageReady(buf, 0)
	assert.EqualValues(t, 5000, ev.correlationID)
	assert.EqualValues(t, 7, ev.sessionID)
	assert.EqualValues(t, 77, ev.streamID)
	require.Len(t, ev.subscriberPositions, 2)
	assert.EqualValues(t, 3, ev.subscriberPositions[0].indicatorID)
	assert.EqualValues(t, 100, ev.subscriberPositions[0].registrationID)
	assert.EqualValues(t, 9, ev.subscriberPositions[1].indicatorID)
	assert.EqualValues(t, 200, ev.subscriberPositions[1].registrationID)
	assert.Equal(t, "/dev/shm/stream.logbuffer", ev.logFileName)
	assert.Equal(t, "aeron:udp?endpoint=127.0.0.1:40123", ev.sourceIdentity)
}
