package tests

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroipc/aeroipc-go/internal/memmap"
	"github.com/aeroipc/aeroipc-go/pkg/aero"
	"github.com/aeroipc/aeroipc-go/pkg/broadcast"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
	"github.com/aeroipc/aeroipc-go/pkg/ringbuffer"
)

const (
	termLength = 64 * 1024
	mtuLength  = 4096
	streamID   = 1001
)

// fakeDriver is a minimal in-process media driver: it owns the CnC file,
// answers add commands, pairs IPC publications with subscriptions over a
// shared log file, and heartbeats the consumer slot.
type fakeDriver struct {
	t   *testing.T
	dir string

	cnc         *memmap.File
	ring        *ringbuffer.ManyToOneRingBuffer
	transmitter *broadcast.Transmitter
	countersMgr *counters.Manager

	sessionID    int32
	logFiles     int
	pubLog       string
	pubStream    int32
	pubLimitID   int32
	subPositions []int32
	subscribers  []pendingSubscriber

	stop chan struct{}
	done chan struct{}
}

type pendingSubscriber struct {
	registrationID int64
	streamID       int32
}

func newFakeDriver(t *testing.T) *fakeDriver {
	t.Helper()

	dir := t.TempDir()
	meta := aero.CncMetadata{
		Version:                 aero.CncVersion,
		ToDriverBufferLength:    64*1024 + ringbuffer.TrailerLength,
		ToClientsBufferLength:   64*1024 + broadcast.TrailerLength,
		CounterMetadataLength:   64 * counters.MetadataLength,
		CounterValuesLength:     64 * counters.CounterLength,
		ClientLivenessTimeoutNs: (10 * time.Second).Nanoseconds(),
		ErrorLogBufferLength:    8 * 1024,
	}

	cncPath := filepath.Join(dir, aero.CncFile)
	mapped, err := memmap.MapNew(cncPath, aero.ComputeCncFileLength(meta))
	require.NoError(t, err)

	region := buffers.MakeAtomicBuffer(mapped.Data())
	aero.WriteCncHeader(region, meta)

	cnc, err := aero.WrapCnc(region)
	require.NoError(t, err)

	ring, err := ringbuffer.NewManyToOneRingBuffer(cnc.ToDriver)
	require.NoError(t, err)
	transmitter, err := broadcast.NewTransmitter(cnc.ToClients)
	require.NoError(t, err)

	d := &fakeDriver{
		t:           t,
		dir:         dir,
		cnc:         mapped,
		ring:        ring,
		transmitter: transmitter,
		countersMgr: counters.NewManager(cnc.CounterMetadata, cnc.CounterValues),
		sessionID:   100,
		pubLimitID:  -1,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	ring.SetConsumerHeartbeatTime(time.Now().UnixMilli())
	return d
}

func (d *fakeDriver) start() {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				return
			default:
			}

			d.ring.SetConsumerHeartbeatTime(time.Now().UnixMilli())
			d.updatePublicationLimit()
			if n := d.ring.Read(d.onCommand, 10); n == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func (d *fakeDriver) close() {
	close(d.stop)
	<-d.done
	d.cnc.Close()
}

func (d *fakeDriver) transmit(typeID int32, encode func(*buffers.AtomicBuffer) int32) {
	scratch := buffers.MakeAtomicBuffer(make([]byte, 1024))
	length := encode(scratch)
	if err := d.transmitter.Transmit(typeID, scratch, 0, length); err != nil {
		d.t.Errorf("driver transmit: %v", err)
	}
}

// Command layouts: clientId i64, correlationId i64, then per-command fields.
// Add-publication carries streamId at +16 and the channel at +20;
// add-subscription carries the related registration at +16, streamId at +24
// and the channel at +28.
func (d *fakeDriver) onCommand(msgTypeID int32, buf *buffers.AtomicBuffer, offset, length int32) {
	correlationID := buf.GetInt64(offset + 8)

	switch msgTypeID {
	case aero.AddPublicationCmd:
		cmdStreamID := buf.GetInt32(offset + 16)
		d.sessionID++
		d.pubLog = d.createLogFile(d.sessionID, cmdStreamID)
		d.pubStream = cmdStreamID

		limitID, err := d.countersMgr.Allocate(fmt.Sprintf("pub-lmt: %d", correlationID), 1)
		if err != nil {
			d.t.Errorf("allocate limit counter: %v", err)
			return
		}
		d.countersMgr.SetCounterValue(limitID, 1<<40)
		d.pubLimitID = limitID

		sessionID := d.sessionID
		logFile := d.pubLog
		d.transmit(aero.OnPublicationReadyEvent, func(b *buffers.AtomicBuffer) int32 {
			return aero.EncodePublicationReady(b, correlationID, sessionID, cmdStreamID, limitID, logFile)
		})
		d.pairImages()

	case aero.AddSubscriptionCmd:
		cmdStreamID := buf.GetInt32(offset + 24)
		d.subscribers = append(d.subscribers, pendingSubscriber{correlationID, cmdStreamID})

		d.transmit(aero.OnSubscriptionReadyEvent, func(b *buffers.AtomicBuffer) int32 {
			return aero.EncodeSubscriptionReady(b, correlationID, 0)
		})
		d.pairImages()

	case aero.RemovePublicationCmd, aero.RemoveSubscriptionCmd:
		d.transmit(aero.OnOperationSuccessEvent, func(b *buffers.AtomicBuffer) int32 {
			return aero.EncodeOperationSuccess(b, correlationID)
		})

	case aero.ClientKeepaliveCmd:
		// Liveness only; nothing to answer.
	}
}

// pairImages connects the active publication's log to every waiting
// subscriber on the same stream.
func (d *fakeDriver) pairImages() {
	if d.pubLog == "" {
		return
	}

	remaining := d.subscribers[:0]
	for _, sub := range d.subscribers {
		if sub.streamID != d.pubStream {
			remaining = append(remaining, sub)
			continue
		}

		posID, err := d.countersMgr.Allocate(fmt.Sprintf("sub-pos: %d", sub.registrationID), 2)
		if err != nil {
			d.t.Errorf("allocate position counter: %v", err)
			continue
		}

		d.subPositions = append(d.subPositions, posID)

		logFile := d.pubLog
		sessionID := d.sessionID
		pubStream := d.pubStream
		regID := sub.registrationID
		d.transmit(aero.OnAvailableImageEvent, func(b *buffers.AtomicBuffer) int32 {
			return aero.EncodeImageReady(b, int64(sessionID)<<32, sessionID, pubStream,
				[]int32{posID}, []int64{regID}, logFile, "aeron:ipc")
		})
	}
	d.subscribers = remaining
}

// updatePublicationLimit flow-controls the publisher the way the driver
// does: the limit trails the slowest subscriber by half a term so the
// producer can never lap an unconsumed partition.
func (d *fakeDriver) updatePublicationLimit() {
	if d.pubLimitID < 0 || len(d.subPositions) == 0 {
		return
	}

	minPosition := d.countersMgr.CounterValue(d.subPositions[0])
	for _, id := range d.subPositions[1:] {
		if position := d.countersMgr.CounterValue(id); position < minPosition {
			minPosition = position
		}
	}

	d.countersMgr.SetCounterValue(d.pubLimitID, minPosition+termLength/2)
}

func (d *fakeDriver) createLogFile(sessionID, logStreamID int32) string {
	d.logFiles++
	path := filepath.Join(d.dir, fmt.Sprintf("%d.logbuffer", d.logFiles))

	mapped, err := memmap.MapNew(path, int(logbuffer.ComputeLogLength(termLength)))
	require.NoError(d.t, err)
	defer mapped.Close()

	whole := buffers.MakeAtomicBuffer(mapped.Data())
	metadata := whole.Slice(termLength*logbuffer.PartitionCount, logbuffer.LogMetaDataLength)

	metadata.PutInt32(logbuffer.LogActivePartitionIndexOffset, 0)
	metadata.PutInt32(logbuffer.LogInitialTermIDOffset, 0)
	metadata.PutInt32(logbuffer.LogDefaultFrameHeaderLengthOffset, logbuffer.DataFrameHeaderLength)
	metadata.PutInt32(logbuffer.LogMTULengthOffset, mtuLength)
	metadata.PutInt64(logbuffer.LogTimeOfLastStatusMessageOffset, time.Now().UnixMilli())

	header := logbuffer.DefaultFrameHeader(metadata)
	header.PutUInt8(logbuffer.FlagsFieldOffset, logbuffer.UnfragmentedFlag)
	header.PutUInt16(logbuffer.TypeFieldOffset, logbuffer.FrameTypeData)
	header.PutInt32(logbuffer.SessionIDFieldOffset, sessionID)
	header.PutInt32(logbuffer.StreamIDFieldOffset, logStreamID)

	return path
}

func connectClient(t *testing.T, dir string) *aero.Client {
	t.Helper()

	ctx := aero.NewContext().WithDir(dir).
		WithErrorHandler(func(err error) { t.Logf("conductor error: %v", err) })
	ctx.KeepaliveInterval = 50 * time.Millisecond

	client, err := aero.Connect(ctx)
	require.NoError(t, err)
	return client
}

func awaitPublication(t *testing.T, client *aero.Client, regID int64) *aero.Publication {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pub, err := client.FindPublication(regID)
		require.NoError(t, err)
		if pub != nil {
			return pub
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("publication never became available")
	return nil
}

func awaitSubscription(t *testing.T, client *aero.Client, regID int64) *aero.Subscription {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sub, err := client.FindSubscription(regID)
		require.NoError(t, err)
		if sub != nil {
			return sub
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("subscription never became available")
	return nil
}

func awaitImages(t *testing.T, sub *aero.Subscription) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sub.ImageCount() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("image never arrived")
}

func TestIntegration_PublishSubscribeRoundTrip(t *testing.T) {
	driver := newFakeDriver(t)
	driver.start()
	defer driver.close()

	client := connectClient(t, driver.dir)
	defer client.Close()

	subRegID, err := client.AddSubscription("aeron:ipc", streamID)
	require.NoError(t, err)
	sub := awaitSubscription(t, client, subRegID)

	pubRegID, err := client.AddPublication("aeron:ipc", streamID)
	require.NoError(t, err)
	pub := awaitPublication(t, client, pubRegID)
	awaitImages(t, sub)

	const messageCount = 100
	sent := make([][]byte, 0, messageCount)
	for i := 0; i < messageCount; i++ {
		payload := []byte(fmt.Sprintf("message-%04d", i))
		sent = append(sent, payload)
		src := buffers.MakeAtomicBuffer(payload)

		for {
			position := pub.Offer(src, 0, int32(len(payload)))
			if position > 0 {
				break
			}
			require.Contains(t, []int64{aero.AdminAction, aero.BackPressured}, position,
				"unexpected offer result %d", position)
		}
	}

	var received [][]byte
	deadline := time.Now().Add(5 * time.Second)
	for len(received) < messageCount && time.Now().Before(deadline) {
		sub.Poll(func(buf *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) {
			received = append(received, buf.GetBytes(offset, length))
		}, 10)
	}

	require.Len(t, received, messageCount)
	for i := range sent {
		assert.Equal(t, sent[i], received[i], "message %d differs", i)
	}

	image := sub.ImageBySessionID(pub.SessionID())
	require.NotNil(t, image)
	assert.Equal(t, pub.Position(), image.Position())
}

func TestIntegration_LargeMessagesFragmentAndReassembleInOrder(t *testing.T) {
	driver := newFakeDriver(t)
	driver.start()
	defer driver.close()

	client := connectClient(t, driver.dir)
	defer client.Close()

	subRegID, err := client.AddSubscription("aeron:ipc", streamID)
	require.NoError(t, err)
	sub := awaitSubscription(t, client, subRegID)

	pubRegID, err := client.AddPublication("aeron:ipc", streamID)
	require.NoError(t, err)
	pub := awaitPublication(t, client, pubRegID)
	awaitImages(t, sub)

	payload := make([]byte, int(pub.MaxPayloadLength())*2+50)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	src := buffers.MakeAtomicBuffer(payload)

	for {
		if position := pub.Offer(src, 0, int32(len(payload))); position > 0 {
			break
		}
	}

	var reassembled []byte
	fragments := 0
	deadline := time.Now().Add(5 * time.Second)
	for fragments < 3 && time.Now().Before(deadline) {
		fragments += sub.Poll(func(buf *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) {
			reassembled = append(reassembled, buf.GetBytes(offset, length)...)
		}, 10)
	}

	require.Equal(t, 3, fragments)
	assert.Equal(t, payload, reassembled)
}

func TestIntegration_ConcurrentOfferAndPoll(t *testing.T) {
	driver := newFakeDriver(t)
	driver.start()
	defer driver.close()

	client := connectClient(t, driver.dir)
	defer client.Close()

	subRegID, err := client.AddSubscription("aeron:ipc", streamID)
	require.NoError(t, err)
	sub := awaitSubscription(t, client, subRegID)

	pubRegID, err := client.AddPublication("aeron:ipc", streamID)
	require.NoError(t, err)
	pub := awaitPublication(t, client, pubRegID)
	awaitImages(t, sub)

	const messageCount = 5000
	var offered atomic.Int64

	go func() {
		payload := make([]byte, 64)
		src := buffers.MakeAtomicBuffer(payload)
		for i := 0; i < messageCount; i++ {
			for {
				if position := pub.Offer(src, 0, int32(len(payload))); position > 0 {
					break
				}
			}
			offered.Add(1)
		}
	}()

	consumed := 0
	deadline := time.Now().Add(10 * time.Second)
	for consumed < messageCount && time.Now().Before(deadline) {
		consumed += sub.Poll(func(buf *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) {
			assert.EqualValues(t, 64, length)
		}, 50)
	}

	assert.Equal(t, messageCount, consumed)
	assert.EqualValues(t, messageCount, offered.Load())
}

func TestIntegration_VersionMismatchRefusesToStart(t *testing.T) {
	dir := t.TempDir()
	meta := aero.CncMetadata{
		Version:                 4,
		ToDriverBufferLength:    1024 + ringbuffer.TrailerLength,
		ToClientsBufferLength:   1024 + broadcast.TrailerLength,
		CounterMetadataLength:   counters.MetadataLength,
		CounterValuesLength:     counters.CounterLength,
		ClientLivenessTimeoutNs: 1,
		ErrorLogBufferLength:    1024,
	}

	mapped, err := memmap.MapNew(filepath.Join(dir, aero.CncFile), aero.ComputeCncFileLength(meta))
	require.NoError(t, err)
	aero.WriteCncHeader(buffers.MakeAtomicBuffer(mapped.Data()), meta)
	require.NoError(t, mapped.Close())

	_, err = aero.Connect(aero.NewContext().WithDir(dir))
	require.ErrorIs(t, err, aero.ErrCncVersionMismatch)
}

func TestIntegration_MissingDriverDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "no-driver-here")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := aero.Connect(aero.NewContext().WithDir(dir))
	require.Error(t, err)
}
