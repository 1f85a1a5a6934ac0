package aero

import (
	"sync/atomic"

	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

// Subscription is the receiving handle for one (channel, streamId)
// endpoint. It holds an immutable snapshot of the Images currently matching
// the stream; the conductor publishes new snapshots with a release store
// and pollers acquire-load the current one per call.
//
// A Subscription must be polled from one goroutine at a time.
type Subscription struct {
	conductor       *ClientConductor
	channel         string
	registrationID  int64
	streamID        int32
	channelStatusID int32
	roundRobinIndex int
	images          atomic.Pointer[[]*Image]
	isClosed        atomic.Bool
}

func newSubscription(conductor *ClientConductor, registrationID int64, channel string, streamID, channelStatusID int32) *Subscription {
	s := &Subscription{
		conductor:       conductor,
		channel:         channel,
		registrationID:  registrationID,
		streamID:        streamID,
		channelStatusID: channelStatusID,
	}
	empty := make([]*Image, 0)
	s.images.Store(&empty)
	return s
}

// Channel returns the media address of this subscription.
func (s *Subscription) Channel() string { return s.channel }

// StreamID returns the stream identity within the channel.
func (s *Subscription) StreamID() int32 { return s.streamID }

// RegistrationID is the id returned by AddSubscription.
func (s *Subscription) RegistrationID() int64 { return s.registrationID }

// IsClosed reports whether this subscription has been closed.
func (s *Subscription) IsClosed() bool { return s.isClosed.Load() }

// ImageCount returns the number of images currently connected.
func (s *Subscription) ImageCount() int { return len(*s.images.Load()) }

// ImageBySessionID returns the image for sessionID, or nil.
func (s *Subscription) ImageBySessionID(sessionID int32) *Image {
	for _, image := range *s.images.Load() {
		if image.SessionID() == sessionID {
			return image
		}
	}
	return nil
}

// Images returns the current image snapshot. The slice must not be
// modified.
func (s *Subscription) Images() []*Image { return *s.images.Load() }

// Poll delivers up to fragmentLimit fragments across the images, visiting
// them round-robin from a rolling start index for fairness. Returns the
// total fragments consumed, or Closed.
func (s *Subscription) Poll(handler logbuffer.FragmentHandler, fragmentLimit int) int {
	if s.IsClosed() {
		return Closed
	}

	images := *s.images.Load()
	length := len(images)
	fragmentsRead := 0

	if length > 0 {
		startingIndex := s.roundRobinIndex
		if startingIndex >= length {
			s.roundRobinIndex = 0
			startingIndex = 0
		}
		s.roundRobinIndex++

		for i := startingIndex; fragmentsRead < fragmentLimit; {
			fragmentsRead += images[i].Poll(handler, fragmentLimit-fragmentsRead)

			i++
			if i == length {
				i = 0
			}
			if i == startingIndex {
				break
			}
		}
	}

	return fragmentsRead
}

// ControlledPoll delivers up to fragmentLimit fragments across the images
// with per-fragment flow control. Returns the total fragments consumed, or
// Closed.
func (s *Subscription) ControlledPoll(handler ControlledFragmentHandler, fragmentLimit int) int {
	if s.IsClosed() {
		return Closed
	}

	images := *s.images.Load()
	length := len(images)
	fragmentsRead := 0

	if length > 0 {
		startingIndex := s.roundRobinIndex
		if startingIndex >= length {
			s.roundRobinIndex = 0
			startingIndex = 0
		}
		s.roundRobinIndex++

		for i := startingIndex; fragmentsRead < fragmentLimit; {
			fragmentsRead += images[i].ControlledPoll(handler, fragmentLimit-fragmentsRead)

			i++
			if i == length {
				i = 0
			}
			if i == startingIndex {
				break
			}
		}
	}

	return fragmentsRead
}

// BlockPoll delivers one block from each image, returning the total bytes
// consumed, or Closed.
func (s *Subscription) BlockPoll(handler BlockHandler, blockLengthLimit int32) int {
	if s.IsClosed() {
		return Closed
	}

	bytesConsumed := 0
	for _, image := range *s.images.Load() {
		bytesConsumed += image.BlockPoll(handler, blockLengthLimit)
	}

	return bytesConsumed
}

// hasImage reports whether an image with the given correlation id is in the
// current snapshot.
func (s *Subscription) hasImage(correlationID int64) bool {
	for _, image := range *s.images.Load() {
		if image.CorrelationID() == correlationID {
			return true
		}
	}
	return false
}

// addImage publishes a new snapshot including image. Conductor only.
func (s *Subscription) addImage(image *Image) {
	current := *s.images.Load()
	next := make([]*Image, len(current)+1)
	copy(next, current)
	next[len(current)] = image
	s.images.Store(&next)
}

// removeImage publishes a new snapshot without the image carrying
// correlationID, returning it, or nil when absent. Conductor only.
func (s *Subscription) removeImage(correlationID int64) *Image {
	current := *s.images.Load()
	for idx, image := range current {
		if image.CorrelationID() == correlationID {
			next := make([]*Image, 0, len(current)-1)
			next = append(next, current[:idx]...)
			next = append(next, current[idx+1:]...)
			s.images.Store(&next)
			return image
		}
	}
	return nil
}

// removeAndCloseAllImages empties the snapshot, closing each image, and
// marks the subscription closed. Conductor only.
func (s *Subscription) removeAndCloseAllImages() []*Image {
	current := *s.images.Load()
	empty := make([]*Image, 0)
	s.images.Store(&empty)

	for _, image := range current {
		image.close()
	}

	s.isClosed.Store(true)
	return current
}

// Close marks the subscription closed and asks the conductor to release it
// and its images. Idempotent; subsequent polls return Closed.
func (s *Subscription) Close() error {
	if s.isClosed.CompareAndSwap(false, true) {
		return s.conductor.releaseSubscription(s.registrationID)
	}
	return nil
}
