// Package broadcast implements the one-to-many event stream the media
// driver uses to publish responses to its clients. Each receiver keeps an
// independent cursor; a receiver that falls more than a buffer length behind
// is lapped, reports the loss, and resynchronizes at the latest record.
package broadcast
