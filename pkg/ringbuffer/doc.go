// Package ringbuffer implements the many-to-one ring used to carry commands
// from clients to the media driver. Producers claim space with a CAS on the
// tail; the single consumer advances the head. The trailer also carries the
// consumer heartbeat timestamp and the correlation id counter.
package ringbuffer
