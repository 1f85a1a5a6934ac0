// Package buffers provides the AtomicBuffer, a bounds-checked view over a
// byte region with aligned atomic access. It is the primitive under the
// ring buffers, broadcast streams, counters, and term logs that the client
// shares with the media driver through memory-mapped files.
package buffers
