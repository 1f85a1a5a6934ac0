// Package counters reads and manages the shared counter buffers in the CnC
// file. Counter values are single-writer 64-bit slots padded to a cache-line
// pair; metadata records carry the type, key, and label of each counter. The
// client writes its subscriber positions here; the driver writes the rest.
package counters
