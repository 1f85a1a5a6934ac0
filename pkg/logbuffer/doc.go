// Package logbuffer implements the partitioned term log shared between a
// publisher and its subscribers: the three-partition layout and its metadata
// section, data frame framing, the term appender used by publications, and
// the term reader and block scanner used by images.
package logbuffer
