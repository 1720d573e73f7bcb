// Package shm provides named shared memory segments and the frame codec used
// to store one length-prefixed payload in them.
//
// A segment is a fixed-capacity file under /dev/shm (falling back to the
// temporary directory) mapped with MAP_SHARED, so every process that opens the
// same name observes the same bytes. Capacity is decided by whoever creates
// the segment and never changes afterwards.
//
// Frame layout:
//
//	+--------------------+----------------------+----------------+
//	| uint32 length (LE) | payload (length B)   | stale bytes    |
//	+--------------------+----------------------+----------------+
//	0                    4                      4+length         capacity
//
// Concurrency: a Segment value is owned by a single goroutine. Nothing here
// orders accesses between processes; Lock offers an advisory flock that only
// helps when every participant uses it.
package shm
