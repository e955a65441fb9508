// Package alloc provides the loader-scoped memory allocator that backs
// runtime classes.
//
// # Overview
//
// A runtime class is not one contiguous object: it is a set of fragments
// (header plus vtable, method records, itable, statics, constant pool, ...)
// with differing alignment needs. An Allocator serves a whole set of
// fragment requests in one call, first from its free lists and then from a
// freshly acquired memory segment.
//
// # Free Lists
//
// Freed and leftover space is kept in four lists keyed by block size:
//
//	word   exactly one machine word
//	tiny   below Options.TinyLimit (default 96 bytes)
//	small  below Options.LargeLimit (default 256 bytes)
//	large  everything else
//
// Large-list nodes cache the largest block size found at or after them, so
// a request that cannot fit anywhere in the list is rejected without a walk.
//
// # Segments
//
// Requests the free lists cannot satisfy are packed, largest first, into one
// new segment. The first word of every segment links to the most recently
// allocated class in it. Space skipped for alignment and the unused tail
// are donated to the free lists.
//
// # Isolated Allocators
//
// Allocators created with Options.Isolated serve each call from a dedicated
// segment and never use or feed free lists. They are used for individually
// unloadable classes: the whole allocator is released at once.
//
// # Concurrency
//
// An Allocator is not safe for concurrent use. The VM serialises access
// under its class-table lock.
package alloc
