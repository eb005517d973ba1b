// Package seglist implements a segregated-fit dynamic memory allocator
// over a single, contiguous, monotonically-growable heap. It provides the
// classic malloc/free/realloc/calloc interface plus a heap consistency
// checker, backed by a caller-supplied raw heap service (see the rawheap
// package for a concrete implementation).
//
// The allocator is single-threaded and synchronous: it performs no
// internal locking, and callers must serialize access themselves if
// shared across goroutines. Re-entrant calls (calling back into an
// Allocator from within one of its own operations) are forbidden.
package seglist
