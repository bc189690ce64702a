package alloc

import "errors"

var (
	// ErrNoSpace indicates that no free node large enough was found.
	ErrNoSpace = errors.New("alloc: no free node large enough")

	// ErrBadAddr indicates an address that does not name a node in the
	// arena.
	ErrBadAddr = errors.New("alloc: bad node address")

	// ErrNotAllocated indicates an attempt to free a node that is not
	// allocated.
	ErrNotAllocated = errors.New("alloc: node is not allocated")

	// ErrTooSmall indicates region storage too small to format.
	ErrTooSmall = errors.New("alloc: region too small to format")
)
