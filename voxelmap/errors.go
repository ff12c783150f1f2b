package voxelmap

import "github.com/pkg/errors"

// Sentinel errors returned by map and layout operations. Wrapped errors retain
// these as their cause, so callers should test with errors.Is.
var (
	// ErrLayoutLocked is returned on attempts to mutate a map's layout once the
	// map holds chunks.
	ErrLayoutLocked = errors.New("layout locked: map already holds chunks")

	// ErrLayerNotFound is returned when an operation requires a well known layer
	// the layout does not carry.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrInvalidKey is returned when a key's local coordinate is out of range for
	// the map's region dimensions.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidArgument is returned for malformed inputs: odd length ray arrays,
	// non-finite coordinates, zero resolution.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceExhausted is returned when region or chunk allocation fails.
	ErrResourceExhausted = errors.New("resource exhausted")
)
