package pileq

import (
	"errors"
)

// Stage-scoped sentinel errors. Every stage result in this package is a
// total value (a struct with a reason code), never a bare error; these
// sentinels are reserved for the one fatal path (invariant violations)
// and for CLI-level errors.
var ErrEmptyImageSet = errors.New("no images supplied to pipeline")
var ErrInvariantResolution = errors.New("decoded image resolution invariant violated")
var ErrInvariantPixelMap = errors.New("point-pixel map invariant violated")
var ErrAdapterTimeout = errors.New("external model adapter timed out")
var ErrAdapterUnavailable = errors.New("external model adapter unavailable")
var ErrDepthMapShape = errors.New("depth map shape does not match working image")
var ErrNoValidFrames = errors.New("ingestion produced zero valid frames")
var ErrCatalogMigration = errors.New("catalog schema migration failed")
var ErrCatalogLookup = errors.New("catalog lookup failed")
var ErrNoCachedMask = errors.New("no cached mask for key")
