// Package adapters defines the narrow interfaces C9 uses to call out to
// external perception/geometry models, and the request-scoped cache key
// shape those calls are memoized under. Concrete implementations (local
// in-process models vs. hosted API calls) are selected at Config
// construction time and never branched on inside pipeline code.
package adapters

import (
	"context"

	"github.com/junkvolume/pileq/internal/raster"
)

// Mode selects which concrete adapter set backs the Bundle.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeHosted Mode = "hosted"
)

// Detection is one bounding-box instance as reported by the detector.
type Detection struct {
	Label      string
	Confidence float64
	BBox       [4]float64
}

// Intrinsics is the camera intrinsics a depth model may report directly
// alongside its depth map.
type Intrinsics struct {
	Fx, Fy, Cx, Cy float64
}

// Detector runs instance segmentation/detection (Lane A).
type Detector interface {
	Detect(ctx context.Context, rgb []byte, w, h int) ([]Detection, error)
}

// BulkSegmenter runs bulk-debris segmentation (Lane B), consuming the
// ground mask from Lane D to exclude floor pixels from the bulk region.
type BulkSegmenter interface {
	Segment(ctx context.Context, rgb []byte, w, h int, ground *raster.Mask) (*raster.Mask, error)
}

// SceneClassifier runs scene-type classification (Lane C).
type SceneClassifier interface {
	Classify(ctx context.Context, rgb []byte, w, h int) (string, error)
}

// FloorSegmenter runs the two ground-label models Lane D chooses
// between per frame.
type FloorSegmenter interface {
	SegmentCityscapes(ctx context.Context, rgb []byte, w, h int) (mask *raster.Mask, areaRatio float64, err error)
	SegmentADE20K(ctx context.Context, rgb []byte, w, h int) (mask *raster.Mask, areaRatio float64, err error)
}

// DepthEstimator produces a metric depth map and, when the model
// reports it directly, camera intrinsics.
type DepthEstimator interface {
	Estimate(ctx context.Context, rgb []byte, w, h int) (depth [][]float64, intrinsics *Intrinsics, err error)
}

// Auditor runs the optional foreman-style sanity check over the
// best-view frame; its verdict is diagnostic only and never feeds back
// into the computed volume.
type Auditor interface {
	Audit(ctx context.Context, bestImage []byte, finalVolumeCY float64, detectedItems []string) (status string, flagForReview bool, err error)
}

// Cache is the request-scoped memoization surface lane results are
// stored under, keyed by (model, preprocessed-content-hash[, prompt]).
type Cache interface {
	Get(key CacheKey) (any, bool)
	Put(key CacheKey, value any)
}

// CacheKey identifies one memoized adapter call.
type CacheKey struct {
	ModelID    string
	PreprocSHA string
	PromptHash string
}

// Bundle is the full set of adapters + cache a pipeline run is wired
// against; assembled once per Config and threaded through every stage
// call instead of resolved via a global.
type Bundle struct {
	Mode            Mode
	Detector        Detector
	BulkSegmenter   BulkSegmenter
	SceneClassifier SceneClassifier
	FloorSegmenter  FloorSegmenter
	DepthEstimator  DepthEstimator
	Auditor         Auditor
	Cache           Cache
}
