// Package pileq implements the seven-stage pipeline that turns a set of
// customer-submitted junk pile photos into a billable cubic-yard volume
// estimate: ingestion, calibration bundling, perception, geometry, scale
// calibration, volumetrics, and multi-view fusion.
package pileq

import (
	"time"

	"github.com/junkvolume/pileq/internal/raster"
)

// FrameMetadata carries the provenance fields collected during ingestion:
// dimensions at each stage of decode/orient/resize, EXIF presence, and the
// quality signals used to gate or flag a frame.
type FrameMetadata struct {
	ImageID            string
	FileSizeBytes       int64
	OriginalWidth       int
	OriginalHeight      int
	Width               int // post-resize, model-input width
	Height              int
	OrientationApplied  bool
	ExifPresent         bool
	BlurScore           float64
	Brightness          float64
	IngestionScore      int
	Rejected            bool
	RejectionReason     string
	CapturedAt          time.Time
}

// IngestedFrame is one image that survived the quality gate, plus the
// decoded working image (raw RGB8 pixels, resized to model-input
// resolution) and its calibration bundle.
type IngestedFrame struct {
	Metadata   FrameMetadata
	DataURI    string
	WorkingRGB []byte // row-major RGB8, Width*Height*3
	Bundle     CalibrationBundle
}

// IngestionResult is the total output of stage C1.
type IngestionResult struct {
	Frames          []IngestedFrame
	RejectedFrames  []FrameMetadata
	UncalibratedMode bool
	Quality         BatchQualityInfo
}

// LensClass is the coarse camera-lens classification used to grade the
// calibration bundle's confidence.
type LensClass string

const (
	LensUltraWide LensClass = "ultra_wide"
	LensMain      LensClass = "main"
	LensTele      LensClass = "telephoto"
	LensUnknown   LensClass = "unknown"
)

// CalibrationBundle is the per-frame dimension/intrinsics chain:
// decoded-raw dimensions, decoded-oriented dimensions,
// model-input dimensions, base intrinsics (at decoded-oriented
// resolution) and model intrinsics (scaled to model-input resolution).
type CalibrationBundle struct {
	DecodedRawWidth      int
	DecodedRawHeight     int
	DecodedOrientedWidth  int
	DecodedOrientedHeight int
	ModelInputWidth       int
	ModelInputHeight      int

	FxBase float64
	FyBase float64
	CxBase float64
	CyBase float64

	Fx float64
	Fy float64
	Cx float64
	Cy float64

	LensClass       LensClass
	DeviceMake      string
	DeviceModel     string
	Focal35mm       float64
	FocalLengthMM   float64
	ZoomRatio       float64
	ZoomAssumed     bool
	FallbackFOV60   bool
	Confidence      string // HIGH, MEDIUM, LOW
	Warnings        []string
}

// ScaleIntrinsics linearly rescales base intrinsics to a new resolution,
// matching the bundle's own model-input scaling step.
func (b CalibrationBundle) ScaleIntrinsics(width, height int) (fx, fy, cx, cy float64) {
	if b.DecodedOrientedWidth == 0 || b.DecodedOrientedHeight == 0 {
		return b.FxBase, b.FyBase, b.CxBase, b.CyBase
	}
	sx := float64(width) / float64(b.DecodedOrientedWidth)
	sy := float64(height) / float64(b.DecodedOrientedHeight)
	return b.FxBase * sx, b.FyBase * sy, b.CxBase * sx, b.CyBase * sy
}

// SceneType is Lane C's coarse scene classification.
type SceneType string

const (
	SceneIndoor    SceneType = "indoor"
	SceneOutdoor   SceneType = "outdoor"
	SceneGarage    SceneType = "garage"
	SceneUnknown   SceneType = "unknown"
)

// Instance is one detected object (Lane A), carrying its own frame/index
// back-reference instead of a pointer to the owning frame.
type Instance struct {
	InstanceID   string
	FrameIndex   int
	FrameID      string
	Label        string
	Confidence   float64
	BBox         [4]float64 // x0,y0,x1,y1 in model-input pixel space
	IsAnchor     bool
	IsHighValue  bool
}

// Mask is a row-major boolean raster, used instead of an image.Image type
// so geometry code stays shape-generic across bulk/floor/ground masks.
// Defined in internal/raster (not here) so both this package and
// internal/adapters can depend on it without an import cycle.
type Mask = raster.Mask

// LaneAResult is Lane A's (instance segmentation) output.
type LaneAResult struct {
	Instances []Instance
	Anchors   []Instance
}

// LaneBResult is Lane B's (bulk debris segmentation) output.
type LaneBResult struct {
	BulkMask      *Mask
	BulkAreaRatio float64
	CacheHit      bool
}

// LaneCResult is Lane C's (scene classification) output.
type LaneCResult struct {
	SceneType SceneType
}

// LaneDResult is Lane D's (ground/floor segmentation) output.
type LaneDResult struct {
	GroundMask      *Mask
	ModelUsed       string // "cityscapes", "ade20k", "none"
	LabelsFound     []string
	GroundAreaRatio float64
}

// PerceptionResult is the total output of stage C3 for one frame.
type PerceptionResult struct {
	FrameID string
	LaneA   LaneAResult
	LaneB   LaneBResult
	LaneC   LaneCResult
	LaneD   *LaneDResult
}

// PointCloud is an owned, per-frame 3D point cloud with a parallel array
// of the source pixel (row, col) for every point.
type PointCloud struct {
	Points       [][3]float64 // (X, Y, Z) metres, Y-up
	PixelIndices [][2]int     // (row, col), parallel to Points
}

// PointPixelMap enforces a lookup invariant: for every (r, c) with
// PixelToPoint[r][c] >= 0, PixelIndices[PixelToPoint[r][c]] == (r, c).
// The reverse holds only for points whose pixel lies inside the H x W
// grid and is not shared with a later point: out-of-bounds pixels get no
// grid entry, and a later point on the same pixel replaces an earlier one.
type PointPixelMap struct {
	Points       [][3]float64
	PixelIndices [][2]int
	PixelToPoint [][]int // H x W, -1 where no point lands
}

// BuildPointPixelMap constructs the map and is the only way to obtain
// one, so the invariant can never be violated by construction.
func BuildPointPixelMap(points [][3]float64, pixelIndices [][2]int, h, w int) (PointPixelMap, error) {
	if len(points) != len(pixelIndices) {
		return PointPixelMap{}, ErrInvariantPixelMap
	}
	grid := make([][]int, h)
	for r := range grid {
		grid[r] = make([]int, w)
		for c := range grid[r] {
			grid[r][c] = -1
		}
	}
	for i, rc := range pixelIndices {
		r, c := rc[0], rc[1]
		if r < 0 || r >= h || c < 0 || c >= w {
			continue
		}
		grid[r][c] = i
	}
	return PointPixelMap{Points: points, PixelIndices: pixelIndices, PixelToPoint: grid}, nil
}

// GroundPlane is the RANSAC-fitted floor plane for a frame.
type GroundPlane struct {
	Normal      [3]float64
	Distance    float64
	InlierCount int
	InlierRatio float64
	IsValid     bool
}

// GeometryResult is the total output of stage C4 for one frame.
type GeometryResult struct {
	FrameID             string
	DepthMap            [][]float64 // H x W metres, nil if geometry was skipped
	DepthConfidence     float64
	GroundPlane         *GroundPlane
	RectifiedCloud      *PointCloud
	PointPixelMap       *PointPixelMap
	FloorQuality        string // "good", "noisy", "failed"
	FloorFlatnessP95    float64
	IntrinsicsSource    string // "calibration_bundle", "depth_model", "unknown"
	FxUsed              float64 // focal length (pixels) backProject actually used
	FloorConfidence     float64
	FloorConfidenceLocal float64
	SupportROIValid     bool
	NumPlanesDetected   int
}

// AnchorMeasurement is one anchor-object size measurement feeding scale
// calibration.
type AnchorMeasurement struct {
	Label        string
	InstanceID   string
	FrameID      string
	MeasuredSize float64 // metres, in the anchor's canonical dimension
	ReferenceSize float64
	DepthMedian  float64
}

// CalibrationResult is the total output of stage C5.
type CalibrationResult struct {
	FrameID          string
	ScaleFactor      float64
	CalibrationSource string // "anchor_consensus", "exif_intrinsics", "fallback"
	Confidence       string  // HIGH, MEDIUM, LOW
	ReasonCode       string
	AnchorsUsed      []AnchorMeasurement
	ReviewRequired      bool
	ConservativeBilling bool
}

// DiscreteItem is one catalogue-matched object subtracted from the bulk
// integration as a privileged, known-volume item.
type DiscreteItem struct {
	Label      string
	InstanceID string
	VolumeCY   float64
	Confidence float64
}

// VolumetricResult is the total output of stage C6 for one frame.
type VolumetricResult struct {
	FrameID         string
	BulkRawCY       float64
	BulkNetCY       float64
	DiscreteItems   []DiscreteItem
	DiscreteVolumeCY float64
	FrameVolumeCY   float64
	CellsIntegrated int
	Warnings        []string
}

// FusionResult is the total output of stage C7.
type FusionResult struct {
	FinalVolumeCY       float64
	UncertaintyMinCY    float64
	UncertaintyMaxCY    float64
	ValidFrames         []string
	RejectedFrames      []string
	RejectionReasons    map[string]string
	ViewpointDiversity  string // "good", "low"
	FusionMethod        string // "weighted_trimmed_mean", "weighted_median", "single_view_shrinkage", "max_fallback"
	FusedDiscreteItems  []DiscreteItem
	SumValidCY          float64
	SumWeightedCY       float64
	TruckCapacityExceeded bool
}

// LineItem is one billable line of the customer-facing output payload.
type LineItem struct {
	Label      string
	VolumeCY   float64
	Confidence string
	IsAggregate bool
}

// OutputPayload is the final JSON-shaped result of a quoting run.
type OutputPayload struct {
	JobID             string
	FinalVolumeCY     float64
	UncertaintyMinCY  float64
	UncertaintyMaxCY  float64
	ConfidenceScore   string
	ReviewRequired    bool
	LineItems         []LineItem
	FloorQuality      string
	DepthConfidenceAvg float64
	UncalibratedMode  bool
	Flags             []string
	Warnings          []string
}
