package pileq

import (
	"context"
	"log"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"

	"github.com/junkvolume/pileq/internal/adapters"
	"github.com/junkvolume/pileq/internal/catalog"
	"github.com/junkvolume/pileq/internal/maskcache"
)

// Floor-visibility gate thresholds: a frame whose bulk mask swallows
// almost the whole image, or whose bottom band has almost no clear
// floor, has no usable ground evidence, so geometry is skipped for it
// rather than allowed to fit a plane to noise.
const (
	floorGateBulkAreaMaxPct   = 85.0
	floorGateBottomBandStart  = 0.65
	floorGateMinClearPct      = 8.0
)

// Config configures one orchestrator: how many perception-lane calls its
// worker pool runs at once, the overall per-request deadline, and which
// adapter implementations (local models vs. hosted APIs) back C9.
type Config struct {
	ConcurrencyCap int
	Deadline       time.Duration
	Adapters       adapters.Bundle
	Catalog        *catalog.Catalog
}

// Orchestrator runs the full seven-stage pipeline, one job per Run call.
// Its pond worker pool runs each frame's perception lanes and bounds how
// many of them execute at once; concurrent Run calls are not bounded by
// the pool.
type Orchestrator struct {
	cfg  Config
	pool *pond.WorkerPool
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.ConcurrencyCap <= 0 {
		cfg.ConcurrencyCap = 3
	}
	pool := pond.New(cfg.ConcurrencyCap, 0, pond.MinWorkers(cfg.ConcurrencyCap))
	return &Orchestrator{cfg: cfg, pool: pool}
}

func (o *Orchestrator) Close() { o.pool.StopAndWait() }

// Run executes one quoting job end to end and returns the customer
// payload. jobID is generated from a fresh UUID (first 8 hex chars) if
// the caller doesn't supply one.
func (o *Orchestrator) Run(ctx context.Context, images [][]byte, frontendExif map[string]ExifData, dec ImageDecoder, jobID string) OutputPayload {
	if jobID == "" {
		jobID = uuid.NewString()[:8]
	}
	if o.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Deadline)
		defer cancel()
	}

	log.Printf("[pipeline] starting job=%s images=%d", jobID, len(images))

	ingestion := RunIngestion(dec, images, frontendExif, o.cfg.Catalog)
	log.Printf("[pipeline] job=%s frames=%d rejected=%d uncalibrated=%v",
		jobID, len(ingestion.Frames), len(ingestion.RejectedFrames), ingestion.UncalibratedMode)

	if len(ingestion.Frames) == 0 {
		return buildOutput(jobID, ingestion,
			CalibrationResult{FrameID: "none", Confidence: "LOW", ReasonCode: "missing_exif"},
			FusionResult{RejectionReasons: map[string]string{}},
			"failed", 0.0)
	}

	cache := maskcache.New()
	bundle := o.cfg.Adapters
	bundle.Cache = cache

	perceptions := make([]PerceptionResult, len(ingestion.Frames))
	geometries := make([]GeometryResult, len(ingestion.Frames))

	// Frames are walked in the deterministic order ingestion already
	// sorted them into; perception's four lanes fan out internally, but
	// the frame loop itself stays sequential so fusion sees a stable
	// ordering regardless of adapter latency.
	for i, frame := range ingestion.Frames {
		img := DecodedImage{RGB: frame.WorkingRGB, Width: frame.Metadata.Width, Height: frame.Metadata.Height}
		perception := runPerception(ctx, o.pool, bundle, frame.Metadata.ImageID, img, frame.Metadata.ImageID)
		perceptions[i] = perception

		if !floorVisible(perception.LaneB.BulkMask) {
			log.Printf("[pipeline] job=%s frame=%s floor visibility gate failed, skipping geometry",
				jobID, frame.Metadata.ImageID)
			geometries[i] = GeometryResult{FrameID: frame.Metadata.ImageID, FloorQuality: "failed"}
			continue
		}

		var groundMask *Mask
		if perception.LaneD != nil {
			groundMask = perception.LaneD.GroundMask
		}
		geometries[i] = runGeometry(ctx, bundle, frame.Metadata.ImageID, img, frame.Bundle, perception.LaneB.BulkMask, groundMask)
	}

	// Calibration uses the first frame's geometry result together with
	// anchors pooled across every frame, not a per-frame calibration —
	// anchors are sparse, so pooling gives the consensus step more
	// samples to agree or disagree over.
	var allAnchors []Instance
	for _, p := range perceptions {
		allAnchors = append(allAnchors, p.LaneA.Anchors...)
	}
	first := ingestion.Frames[0]
	firstGeo := geometries[0]
	fx := firstGeo.FxUsed
	if fx <= 0 {
		fx = fallbackFocalFactor * float64(first.Metadata.Width)
	}
	calibration := runCalibration(
		o.cfg.Catalog, first.Metadata.ImageID, allAnchors, firstGeo.DepthMap,
		fx, first.Metadata.Width, first.Metadata.Height,
		first.Metadata.ExifPresent, firstGeo.IntrinsicsSource == "depth_model",
	)
	log.Printf("[pipeline] job=%s calibration source=%s confidence=%s scale=%.3f",
		jobID, calibration.CalibrationSource, calibration.Confidence, calibration.ScaleFactor)

	volumetrics := make([]VolumetricResult, len(ingestion.Frames))
	floorQualityLabel := map[string]string{}
	floorFlatness := map[string]float64{}
	inlierRatios := map[string]float64{}
	depthConfidences := map[string]float64{}
	maskCoverages := map[string]float64{}

	for i, frame := range ingestion.Frames {
		geo := geometries[i]
		perception := perceptions[i]

		var rectified [][3]float64
		var pixelIdx [][2]int
		if geo.RectifiedCloud != nil {
			rectified = geo.RectifiedCloud.Points
			pixelIdx = geo.RectifiedCloud.PixelIndices
		}
		var floorMask *Mask
		if perception.LaneD != nil {
			floorMask = perception.LaneD.GroundMask
		}
		vol := runVolumetrics(o.cfg.Catalog, frame.Metadata.ImageID, perception.LaneA.Instances,
			rectified, pixelIdx, perception.LaneB.BulkMask, floorMask, calibration.ScaleFactor)
		volumetrics[i] = vol

		floorQualityLabel[frame.Metadata.ImageID] = geo.FloorQuality
		floorFlatness[frame.Metadata.ImageID] = geo.FloorFlatnessP95
		depthConfidences[frame.Metadata.ImageID] = geo.DepthConfidence
		maskCoverages[frame.Metadata.ImageID] = perception.LaneB.BulkAreaRatio
		if geo.GroundPlane != nil {
			inlierRatios[frame.Metadata.ImageID] = geo.GroundPlane.InlierRatio
		}
	}

	fusion := runFusion(volumetrics, nil, floorFlatness, floorQualityLabel, inlierRatios, maskCoverages)

	overallFloorQuality := "good"
	for _, q := range floorQualityLabel {
		if q == "failed" {
			overallFloorQuality = "failed"
			break
		}
		if q == "noisy" {
			overallFloorQuality = "noisy"
		}
	}

	var depthConfAvg float64
	if len(depthConfidences) > 0 {
		var sum float64
		for _, v := range depthConfidences {
			sum += v
		}
		depthConfAvg = sum / float64(len(depthConfidences))
	}

	output := buildOutput(jobID, ingestion, calibration, fusion, overallFloorQuality, depthConfAvg)
	log.Printf("[pipeline] job=%s complete final=%.1fyd3 confidence=%s", jobID, output.FinalVolumeCY, output.ConfidenceScore)
	return output
}

// floorVisible runs the pre-geometry gate: a pile that fills almost the
// whole frame, or leaves almost no clear floor in the bottom band, has
// nothing for the ground-plane fit to lock onto.
func floorVisible(bulkMask *Mask) bool {
	if bulkMask == nil {
		return true
	}
	bulkAreaPct := bulkMask.AreaRatio() * 100
	if bulkAreaPct > floorGateBulkAreaMaxPct {
		return false
	}

	bottomStart := int(float64(bulkMask.H) * floorGateBottomBandStart)
	var bulkCount, total int
	for r := bottomStart; r < bulkMask.H; r++ {
		for c := 0; c < bulkMask.W; c++ {
			total++
			if bulkMask.At(r, c) {
				bulkCount++
			}
		}
	}
	if total == 0 {
		return true
	}
	clearPct := 100 * (1 - float64(bulkCount)/float64(total))
	return clearPct >= floorGateMinClearPct
}
