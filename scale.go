package pileq

import (
	"log"

	"github.com/samber/lo"

	"github.com/junkvolume/pileq/internal/catalog"
)

// Scale calibration thresholds, grounded on the reference calibration
// stage's three-tier ladder: anchor consensus, then EXIF/intrinsics,
// then a conservative fallback.
const (
	fallbackFocalFactor     = 0.75
	anchorAgreementTolerance = 0.10
)

// runCalibration measures known-size anchor objects against their
// depth-implied pixel size to derive a scale factor; falls back to the
// EXIF-derived intrinsics confidence, then to a fixed conservative
// factor, recording which tier was used and why.
func runCalibration(cat *catalog.Catalog, frameID string, anchors []Instance, depthMap [][]float64, fx float64, width, height int, exifAvailable, intrinsicsAvailable bool) CalibrationResult {
	measurements := measureAnchors(cat, anchors, depthMap, fx)

	if len(measurements) > 0 {
		scale, agreed, reason := anchorConsensus(cat, measurements)
		if agreed {
			return CalibrationResult{
				FrameID: frameID, ScaleFactor: scale,
				CalibrationSource: "anchor_consensus", Confidence: "HIGH",
				ReasonCode: reason, AnchorsUsed: measurements,
			}
		}
		log.Printf("[calibration] frame=%s anchor_conflict_detected, using trimmed consensus at MEDIUM", frameID)
		return CalibrationResult{
			FrameID: frameID, ScaleFactor: scale,
			CalibrationSource: "anchor_consensus", Confidence: "MEDIUM",
			ReasonCode: "anchor_conflict_detected", AnchorsUsed: measurements,
			ReviewRequired: true,
		}
	}

	if exifAvailable {
		reason := "exif_unavailable_using_intrinsics"
		confidence := "MEDIUM"
		if intrinsicsAvailable {
			confidence = "HIGH"
		} else {
			reason = "depthpro_intrinsics_unavailable"
		}
		return CalibrationResult{
			FrameID: frameID, ScaleFactor: 1.0,
			CalibrationSource: "exif_intrinsics", Confidence: confidence,
			ReasonCode: reason,
			ReviewRequired: confidence != "HIGH",
		}
	}

	return CalibrationResult{
		FrameID: frameID, ScaleFactor: fallbackFocalFactor,
		CalibrationSource: "fallback", Confidence: "LOW",
		ReasonCode: "missing_exif",
		ReviewRequired: true, ConservativeBilling: true,
	}
}

// measureAnchors pairs each detected anchor with its canonical reference
// size and its depth-implied real-world size: (bbox pixel width / fx) *
// median depth under the bbox, the pinhole back-projection of a pixel
// span at range. Instances without a known canonical size (already
// filtered by IsAnchor) never reach here, nor do frames with no usable
// focal length.
func measureAnchors(cat *catalog.Catalog, anchors []Instance, depthMap [][]float64, fx float64) []AnchorMeasurement {
	if fx <= 0 {
		return nil
	}
	var out []AnchorMeasurement
	for _, a := range anchors {
		ref, ok := anchorCanonicalSizeOf(cat, a.Label)
		if !ok {
			continue
		}
		depth := medianBBoxDepth(depthMap, a.BBox)
		if depth <= 0 {
			continue
		}
		pixelWidth := a.BBox[2] - a.BBox[0]
		measured := (pixelWidth / fx) * depth
		out = append(out, AnchorMeasurement{
			Label: a.Label, InstanceID: a.InstanceID,
			MeasuredSize: measured, ReferenceSize: ref, DepthMedian: depth,
		})
	}
	return out
}

// anchorCanonicalSizeOf prefers the catalog's anchor_registry table; a
// nil catalog (unit tests exercising scale.go in isolation) or a label
// missing from it falls back to perception.go's anchorCanonicalSize map,
// which matches the registry seed except for person (1.68 there, 1.70 in
// the seed).
func anchorCanonicalSizeOf(cat *catalog.Catalog, label string) (float64, bool) {
	if cat != nil {
		if size, ok := cat.AnchorCanonicalSize(label); ok {
			return size, true
		}
	}
	size, ok := anchorCanonicalSize[label]
	return size, ok
}

func medianBBoxDepth(depthMap [][]float64, bbox [4]float64) float64 {
	if depthMap == nil {
		return 0
	}
	h := len(depthMap)
	if h == 0 {
		return 0
	}
	w := len(depthMap[0])

	x0, y0, x1, y1 := clampBBox(bbox, w, h)
	var samples []float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			v := depthMap[y][x]
			if v > depthNearClip && v < depthFarClip {
				samples = append(samples, v)
			}
		}
	}
	return median(samples)
}

func clampBBox(bbox [4]float64, w, h int) (x0, y0, x1, y1 int) {
	x0 = clampInt(int(bbox[0]), 0, w-1)
	y0 = clampInt(int(bbox[1]), 0, h-1)
	x1 = clampInt(int(bbox[2]), x0+1, w)
	y1 = clampInt(int(bbox[3]), y0+1, h)
	return
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// anchorConsensus computes a scale-factor estimate per anchor
// (reference-size / measured-size), takes the median as the consensus
// value, and flags disagreement when any anchor's estimate deviates
// from the median by more than anchorAgreementTolerance. When multiple
// anchors tie for worst deviation, the one with the lower catalog trust
// rank (door > tire > bin > person > chair > bucket) is kept and the
// other dropped, mirroring qa.go's use of samber/lo for small
// set/ordering operations instead of hand-rolled loops.
func anchorConsensus(cat *catalog.Catalog, measurements []AnchorMeasurement) (scale float64, agreed bool, reason string) {
	type estimate struct {
		value     float64
		trustRank int
	}
	estimates := lo.FilterMap(measurements, func(m AnchorMeasurement, _ int) (estimate, bool) {
		if m.MeasuredSize <= 0 {
			return estimate{}, false
		}
		return estimate{value: m.ReferenceSize / m.MeasuredSize, trustRank: anchorTrustRankOf(cat, m.Label)}, true
	})
	if len(estimates) == 0 {
		return 0, false, "no_anchors_detected"
	}

	values := lo.Map(estimates, func(e estimate, _ int) float64 { return e.value })
	consensus := median(values)

	maxDev := 0.0
	for _, e := range estimates {
		dev := absF(e.value-consensus) / consensus
		if dev > maxDev {
			maxDev = dev
		}
	}

	if maxDev > anchorAgreementTolerance {
		// drop the estimate with the worst deviation; ties broken in
		// favor of keeping the higher-trust anchor (lower trustRank).
		worst := lo.MaxBy(estimates, func(a, b estimate) bool {
			devA, devB := absF(a.value-consensus), absF(b.value-consensus)
			if devA == devB {
				return a.trustRank > b.trustRank
			}
			return devA > devB
		})
		trimmed := lo.FilterMap(estimates, func(e estimate, _ int) (float64, bool) {
			return e.value, e != worst
		})
		if len(trimmed) > 0 {
			consensus = median(trimmed)
		}
		return consensus, false, "anchor_conflict_detected"
	}

	return consensus, true, "anchor_consensus"
}

// anchorTrustRankOf mirrors anchorCanonicalSizeOf's catalog-with-fallback
// shape for the trust-rank lookup used to break consensus ties.
func anchorTrustRankOf(cat *catalog.Catalog, label string) int {
	if cat != nil {
		return cat.AnchorTrustRank(label)
	}
	rank := map[string]int{"door": 0, "tire": 1, "bin": 2, "trash can": 2, "person": 3, "chair": 4, "bucket": 5}
	if r, ok := rank[label]; ok {
		return r
	}
	return 99
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
