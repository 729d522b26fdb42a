package pileq

import "testing"

func TestAnchorConsensusAgreesWithinTolerance(t *testing.T) {
	// Both anchors imply the same metres-per-pixel scale factor (0.01),
	// so consensus should agree.
	measurements := []AnchorMeasurement{
		{Label: "door", MeasuredSize: 203, ReferenceSize: 2.03},
		{Label: "tire", MeasuredSize: 60, ReferenceSize: 0.60},
	}
	scale, agreed, reason := anchorConsensus(nil, measurements)
	if !agreed {
		t.Fatalf("expected agreement for two close anchor estimates, reason=%s", reason)
	}
	if reason != "anchor_consensus" {
		t.Fatalf("reason = %q, want anchor_consensus", reason)
	}
	if scale <= 0 {
		t.Fatalf("expected a positive scale factor, got %v", scale)
	}
}

func TestAnchorConsensusDropsWorstOutlier(t *testing.T) {
	// door and tire agree closely; bucket is wildly off and should be
	// identified as the outlier.
	measurements := []AnchorMeasurement{
		{Label: "door", MeasuredSize: 100, ReferenceSize: 1.0},
		{Label: "tire", MeasuredSize: 100, ReferenceSize: 1.0},
		{Label: "bucket", MeasuredSize: 100, ReferenceSize: 5.0},
	}
	_, agreed, reason := anchorConsensus(nil, measurements)
	if agreed {
		t.Fatalf("expected disagreement with one wildly-off anchor")
	}
	if reason != "anchor_conflict_detected" {
		t.Fatalf("reason = %q, want anchor_conflict_detected", reason)
	}
}

func TestAnchorConsensusNoValidMeasurements(t *testing.T) {
	_, agreed, reason := anchorConsensus(nil, nil)
	if agreed {
		t.Fatalf("expected no agreement with zero measurements")
	}
	if reason != "no_anchors_detected" {
		t.Fatalf("reason = %q, want no_anchors_detected", reason)
	}
}

func TestRunCalibrationFallsBackWithoutAnchorsOrExif(t *testing.T) {
	result := runCalibration(nil, "frame-1", nil, nil, 1000, 1024, 768, false, false)
	if result.CalibrationSource != "fallback" {
		t.Fatalf("source = %q, want fallback", result.CalibrationSource)
	}
	if result.Confidence != "LOW" {
		t.Fatalf("confidence = %q, want LOW", result.Confidence)
	}
	if result.ReasonCode != "missing_exif" {
		t.Fatalf("reason = %q, want missing_exif", result.ReasonCode)
	}
}

func TestRunCalibrationUsesExifIntrinsicsWithoutAnchors(t *testing.T) {
	result := runCalibration(nil, "frame-1", nil, nil, 1000, 1024, 768, true, true)
	if result.CalibrationSource != "exif_intrinsics" {
		t.Fatalf("source = %q, want exif_intrinsics", result.CalibrationSource)
	}
	if result.Confidence != "HIGH" {
		t.Fatalf("confidence = %q, want HIGH when intrinsics are available", result.Confidence)
	}
}

func TestMedianBBoxDepthClampsAndFilters(t *testing.T) {
	depth := [][]float64{
		{1, 1, 1},
		{1, 20, 1}, // out of clip range, should be excluded
		{1, 1, 1},
	}
	got := medianBBoxDepth(depth, [4]float64{0, 0, 3, 3})
	if got != 1 {
		t.Fatalf("medianBBoxDepth = %v, want 1 (out-of-range sample excluded)", got)
	}
}
