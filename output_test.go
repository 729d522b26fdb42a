package pileq

import "testing"

func TestRoundIfConservativeRoundsUpWhenConservative(t *testing.T) {
	cases := map[float64]float64{
		0.0:  0.0,
		0.1:  0.5,
		0.5:  0.5,
		0.51: 1.0,
		2.0:  2.0,
		2.01: 2.5,
	}
	for in, want := range cases {
		if got := roundIfConservative(in, true); got != want {
			t.Errorf("roundIfConservative(%v, true) = %v, want %v", in, got, want)
		}
	}
}

func TestRoundIfConservativePassesThroughWhenNotConservative(t *testing.T) {
	if got := roundIfConservative(2.01, false); got != 2.01 {
		t.Fatalf("roundIfConservative(2.01, false) = %v, want 2.01 unchanged", got)
	}
}

func TestBuildOutputOnlyRoundsWhenCalibrationIsConservative(t *testing.T) {
	fusion := FusionResult{FinalVolumeCY: 2.01, UncertaintyMaxCY: 2.5, ValidFrames: []string{"a", "b"}, ViewpointDiversity: "good"}
	calibration := CalibrationResult{Confidence: "HIGH"}
	out := buildOutput("job-1", IngestionResult{}, calibration, fusion, "good", 0.9)
	if out.FinalVolumeCY != 2.01 {
		t.Fatalf("expected a HIGH-confidence, non-conservative quote left unrounded, got %v", out.FinalVolumeCY)
	}

	calibration.ConservativeBilling = true
	out = buildOutput("job-1", IngestionResult{}, calibration, fusion, "good", 0.9)
	if out.FinalVolumeCY != 2.5 {
		t.Fatalf("expected conservative billing to round up, got %v", out.FinalVolumeCY)
	}
}

func TestBuildOutputReviewRequiredFromCalibrationEvenAtMediumConfidence(t *testing.T) {
	fusion := FusionResult{FinalVolumeCY: 5.0, ValidFrames: []string{"a", "b"}, ViewpointDiversity: "good"}
	calibration := CalibrationResult{Confidence: "LOW", ReviewRequired: true}
	out := buildOutput("job-1", IngestionResult{}, calibration, fusion, "good", 0.9)
	if !out.ReviewRequired {
		t.Fatalf("expected review_required propagated from calibration regardless of overall confidence score")
	}
}

func TestBuildOutputFlagsTruckCapacityExceeded(t *testing.T) {
	fusion := FusionResult{FinalVolumeCY: 20.0, TruckCapacityExceeded: true, ValidFrames: []string{"a", "b"}, ViewpointDiversity: "good"}
	out := buildOutput("job-1", IngestionResult{}, CalibrationResult{Confidence: "HIGH"}, fusion, "good", 0.9)
	found := false
	for _, f := range out.Flags {
		if f == "truck_capacity_exceeded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected truck_capacity_exceeded flag, got %v", out.Flags)
	}
}

func TestDetermineOverallConfidenceHighPath(t *testing.T) {
	calibration := CalibrationResult{Confidence: "HIGH"}
	fusion := FusionResult{ViewpointDiversity: "good", ValidFrames: []string{"a", "b"}}
	got := determineOverallConfidence(calibration, "good", fusion, IngestionResult{})
	if got != "HIGH" {
		t.Fatalf("confidence = %q, want HIGH", got)
	}
}

func TestDetermineOverallConfidenceDegradesToLow(t *testing.T) {
	calibration := CalibrationResult{Confidence: "LOW"}
	fusion := FusionResult{ViewpointDiversity: "low", ValidFrames: []string{"a"}}
	got := determineOverallConfidence(calibration, "failed", fusion, IngestionResult{})
	if got != "LOW" {
		t.Fatalf("confidence = %q, want LOW for every degraded signal at once", got)
	}
}

func TestBuildLineItemsAbsorbsLowConfidenceDiscreteItems(t *testing.T) {
	fusion := FusionResult{
		FinalVolumeCY: 5.0,
		FusedDiscreteItems: []DiscreteItem{
			{Label: "sofa", InstanceID: "i1", VolumeCY: 2.0, Confidence: 0.9},
			{Label: "chair", InstanceID: "i2", VolumeCY: 0.3, Confidence: 0.4},
		},
	}
	items := buildLineItems(fusion)

	var sofaFound, aggregateFound bool
	var aggregateLabel string
	var aggregateVol float64
	for _, it := range items {
		if it.Label == "sofa" {
			sofaFound = true
			if it.VolumeCY != 2.0 {
				t.Errorf("sofa volume = %v, want 2.0", it.VolumeCY)
			}
		}
		if it.IsAggregate {
			aggregateFound = true
			aggregateLabel = it.Label
			aggregateVol = it.VolumeCY
		}
	}
	if !sofaFound {
		t.Fatalf("expected a dedicated sofa line item")
	}
	if !aggregateFound {
		t.Fatalf("expected an aggregate bulk line item")
	}
	if aggregateLabel != "Mixed Bulk Debris (includes low-confidence items)" {
		t.Fatalf("aggregate label = %q, want it to flag absorbed low-confidence items", aggregateLabel)
	}
	// bulk = final(5.0) - discreteTotal(2.0) + absorbed(0.3) = 3.3
	if diff := aggregateVol - 3.3; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("aggregate volume = %v, want ~3.3", aggregateVol)
	}
}

func TestBuildLineItemsNoDiscreteItems(t *testing.T) {
	fusion := FusionResult{FinalVolumeCY: 4.0}
	items := buildLineItems(fusion)
	if len(items) != 1 || !items[0].IsAggregate || items[0].Label != "Mixed Bulk Debris" {
		t.Fatalf("expected a single plain aggregate line, got %+v", items)
	}
	if items[0].VolumeCY != 4.0 {
		t.Fatalf("aggregate volume = %v, want 4.0", items[0].VolumeCY)
	}
}
