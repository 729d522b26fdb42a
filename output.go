package pileq

import "math"

const conservativeRoundTier = 0.5

// buildOutput assembles the final customer-facing payload: conservative
// rounding (under conservative billing the final volume and the band's
// upper edge round up to the nearest half cubic yard, never down;
// otherwise they are reported as computed), an overall confidence
// ladder driven by calibration/floor/diversity signals, and the
// discrete + aggregate bulk line items.
func buildOutput(jobID string, ingestion IngestionResult, calibration CalibrationResult, fusion FusionResult, floorQuality string, depthConfidenceAvg float64) OutputPayload {
	conservative := calibration.ConservativeBilling
	out := OutputPayload{
		JobID:              jobID,
		FinalVolumeCY:      roundIfConservative(fusion.FinalVolumeCY, conservative),
		UncertaintyMinCY:   fusion.UncertaintyMinCY,
		UncertaintyMaxCY:   roundIfConservative(fusion.UncertaintyMaxCY, conservative),
		FloorQuality:       floorQuality,
		DepthConfidenceAvg: depthConfidenceAvg,
		UncalibratedMode:   ingestion.UncalibratedMode,
	}

	out.ConfidenceScore = determineOverallConfidence(calibration, floorQuality, fusion, ingestion)
	out.ReviewRequired = out.ConfidenceScore == "LOW" ||
		fusion.ViewpointDiversity == "low" ||
		floorQuality == "failed" ||
		len(fusion.ValidFrames) < 2 ||
		calibration.ReviewRequired
	out.LineItems = buildLineItems(fusion)

	if ingestion.UncalibratedMode {
		out.Flags = append(out.Flags, "uncalibrated")
	}
	if fusion.ViewpointDiversity == "low" {
		out.Flags = append(out.Flags, "low_diversity")
	}
	if fusion.TruckCapacityExceeded {
		out.Flags = append(out.Flags, "truck_capacity_exceeded")
	}
	out.Warnings = append(out.Warnings, calibration.ReasonCode)

	return out
}

// roundIfConservative rounds up to the nearest half cubic yard only when
// conservative billing applies; otherwise the calibrated estimate is
// reported as computed, HIGH-confidence frames are never over-billed by
// a blanket round-up.
func roundIfConservative(v float64, conservative bool) float64 {
	if !conservative {
		return v
	}
	return math.Ceil(v/conservativeRoundTier) * conservativeRoundTier
}

// determineOverallConfidence starts at a score of 3 and deducts for each
// degraded signal, then maps the remaining score to HIGH/MEDIUM/LOW.
func determineOverallConfidence(calibration CalibrationResult, floorQuality string, fusion FusionResult, ingestion IngestionResult) string {
	score := 3

	switch calibration.Confidence {
	case "LOW":
		score -= 2
	case "MEDIUM":
		score -= 1
	}

	switch floorQuality {
	case "failed":
		score -= 2
	case "noisy":
		score -= 1
	}

	if fusion.ViewpointDiversity == "low" {
		score--
	}
	if len(fusion.ValidFrames) < 2 {
		score--
	}

	switch {
	case score >= 3:
		return "HIGH"
	case score >= 1:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// buildLineItems produces one line per catalogued discrete item plus a
// single aggregate "Mixed Bulk Debris" line for the remaining bulk
// volume; low-confidence discrete items are folded back into the
// aggregate rather than billed individually.
func buildLineItems(fusion FusionResult) []LineItem {
	var items []LineItem
	var absorbedCY float64

	seen := map[string]bool{}
	for _, d := range fusion.FusedDiscreteItems {
		if d.Confidence < 0.5 {
			absorbedCY += d.VolumeCY
			continue
		}
		key := d.InstanceID
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, LineItem{Label: d.Label, VolumeCY: d.VolumeCY, Confidence: "HIGH"})
	}

	var discreteTotal float64
	for _, it := range items {
		discreteTotal += it.VolumeCY
	}
	bulkVolume := fusion.FinalVolumeCY - discreteTotal + absorbedCY
	if bulkVolume < 0 {
		bulkVolume = 0
	}

	label := "Mixed Bulk Debris"
	if absorbedCY > 0 {
		label = "Mixed Bulk Debris (includes low-confidence items)"
	}
	items = append(items, LineItem{Label: label, VolumeCY: bulkVolume, IsAggregate: true})

	return items
}
