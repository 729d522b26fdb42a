package pileq

import (
	"log"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Catastrophic-drop thresholds and quality weights, grounded on the
// reference fusion stage.
const (
	catastrophicInlierRatio       = 0.10
	catastrophicFlatnessP95Ceiling = 0.50
	weightGood                    = 1.0
	weightNoisy                   = 0.75
	weightFailed                  = 0.4
	maxPileVolumeCY               = 20.0 // truck capacity
	singleViewShrinkage           = 0.85
	trimMinValidFrames            = 4
	medianMinValidFrames          = 2
)

type viewQuality struct {
	frameID       string
	floorQuality  string
	volumeCY      float64
	flatnessP95   float64
	inlierRatio   float64
	isValid       bool
	rejectReason  string
}

// runFusion combines each frame's independent volume estimate into one
// number: catastrophically-bad frames (near-zero plane inliers, very
// uneven floor, or a near-total bulk mask with no usable floor) are
// dropped outright; surviving frames are weighted by floor quality and
// combined by a weighted trimmed mean (4+ frames), a weighted median
// (2-3 frames) or a shrunk single view (1 frame). [min, max] is the
// final volume times fixed multipliers chosen from floor quality and
// viewpoint diversity (uncertaintyBandMultipliers).
func runFusion(results []VolumetricResult, floorQualities, floorFlatness map[string]float64, floorQualityLabel map[string]string, inlierRatios, maskCoverages map[string]float64) FusionResult {
	fusion := FusionResult{RejectionReasons: map[string]string{}}
	if len(results) == 0 {
		return fusion
	}

	views := make([]viewQuality, 0, len(results))
	for _, r := range results {
		vq := viewQuality{
			frameID:      r.FrameID,
			floorQuality: floorQualityLabel[r.FrameID],
			volumeCY:     r.FrameVolumeCY,
			flatnessP95:  floorFlatness[r.FrameID],
			inlierRatio:  inlierRatios[r.FrameID],
			isValid:      true,
		}

		coverage := maskCoverages[r.FrameID]
		switch {
		case vq.inlierRatio < catastrophicInlierRatio:
			vq.isValid = false
			vq.rejectReason = "catastrophic_low_inlier_ratio"
		case vq.flatnessP95 > catastrophicFlatnessP95Ceiling:
			vq.isValid = false
			vq.rejectReason = "catastrophic_uneven_floor"
		case coverage > 0.97 && vq.floorQuality == "failed":
			vq.isValid = false
			vq.rejectReason = "catastrophic_no_floor_evidence"
		}

		views = append(views, vq)
	}

	valid := lo.Filter(views, func(v viewQuality, _ int) bool { return v.isValid })
	for _, v := range views {
		if v.isValid {
			fusion.ValidFrames = append(fusion.ValidFrames, v.frameID)
		} else {
			fusion.RejectedFrames = append(fusion.RejectedFrames, v.frameID)
			fusion.RejectionReasons[v.frameID] = v.rejectReason
		}
	}

	if len(valid) == 0 {
		fusion.FusionMethod = "max_fallback"
		fusion.ViewpointDiversity = "low"
		best := lo.MaxBy(views, func(a, b viewQuality) bool { return a.volumeCY > b.volumeCY })
		if best.volumeCY > maxPileVolumeCY {
			fusion.TruckCapacityExceeded = true
		}
		fusion.FinalVolumeCY = capVolume(best.volumeCY)
		fusion.UncertaintyMinCY = capVolume(fusion.FinalVolumeCY * 0.60)
		fusion.UncertaintyMaxCY = capVolume(fusion.FinalVolumeCY * 1.50)
		log.Printf("[fusion] all frames catastrophic, using max_fallback=%.2f", fusion.FinalVolumeCY)
		return fusion
	}

	var sumValid, sumWeighted, weightSum float64
	for _, v := range valid {
		w := fusionWeight(v.floorQuality)
		sumValid += v.volumeCY
		sumWeighted += v.volumeCY * w
		weightSum += w
	}
	fusion.SumValidCY = sumValid
	fusion.SumWeightedCY = sumWeighted

	var final float64
	switch {
	case len(valid) >= trimMinValidFrames:
		final = trimmedWeightedMean(valid)
		fusion.FusionMethod = "weighted_trimmed_mean"
	case len(valid) >= medianMinValidFrames:
		final = weightedMedianVolume(valid)
		fusion.FusionMethod = "weighted_median"
	default:
		final = valid[0].volumeCY * singleViewShrinkage
		fusion.FusionMethod = "single_view_shrinkage"
	}

	if final > maxPileVolumeCY {
		fusion.TruckCapacityExceeded = true
	}
	fusion.FinalVolumeCY = capVolume(final)

	fusion.ViewpointDiversity = diversityLabel(len(valid))
	low, high := uncertaintyBandMultipliers(valid, fusion.ViewpointDiversity)
	fusion.UncertaintyMinCY = capVolume(fusion.FinalVolumeCY * low)
	fusion.UncertaintyMaxCY = capVolume(fusion.FinalVolumeCY * high)

	for _, r := range results {
		fusion.FusedDiscreteItems = append(fusion.FusedDiscreteItems, r.DiscreteItems...)
	}

	log.Printf("[fusion] valid=%d method=%s final=%.2f range=[%.2f,%.2f]",
		len(valid), fusion.FusionMethod, fusion.FinalVolumeCY, fusion.UncertaintyMinCY, fusion.UncertaintyMaxCY)
	return fusion
}

// trimmedWeightedMean drops the single lowest-volume and single
// highest-volume valid frame, then takes the weighted average of what
// remains. Only called with at least trimMinValidFrames views, so two
// or more frames always survive the trim.
func trimmedWeightedMean(valid []viewQuality) float64 {
	sorted := append([]viewQuality(nil), valid...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].volumeCY < sorted[j].volumeCY })
	trimmed := sorted[1 : len(sorted)-1]

	var sumWeighted, weightSum float64
	for _, v := range trimmed {
		w := fusionWeight(v.floorQuality)
		sumWeighted += v.volumeCY * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sumWeighted / weightSum
}

// weightedMedianVolume returns the floor-quality-weighted median of 2-3
// valid frames' volumes via gonum's weighted empirical quantile. When the
// cumulative weight splits exactly in half between two adjacent volumes,
// it returns their midpoint.
func weightedMedianVolume(valid []viewQuality) float64 {
	type pair struct {
		volume float64
		weight float64
	}
	pairs := make([]pair, len(valid))
	for i, v := range valid {
		pairs[i] = pair{volume: v.volumeCY, weight: fusionWeight(v.floorQuality)}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].volume < pairs[j].volume })

	volumes := make([]float64, len(pairs))
	weights := make([]float64, len(pairs))
	for i, p := range pairs {
		volumes[i] = p.volume
		weights[i] = p.weight
	}

	var total, cum float64
	for _, w := range weights {
		total += w
	}
	for i := 0; i < len(volumes)-1; i++ {
		cum += weights[i]
		if cum == total/2 {
			return (volumes[i] + volumes[i+1]) / 2
		}
		if cum > total/2 {
			break
		}
	}
	return stat.Quantile(0.5, stat.Empirical, volumes, weights)
}

// uncertaintyBandMultipliers picks the multiplicative uncertainty band
// around the final volume: tightest when every valid frame's floor was
// good and the viewpoints were diverse, widening with any noisy frame,
// widest otherwise (low diversity, any failed frame, or single view).
func uncertaintyBandMultipliers(valid []viewQuality, diversity string) (low, high float64) {
	allGood := true
	anyNoisy := false
	for _, v := range valid {
		switch v.floorQuality {
		case "good":
		case "noisy":
			anyNoisy = true
			allGood = false
		default:
			allGood = false
		}
	}

	switch {
	case allGood && diversity == "good":
		return 0.85, 1.15
	case anyNoisy:
		return 0.70, 1.30
	default:
		return 0.60, 1.50
	}
}

func fusionWeight(floorQuality string) float64 {
	switch floorQuality {
	case "good":
		return weightGood
	case "noisy":
		return weightNoisy
	default:
		return weightFailed
	}
}

func diversityLabel(validFrames int) string {
	if validFrames >= 2 {
		return "good"
	}
	return "low"
}

func capVolume(v float64) float64 {
	if v > maxPileVolumeCY {
		return maxPileVolumeCY
	}
	if v < 0 {
		return 0
	}
	return v
}
