package pileq

import (
	"log"

	"github.com/junkvolume/pileq/internal/catalog"
)

// Grid-cell integration and privileged-subtraction thresholds, grounded
// on the reference volumetrics stage.
const (
	gridCellSizeM             = 0.10 // 10cm x 10cm cells
	heightPercentile          = 98
	detectionConfSubtractMin  = 0.85
	depthConsistencyThreshold = 0.20
	depthSubSavedRatioMin     = 0.02
	m3ToCY                    = 1.30795
)

// cellPoint is one rectified point's contribution to a grid cell, kept
// alongside its source pixel so privileged subtraction can tell which
// cells a detected instance's bbox actually covers.
type cellPoint struct {
	height float64
	r, c   int
}

// runVolumetrics integrates the rectified point cloud into a horizontal
// grid of gridCellSizeM cells, takes the heightPercentile height per
// cell as that cell's contribution (trimming outlier spikes while
// preserving genuine peaks), sums to a raw bulk volume, then subtracts
// the cells covered by any high-confidence, depth-consistent catalogued
// instance to get bulk-net, and adds the catalogued volume of every
// high-confidence catalogued instance (depth-consistent or not) on top
// of bulk-net.
func runVolumetrics(cat *catalog.Catalog, frameID string, instances []Instance, rectified [][3]float64, pixelIndices [][2]int, bulkMask, floorMask *Mask, scaleFactor float64) VolumetricResult {
	res := VolumetricResult{FrameID: frameID}
	if len(rectified) == 0 {
		return res
	}

	cells := make(map[[2]int][]cellPoint)
	for i, p := range rectified {
		if p[1] <= 0 { // restrict to above_floor (Y > 0)
			continue
		}
		var r, c int
		haveIdx := i < len(pixelIndices)
		if haveIdx {
			r, c = pixelIndices[i][0], pixelIndices[i][1]
		}
		if bulkMask != nil && haveIdx && r < bulkMask.H && c < bulkMask.W && !bulkMask.At(r, c) {
			continue
		}
		// The floor mask is subtracted from cell occupancy before binning
		// so ground pixels that leaked past the bulk mask never inflate a
		// cell's height. No separate safe-background mask is applied.
		if floorMask != nil && haveIdx && r < floorMask.H && c < floorMask.W && floorMask.At(r, c) {
			continue
		}
		cellX := int(p[0] * scaleFactor / gridCellSizeM)
		cellZ := int(p[2] * scaleFactor / gridCellSizeM)
		key := [2]int{cellX, cellZ}
		cells[key] = append(cells[key], cellPoint{height: p[1] * scaleFactor, r: r, c: c})
	}

	cellVolume := make(map[[2]int]float64, len(cells))
	var totalM3 float64
	for key, pts := range cells {
		heights := make([]float64, len(pts))
		for i, cp := range pts {
			heights[i] = cp.height
		}
		h := percentile(heights, heightPercentile)
		if h <= 0 {
			continue
		}
		v := h * gridCellSizeM * gridCellSizeM
		cellVolume[key] = v
		totalM3 += v
	}
	res.CellsIntegrated = len(cells)
	res.BulkRawCY = totalM3 * m3ToCY

	var discreteVolume float64
	subtractedCells := make(map[[2]int]bool)
	var subtractedM3 float64
	for _, inst := range instances {
		if inst.Confidence < detectionConfSubtractMin {
			continue
		}
		vol, ok := cat.DiscreteVolumeCY(inst.Label)
		if !ok {
			continue
		}
		res.DiscreteItems = append(res.DiscreteItems, DiscreteItem{
			Label: inst.Label, InstanceID: inst.InstanceID,
			VolumeCY: vol, Confidence: inst.Confidence,
		})
		discreteVolume += vol

		if !bboxDepthConsistent(cells, inst.BBox) {
			continue
		}
		for key, pts := range cells {
			if subtractedCells[key] || !anyPixelInBBox(pts, inst.BBox) {
				continue
			}
			subtractedCells[key] = true
			subtractedM3 += cellVolume[key]
		}
	}
	res.DiscreteVolumeCY = discreteVolume

	subtractedCY := subtractedM3 * m3ToCY
	res.BulkNetCY = res.BulkRawCY - subtractedCY
	if res.BulkNetCY < 0 {
		res.BulkNetCY = 0
	}
	res.FrameVolumeCY = res.BulkNetCY + discreteVolume

	if discreteVolume > 0 && res.BulkRawCY > 0 && subtractedCY/res.BulkRawCY < depthSubSavedRatioMin {
		res.Warnings = append(res.Warnings, "depth_sub_saved_ratio_low")
	}

	log.Printf("[volumetrics] frame=%s bulk_raw=%.2f bulk_net=%.2f discrete=%.2f total=%.2f",
		frameID, res.BulkRawCY, res.BulkNetCY, res.DiscreteVolumeCY, res.FrameVolumeCY)
	return res
}

// bboxDepthConsistent reports whether the rectified heights under bbox
// agree within depthConsistencyThreshold of their median, the same
// median/relative-deviation check anchorConsensus uses for anchors.
// Instances with no point support under their bbox are treated as
// inconsistent, since there is nothing to privilege-subtract.
func bboxDepthConsistent(cells map[[2]int][]cellPoint, bbox [4]float64) bool {
	var heights []float64
	for _, pts := range cells {
		for _, p := range pts {
			if pixelInBBox(p.r, p.c, bbox) {
				heights = append(heights, p.height)
			}
		}
	}
	if len(heights) == 0 {
		return false
	}
	med := median(heights)
	if med <= 0 {
		return false
	}
	for _, h := range heights {
		if absF(h-med)/med > depthConsistencyThreshold {
			return false
		}
	}
	return true
}

func anyPixelInBBox(pts []cellPoint, bbox [4]float64) bool {
	for _, p := range pts {
		if pixelInBBox(p.r, p.c, bbox) {
			return true
		}
	}
	return false
}

func pixelInBBox(r, c int, bbox [4]float64) bool {
	x0, y0, x1, y1 := bbox[0], bbox[1], bbox[2], bbox[3]
	return float64(c) >= x0 && float64(c) < x1 && float64(r) >= y0 && float64(r) < y1
}
