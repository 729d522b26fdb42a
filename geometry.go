package pileq

import (
	"context"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/junkvolume/pileq/internal/adapters"
)

// Depth cleaning and RANSAC floor-fit parameters, grounded on the
// reference geometry stage. DepthHeightScale is 1.0: with correct
// intrinsics from the depth adapter, no additional height scaling is
// required.
const (
	depthNearClip        = 0.1
	depthFarClip         = 10.0
	spikeFilterKernel     = 3
	depthHeightScale      = 1.0
	ransacIterations      = 100
	ransacThreshold       = 0.05
	ransacBottomFraction  = 0.20
	gravitySnapThreshold  = 0.10
)

// runGeometry estimates metric depth for a frame, back-projects it to a
// point cloud, fits the ground plane by RANSAC over the bottom band of
// the image, and rectifies the cloud onto that plane. Frames that fail
// the floor-visibility gate upstream never reach this function and get
// a skipped GeometryResult directly from the orchestrator.
func runGeometry(ctx context.Context, ad adapters.Bundle, frameID string, img DecodedImage, bundle CalibrationBundle, bulkMask, groundMask *Mask) GeometryResult {
	res := GeometryResult{FrameID: frameID, FloorQuality: "failed", FloorFlatnessP95: 0.20}

	rawDepth, intrinsics, err := ad.DepthEstimator.Estimate(ctx, img.RGB, img.Width, img.Height)
	if err != nil || rawDepth == nil {
		log.Printf("[geometry] frame=%s depth estimation failed: %v", frameID, err)
		return res
	}

	cleaned, depthConf := cleanDepthMap(rawDepth)
	res.DepthMap = cleaned
	res.DepthConfidence = depthConf

	fx, fy, cx, cy := bundle.Fx, bundle.Fy, bundle.Cx, bundle.Cy
	res.IntrinsicsSource = "calibration_bundle"
	if intrinsics != nil && intrinsics.Fx > 0 {
		fx, fy, cx, cy = intrinsics.Fx, intrinsics.Fy, intrinsics.Cx, intrinsics.Cy
		res.IntrinsicsSource = "depth_model"
	}
	res.FxUsed = fx

	points, pixelIndices := backProject(cleaned, fx, fy, cx, cy)
	if len(points) == 0 {
		return res
	}

	h, w := len(cleaned), len(cleaned[0])
	ppm, err := BuildPointPixelMap(points, pixelIndices, h, w)
	if err != nil {
		log.Printf("[geometry] frame=%s point-pixel map invariant failed: %v", frameID, err)
		return res
	}
	res.PointPixelMap = &ppm

	bottomIdx := bottomBandIndices(pixelIndices, h, ransacBottomFraction)
	plane, ok := fitGroundPlaneRANSAC(points, bottomIdx)
	if !ok {
		res.FloorQuality = "failed"
		return res
	}
	res.GroundPlane = &plane
	res.NumPlanesDetected = 1

	rectified := rectifyToGroundPlane(points, plane)
	res.RectifiedCloud = &PointCloud{Points: rectified, PixelIndices: pixelIndices}
	res.FloorFlatnessP95 = floorFlatnessP95(rectified, bottomIdx)

	switch {
	case plane.InlierRatio >= 0.6 && res.FloorFlatnessP95 <= 0.15:
		res.FloorQuality = "good"
		res.FloorConfidence = 0.9
	case plane.InlierRatio >= 0.3:
		res.FloorQuality = "noisy"
		res.FloorConfidence = 0.5
	default:
		res.FloorQuality = "failed"
		res.FloorConfidence = 0.2
	}
	res.FloorConfidenceLocal = res.FloorConfidence
	res.SupportROIValid = bulkMask != nil

	return res
}

// cleanDepthMap clips extreme values and removes isolated spikes with a
// 3x3 median filter, then scores confidence from in-range depth
// variance (low variance ⇒ featureless ⇒ low confidence).
func cleanDepthMap(depth [][]float64) ([][]float64, float64) {
	h := len(depth)
	if h == 0 {
		return nil, 0
	}
	w := len(depth[0])

	clipped := make([][]float64, h)
	for y := range depth {
		clipped[y] = make([]float64, w)
		for x, v := range depth[y] {
			clipped[y][x] = clampFloat(v, depthNearClip, depthFarClip)
		}
	}

	cleaned := medianFilter3x3(clipped)

	var valid []float64
	for y := range depth {
		for x := range depth[y] {
			v := depth[y][x]
			if v > depthNearClip && v < depthFarClip {
				valid = append(valid, v)
			}
		}
	}
	if len(valid) == 0 {
		return cleaned, 0
	}
	variance := stat.Variance(valid, nil)
	confidence := math.Min(1.0, variance/2.0)
	return cleaned, confidence
}

func medianFilter3x3(in [][]float64) [][]float64 {
	h := len(in)
	w := len(in[0])
	out := make([][]float64, h)
	window := make([]float64, 0, spikeFilterKernel*spikeFilterKernel)
	for y := 0; y < h; y++ {
		out[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w {
						continue
					}
					window = append(window, in[ny][nx])
				}
			}
			out[y][x] = median(window)
		}
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// backProject converts a depth map to a Y-up point cloud: Z is depth,
// X/Y follow the pinhole model, with image-row-down flipped to world-Y
// up. Returns points with a parallel (row, col) pixel index array, and
// filters out pixels outside the valid depth range.
func backProject(depth [][]float64, fx, fy, cx, cy float64) ([][3]float64, [][2]int) {
	h := len(depth)
	if h == 0 {
		return nil, nil
	}
	w := len(depth[0])
	if cx == 0 {
		cx = float64(w) / 2.0
	}
	if cy == 0 {
		cy = float64(h) / 2.0
	}

	var points [][3]float64
	var indices [][2]int
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			z := depth[v][u]
			if z <= depthNearClip || z >= depthFarClip {
				continue
			}
			x := (float64(u) - cx) * z / fx
			yCam := (float64(v) - cy) * z / fy
			y := -yCam * depthHeightScale
			points = append(points, [3]float64{x, y, z})
			indices = append(indices, [2]int{v, u})
		}
	}
	return points, indices
}

func bottomBandIndices(pixelIndices [][2]int, h int, fraction float64) []int {
	bottomStart := int(float64(h) * (1.0 - fraction))
	var idx []int
	for i, rc := range pixelIndices {
		if rc[0] >= bottomStart {
			idx = append(idx, i)
		}
	}
	return idx
}

func floorFlatnessP95(points [][3]float64, candidateIdx []int) float64 {
	if len(candidateIdx) == 0 {
		return 0.20
	}
	ys := make([]float64, len(candidateIdx))
	for i, idx := range candidateIdx {
		ys[i] = math.Abs(points[idx][1])
	}
	return percentile(ys, 95)
}
