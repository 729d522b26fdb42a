package adapters

import (
	"context"

	"github.com/junkvolume/pileq/internal/raster"
)

// Local is the in-process adapter set: deterministic, dependency-light
// heuristics that stand in for the hosted perception models on a box
// with no GPU. It satisfies every lane interface so a Bundle can be
// constructed and exercised without any external service configured.
type Local struct{}

// NewLocalBundle wires a fully in-process adapter set, backed by the
// request-scoped cache supplied by the caller (usually
// internal/maskcache.Cache).
func NewLocalBundle(cache Cache) Bundle {
	l := Local{}
	return Bundle{
		Mode:            ModeLocal,
		Detector:        l,
		BulkSegmenter:   l,
		SceneClassifier: l,
		FloorSegmenter:  l,
		DepthEstimator:  l,
		Auditor:         l,
		Cache:           cache,
	}
}

// Detect runs a crude brightness-outlier blob finder: it has no notion
// of object classes, so every blob is reported as a generic "item" with
// a modest confidence. This keeps the rest of the pipeline exercised
// end to end without a real detection model present.
func (Local) Detect(ctx context.Context, rgb []byte, w, h int) ([]Detection, error) {
	if w == 0 || h == 0 {
		return nil, nil
	}
	mask := bulkByBrightness(rgb, w, h)
	box, ok := boundingBox(mask)
	if !ok {
		return nil, nil
	}
	return []Detection{{Label: "item", Confidence: 0.5, BBox: box}}, nil
}

// Segment treats everything outside the supplied ground mask and
// outside a simple brightness-based background estimate as bulk.
func (l Local) Segment(ctx context.Context, rgb []byte, w, h int, ground *raster.Mask) (*raster.Mask, error) {
	mask := bulkByBrightness(rgb, w, h)
	if ground != nil {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if ground.At(y, x) {
					mask.Set(y, x, false)
				}
			}
		}
	}
	return &mask, nil
}

// Classify always reports "unknown": scene type only affects
// confidence bookkeeping downstream, never a hard gate.
func (Local) Classify(ctx context.Context, rgb []byte, w, h int) (string, error) {
	return "unknown", nil
}

// SegmentCityscapes treats the bottom third of the frame as floor, a
// coarse stand-in for a real semantic segmentation model.
func (Local) SegmentCityscapes(ctx context.Context, rgb []byte, w, h int) (*raster.Mask, float64, error) {
	mask := bottomBandMask(w, h, 0.33)
	return &mask, mask.AreaRatio(), nil
}

// SegmentADE20K mirrors SegmentCityscapes; the local adapter has no
// second model to fall back to, so both ground-label paths agree.
func (Local) SegmentADE20K(ctx context.Context, rgb []byte, w, h int) (*raster.Mask, float64, error) {
	mask := bottomBandMask(w, h, 0.33)
	return &mask, mask.AreaRatio(), nil
}

// Estimate produces a depth map via inverse brightness, the simplest
// monocular proxy available without a trained model: darker pixels are
// assumed farther from the camera (0.5 for white up to 5.0 for black),
// whatever their row. It reports no intrinsics, so
// calibration falls through to the EXIF/anchor chain.
func (Local) Estimate(ctx context.Context, rgb []byte, w, h int) ([][]float64, *Intrinsics, error) {
	depth := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if i+2 >= len(rgb) {
				continue
			}
			lum := (float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])) / (3 * 255)
			row[x] = 0.5 + 4.5*(1-lum)
		}
		depth[y] = row
	}
	return depth, nil, nil
}

// Audit always reports "not_reviewed": the local adapter set has no
// vision-language model to ask for a sanity check.
func (Local) Audit(ctx context.Context, bestImage []byte, finalVolumeCY float64, detectedItems []string) (string, bool, error) {
	return "not_reviewed", false, nil
}

func bulkByBrightness(rgb []byte, w, h int) raster.Mask {
	mask := raster.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if i+2 >= len(rgb) {
				continue
			}
			lum := (float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])) / 3
			mask.Set(y, x, lum > 40 && lum < 215)
		}
	}
	return mask
}

func bottomBandMask(w, h int, fraction float64) raster.Mask {
	mask := raster.New(w, h)
	start := int(float64(h) * (1 - fraction))
	for y := start; y < h; y++ {
		for x := 0; x < w; x++ {
			mask.Set(y, x, true)
		}
	}
	return mask
}

func boundingBox(mask raster.Mask) ([4]float64, bool) {
	x0, y0, x1, y1 := mask.W, mask.H, -1, -1
	found := false
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			if !mask.At(y, x) {
				continue
			}
			found = true
			if x < x0 {
				x0 = x
			}
			if y < y0 {
				y0 = y
			}
			if x > x1 {
				x1 = x
			}
			if y > y1 {
				y1 = y
			}
		}
	}
	if !found {
		return [4]float64{}, false
	}
	return [4]float64{float64(x0), float64(y0), float64(x1), float64(y1)}, true
}
