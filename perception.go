package pileq

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/alitto/pond"

	"github.com/junkvolume/pileq/internal/adapters"
)

const detectionConfThreshold = 0.35

// anchorCanonicalSize is the reference real-world size (metres) for each
// anchor-eligible object class, used later by scale calibration.
var anchorCanonicalSize = map[string]float64{
	"tire":      0.60,
	"door":      2.03,
	"bin":       0.90,
	"trash can": 0.90,
	"bucket":    0.30,
	"chair":     0.45,
	"person":    1.68,
}

var highValueItems = map[string]bool{
	"sofa": true, "couch": true, "refrigerator": true, "fridge": true,
	"washer": true, "dryer": true, "piano": true, "hot_tub": true,
}

// groundLabelMinAreaRatio is the minimum fraction of an image a ground
// segmentation model must cover before its mask is trusted.
const groundLabelMinAreaRatio = 0.05

// runPerception runs the four perception lanes for a single frame.
// Lane ordering matters: A (instances) and C (scene) are independent of
// the masks; D (ground) must run before B (bulk) because bulk
// segmentation consumes the ground mask to exclude floor pixels.
func runPerception(ctx context.Context, pool *pond.WorkerPool, ad adapters.Bundle, frameID string, img DecodedImage, preprocSHA string) PerceptionResult {
	res := PerceptionResult{FrameID: frameID}

	var laneA LaneAResult
	var laneC LaneCResult
	var laneD LaneDResult

	group := pool.Group()
	group.Submit(func() { laneA = runLaneA(ctx, ad, frameID, img) })
	group.Submit(func() { laneC = runLaneC(ctx, ad, img) })
	group.Submit(func() { laneD = runLaneD(ctx, ad, img) })
	group.Wait()

	laneB := runLaneB(ctx, ad, frameID, img, preprocSHA, laneD.GroundMask)

	res.LaneA = laneA
	res.LaneB = laneB
	res.LaneC = laneC
	res.LaneD = &laneD
	return res
}

func runLaneA(ctx context.Context, ad adapters.Bundle, frameID string, img DecodedImage) LaneAResult {
	dets, err := ad.Detector.Detect(ctx, img.RGB, img.Width, img.Height)
	if err != nil {
		return LaneAResult{}
	}
	result := LaneAResult{}
	for i, d := range dets {
		if d.Confidence < detectionConfThreshold {
			continue
		}
		inst := Instance{
			InstanceID:  generateInstanceID(frameID, d.Label, d.BBox),
			FrameID:     frameID,
			Label:       d.Label,
			Confidence:  d.Confidence,
			BBox:        d.BBox,
			IsHighValue: highValueItems[d.Label],
		}
		if _, ok := anchorCanonicalSize[d.Label]; ok {
			inst.IsAnchor = true
			result.Anchors = append(result.Anchors, inst)
		}
		result.Instances = append(result.Instances, inst)
		_ = i
	}
	return result
}

func runLaneB(ctx context.Context, ad adapters.Bundle, frameID string, img DecodedImage, preprocSHA string, ground *Mask) LaneBResult {
	cacheKey := adapters.CacheKey{ModelID: "bulk-seg", PreprocSHA: preprocSHA}
	if cached, ok := ad.Cache.Get(cacheKey); ok {
		m := cached.(Mask)
		return LaneBResult{BulkMask: &m, BulkAreaRatio: m.AreaRatio(), CacheHit: true}
	}

	raw, err := ad.BulkSegmenter.Segment(ctx, img.RGB, img.Width, img.Height, ground)
	if err != nil || raw == nil {
		return LaneBResult{}
	}
	ad.Cache.Put(cacheKey, *raw)
	return LaneBResult{BulkMask: raw, BulkAreaRatio: raw.AreaRatio()}
}

func runLaneC(ctx context.Context, ad adapters.Bundle, img DecodedImage) LaneCResult {
	scene, err := ad.SceneClassifier.Classify(ctx, img.RGB, img.Width, img.Height)
	if err != nil {
		return LaneCResult{SceneType: SceneUnknown}
	}
	return LaneCResult{SceneType: SceneType(scene)}
}

func runLaneD(ctx context.Context, ad adapters.Bundle, img DecodedImage) LaneDResult {
	city, cityArea, _ := ad.FloorSegmenter.SegmentCityscapes(ctx, img.RGB, img.Width, img.Height)
	ade, adeArea, _ := ad.FloorSegmenter.SegmentADE20K(ctx, img.RGB, img.Width, img.Height)

	switch {
	case cityArea >= groundLabelMinAreaRatio && cityArea >= adeArea+0.02:
		return LaneDResult{GroundMask: city, ModelUsed: "cityscapes", GroundAreaRatio: cityArea}
	case adeArea >= groundLabelMinAreaRatio:
		return LaneDResult{GroundMask: ade, ModelUsed: "ade20k", GroundAreaRatio: adeArea}
	default:
		return LaneDResult{ModelUsed: "none"}
	}
}

func generateInstanceID(frameID, label string, bbox [4]float64) string {
	key := fmt.Sprintf("%s:%s:%.2f,%.2f,%.2f,%.2f", frameID, label, bbox[0], bbox[1], bbox[2], bbox[3])
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
