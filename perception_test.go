package pileq

import (
	"context"
	"testing"

	"github.com/junkvolume/pileq/internal/adapters"
	"github.com/junkvolume/pileq/internal/maskcache"
	"github.com/junkvolume/pileq/internal/raster"
)

type fakeDetector struct{ dets []adapters.Detection }

func (f fakeDetector) Detect(ctx context.Context, rgb []byte, w, h int) ([]adapters.Detection, error) {
	return f.dets, nil
}

type fakeBulkSegmenter struct{ mask raster.Mask }

func (f fakeBulkSegmenter) Segment(ctx context.Context, rgb []byte, w, h int, ground *raster.Mask) (*raster.Mask, error) {
	return &f.mask, nil
}

type fakeSceneClassifier struct{ scene string }

func (f fakeSceneClassifier) Classify(ctx context.Context, rgb []byte, w, h int) (string, error) {
	return f.scene, nil
}

type fakeFloorSegmenter struct {
	cityMask *raster.Mask
	cityArea float64
	adeMask  *raster.Mask
	adeArea  float64
}

func (f fakeFloorSegmenter) SegmentCityscapes(ctx context.Context, rgb []byte, w, h int) (*raster.Mask, float64, error) {
	return f.cityMask, f.cityArea, nil
}
func (f fakeFloorSegmenter) SegmentADE20K(ctx context.Context, rgb []byte, w, h int) (*raster.Mask, float64, error) {
	return f.adeMask, f.adeArea, nil
}

func testDecodedImage() DecodedImage {
	return DecodedImage{RGB: make([]byte, 4*4*3), Width: 4, Height: 4}
}

func TestRunLaneAFiltersLowConfidenceAndFlagsAnchors(t *testing.T) {
	ad := adapters.Bundle{Detector: fakeDetector{dets: []adapters.Detection{
		{Label: "door", Confidence: 0.9, BBox: [4]float64{0, 0, 2, 2}},
		{Label: "sofa", Confidence: 0.1, BBox: [4]float64{0, 0, 1, 1}}, // below threshold
	}}}
	res := runLaneA(context.Background(), ad, "frame-1", testDecodedImage())

	if len(res.Instances) != 1 {
		t.Fatalf("expected the low-confidence detection dropped, got %d instances", len(res.Instances))
	}
	if len(res.Anchors) != 1 || res.Anchors[0].Label != "door" {
		t.Fatalf("expected the door instance flagged as an anchor, got %v", res.Anchors)
	}
}

func TestRunLaneAFlagsPersonAsAnchor(t *testing.T) {
	ad := adapters.Bundle{Detector: fakeDetector{dets: []adapters.Detection{
		{Label: "person", Confidence: 0.8, BBox: [4]float64{0, 0, 1, 2}},
	}}}
	res := runLaneA(context.Background(), ad, "frame-1", testDecodedImage())
	if len(res.Anchors) != 1 || res.Anchors[0].Label != "person" {
		t.Fatalf("expected a detected person flagged as an anchor, got %v", res.Anchors)
	}
}

func TestRunLaneBUsesCacheOnSecondCall(t *testing.T) {
	mask := raster.New(4, 4)
	mask.Set(0, 0, true)
	ad := adapters.Bundle{BulkSegmenter: fakeBulkSegmenter{mask: mask}, Cache: maskcache.New()}

	first := runLaneB(context.Background(), ad, "frame-1", testDecodedImage(), "sha123", nil)
	if first.CacheHit {
		t.Fatalf("expected a miss on the first call")
	}
	second := runLaneB(context.Background(), ad, "frame-1", testDecodedImage(), "sha123", nil)
	if !second.CacheHit {
		t.Fatalf("expected a hit on the second call with the same preprocessed hash")
	}
	if second.BulkAreaRatio != first.BulkAreaRatio {
		t.Fatalf("cached result should report the same area ratio")
	}
}

func TestRunLaneCReportsSceneType(t *testing.T) {
	ad := adapters.Bundle{SceneClassifier: fakeSceneClassifier{scene: "garage"}}
	res := runLaneC(context.Background(), ad, testDecodedImage())
	if res.SceneType != SceneGarage {
		t.Fatalf("scene type = %v, want garage", res.SceneType)
	}
}

func TestRunLaneDPrefersCityscapesWhenClearlyBigger(t *testing.T) {
	cityMask := raster.New(4, 4)
	adeMask := raster.New(4, 4)
	ad := adapters.Bundle{FloorSegmenter: fakeFloorSegmenter{
		cityMask: &cityMask, cityArea: 0.5,
		adeMask: &adeMask, adeArea: 0.1,
	}}
	res := runLaneD(context.Background(), ad, testDecodedImage())
	if res.ModelUsed != "cityscapes" {
		t.Fatalf("model used = %q, want cityscapes", res.ModelUsed)
	}
}

func TestRunLaneDFallsBackToNoneBelowMinArea(t *testing.T) {
	cityMask := raster.New(4, 4)
	adeMask := raster.New(4, 4)
	ad := adapters.Bundle{FloorSegmenter: fakeFloorSegmenter{
		cityMask: &cityMask, cityArea: 0.01,
		adeMask: &adeMask, adeArea: 0.02,
	}}
	res := runLaneD(context.Background(), ad, testDecodedImage())
	if res.ModelUsed != "none" {
		t.Fatalf("model used = %q, want none when both are below the minimum area ratio", res.ModelUsed)
	}
}
