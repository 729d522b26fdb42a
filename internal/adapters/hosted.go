package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/junkvolume/pileq/internal/raster"
)

// ErrUnavailable is returned when a hosted adapter call fails at the
// transport or status-code level.
var ErrUnavailable = errors.New("hosted adapter unavailable")

// Hosted calls out to externally-hosted perception models over plain
// JSON-over-HTTP, the lowest-common-denominator wire format most
// managed vision APIs expose. There is no shared Go client SDK across
// these providers, so a small dependency-free client lives here rather
// than adopting one vendor's SDK for all of them.
type Hosted struct {
	BaseURL string
	Client  *http.Client
}

// NewHostedBundle wires an adapter set that posts each lane's request to
// "<baseURL>/<lane>" and expects a JSON response shaped like that lane's
// result type.
func NewHostedBundle(baseURL string, client *http.Client, cache Cache) Bundle {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	h := Hosted{BaseURL: baseURL, Client: client}
	return Bundle{
		Mode:            ModeHosted,
		Detector:        h,
		BulkSegmenter:   h,
		SceneClassifier: h,
		FloorSegmenter:  h,
		DepthEstimator:  h,
		Auditor:         h,
		Cache:           cache,
	}
}

type detectRequest struct {
	RGB    []byte `json:"rgb"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

func (h Hosted) Detect(ctx context.Context, rgb []byte, w, h2 int) ([]Detection, error) {
	var out detectResponse
	if err := h.postJSON(ctx, "detect", detectRequest{RGB: rgb, Width: w, Height: h2}, &out); err != nil {
		return nil, err
	}
	return out.Detections, nil
}

type segmentRequest struct {
	RGB    []byte `json:"rgb"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ground []bool `json:"ground,omitempty"`
}

type maskResponse struct {
	Bits      []bool  `json:"bits"`
	AreaRatio float64 `json:"area_ratio"`
}

func (h Hosted) Segment(ctx context.Context, rgb []byte, w, h2 int, ground *raster.Mask) (*raster.Mask, error) {
	req := segmentRequest{RGB: rgb, Width: w, Height: h2}
	if ground != nil {
		req.Ground = ground.Bits
	}
	var out maskResponse
	if err := h.postJSON(ctx, "segment/bulk", req, &out); err != nil {
		return nil, err
	}
	return &raster.Mask{W: w, H: h2, Bits: out.Bits}, nil
}

type sceneResponse struct {
	SceneType string `json:"scene_type"`
}

func (h Hosted) Classify(ctx context.Context, rgb []byte, w, h2 int) (string, error) {
	var out sceneResponse
	if err := h.postJSON(ctx, "classify/scene", detectRequest{RGB: rgb, Width: w, Height: h2}, &out); err != nil {
		return "", err
	}
	return out.SceneType, nil
}

func (h Hosted) SegmentCityscapes(ctx context.Context, rgb []byte, w, h2 int) (*raster.Mask, float64, error) {
	return h.segmentFloor(ctx, "segment/floor/cityscapes", rgb, w, h2)
}

func (h Hosted) SegmentADE20K(ctx context.Context, rgb []byte, w, h2 int) (*raster.Mask, float64, error) {
	return h.segmentFloor(ctx, "segment/floor/ade20k", rgb, w, h2)
}

func (h Hosted) segmentFloor(ctx context.Context, path string, rgb []byte, w, h2 int) (*raster.Mask, float64, error) {
	var out maskResponse
	if err := h.postJSON(ctx, path, detectRequest{RGB: rgb, Width: w, Height: h2}, &out); err != nil {
		return nil, 0, err
	}
	return &raster.Mask{W: w, H: h2, Bits: out.Bits}, out.AreaRatio, nil
}

type depthResponse struct {
	Depth      [][]float64 `json:"depth"`
	Intrinsics *Intrinsics `json:"intrinsics,omitempty"`
}

func (h Hosted) Estimate(ctx context.Context, rgb []byte, w, h2 int) ([][]float64, *Intrinsics, error) {
	var out depthResponse
	if err := h.postJSON(ctx, "estimate/depth", detectRequest{RGB: rgb, Width: w, Height: h2}, &out); err != nil {
		return nil, nil, err
	}
	return out.Depth, out.Intrinsics, nil
}

type auditRequest struct {
	Image         []byte   `json:"image"`
	FinalVolumeCY float64  `json:"final_volume_cy"`
	DetectedItems []string `json:"detected_items"`
}

type auditResponse struct {
	Status        string `json:"status"`
	FlagForReview bool   `json:"flag_for_review"`
}

func (h Hosted) Audit(ctx context.Context, bestImage []byte, finalVolumeCY float64, detectedItems []string) (string, bool, error) {
	var out auditResponse
	req := auditRequest{Image: bestImage, FinalVolumeCY: finalVolumeCY, DetectedItems: detectedItems}
	if err := h.postJSON(ctx, "audit", req, &out); err != nil {
		return "", false, err
	}
	return out.Status, out.FlagForReview, nil
}

func (h Hosted) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w (status %d)", path, ErrUnavailable, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
