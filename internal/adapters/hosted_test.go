package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/junkvolume/pileq/internal/raster"
)

func TestHostedDetectPostsAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Fatalf("path = %q, want /detect", r.URL.Path)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Width != 10 || req.Height != 20 {
			t.Fatalf("request dims = %dx%d, want 10x20", req.Width, req.Height)
		}
		json.NewEncoder(w).Encode(detectResponse{Detections: []Detection{{Label: "sofa", Confidence: 0.9}}})
	}))
	defer srv.Close()

	h := NewHostedBundle(srv.URL, nil, nil)
	dets, err := h.Detector.Detect(context.Background(), nil, 10, 20)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 1 || dets[0].Label != "sofa" {
		t.Fatalf("detections = %v, want one sofa", dets)
	}
}

func TestHostedSegmentSendsGroundMaskBits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req segmentRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Ground) != 4 {
			t.Fatalf("expected 4 ground mask bits forwarded, got %d", len(req.Ground))
		}
		json.NewEncoder(w).Encode(maskResponse{Bits: []bool{true, false, false, true}, AreaRatio: 0.5})
	}))
	defer srv.Close()

	h := NewHostedBundle(srv.URL, nil, nil)
	ground := &raster.Mask{W: 2, H: 2, Bits: []bool{true, true, false, false}}
	mask, err := h.BulkSegmenter.Segment(context.Background(), nil, 2, 2, ground)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if mask.W != 2 || mask.H != 2 || len(mask.Bits) != 4 {
		t.Fatalf("unexpected mask shape: %+v", mask)
	}
}

func TestHostedPostJSONWrapsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHostedBundle(srv.URL, nil, nil)
	_, err := h.SceneClassifier.Classify(context.Background(), nil, 1, 1)
	if err == nil || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable wrapped, got %v", err)
	}
}

func TestHostedAuditRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req auditRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.FinalVolumeCY != 4.5 {
			t.Fatalf("final volume = %v, want 4.5", req.FinalVolumeCY)
		}
		json.NewEncoder(w).Encode(auditResponse{Status: "approved", FlagForReview: false})
	}))
	defer srv.Close()

	h := NewHostedBundle(srv.URL, nil, nil)
	status, flag, err := h.Auditor.Audit(context.Background(), nil, 4.5, []string{"sofa"})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if status != "approved" || flag {
		t.Fatalf("status=%q flag=%v, want approved/false", status, flag)
	}
}
