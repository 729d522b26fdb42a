package pileq

import (
	"sort"
	"testing"
)

func TestAssessBatchQualityConsistentWidths(t *testing.T) {
	frames := []IngestedFrame{
		{Metadata: FrameMetadata{ImageID: "a", Width: 1024}},
		{Metadata: FrameMetadata{ImageID: "b", Width: 1024}},
	}
	qa := assessBatchQuality(frames)
	if !qa.ConsistentWidth {
		t.Fatalf("expected consistent width across frames of equal width")
	}
	if len(qa.DuplicateImageIDs) != 0 {
		t.Fatalf("expected no duplicates, got %v", qa.DuplicateImageIDs)
	}
}

func TestAssessBatchQualityDetectsDuplicateSubmissions(t *testing.T) {
	frames := []IngestedFrame{
		{Metadata: FrameMetadata{ImageID: "a", Width: 900}},
		{Metadata: FrameMetadata{ImageID: "a", Width: 900}},
		{Metadata: FrameMetadata{ImageID: "b", Width: 1200}},
	}
	qa := assessBatchQuality(frames)
	if qa.ConsistentWidth {
		t.Fatalf("expected inconsistent width between 900 and 1200")
	}
	if len(qa.DuplicateImageIDs) != 1 || qa.DuplicateImageIDs[0] != "a" {
		t.Fatalf("expected duplicate [a], got %v", qa.DuplicateImageIDs)
	}
	sort.Ints(qa.MinMaxWidth)
	if qa.MinMaxWidth[0] != 900 || qa.MinMaxWidth[1] != 1200 {
		t.Fatalf("MinMaxWidth = %v, want [900 1200]", qa.MinMaxWidth)
	}
}

func TestAssessBatchQualityEmpty(t *testing.T) {
	qa := assessBatchQuality(nil)
	if qa.ConsistentWidth {
		t.Fatalf("expected zero-value ConsistentWidth for an empty batch")
	}
	if len(qa.DuplicateImageIDs) != 0 {
		t.Fatalf("expected no duplicates for an empty batch")
	}
}
