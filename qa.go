package pileq

import (
	"github.com/samber/lo"
)

// BatchQualityInfo captures batch-level consistency signals across the
// frames that survived ingestion: whether they share a common
// resolution, and whether the same source photo was submitted twice.
// Mirrors the reference library's per-file QualityInfo pass, generalised
// from "beams per ping" to "pixels per frame".
type BatchQualityInfo struct {
	MinMaxWidth       []int
	ConsistentWidth   bool
	DuplicateImageIDs []string
}

// assessBatchQuality inspects the surviving frames for resolution drift
// and duplicate submissions. Duplicate IDs shouldn't occur given
// content-hash image IDs, but a caller resubmitting the exact same file
// twice is a real, observed case worth surfacing rather than silently
// double-counting its volume contribution.
func assessBatchQuality(frames []IngestedFrame) BatchQualityInfo {
	var qa BatchQualityInfo
	if len(frames) == 0 {
		return qa
	}

	widths := make([]int, len(frames))
	ids := make([]string, len(frames))
	for i, f := range frames {
		widths[i] = f.Metadata.Width
		ids[i] = f.Metadata.ImageID
	}

	minW := lo.Min(widths)
	maxW := lo.Max(widths)
	qa.MinMaxWidth = []int{minW, maxW}
	qa.ConsistentWidth = minW == maxW

	seen := lo.Union(ids)
	if len(seen) != len(ids) {
		counts := map[string]int{}
		for _, id := range ids {
			counts[id]++
		}
		for id, n := range counts {
			if n > 1 {
				qa.DuplicateImageIDs = append(qa.DuplicateImageIDs, id)
			}
		}
	}

	return qa
}
