package pileq

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/junkvolume/pileq/internal/catalog"
)

// Stage 1 thresholds, grounded on the reference ingestion stage.
const (
	targetWidth          = 1024
	blurThreshold        = 100.0
	brightnessMin        = 30.0
	brightnessMax        = 225.0
	ingestionScoreReject = 40
)

// DecodedImage is the minimal shape the ingestion stage needs from an
// image decoder: raw RGB8 pixels and orientation-independent dimensions.
// JPEGDecoder (decoder.go) produces this from JPEG bytes.
type DecodedImage struct {
	RGB    []byte
	Width  int
	Height int
	Exif   *ExifData
}

// ExifData is the subset of EXIF tags the pipeline cares about.
type ExifData struct {
	Make            string
	Model           string
	LensModel       string
	FocalLength     float64
	FocalLength35mm float64
	Orientation     int
	CapturedAt      time.Time
	Present         bool
}

// ImageDecoder abstracts away the format sniffing / HEIC-vs-JPEG decode
// path; JPEGDecoder (decoder.go) is the concrete implementation.
type ImageDecoder interface {
	Decode(raw []byte) (DecodedImage, error)
	Resize(img DecodedImage, width int) DecodedImage
}

// RunIngestion decodes and quality-gates each submitted image, matches
// frontend-supplied EXIF to images by content hash (never by list
// position, so callers may submit images and EXIF out of order), and
// builds the per-frame calibration bundle. It never returns an error:
// every image either becomes a frame or a rejected-frame record.
func RunIngestion(dec ImageDecoder, images [][]byte, frontendExif map[string]ExifData, cat *catalog.Catalog) IngestionResult {
	result := IngestionResult{}
	if len(images) == 0 {
		return result
	}

	type scored struct {
		hash string
		meta FrameMetadata
		raw  DecodedImage
		uri  string
	}
	candidates := make([]scored, 0, len(images))

	for _, raw := range images {
		hash := serverSHA256(raw)
		decoded, err := dec.Decode(raw)
		if err != nil {
			candidates = append(candidates, scored{hash: hash, meta: FrameMetadata{
				ImageID: hash, Rejected: true, RejectionReason: fmt.Sprintf("load_error:%s", err),
			}})
			continue
		}

		meta := FrameMetadata{
			ImageID:        hash,
			FileSizeBytes:  int64(len(raw)),
			OriginalWidth:  decoded.Width,
			OriginalHeight: decoded.Height,
			CapturedAt:     time.Now(),
		}

		if fe, ok := frontendExif[hash]; ok {
			meta.ExifPresent = true
			decoded.Exif = &fe
		} else if decoded.Exif != nil && decoded.Exif.Present {
			meta.ExifPresent = true
		}

		blur := calculateBlurScore(decoded)
		brightness := calculateBrightness(decoded)
		meta.BlurScore = blur
		meta.Brightness = brightness
		meta.IngestionScore = calculateIngestionScore(blur, brightness, meta.ExifPresent)

		if meta.IngestionScore < ingestionScoreReject {
			meta.Rejected = true
			meta.RejectionReason = determineRejectionReason(blur, brightness)
			candidates = append(candidates, scored{hash: hash, meta: meta})
			continue
		}

		resized := dec.Resize(decoded, targetWidth)
		meta.Width = resized.Width
		meta.Height = resized.Height
		meta.OrientationApplied = true

		candidates = append(candidates, scored{hash: hash, meta: meta, raw: resized})
	}

	// Content-hash sort for determinism, independent of submission order.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].hash < candidates[j].hash })

	anyExif := false
	for _, c := range candidates {
		if c.meta.Rejected {
			result.RejectedFrames = append(result.RejectedFrames, c.meta)
			continue
		}
		bundle := buildCalibrationBundle(c.meta, c.raw.Exif, cat)
		frame := IngestedFrame{
			Metadata:   c.meta,
			WorkingRGB: c.raw.RGB,
			Bundle:     bundle,
		}
		result.Frames = append(result.Frames, frame)
		if c.meta.ExifPresent {
			anyExif = true
		}
	}

	result.UncalibratedMode = !anyExif
	result.Quality = assessBatchQuality(result.Frames)
	if len(result.Quality.DuplicateImageIDs) > 0 {
		log.Printf("[ingest] duplicate submissions detected: %v", result.Quality.DuplicateImageIDs)
	}
	log.Printf("[ingest] frames=%d rejected=%d uncalibrated=%v", len(result.Frames), len(result.RejectedFrames), result.UncalibratedMode)
	return result
}

func serverSHA256(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

// calculateBlurScore approximates Laplacian-variance blur detection over
// RGB8 pixels by averaging a finite-difference second derivative.
func calculateBlurScore(img DecodedImage) float64 {
	if img.Width < 3 || img.Height < 3 {
		return 0
	}
	gray := toGrayscale(img)
	var sum, sumSq float64
	var n int
	w, h := img.Width, img.Height
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := -4*gray[y*w+x] + gray[(y-1)*w+x] + gray[(y+1)*w+x] + gray[y*w+x-1] + gray[y*w+x+1]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func calculateBrightness(img DecodedImage) float64 {
	gray := toGrayscale(img)
	if len(gray) == 0 {
		return 0
	}
	var sum float64
	for _, v := range gray {
		sum += v
	}
	return sum / float64(len(gray))
}

func toGrayscale(img DecodedImage) []float64 {
	n := img.Width * img.Height
	if len(img.RGB) < n*3 {
		return nil
	}
	gray := make([]float64, n)
	for i := 0; i < n; i++ {
		r := float64(img.RGB[i*3])
		g := float64(img.RGB[i*3+1])
		b := float64(img.RGB[i*3+2])
		gray[i] = 0.299*r + 0.587*g + 0.114*b
	}
	return gray
}

// calculateIngestionScore starts at 100 and deducts for each quality
// signal that fails its gate, floored at 0.
func calculateIngestionScore(blur, brightness float64, exifPresent bool) int {
	score := 100
	if blur < blurThreshold {
		score -= 40
	}
	if brightness < brightnessMin || brightness > brightnessMax {
		score -= 30
	}
	if !exifPresent {
		score -= 20
	}
	if score < 0 {
		score = 0
	}
	return score
}

// determineRejectionReason names the specific signal that failed for a
// frame whose ingestion score fell below ingestionScoreReject. Blur is
// checked first since a blurred photo is unusable regardless of
// exposure; missing EXIF alone never drops a frame below the reject
// threshold, so it falls through to the generic low_quality code.
func determineRejectionReason(blur, brightness float64) string {
	switch {
	case blur < blurThreshold:
		return "too_blurry"
	case brightness < brightnessMin:
		return "too_dark"
	case brightness > brightnessMax:
		return "too_bright"
	default:
		return "low_quality"
	}
}
