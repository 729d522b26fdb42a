package pileq

import (
	"math"
	"strings"

	"github.com/junkvolume/pileq/internal/catalog"
)

// buildCalibrationBundle derives the per-frame intrinsics chain from EXIF
// (when present) or a conservative fallback field-of-view assumption,
// then scales base intrinsics down to the model-input resolution.
func buildCalibrationBundle(meta FrameMetadata, exif *ExifData, cat *catalog.Catalog) CalibrationBundle {
	b := CalibrationBundle{
		DecodedRawWidth:       meta.OriginalWidth,
		DecodedRawHeight:      meta.OriginalHeight,
		DecodedOrientedWidth:  meta.OriginalWidth,
		DecodedOrientedHeight: meta.OriginalHeight,
		ModelInputWidth:       meta.Width,
		ModelInputHeight:      meta.Height,
		LensClass:             LensUnknown,
		Confidence:             "HIGH",
	}

	diagPx := math.Hypot(float64(meta.OriginalWidth), float64(meta.OriginalHeight))
	b.CxBase = float64(meta.OriginalWidth) / 2.0
	b.CyBase = float64(meta.OriginalHeight) / 2.0

	if exif == nil || !exif.Present {
		b.FxBase = fallbackFOV60(diagPx)
		b.FyBase = b.FxBase
		b.FallbackFOV60 = true
		b.Confidence = "LOW"
		b.Warnings = append(b.Warnings, "missing_exif_using_fallback_fov")
	} else {
		b.DeviceMake = exif.Make
		b.DeviceModel = exif.Model
		b.LensClass = identifyLens(*exif)
		b.Focal35mm = resolveFocal35mm(*exif, b.DeviceModel, cat)

		zoom, assumed := resolveZoomRatio(*exif)
		b.ZoomRatio = zoom
		b.ZoomAssumed = assumed
		if assumed {
			b.Warnings = append(b.Warnings, "zoom_ratio_assumed_1x")
		}

		if b.Focal35mm > 0 {
			b.FxBase = computeFxDiagonal(b.Focal35mm, diagPx)
			b.FyBase = b.FxBase
		} else {
			b.FxBase = fallbackFOV60(diagPx)
			b.FyBase = b.FxBase
			b.FallbackFOV60 = true
		}

		b.Confidence = computeCalibrationConfidence(b, exif)
	}

	fx, fy, cx, cy := b.ScaleIntrinsics(meta.Width, meta.Height)
	b.Fx, b.Fy, b.Cx, b.Cy = fx, fy, cx, cy

	return b
}

// computeFxDiagonal converts a 35mm-equivalent focal length to pixel
// focal length via the sensor diagonal ratio: a full-frame (36x24mm)
// sensor has a 43.27mm diagonal.
func computeFxDiagonal(focal35mm, diagPx float64) float64 {
	const fullFrameDiagMM = 43.27
	return (focal35mm / fullFrameDiagMM) * diagPx
}

// fallbackFOV60 assumes a conservative 60-degree diagonal field of
// view (fx derived from the image diagonal in pixels) when no
// focal-length signal is available at all.
func fallbackFOV60(diagPx float64) float64 {
	return diagPx / (2.0 * math.Tan(30.0*math.Pi/180.0))
}

// identifyLens runs the ladder: explicit lens-model string match, then
// 35mm-equivalent focal bands, then device-specific raw-focal bands,
// else unknown.
func identifyLens(exif ExifData) LensClass {
	lm := strings.ToLower(exif.LensModel)
	switch {
	case strings.Contains(lm, "ultra wide") || strings.Contains(lm, "0.5x"):
		return LensUltraWide
	case strings.Contains(lm, "telephoto") || strings.Contains(lm, "tele"):
		return LensTele
	case strings.Contains(lm, "wide") && lm != "":
		return LensMain
	}

	if exif.FocalLength35mm > 0 {
		switch {
		case exif.FocalLength35mm <= 15:
			return LensUltraWide
		case exif.FocalLength35mm <= 40:
			return LensMain
		default:
			return LensTele
		}
	}

	if strings.Contains(strings.ToLower(exif.Make), "apple") && exif.FocalLength > 0 {
		switch {
		case exif.FocalLength < 2.5:
			return LensUltraWide
		case exif.FocalLength <= 6:
			return LensMain
		default:
			return LensTele
		}
	}

	return LensUnknown
}

// resolveFocal35mm prefers the EXIF tag directly; falls back to a
// device crop-factor lookup in the catalog when the tag is absent.
func resolveFocal35mm(exif ExifData, deviceModel string, cat *catalog.Catalog) float64 {
	if exif.FocalLength35mm > 0 {
		return exif.FocalLength35mm
	}
	if exif.FocalLength <= 0 || cat == nil {
		return 0
	}
	cropFactor, ok := cat.DeviceCropFactor(deviceModel)
	if !ok {
		return 0
	}
	return exif.FocalLength * cropFactor
}

// resolveZoomRatio has no real source in EXIF for digital zoom; this
// pipeline anchors on optical 1.0x and flags the assumption so
// downstream confidence scoring can discount it.
func resolveZoomRatio(exif ExifData) (ratio float64, assumed bool) {
	return 1.0, true
}

func computeCalibrationConfidence(b CalibrationBundle, exif *ExifData) string {
	if b.LensClass == LensUnknown {
		return "MEDIUM"
	}
	if exif == nil || exif.Make == "" || exif.Model == "" {
		return "MEDIUM"
	}
	if b.FallbackFOV60 {
		return "LOW"
	}
	return "HIGH"
}
