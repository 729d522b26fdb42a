package pileq

import "testing"

func TestIdentifyLensFromLensModelString(t *testing.T) {
	cases := []struct {
		lensModel string
		want      LensClass
	}{
		{"iPhone 15 Pro back ultra wide camera 1.5mm f/2.2", LensUltraWide},
		{"iPhone 15 Pro back telephoto camera 9mm f/2.8", LensTele},
		{"iPhone 15 Pro back wide camera 6.86mm f/1.78", LensMain},
	}
	for _, c := range cases {
		got := identifyLens(ExifData{LensModel: c.lensModel})
		if got != c.want {
			t.Errorf("identifyLens(%q) = %v, want %v", c.lensModel, got, c.want)
		}
	}
}

func TestIdentifyLensFrom35mmBands(t *testing.T) {
	cases := []struct {
		focal35 float64
		want    LensClass
	}{
		{13, LensUltraWide},
		{26, LensMain},
		{77, LensTele},
	}
	for _, c := range cases {
		got := identifyLens(ExifData{FocalLength35mm: c.focal35})
		if got != c.want {
			t.Errorf("identifyLens(35mm=%v) = %v, want %v", c.focal35, got, c.want)
		}
	}
}

func TestIdentifyLensFallsBackToUnknown(t *testing.T) {
	got := identifyLens(ExifData{})
	if got != LensUnknown {
		t.Fatalf("identifyLens(empty) = %v, want unknown", got)
	}
}

func TestBuildCalibrationBundleMissingExifUsesFallback(t *testing.T) {
	meta := FrameMetadata{OriginalWidth: 4000, OriginalHeight: 3000, Width: 1024, Height: 768}
	b := buildCalibrationBundle(meta, nil, nil)

	if !b.FallbackFOV60 {
		t.Fatalf("expected fallback FOV when EXIF is absent")
	}
	if b.Confidence != "LOW" {
		t.Fatalf("confidence = %q, want LOW", b.Confidence)
	}
	if b.Fx <= 0 {
		t.Fatalf("expected a positive scaled fx, got %v", b.Fx)
	}
}

func TestBuildCalibrationBundleWithExifIsHighConfidence(t *testing.T) {
	meta := FrameMetadata{OriginalWidth: 4000, OriginalHeight: 3000, Width: 1024, Height: 768}
	exif := &ExifData{
		Present: true, Make: "Apple", Model: "iPhone 15 Pro",
		LensModel: "iPhone 15 Pro back wide camera", FocalLength35mm: 26,
	}
	b := buildCalibrationBundle(meta, exif, nil)

	if b.FallbackFOV60 {
		t.Fatalf("did not expect fallback FOV when EXIF focal length is present")
	}
	if b.Confidence != "HIGH" {
		t.Fatalf("confidence = %q, want HIGH", b.Confidence)
	}
	if b.LensClass != LensMain {
		t.Fatalf("lens class = %v, want main", b.LensClass)
	}
}

func TestResolveFocal35mmPrefersExifTag(t *testing.T) {
	got := resolveFocal35mm(ExifData{FocalLength35mm: 28}, "iPhone 15", nil)
	if got != 28 {
		t.Fatalf("resolveFocal35mm = %v, want 28 (EXIF tag preferred over catalog)", got)
	}
}

func TestResolveFocal35mmWithoutCatalogOrTagReturnsZero(t *testing.T) {
	got := resolveFocal35mm(ExifData{FocalLength: 4.25}, "iPhone 15", nil)
	if got != 0 {
		t.Fatalf("resolveFocal35mm = %v, want 0 when no catalog is available", got)
	}
}
