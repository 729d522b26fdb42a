package pileq

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestJPEGDecoderDecodeRoundTripsDimensions(t *testing.T) {
	raw := encodeTestJPEG(t, 16, 12)
	out, err := JPEGDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Width != 16 || out.Height != 12 {
		t.Fatalf("dims = %dx%d, want 16x12", out.Width, out.Height)
	}
	if len(out.RGB) != 16*12*3 {
		t.Fatalf("RGB buffer len = %d, want %d", len(out.RGB), 16*12*3)
	}
}

func TestJPEGDecoderDecodeRejectsGarbage(t *testing.T) {
	if _, err := (JPEGDecoder{}).Decode([]byte("not a jpeg")); err == nil {
		t.Fatalf("expected an error decoding non-JPEG bytes")
	}
}

func TestJPEGDecoderResizeShrinksProportionally(t *testing.T) {
	raw := encodeTestJPEG(t, 32, 16)
	img, err := JPEGDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resized := JPEGDecoder{}.Resize(img, 16)
	if resized.Width != 16 || resized.Height != 8 {
		t.Fatalf("resized dims = %dx%d, want 16x8", resized.Width, resized.Height)
	}
}

func TestJPEGDecoderResizeNoOpWhenAlreadySmaller(t *testing.T) {
	raw := encodeTestJPEG(t, 8, 8)
	img, err := JPEGDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resized := JPEGDecoder{}.Resize(img, 16)
	if resized.Width != 8 || resized.Height != 8 {
		t.Fatalf("expected no-op resize when already narrower than target, got %dx%d", resized.Width, resized.Height)
	}
}
