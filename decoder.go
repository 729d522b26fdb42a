package pileq

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// JPEGDecoder is the default ImageDecoder: it decodes JPEG bytes (HEIC
// inputs are expected to already have been transcoded upstream of this
// package, matching the reference pipeline's exiftool-based format
// sniffing living entirely in the ingestion boundary, not the pixel
// decode path) and resizes with a high-quality Catmull-Rom kernel.
type JPEGDecoder struct{}

func (JPEGDecoder) Decode(raw []byte) (DecodedImage, error) {
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return DecodedImage{}, err
	}
	return DecodedImage{RGB: toRGB(img), Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}, nil
}

func (JPEGDecoder) Resize(img DecodedImage, targetWidth int) DecodedImage {
	if img.Width <= targetWidth {
		return img
	}
	targetHeight := img.Height * targetWidth / img.Width

	src := rgbToImage(img)
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return DecodedImage{RGB: rgbaToRGB(dst), Width: targetWidth, Height: targetHeight, Exif: img.Exif}
}

func toRGB(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, b.Dx()*b.Dy()*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[i] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return out
}

func rgbToImage(img DecodedImage) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := (y*img.Width + x) * 3
			if i+2 >= len(img.RGB) {
				continue
			}
			o := out.PixOffset(x, y)
			out.Pix[o] = img.RGB[i]
			out.Pix[o+1] = img.RGB[i+1]
			out.Pix[o+2] = img.RGB[i+2]
			out.Pix[o+3] = 255
		}
	}
	return out
}

func rgbaToRGB(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, b.Dx()*b.Dy()*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			o := img.PixOffset(x, y)
			out[i] = img.Pix[o]
			out[i+1] = img.Pix[o+1]
			out[i+2] = img.Pix[o+2]
			i += 3
		}
	}
	return out
}
