package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// MaxDimension is the largest width or height kept for stored photos.
const MaxDimension = 2048

// JPEGQuality is used when a JPEG has to be re-encoded.
const JPEGQuality = 85

// Normalize downscales JPEG and PNG photos whose longest side exceeds
// MaxDimension, keeping the original format. Anything else, including
// images already within bounds, is returned untouched with resized=false.
func Normalize(data []byte, contentType string) (out []byte, resized bool, err error) {
	var decode func([]byte) (image.Image, error)
	var encode func(*bytes.Buffer, image.Image) error

	switch contentType {
	case "image/jpeg", "image/jpg":
		decode = func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) }
		encode = func(buf *bytes.Buffer, img image.Image) error {
			return jpeg.Encode(buf, img, &jpeg.Options{Quality: JPEGQuality})
		}
	case "image/png":
		decode = func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }
		encode = func(buf *bytes.Buffer, img image.Image) error { return png.Encode(buf, img) }
	default:
		return data, false, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decoding image config: %w", err)
	}
	if cfg.Width <= MaxDimension && cfg.Height <= MaxDimension {
		return data, false, nil
	}

	img, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, downscale(img, MaxDimension)); err != nil {
		return nil, false, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), true, nil
}

// downscale resizes img so neither side exceeds maxDim, preserving aspect
// ratio with Catmull-Rom interpolation.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
