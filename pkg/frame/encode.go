package frame

import (
	"errors"
	"fmt"
	"image"
)

// Top-screen geometry of the device.
const (
	ScreenWidth  = 400
	ScreenHeight = 240

	// BytesPerPixel is the size of one encoded pixel.
	BytesPerPixel = 4

	// Size is the length of an encoded full-screen frame.
	Size = ScreenWidth * ScreenHeight * BytesPerPixel
)

// opaque is written in place of the source alpha channel.
const opaque = 0xFF

// Frame errors.
var (
	ErrInvalidDimensions = errors.New("invalid frame dimensions")
	ErrBufferSize        = errors.New("pixel buffer size mismatch")
)

// Encode converts a dense row-major, top-to-bottom RGBA buffer into the wire
// layout: columns left to right, each column bottom to top, every pixel as
// 0xFF,B,G,R. The output has the same length as pix.
func Encode(pix []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: got %d bytes, want %d for %dx%d",
			ErrBufferSize, len(pix), width*height*BytesPerPixel, width, height)
	}

	out := make([]byte, len(pix))
	i := 0
	for x := 0; x < width; x++ {
		for y := height - 1; y >= 0; y-- {
			off := (y*width + x) * BytesPerPixel
			out[i] = opaque
			out[i+1] = pix[off+2]
			out[i+2] = pix[off+1]
			out[i+3] = pix[off]
			i += BytesPerPixel
		}
	}
	return out, nil
}

// EncodeRGBA encodes an RGBA image of any stride or origin.
func EncodeRGBA(img *image.RGBA) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}

	pix := img.Pix
	if img.Stride != w*BytesPerPixel || len(img.Pix) != w*h*BytesPerPixel {
		pix = make([]byte, 0, w*h*BytesPerPixel)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			start := img.PixOffset(b.Min.X, y)
			pix = append(pix, img.Pix[start:start+w*BytesPerPixel]...)
		}
	}
	return Encode(pix, w, h)
}

// EncodeImage fits src onto the device's top screen and encodes it.
func EncodeImage(src image.Image) ([]byte, error) {
	return EncodeRGBA(Fit(src, ScreenWidth, ScreenHeight))
}
