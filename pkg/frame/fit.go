package frame

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Placement computes where src of size sw x sh lands inside a w x h target:
// scaled by min(w/sw, h/sh), rounded, and centered.
func Placement(sw, sh, w, h int) image.Rectangle {
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	ratio := math.Min(float64(w)/float64(sw), float64(h)/float64(sh))
	dw := int(math.Round(float64(sw) * ratio))
	dh := int(math.Round(float64(sh) * ratio))
	x := int(math.Round(float64(w-dw) / 2))
	y := int(math.Round(float64(h-dh) / 2))
	return image.Rect(x, y, x+dw, y+dh)
}

// Fit returns a w x h RGBA canvas cleared to transparent with src scaled in
// to fit, preserving aspect ratio and centered.
func Fit(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	sb := src.Bounds()
	target := Placement(sb.Dx(), sb.Dy(), w, h)
	if target.Empty() {
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, target, src, sb, draw.Over, nil)
	return dst
}

// Decode reads an image in any registered format (PNG, JPEG, GIF, BMP, WebP).
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// Load decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadFrame loads the image at path and encodes it as a full-screen frame.
func LoadFrame(path string) ([]byte, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return EncodeImage(img)
}
