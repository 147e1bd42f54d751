// Package imageio turns uploaded image bytes into RGB-ordered Mats and
// persists diagnostic overlays.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded image area
const MaxPixels = 40_000_000

// ErrInvalidImage is returned for bytes that do not decode to a raster image
var ErrInvalidImage = errors.New("invalid image")

// Decode decodes JPEG, PNG, GIF or WebP bytes, applies the EXIF orientation,
// and returns an RGB-ordered CV_8UC3 Mat owned by the caller.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: no data", ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return gocv.NewMat(), fmt.Errorf("%w: %s has no pixels", ErrInvalidImage, format)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return gocv.NewMat(), fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return FromImage(img)
}

// ReadFile decodes the image stored at path
func ReadFile(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to read image: %w", err)
	}
	return Decode(data)
}

// FromImage converts any image.Image to an RGB-ordered CV_8UC3 Mat. Alpha is dropped.
func FromImage(img image.Image) (gocv.Mat, error) {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	rgb := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			rgb = append(rgb, row[x], row[x+1], row[x+2])
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat: %w", err)
	}
	// NewMatFromBytes may share rgb; clone so the Mat owns its pixels
	owned := mat.Clone()
	mat.Close()
	return owned, nil
}
