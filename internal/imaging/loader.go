// Package imaging validates and decodes uploaded document images.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Brownie44l1/formtagger-api/internal/apperr"
)

// Bitmap is a decoded upload in canonical form: opaque RGB pixels with the
// origin at (0, 0). It belongs to a single request.
type Bitmap struct {
	Image  *image.RGBA
	Format string
}

func (b *Bitmap) Width() int {
	return b.Image.Bounds().Dx()
}

func (b *Bitmap) Height() int {
	return b.Image.Bounds().Dy()
}

// Decode turns raw upload bytes into a Bitmap. Alpha is dropped and
// grayscale or paletted sources are expanded to three channels. Any decode
// failure is a BadInput error.
func Decode(data []byte) (*Bitmap, error) {
	if len(data) == 0 {
		return nil, apperr.NewBadInput("Empty image upload", nil)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.NewBadInput("Invalid image. Supported: JPEG, PNG", fmt.Errorf("decode image: %w", err))
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, apperr.NewBadInput("Image has no pixels", nil)
	}

	return &Bitmap{Image: toRGB(src), Format: format}, nil
}

func toRGB(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}

	return dst
}
