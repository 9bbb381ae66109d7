// Package mask renders inpainting masks: white where the editor may paint,
// black elsewhere.
package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"

	"github.com/playperu/hiddencatch/internal/geometry"
)

const (
	// BlurSigma softens the rectangle corners before re-binarizing.
	BlurSigma = 5.0
	// ThresholdLevel keeps pixels brighter than 100 after the blur.
	ThresholdLevel = 101
)

// Render draws one white rectangle per region on a black width x height
// canvas, blurs it and thresholds it back to pure black and white.
func Render(width, height int, regions []geometry.Rect) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask size %dx%d", width, height)
	}
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	white := image.NewUniform(color.Gray{Y: 255})
	for _, r := range regions {
		px := pixelRect(r).Intersect(canvas.Bounds())
		if px.Empty() {
			continue
		}
		draw.Draw(canvas, px, white, image.Point{}, draw.Src)
	}

	blurred := imaging.Blur(canvas, BlurSigma)
	return segment.Threshold(blurred, ThresholdLevel), nil
}

// RenderPNG is Render followed by PNG encoding.
func RenderPNG(width, height int, regions []geometry.Rect) ([]byte, error) {
	img, err := Render(width, height, regions)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding mask: %w", err)
	}
	return buf.Bytes(), nil
}

// pixelRect covers every pixel the rect touches.
func pixelRect(r geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())),
		int(math.Ceil(r.Bottom())),
	)
}
