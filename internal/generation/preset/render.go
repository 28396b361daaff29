package preset

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

var edgeKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

// fit crops and scales src to exactly width x height around its center.
func fit(src image.Image, width, height int) *image.NRGBA {
	return imaging.Fill(src, width, height, imaging.Center, imaging.Lanczos)
}

// renderOutline produces black line art on white.
func renderOutline(src image.Image) *image.NRGBA {
	gray := imaging.Grayscale(src)
	gray = imaging.Blur(gray, 0.8)
	edges := imaging.Convolve3x3(gray, edgeKernel, &imaging.ConvolveOptions{Abs: true})
	lines := imaging.Invert(edges)
	return imaging.AdjustContrast(lines, 60)
}

// renderColored produces the filled-in reference rendering.
func renderColored(src image.Image) *image.NRGBA {
	colored := imaging.AdjustSaturation(src, 40)
	return imaging.AdjustContrast(colored, 15)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
