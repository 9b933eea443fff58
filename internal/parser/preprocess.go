package parser

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// PreprocessForOCR applies blur, 2x upscale, grayscale and Otsu thresholding
// to the image at src and writes the binary result to dst.
func PreprocessForOCR(src, dst string, sigma float64) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	if err := imaging.Save(Binarize(img, sigma), dst); err != nil {
		return fmt.Errorf("failed to save %s: %w", dst, err)
	}
	return nil
}

// Binarize returns a black and white version of img ready for OCR
func Binarize(img image.Image, sigma float64) *image.Gray {
	if sigma > 0 {
		img = imaging.Blur(img, sigma)
	}
	b := img.Bounds()
	gray := imaging.Grayscale(imaging.Resize(img, b.Dx()*2, b.Dy()*2, imaging.Lanczos))

	bounds := gray.Bounds()
	var hist [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.Pix[gray.PixOffset(x, y)]]++
		}
	}
	threshold := OtsuThreshold(hist)

	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.Pix[gray.PixOffset(x, y)] > threshold {
				out.Pix[out.PixOffset(x, y)] = 255
			}
		}
	}
	return out
}

// OtsuThreshold picks the level that maximises the between-class variance of hist.
// Values above the threshold are foreground.
func OtsuThreshold(hist [256]int) uint8 {
	total := 0
	var sum float64
	for level, count := range hist {
		total += count
		sum += float64(level * count)
	}
	if total == 0 {
		return 127
	}

	var (
		sumBackground float64
		weightBack    int
		best          float64
		threshold     int
	)
	for level := 0; level < 256; level++ {
		weightBack += hist[level]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBackground += float64(level * hist[level])
		meanBack := sumBackground / float64(weightBack)
		meanFore := (sum - sumBackground) / float64(weightFore)
		between := float64(weightBack) * float64(weightFore) * (meanBack - meanFore) * (meanBack - meanFore)
		if between > best {
			best = between
			threshold = level
		}
	}
	return uint8(threshold)
}
