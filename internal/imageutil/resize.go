package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxDimension is the default maximum width or height after processing
	DefaultMaxDimension = 1920
	// DefaultQuality is the default JPEG quality
	DefaultQuality = 80
	// DefaultThumbnailSize is the default thumbnail bounding box
	DefaultThumbnailSize = 200
	minQuality           = 10
	maxCompressAttempts  = 10
)

// ErrUnsupportedImage is returned when the data is not a decodable image
var ErrUnsupportedImage = errors.New("unsupported image format")

// ProcessConfig holds configuration for the capture pipeline
type ProcessConfig struct {
	MaxDimension int // Maximum width or height
	Quality      int // JPEG quality 1-100
	TargetSizeKB int // 0 disables size targeting
}

// DefaultConfig returns the default capture configuration
func DefaultConfig() *ProcessConfig {
	return &ProcessConfig{
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
	}
}

// Result describes a processed image
type Result struct {
	Data         []byte
	MimeType     string
	Width        int
	Height       int
	OriginalSize int
	Quality      int
}

// Process decodes the image, scales it down to the max dimension and encodes it as JPEG.
// When a target size is set, quality is lowered until the output fits or the floor is reached.
func Process(imageData []byte, config *ProcessConfig) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}
	maxDim := config.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	quality := clampQuality(config.Quality)

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	scaled := scale(img, maxDim)

	data, err := encodeJPEG(scaled, quality)
	if err != nil {
		return nil, err
	}

	if config.TargetSizeKB > 0 {
		target := config.TargetSizeKB * 1024
		for attempt := 0; len(data) > target && quality > minQuality && attempt < maxCompressAttempts; attempt++ {
			ratio := float64(target) / float64(len(data))
			ratio = max(0.1, min(0.9, ratio))
			quality = max(minQuality, int(float64(quality)*ratio))
			if data, err = encodeJPEG(scaled, quality); err != nil {
				return nil, err
			}
		}
	}

	b := scaled.Bounds()
	log.Printf("[imageutil] processed image: %d -> %d bytes (%dx%d, quality %d)",
		len(imageData), len(data), b.Dx(), b.Dy(), quality)

	return &Result{
		Data:         data,
		MimeType:     "image/jpeg",
		Width:        b.Dx(),
		Height:       b.Dy(),
		OriginalSize: len(imageData),
		Quality:      quality,
	}, nil
}

// Thumbnail produces a small JPEG preview bounded by size pixels
func Thumbnail(imageData []byte, size int) (*Result, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return Process(imageData, &ProcessConfig{MaxDimension: size, Quality: 70})
}

// DetectMIME sniffs the MIME type of the data
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsImage reports whether data sniffs as an image
func IsImage(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("image/jpeg") || m.Is("image/png") || m.Is("image/webp") || m.Is("image/gif") {
			return true
		}
	}
	return false
}

// scale resizes img so its larger side is at most maxDim, keeping aspect ratio
func scale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	newWidth, newHeight := width, height
	if width > maxDim || height > maxDim {
		if width > height {
			newWidth = maxDim
			newHeight = max(1, int(float64(height)*float64(maxDim)/float64(width)))
		} else {
			newHeight = maxDim
			newWidth = max(1, int(float64(width)*float64(maxDim)/float64(height)))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	// White background so transparent PNGs don't turn black in JPEG
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	if q <= 0 {
		return DefaultQuality
	}
	return min(100, max(1, q))
}
