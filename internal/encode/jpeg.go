// Package encode compresses normalized RGBA frames for delivery when a
// session is configured for a compressed image format.
package encode

import (
	"bytes"
	"image"
	"image/jpeg"
)

// Quality tiers, mirroring the numeric qualities used by the platform
// encoders.
const (
	QualityHigh   = 95
	QualityMedium = 85
	QualityLow    = 75
)

// JPEG compresses a tightly packed RGBA buffer (stride == width*4).
//
// The input must be a session-owned copy; the encoder reads it during the
// whole call, so it must not alias an OS pixel buffer.
func JPEG(rgba []byte, width, height, quality int) ([]byte, error) {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
