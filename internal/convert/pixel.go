package convert

import (
	"fmt"

	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// channelOrder gives the byte offsets of R, G, B, A within one 4-byte pixel
// of a packed format.
var channelOrder = map[frame.PixelFormat][4]int{
	frame.PixelFormatRGBA: {0, 1, 2, 3},
	frame.PixelFormatBGRA: {2, 1, 0, 3},
	frame.PixelFormatARGB: {1, 2, 3, 0},
	frame.PixelFormatABGR: {3, 2, 1, 0},
}

// PackedToRGBA copies a packed 4-byte-per-pixel image into a tightly packed
// RGBA buffer (stride == width*4), reordering channels as needed.
//
// srcStride may exceed width*4 (row padding is dropped). A source row shorter
// than width*4 should not occur under correct OS behavior; it is clamped by
// zero-filling the missing tail rather than failing the session.
func PackedToRGBA(src []byte, width, height, srcStride int, format frame.PixelFormat) ([]byte, error) {
	order, ok := channelOrder[format]
	if !ok {
		return nil, fmt.Errorf("not a packed pixel format: %q", format)
	}

	dstStride := width * 4
	dst := make([]byte, height*dstStride)
	for row := 0; row < height; row++ {
		srcOff := row * srcStride
		dstOff := row * dstStride

		avail := len(src) - srcOff
		if avail > dstStride {
			avail = dstStride
		}
		if avail < 0 {
			avail = 0
		}
		// Whole pixels only; a ragged tail is left zeroed.
		avail -= avail % 4

		for px := 0; px < avail; px += 4 {
			s := src[srcOff+px : srcOff+px+4 : srcOff+px+4]
			d := dst[dstOff+px : dstOff+px+4 : dstOff+px+4]
			d[0] = s[order[0]]
			d[1] = s[order[1]]
			d[2] = s[order[2]]
			d[3] = s[order[3]]
		}
	}
	return dst, nil
}

// NV12ToRGBA converts a biplanar 4:2:0 YUV image (full-resolution luma plane,
// half-resolution interleaved CbCr plane) to tightly packed RGBA using the
// BT.601 video-range matrix.
//
// The conversion is one-way: chroma was subsampled by the producer and cannot
// be recovered. Width and height are treated as even (4:2:0 chroma siting);
// out-of-range coefficients are clamped to [0, 255]. Alpha is set opaque.
func NV12ToRGBA(yPlane, cbcrPlane []byte, width, height, yStride, cbcrStride int) []byte {
	dstStride := width * 4
	dst := make([]byte, height*dstStride)

	for row := 0; row < height; row++ {
		yOff := row * yStride
		cOff := (row / 2) * cbcrStride
		dOff := row * dstStride

		for col := 0; col < width; col++ {
			var y byte
			if idx := yOff + col; idx < len(yPlane) {
				y = yPlane[idx]
			}
			var cb, cr byte = 128, 128
			if idx := cOff + (col/2)*2; idx+1 < len(cbcrPlane) {
				cb = cbcrPlane[idx]
				cr = cbcrPlane[idx+1]
			}

			c := int(y) - 16
			d := int(cb) - 128
			e := int(cr) - 128

			r := clampByte((298*c + 409*e + 128) >> 8)
			g := clampByte((298*c - 100*d - 208*e + 128) >> 8)
			b := clampByte((298*c + 516*d + 128) >> 8)

			p := dst[dOff+col*4 : dOff+col*4+4 : dOff+col*4+4]
			p[0] = r
			p[1] = g
			p[2] = b
			p[3] = 0xff
		}
	}
	return dst
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
