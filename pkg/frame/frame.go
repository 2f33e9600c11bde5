package frame

import "time"

// A single run of interleaved float32 PCM samples.
//
// The interpretation of a PCMFrame (channel count, sample rate) is carried
// alongside it, either by an AudioChunk or by the device properties of
// whatever produced it.
type PCMFrame []float32

// One finished audio delivery: interleaved float32 samples together with the
// format they are in.
//
// AudioChunks are transient. They are valid only for the duration of the
// callback they are delivered to; a consumer that needs the samples for
// longer must copy them out.
type AudioChunk struct {
	Channels   int
	SampleRate int
	Frames     int
	Samples    PCMFrame
}

// PixelFormat tags the memory layout of a video frame's pixel data.
type PixelFormat string

const (
	// Packed 8-bit formats, four bytes per pixel, named in memory order.
	PixelFormatBGRA PixelFormat = "bgra"
	PixelFormatRGBA PixelFormat = "rgba"
	PixelFormatARGB PixelFormat = "argb"
	PixelFormatABGR PixelFormat = "abgr"

	// Biplanar 4:2:0 YUV: a full-resolution luma plane followed by a
	// half-resolution interleaved CbCr plane. Frames in this format are
	// converted to PixelFormatRGBA before delivery; the conversion is
	// one-way, subsampled chroma cannot be recovered.
	PixelFormatNV12 PixelFormat = "nv12"

	// JPEG-compressed frame data. Width, height and stride describe the
	// decoded image, the byte payload is the compressed stream.
	PixelFormatJPEG PixelFormat = "jpeg"
)

// Packed reports whether the format stores whole pixels in consecutive
// bytes (as opposed to planar or compressed layouts).
func (f PixelFormat) Packed() bool {
	switch f {
	case PixelFormatBGRA, PixelFormatRGBA, PixelFormatARGB, PixelFormatABGR:
		return true
	}
	return false
}

// One finished video delivery.
//
// Data is always a session-owned copy, never a pointer into an OS pixel
// buffer, so consumers may retain it. For packed formats Data is tightly
// packed: Stride == Width*4 and len(Data) == Height*Stride.
type VideoFrame struct {
	Data      []byte
	Width     int
	Height    int
	Stride    int
	Format    PixelFormat
	Timestamp time.Time
}
