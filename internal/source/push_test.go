package source

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// fakeStream is a synthetic push-model stream; the test plays the role of
// the OS delivery queue by invoking the registered sink directly.
type fakeStream struct {
	mu            sync.Mutex
	sink          MediaSink
	startErr      error
	stopRequested bool
}

func (s *fakeStream) Start(sink MediaSink) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) RequestStop() {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()
}

func (s *fakeStream) stopWasRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// fakePixelBuffer tracks the lock/unlock discipline around copy-out.
type fakePixelBuffer struct {
	pixels LockedPixels

	mu       sync.Mutex
	locked   bool
	unlocked bool
}

func (b *fakePixelBuffer) Lock() (LockedPixels, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = true
	return b.pixels, nil
}

func (b *fakePixelBuffer) Unlock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unlocked = true
}

func nv12Buffer(width, height int) *fakePixelBuffer {
	y := make([]byte, width*height)
	cbcr := make([]byte, width*height/2)
	for i := range y {
		y[i] = 126
	}
	for i := range cbcr {
		cbcr[i] = 128
	}
	return &fakePixelBuffer{pixels: LockedPixels{
		Format:    frame.PixelFormatNV12,
		Width:     width,
		Height:    height,
		Planes:    [][]byte{y, cbcr},
		Strides:   []int{width, width},
		Timestamp: time.Now(),
	}}
}

type videoCollector struct {
	mu     sync.Mutex
	frames []frame.VideoFrame
}

func (c *videoCollector) deliver(f frame.VideoFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *videoCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestPushAudioConvertsLikePullPath(t *testing.T) {
	stream := &fakeStream{}
	var got chunkCollector

	_, err := NewPush(PushConfig{
		Stream:            stream,
		Channels:          1,
		SampleRate:        48000,
		MinDeliveryFrames: 64,
		OnAudio:           got.deliver,
		OnExit:            func(err error) { t.Errorf("unexpected exit: %v", err) },
		OnStopped:         func() {},
	})
	require.NoError(t, err)

	samples := make(frame.PCMFrame, 2*128)
	for i := 0; i < 128; i++ {
		samples[2*i] = 0.6
		samples[2*i+1] = 0.4
	}
	stream.sink.OnAudio(samples, AudioFormat{SampleRate: 48000, Channels: 2})

	require.Positive(t, got.count())
	for _, chunk := range got.chunks {
		assert.Equal(t, 1, chunk.Channels)
		assert.Equal(t, 48000, chunk.SampleRate)
		for _, v := range chunk.Samples {
			assert.InDelta(t, 0.5, v, 1e-6)
		}
	}
}

func TestPushVideoNV12ToPackedRGBA(t *testing.T) {
	const width, height = 640, 480

	stream := &fakeStream{}
	var got videoCollector

	_, err := NewPush(PushConfig{
		Stream:     stream,
		Channels:   1,
		SampleRate: 48000,
		Video:      &PushVideoParams{Compress: false},
		OnAudio:    func(frame.AudioChunk) {},
		OnVideo:    got.deliver,
		OnExit:     func(err error) { t.Errorf("unexpected exit: %v", err) },
		OnStopped:  func() {},
	})
	require.NoError(t, err)

	buf := nv12Buffer(width, height)
	stream.sink.OnVideo(buf)

	require.Equal(t, 1, got.count())
	f := got.frames[0]
	assert.Equal(t, frame.PixelFormatRGBA, f.Format)
	assert.Equal(t, width, f.Width)
	assert.Equal(t, height, f.Height)
	assert.Equal(t, width*4, f.Stride)
	assert.Len(t, f.Data, width*height*4)

	assert.True(t, buf.locked)
	assert.True(t, buf.unlocked, "OS buffer must be unlocked after copy-out")
}

func TestPushVideoJPEGEncodesTheCopy(t *testing.T) {
	stream := &fakeStream{}
	var got videoCollector

	_, err := NewPush(PushConfig{
		Stream:     stream,
		Channels:   1,
		SampleRate: 48000,
		Video:      &PushVideoParams{Compress: true, JPEGQuality: 85},
		OnAudio:    func(frame.AudioChunk) {},
		OnVideo:    got.deliver,
		OnExit:     func(err error) { t.Errorf("unexpected exit: %v", err) },
		OnStopped:  func() {},
	})
	require.NoError(t, err)

	stream.sink.OnVideo(nv12Buffer(64, 48))

	require.Equal(t, 1, got.count())
	f := got.frames[0]
	assert.Equal(t, frame.PixelFormatJPEG, f.Format)
	require.GreaterOrEqual(t, len(f.Data), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, f.Data[:2], "JPEG SOI marker")
}

func TestPushVideoRepacksPaddedBGRA(t *testing.T) {
	const width, height, stride = 4, 2, 24

	data := make([]byte, height*stride)
	for i := range data {
		data[i] = 0x80
	}

	stream := &fakeStream{}
	var got videoCollector

	_, err := NewPush(PushConfig{
		Stream:     stream,
		Channels:   1,
		SampleRate: 48000,
		Video:      &PushVideoParams{Compress: false},
		OnAudio:    func(frame.AudioChunk) {},
		OnVideo:    got.deliver,
		OnExit:     func(err error) { t.Errorf("unexpected exit: %v", err) },
		OnStopped:  func() {},
	})
	require.NoError(t, err)

	stream.sink.OnVideo(&fakePixelBuffer{pixels: LockedPixels{
		Format:  frame.PixelFormatBGRA,
		Width:   width,
		Height:  height,
		Planes:  [][]byte{data},
		Strides: []int{stride},
	}})

	require.Equal(t, 1, got.count())
	f := got.frames[0]
	assert.Equal(t, width*4, f.Stride)
	assert.Len(t, f.Data, width*height*4)
}

func TestPushDiscardsDeliveriesAfterStop(t *testing.T) {
	stream := &fakeStream{}
	var audio chunkCollector
	var video videoCollector
	stopped := make(chan struct{})

	p, err := NewPush(PushConfig{
		Stream:            stream,
		Channels:          1,
		SampleRate:        48000,
		MinDeliveryFrames: 1,
		Video:             &PushVideoParams{Compress: false},
		OnAudio:           audio.deliver,
		OnVideo:           video.deliver,
		OnExit:            func(err error) { t.Errorf("unexpected exit: %v", err) },
		OnStopped:         func() { close(stopped) },
	})
	require.NoError(t, err)

	p.Stop()
	require.True(t, stream.stopWasRequested())

	// In-flight deliveries racing the stop must vanish without callbacks.
	stream.sink.OnAudio(make(frame.PCMFrame, 64), AudioFormat{SampleRate: 48000, Channels: 1})
	stream.sink.OnVideo(nv12Buffer(8, 8))
	assert.Zero(t, audio.count())
	assert.Zero(t, video.count())

	// The OS confirms teardown at its own pace; that resolves the stop.
	stream.sink.OnStopped(nil)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop completion never resolved")
	}
}

func TestPushUnrequestedStopIsRuntimeFailure(t *testing.T) {
	stream := &fakeStream{}
	exitErr := make(chan error, 1)

	_, err := NewPush(PushConfig{
		Stream:     stream,
		Channels:   1,
		SampleRate: 48000,
		OnAudio:    func(frame.AudioChunk) {},
		OnExit:     func(err error) { exitErr <- err },
		OnStopped:  func() { t.Error("stop completion without a stop request") },
	})
	require.NoError(t, err)

	stream.sink.OnStopped(errors.New("display unplugged"))

	select {
	case err := <-exitErr:
		require.ErrorContains(t, err, "display unplugged")
	case <-time.After(time.Second):
		t.Fatal("exit callback never fired")
	}
}

func TestPushStartFailurePropagates(t *testing.T) {
	stream := &fakeStream{startErr: errors.New("no recording permission")}

	_, err := NewPush(PushConfig{
		Stream:     stream,
		Channels:   1,
		SampleRate: 48000,
		OnAudio:    func(frame.AudioChunk) {},
		OnExit:     func(err error) {},
		OnStopped:  func() {},
	})
	require.ErrorContains(t, err, "no recording permission")
}
