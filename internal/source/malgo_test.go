package source

import (
	"encoding/binary"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples []float32) []byte {
	buf := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func TestEndpointRingOverrunDropsNewestBytes(t *testing.T) {
	e := &malgoEndpoint{
		kind:   EndpointLoopback,
		logger: slog.Default(),
		notify: make(chan struct{}, 1),
		raw:    make([]byte, endpointPacketSize),
		ring:   ringbuffer.New(64),
		format: AudioFormat{SampleRate: 48000, Channels: 1},
	}

	kept := make([]float32, 16) // 64 bytes, fills the ring exactly
	for i := range kept {
		kept[i] = float32(i) / 16
	}
	e.ingest(pcmBytes(kept))
	assert.Zero(t, e.dropped.Load())

	// The ring is full; this delivery cannot block the OS thread, so its
	// bytes are dropped and accounted.
	e.ingest(pcmBytes(make([]float32, 16)))
	assert.Equal(t, uint64(64), e.dropped.Load())

	ready, err := e.WaitPacket(10 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready)

	// The oldest samples survive an overrun.
	got, frames, err := e.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, 16, frames)
	for i := range kept {
		assert.Equal(t, kept[i], got[i], "sample %d", i)
	}

	// Draining to empty reports the loss and resets the counter.
	_, frames, err = e.ReadPacket()
	require.NoError(t, err)
	assert.Zero(t, frames)
	assert.Zero(t, e.dropped.Load())
}
