// Package capture turns a platform audio device into bounded start/stop
// recording sessions that each yield one immutable audio Blob.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPermissionDenied indicates the platform refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable indicates there is no usable capture device.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrInvalidState indicates a session operation that is not allowed in the current state.
	ErrInvalidState = errors.New("invalid session state")
)

// Device is the platform capture primitive.
type Device interface {
	// Acquire opens the device and begins delivering fragments.
	Acquire(ctx context.Context) (Track, error)
}

// Track is one acquired device stream.
type Track interface {
	// Format describes the bytes delivered on Fragments.
	Format() Format

	// Fragments delivers captured data in arrival order. The channel is
	// closed once the track is released or the device ends the stream.
	Fragments() <-chan []byte

	// Release stops the stream and frees the device. It must be safe to
	// call more than once.
	Release() error
}

// Capture runs one recording session at a time on a Device.
type Capture struct {
	device Device

	mu     sync.Mutex
	track  Track
	result chan [][]byte
}

// New returns a Capture bound to device.
func New(device Device) *Capture {
	return &Capture{device: device}
}

// Active reports whether a session is in progress.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track != nil
}

// Start acquires the device and begins collecting fragments.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.track != nil {
		return fmt.Errorf("start capture: %w", ErrInvalidState)
	}

	track, err := c.device.Acquire(ctx)
	if err != nil {
		if track != nil {
			track.Release()
		}
		return fmt.Errorf("acquire device: %w", err)
	}

	result := make(chan [][]byte, 1)
	go collect(track.Fragments(), result)

	c.track = track
	c.result = result
	return nil
}

// collect drains fragments until the track closes them.
func collect(fragments <-chan []byte, result chan<- [][]byte) {
	var chunks [][]byte
	for f := range fragments {
		if len(f) == 0 {
			continue
		}
		chunks = append(chunks, f)
	}
	result <- chunks
}

// Stop releases the device and returns the session's audio. Stop without a
// matching Start is a no-op and returns a zero Blob.
func (c *Capture) Stop() (Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.track == nil {
		return Blob{}, nil
	}

	track, result := c.track, c.result
	c.track, c.result = nil, nil

	releaseErr := track.Release()
	chunks := <-result

	blob, err := assemble(track.Format(), chunks)
	if err != nil {
		return Blob{}, fmt.Errorf("assemble recording: %w", err)
	}
	if releaseErr != nil {
		return blob, fmt.Errorf("release device: %w", releaseErr)
	}
	return blob, nil
}

func assemble(format Format, chunks [][]byte) (Blob, error) {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}

	if format.IsPCM() {
		wav, err := encodeWAV(data, format.SampleRate, format.Channels)
		if err != nil {
			return Blob{}, err
		}
		return Blob{
			data:   wav,
			format: Format{MIME: MIMEWAV, SampleRate: format.SampleRate, Channels: format.Channels},
		}, nil
	}

	if format.MIME == "" {
		format.MIME = MIMEWebM
	}
	return Blob{data: data, format: format}, nil
}
