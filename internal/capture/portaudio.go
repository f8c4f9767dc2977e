//go:build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice records mono 16-bit PCM from the default input device.
type PortAudioDevice struct {
	SampleRate      int
	FramesPerBuffer int
}

// NewPortAudioDevice returns a PortAudio-backed device.
func NewPortAudioDevice(sampleRate int) (Device, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &PortAudioDevice{SampleRate: sampleRate, FramesPerBuffer: 1024}, nil
}

func (d *PortAudioDevice) Acquire(ctx context.Context) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize portaudio: %v", ErrDeviceUnavailable, err)
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	buf := make([]int16, d.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(d.SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}

	t := &portAudioTrack{
		stream:    stream,
		buf:       buf,
		format:    Format{MIME: MIMEPCM, SampleRate: d.SampleRate, Channels: 1},
		fragments: make(chan []byte, 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.read()
	return t, nil
}

type portAudioTrack struct {
	stream    *portaudio.Stream
	buf       []int16
	format    Format
	fragments chan []byte
	stop      chan struct{}
	done      chan struct{}

	once sync.Once
	err  error
}

func (t *portAudioTrack) Format() Format          { return t.format }
func (t *portAudioTrack) Fragments() <-chan []byte { return t.fragments }

func (t *portAudioTrack) read() {
	defer close(t.done)
	defer close(t.fragments)

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		if err := t.stream.Read(); err != nil && err != portaudio.InputOverflowed {
			return
		}

		frag := make([]byte, 2*len(t.buf))
		for i, s := range t.buf {
			binary.LittleEndian.PutUint16(frag[2*i:], uint16(s))
		}

		select {
		case t.fragments <- frag:
		case <-t.stop:
			return
		}
	}
}

func (t *portAudioTrack) Release() error {
	t.once.Do(func() {
		close(t.stop)
		<-t.done
		if err := t.stream.Stop(); err != nil {
			t.err = fmt.Errorf("stop stream: %w", err)
		}
		t.stream.Close()
		portaudio.Terminate()
	})
	return t.err
}
