package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jwulff/speakify/internal/daemon"
)

// DefaultDrainTimeout bounds how long Release waits for trailing audio
// events after the daemon acknowledged stop.
const DefaultDrainTimeout = 2 * time.Second

// DaemonDevice captures through the local capture daemon. It holds two
// connections per session: one for commands, one for the event stream.
type DaemonDevice struct {
	SocketPath   string
	Device       string
	SampleRate   int
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Acquire subscribes to audio events and asks the daemon to start recording.
func (d *DaemonDevice) Acquire(ctx context.Context) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmdClient, err := daemon.Dial(ctx, d.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	evClient, err := daemon.Dial(ctx, d.SocketPath)
	if err != nil {
		cmdClient.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	// Subscribe before starting so no fragment is missed.
	if err := evClient.Subscribe(ctx, "audio", "status", "error"); err != nil {
		cmdClient.Close()
		evClient.Close()
		return nil, mapDaemonError(err)
	}

	resp, err := cmdClient.Do(ctx, daemon.Command{Cmd: "start", Device: d.Device, SampleRate: d.SampleRate})
	if err != nil {
		cmdClient.Close()
		evClient.Close()
		return nil, mapDaemonError(err)
	}

	format := Format{MIME: resp.Format, SampleRate: resp.SampleRate, Channels: resp.Channels}
	if format.MIME == "" {
		format.MIME = MIMEWebM
	}

	drain := d.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}

	t := &daemonTrack{
		cmd:        cmdClient,
		ev:         evClient,
		format:     format,
		drain:      drain,
		logger:     logger.With("daemon_session", resp.SessionID),
		fragments:  make(chan []byte, 64),
		readerDone: make(chan struct{}),
	}
	go t.read()
	return t, nil
}

type daemonTrack struct {
	cmd    *daemon.Client
	ev     *daemon.Client
	format Format
	drain  time.Duration
	logger *slog.Logger

	fragments  chan []byte
	readerDone chan struct{}

	once       sync.Once
	releaseErr error

	// set by read before readerDone closes
	streamErr error
}

func (t *daemonTrack) Format() Format          { return t.format }
func (t *daemonTrack) Fragments() <-chan []byte { return t.fragments }

// read forwards audio events until the daemon reports recording stopped or
// the event connection closes.
func (t *daemonTrack) read() {
	defer close(t.readerDone)
	defer close(t.fragments)

	for {
		ev, err := t.ev.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Warn("capture daemon stream broken", "error", err)
				t.streamErr = err
			}
			return
		}
		switch ev.Event {
		case "audio":
			t.fragments <- ev.Data
		case "status":
			if ev.Recording != nil && !*ev.Recording {
				return
			}
		case "error":
			t.logger.Warn("capture daemon error", "code", ev.Code, "message", ev.Message)
		}
	}
}

func (t *daemonTrack) Release() error {
	t.once.Do(func() {
		if _, err := t.cmd.Do(context.Background(), daemon.Command{Cmd: "stop"}); err != nil {
			t.releaseErr = err
		}

		select {
		case <-t.readerDone:
		case <-time.After(t.drain):
			t.logger.Warn("capture daemon did not end the stream; closing", "timeout", t.drain)
		}

		t.ev.Close()
		<-t.readerDone
		t.cmd.Close()

		if t.releaseErr == nil && t.streamErr != nil {
			t.releaseErr = fmt.Errorf("audio stream: %w", t.streamErr)
		}
	})
	return t.releaseErr
}

func mapDaemonError(err error) error {
	var ce *daemon.CommandError
	if !errors.As(err, &ce) {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	switch ce.Code {
	case daemon.CodePermissionDenied:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, ce.Message)
	case daemon.CodeAlreadyRecording:
		return fmt.Errorf("%w: %s", ErrInvalidState, ce.Message)
	default:
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, ce.Message)
	}
}
