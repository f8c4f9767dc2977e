// Package recorder drives a single recording session from capture through
// transcription and reports every transition as an Event.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/speakify/internal/capture"
	"github.com/jwulff/speakify/internal/transcribe"
)

// ErrInvalidState is returned by Start while a session is recording or processing.
var ErrInvalidState = capture.ErrInvalidState

// State is the recorder state.
type State int

const (
	Idle State = iota
	Recording
	Processing
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Capturer is a start/stop audio capture. *capture.Capture satisfies it.
type Capturer interface {
	Start(ctx context.Context) error
	Stop() (capture.Blob, error)
}

// Transcriber turns a recording into text. *transcribe.Client satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, blob capture.Blob) (string, error)
}

// EventKind identifies an Event.
type EventKind int

const (
	// EventState reports a transition From -> To.
	EventState EventKind = iota
	// EventTick reports the elapsed counter while recording.
	EventTick
	// EventTranscribed carries the transcript of a finished session.
	EventTranscribed
	// EventFailed carries the error that aborted a session.
	EventFailed
)

// Event is delivered on Controller.Events.
type Event struct {
	Kind      EventKind
	SessionID string
	From, To  State

	// Elapsed is the number of ticks since recording began.
	Elapsed int

	// Set on EventTranscribed.
	Text     string
	Filename string
	Duration int

	// Set on EventFailed.
	Err error
}

// Config tunes a Controller. Zero values take the defaults.
type Config struct {
	CompleteDelay time.Duration
	TickInterval  time.Duration
	EventBuffer   int
	Logger        *slog.Logger
}

const (
	DefaultCompleteDelay = 2 * time.Second
	DefaultTickInterval  = time.Second
	defaultEventBuffer   = 64
)

// Controller owns at most one recording session at a time.
type Controller struct {
	capture     Capturer
	transcriber Transcriber
	cfg         Config
	logger      *slog.Logger
	events      chan Event

	mu        sync.Mutex
	state     State
	sessionID string
	elapsed   int
	stopTick  chan struct{}
	revert    *time.Timer
	gen       uint64
	closed    bool

	wg sync.WaitGroup
}

// New returns an Idle controller.
func New(c Capturer, t Transcriber, cfg Config) *Controller {
	if cfg.CompleteDelay <= 0 {
		cfg.CompleteDelay = DefaultCompleteDelay
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		capture:     c,
		transcriber: t,
		cfg:         cfg,
		logger:      logger,
		events:      make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the event stream. State, transcript and failure events
// are never dropped, so the stream must be drained; ticks are dropped when
// the buffer is full.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed returns the elapsed ticks of the current or last session.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// SessionID returns the ID of the current or last session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start begins a session. It is valid from Idle and from Complete, which is
// left early. On capture failure the controller stays Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrInvalidState
	}
	switch c.state {
	case Recording, Processing:
		return ErrInvalidState
	case Complete:
		c.cancelRevertLocked()
		c.transitionLocked(Idle)
	}

	if err := c.capture.Start(ctx); err != nil {
		c.logger.Warn("start recording failed", "error", err)
		return fmt.Errorf("start recording: %w", err)
	}

	c.sessionID = uuid.NewString()
	c.elapsed = 0
	c.stopTick = make(chan struct{})
	c.transitionLocked(Recording)
	c.logger.Info("recording started", "session_id", c.sessionID)

	c.wg.Add(1)
	go c.tick(c.stopTick, c.sessionID)
	return nil
}

// Stop ends the recording and hands the audio to the transcriber in the
// background. Outside Recording it does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return nil
	}
	c.stopTickLocked()
	c.transitionLocked(Processing)

	blob, err := c.capture.Stop()
	if err != nil {
		c.failLocked(fmt.Errorf("stop recording: %w", err))
		return err
	}

	session, duration := c.sessionID, c.elapsed
	c.logger.Info("recording stopped", "session_id", session,
		"bytes", blob.Len(), "duration", duration, "digest", blob.Digest())

	c.wg.Add(1)
	go c.process(session, blob, duration)
	return nil
}

// Toggle starts when Idle or Complete and stops when Recording. It is
// ignored while Processing.
func (c *Controller) Toggle(ctx context.Context) error {
	switch c.State() {
	case Recording:
		return c.Stop(ctx)
	case Processing:
		return nil
	default:
		return c.Start(ctx)
	}
}

// Wait blocks until background work for finished sessions has drained.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close abandons any recording in progress and cancels pending timers.
// An in-flight transcription is not cancelled; its result is discarded.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancelRevertLocked()

	if c.state == Recording {
		c.stopTickLocked()
		_, err := c.capture.Stop()
		c.transitionLocked(Idle)
		if err != nil {
			c.logger.Warn("discard recording failed", "session_id", c.sessionID, "error", err)
			return fmt.Errorf("discard recording: %w", err)
		}
	}
	return nil
}

func (c *Controller) tick(stop <-chan struct{}, session string) {
	defer c.wg.Done()

	t := time.NewTicker(c.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.state != Recording || c.sessionID != session {
				c.mu.Unlock()
				return
			}
			c.elapsed++
			ev := Event{Kind: EventTick, SessionID: session, From: Recording, To: Recording, Elapsed: c.elapsed}
			select {
			case c.events <- ev:
			default:
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) process(session string, blob capture.Blob, duration int) {
	defer c.wg.Done()

	// detached from the caller; bounded by the transcriber's own timeout
	text, err := c.transcriber.Transcribe(context.Background(), blob)
	if err == nil && text == "" {
		err = &transcribe.FailedError{Reason: "empty transcript"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sessionID != session || c.state != Processing {
		c.logger.Debug("discarding stale transcription", "session_id", session)
		return
	}
	if err != nil {
		c.failLocked(fmt.Errorf("transcribe: %w", err))
		return
	}

	c.emitLocked(Event{
		Kind:     EventTranscribed,
		Text:     text,
		Filename: blob.Filename(),
		Duration: duration,
	})
	c.transitionLocked(Complete)
	c.logger.Info("transcription complete", "session_id", session, "chars", len(text))

	c.gen++
	gen := c.gen
	c.revert = time.AfterFunc(c.cfg.CompleteDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen && c.state == Complete {
			c.revert = nil
			c.transitionLocked(Idle)
		}
	})
}

func (c *Controller) failLocked(err error) {
	c.logger.Error("recording failed", "session_id", c.sessionID, "state", c.state.String(), "error", err)
	c.emitLocked(Event{Kind: EventFailed, Err: err})
	c.transitionLocked(Failed)
	c.transitionLocked(Idle)
}

func (c *Controller) stopTickLocked() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *Controller) cancelRevertLocked() {
	c.gen++
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
}

func (c *Controller) transitionLocked(to State) {
	from := c.state
	c.state = to
	c.emitLocked(Event{Kind: EventState, From: from, To: to, Elapsed: c.elapsed})
}

func (c *Controller) emitLocked(ev Event) {
	ev.SessionID = c.sessionID
	c.events <- ev
}

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
