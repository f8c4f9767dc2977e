package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jwulff/speakify/internal/capture"
	"github.com/jwulff/speakify/internal/db"
	"github.com/jwulff/speakify/internal/history"
	"github.com/jwulff/speakify/internal/transcribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapturer struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	data     []byte
	started  int
	stopped  int
}

func (f *fakeCapturer) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeCapturer) Stop() (capture.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	if f.stopErr != nil {
		return capture.Blob{}, f.stopErr
	}
	return capture.NewBlob(f.data, capture.Format{MIME: capture.MIMEWebM}), nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	block chan struct{}
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if string(blob.Bytes()) == "bad audio" {
		return "", &transcribe.FailedError{Reason: "unsupported audio"}
	}
	return f.text, f.err
}

// countingStore counts Create calls on the wrapped store.
type countingStore struct {
	history.Store
	mu      sync.Mutex
	creates int
}

func (s *countingStore) Create(ctx context.Context, ownerID string, rec history.NewRecord) (history.Record, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.Store.Create(ctx, ownerID, rec)
}

func (s *countingStore) createCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// persistOnTranscribed records a new history entry for every Transcribed event.
func persistOnTranscribed(t *testing.T, list *history.List) func(Event) {
	return func(ev Event) {
		if ev.Kind != EventTranscribed {
			return
		}
		_, err := list.RecordNew(context.Background(), "owner-1", history.NewRecord{
			Text:            ev.Text,
			Filename:        ev.Filename,
			DurationSeconds: ev.Duration,
			Language:        "en",
		})
		require.NoError(t, err)
	}
}

func testConfig() Config {
	return Config{CompleteDelay: 30 * time.Millisecond, TickInterval: time.Hour}
}

// nextEvent reads one event or fails after a second.
func nextEvent(t *testing.T, c *Controller) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event (state %s)", c.State())
		return Event{}
	}
}

// statesUntil collects transition targets until want is reached, calling
// onEvent for every event seen.
func statesUntil(t *testing.T, c *Controller, want State, onEvent func(Event)) []State {
	t.Helper()
	var states []State
	for {
		ev := nextEvent(t, c)
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Kind != EventState {
			continue
		}
		states = append(states, ev.To)
		if ev.To == want {
			return states
		}
	}
}

func TestSuccessfulSessionPersistsOnce(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	list := history.NewList(store, nil)

	capt := &fakeCapturer{data: []byte("speech")}
	tr := &fakeTranscriber{text: "hello"}
	c := New(capt, tr, testConfig())

	require.NoError(t, c.Start(ctx))
	require.Equal(t, Recording, c.State())
	require.NoError(t, c.Stop(ctx))

	var transcribed []Event
	states := statesUntil(t, c, Complete, func(ev Event) {
		if ev.Kind == EventTranscribed {
			transcribed = append(transcribed, ev)
			_, err := list.RecordNew(ctx, "owner-1", history.NewRecord{
				Text:            ev.Text,
				Filename:        ev.Filename,
				DurationSeconds: ev.Duration,
				Language:        "en",
			})
			require.NoError(t, err)
		}
	})
	assert.Equal(t, []State{Recording, Processing, Complete}, states)

	// Complete reverts on its own
	assert.Equal(t, []State{Idle}, statesUntil(t, c, Idle, nil))

	require.Len(t, transcribed, 1)
	assert.Equal(t, "hello", transcribed[0].Text)
	assert.Equal(t, "recording.webm", transcribed[0].Filename)

	require.NoError(t, list.Load(ctx, "owner-1"))
	records := list.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Text)
	assert.Equal(t, "owner-1", records[0].OwnerID)
	assert.Equal(t, 1, tr.calls)
}

func TestTranscriptionFailureReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	sqlStore, err := db.Open(":memory:")
	require.NoError(t, err)
	defer sqlStore.Close()
	store := &countingStore{Store: sqlStore}
	persist := persistOnTranscribed(t, history.NewList(store, nil))

	capt := &fakeCapturer{data: []byte("bad audio")}
	tr := &fakeTranscriber{text: "never"}
	c := New(capt, tr, testConfig())

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))

	var failures []error
	var transcripts int
	states := statesUntil(t, c, Idle, func(ev Event) {
		persist(ev)
		switch ev.Kind {
		case EventFailed:
			failures = append(failures, ev.Err)
		case EventTranscribed:
			transcripts++
		}
	})

	assert.Equal(t, []State{Recording, Processing, Failed, Idle}, states)
	require.Len(t, failures, 1)
	var fe *transcribe.FailedError
	assert.ErrorAs(t, failures[0], &fe)
	assert.Zero(t, transcripts)
	assert.Zero(t, store.createCalls())
	assert.Equal(t, Idle, c.State())
}

func TestEmptyTranscriptIsFailure(t *testing.T) {
	ctx := context.Background()
	c := New(&fakeCapturer{data: []byte("x")}, &fakeTranscriber{}, testConfig())

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))

	var failed error
	statesUntil(t, c, Idle, func(ev Event) {
		if ev.Kind == EventFailed {
			failed = ev.Err
		}
	})
	var fe *transcribe.FailedError
	require.ErrorAs(t, failed, &fe)
	assert.Equal(t, "empty transcript", fe.Reason)
}

func TestNetworkFailure(t *testing.T) {
	ctx := context.Background()
	c := New(&fakeCapturer{data: []byte("x")}, &fakeTranscriber{err: transcribe.ErrNetwork}, testConfig())

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))

	var failed error
	statesUntil(t, c, Idle, func(ev Event) {
		if ev.Kind == EventFailed {
			failed = ev.Err
		}
	})
	assert.ErrorIs(t, failed, transcribe.ErrNetwork)
}

func TestStartRejectedWhileRecording(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{}
	c := New(capt, &fakeTranscriber{text: "hi"}, testConfig())

	require.NoError(t, c.Start(ctx))
	session := c.SessionID()

	err := c.Start(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, Recording, c.State())
	assert.Equal(t, session, c.SessionID())
	assert.Equal(t, 1, capt.started)
}

func TestStartRejectedWhileProcessing(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTranscriber{text: "hi", block: make(chan struct{})}
	c := New(&fakeCapturer{}, tr, testConfig())

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.Equal(t, Processing, c.State())

	assert.ErrorIs(t, c.Start(ctx), ErrInvalidState)
	assert.NoError(t, c.Toggle(ctx), "toggle is ignored while processing")
	assert.Equal(t, Processing, c.State())

	close(tr.block)
	statesUntil(t, c, Complete, nil)
	c.Wait()
	assert.Equal(t, 1, tr.calls)
}

func TestStartFailureStaysIdle(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{startErr: capture.ErrPermissionDenied}
	c := New(capt, &fakeTranscriber{}, testConfig())

	err := c.Start(ctx)
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)
	assert.Equal(t, Idle, c.State())

	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestCaptureStopFailure(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{stopErr: capture.ErrDeviceUnavailable}
	tr := &fakeTranscriber{text: "x"}
	c := New(capt, tr, testConfig())

	require.NoError(t, c.Start(ctx))
	assert.ErrorIs(t, c.Stop(ctx), capture.ErrDeviceUnavailable)

	states := statesUntil(t, c, Idle, nil)
	assert.Equal(t, []State{Recording, Processing, Failed, Idle}, states)
	assert.Zero(t, tr.calls)
}

func TestStopOutsideRecordingIsNoop(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{}
	c := New(capt, &fakeTranscriber{}, testConfig())

	assert.NoError(t, c.Stop(ctx))
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, capt.stopped)
}

func TestStartFromCompleteSkipsRevert(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.CompleteDelay = time.Hour
	c := New(&fakeCapturer{}, &fakeTranscriber{text: "one"}, cfg)

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	statesUntil(t, c, Complete, nil)

	first := c.SessionID()
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []State{Idle, Recording}, statesUntil(t, c, Recording, nil))
	assert.NotEqual(t, first, c.SessionID())
}

func TestElapsedTicksWhileRecording(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TickInterval = 5 * time.Millisecond
	c := New(&fakeCapturer{}, &fakeTranscriber{text: "t"}, cfg)

	require.NoError(t, c.Start(ctx))
	statesUntil(t, c, Recording, nil)

	last := 0
	for last < 3 {
		ev := nextEvent(t, c)
		require.Equal(t, EventTick, ev.Kind)
		assert.Greater(t, ev.Elapsed, last)
		last = ev.Elapsed
	}

	require.NoError(t, c.Stop(ctx))
	stopped := c.Elapsed()
	assert.GreaterOrEqual(t, stopped, 3)

	var transcribed Event
	statesUntil(t, c, Idle, func(ev Event) {
		if ev.Kind == EventTick {
			assert.LessOrEqual(t, ev.Elapsed, stopped, "ticks after stop")
		}
		if ev.Kind == EventTranscribed {
			transcribed = ev
		}
	})
	assert.Equal(t, stopped, transcribed.Duration)
	assert.Equal(t, stopped, c.Elapsed())

	// a new session starts from zero
	require.NoError(t, c.Start(ctx))
	for {
		ev := nextEvent(t, c)
		if ev.Kind == EventTick {
			assert.Equal(t, 1, ev.Elapsed)
			break
		}
	}
	require.NoError(t, c.Close())
}

func TestCloseDiscardsRecording(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{}
	tr := &fakeTranscriber{}
	c := New(capt, tr, testConfig())

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Close())
	c.Wait()

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1, capt.stopped)
	assert.Zero(t, tr.calls)
	assert.ErrorIs(t, c.Start(ctx), ErrInvalidState)
}

func TestCloseWithCaptureStopFailureReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{}
	c := New(capt, &fakeTranscriber{}, testConfig())

	require.NoError(t, c.Start(ctx))
	capt.mu.Lock()
	capt.stopErr = errors.New("device busy")
	capt.mu.Unlock()

	err := c.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.Equal(t, Idle, c.State())

	assert.NotPanics(t, func() {
		assert.NoError(t, c.Stop(ctx))
		assert.ErrorIs(t, c.Toggle(ctx), ErrInvalidState)
	})
	c.Wait()
	assert.Equal(t, 1, capt.stopped)
}

func TestEventsCarrySessionID(t *testing.T) {
	ctx := context.Background()
	c := New(&fakeCapturer{}, &fakeTranscriber{text: "x"}, testConfig())

	require.NoError(t, c.Start(ctx))
	ev := nextEvent(t, c)
	assert.Equal(t, EventState, ev.Kind)
	assert.Equal(t, Idle, ev.From)
	assert.Equal(t, Recording, ev.To)
	assert.NotEmpty(t, ev.SessionID)
	assert.Equal(t, c.SessionID(), ev.SessionID)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{65, "1:05"},
		{600, "10:00"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.in); got != tt.want {
			t.Errorf("FormatElapsed(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "processing", Processing.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.True(t, errors.Is(ErrInvalidState, capture.ErrInvalidState))
}
