package app

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jwulff/speakify/internal/capture"
	"github.com/jwulff/speakify/internal/daemon"
	"github.com/jwulff/speakify/internal/recorder"

	tea "github.com/charmbracelet/bubbletea"
)

// byteCounter reports the recording size instead of calling a backend.
type byteCounter struct{}

func (byteCounter) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	return fmt.Sprintf("captured %d bytes of %s", blob.Len(), blob.MIME()), nil
}

// TestLiveTUIFlow records three seconds through a running capture daemon and
// drives the model with the resulting events. Skipped if the daemon isn't
// running.
func TestLiveTUIFlow(t *testing.T) {
	sockPath := daemon.SocketPath()
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		t.Skip("daemon not running")
	}

	rec := recorder.New(
		capture.New(&capture.DaemonDevice{SocketPath: sockPath}),
		byteCounter{},
		recorder.Config{CompleteDelay: 200 * time.Millisecond},
	)
	defer rec.Close()

	m := newTestModel(t, rec)
	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	fmt.Println("=== Initial View ===")
	fmt.Println(m.View())

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	eventCounts := map[recorder.EventKind]int{}
	drain := func(until recorder.State, timeout time.Duration) {
		deadline := time.After(timeout)
		for {
			select {
			case <-deadline:
				return
			case ev := <-rec.Events():
				eventCounts[ev.Kind]++
				if cmd := m.handleEvent(ev); cmd != nil && ev.Kind == recorder.EventTranscribed {
					m, _ = applyUpdate(m, cmd())
				}
				if ev.Kind == recorder.EventState && ev.To == until {
					return
				}
			}
		}
	}

	drain(recorder.State(-1), 3*time.Second)
	fmt.Println("\n=== Recording View ===")
	fmt.Println(m.View())

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	drain(recorder.Idle, 5*time.Second)

	fmt.Println("\n=== Final View ===")
	fmt.Println(m.View())
	fmt.Printf("Ticks: %d, transcripts: %d, failures: %d\n",
		eventCounts[recorder.EventTick], eventCounts[recorder.EventTranscribed], eventCounts[recorder.EventFailed])

	if eventCounts[recorder.EventTranscribed] != 1 {
		t.Errorf("transcripts = %d, want 1", eventCounts[recorder.EventTranscribed])
	}
	if len(m.records) != 1 {
		t.Errorf("records = %d, want 1", len(m.records))
	}
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	newModel, cmd := m.Update(msg)
	return newModel.(Model), cmd
}
