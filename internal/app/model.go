package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/beeep"
	"github.com/jwulff/speakify/internal/history"
	"github.com/jwulff/speakify/internal/identity"
	"github.com/jwulff/speakify/internal/recorder"
	"github.com/jwulff/speakify/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusHistory PanelFocus = iota
	FocusTranscript
)

const (
	statusIdle       = "Press Space to record"
	statusRecording  = "Listening..."
	statusProcessing = "Processing..."
	statusComplete   = "Transcription complete"
)

// Deps are the collaborators the TUI drives.
type Deps struct {
	Recorder  *recorder.Controller
	History   *history.List
	Identity  identity.Provider
	Language  string
	ExportDir string
	Notify    bool
	Logger    *slog.Logger
}

// Model is the root bubbletea model for the speakify TUI.
type Model struct {
	recorder  *recorder.Controller
	history   *history.List
	identity  identity.Provider
	language  string
	exportDir string
	notify    bool
	logger    *slog.Logger

	copyFn   func(string) error
	notifyFn func(title, message string) error

	// Recording state, mirrored from recorder events
	state     recorder.State
	elapsed   int
	sessionID string

	// Current transcript
	transcript       string
	transcriptScroll int

	// History
	records       []history.Record
	selected      int
	historyLoaded bool

	// UI state
	focusedPanel PanelFocus
	width        int
	height       int

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	statusText string
	noticeText string
}

// New creates a Model with default state.
func New(d Deps) Model {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	language := d.Language
	if language == "" {
		language = "en"
	}
	return Model{
		recorder:     d.Recorder,
		history:      d.History,
		identity:     d.Identity,
		language:     language,
		exportDir:    d.ExportDir,
		notify:       d.Notify,
		logger:       logger,
		copyFn:       clipboard.WriteAll,
		notifyFn:     func(title, message string) error { return beeep.Notify(title, message, "") },
		statusText:   statusIdle,
		focusedPanel: FocusTranscript,
	}
}

// Init starts reading recorder events and loads the history.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.recorder != nil {
		cmds = append(cmds, readEventCmd(m.recorder))
	}
	if owner, ok := m.owner(); ok && m.history != nil {
		cmds = append(cmds, loadHistoryCmd(m.history, owner))
	}
	return tea.Batch(cmds...)
}

func (m Model) owner() (string, bool) {
	if m.identity == nil {
		return "", false
	}
	s, ok := m.identity.Current()
	if !ok || s.OwnerID == "" {
		return "", false
	}
	return s.OwnerID, true
}

// readEventCmd waits for the next recorder event.
func readEventCmd(rec *recorder.Controller) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-rec.Events()
		if !ok {
			return nil
		}
		return RecorderEventMsg{Event: ev}
	}
}

// toggleCmd starts or stops the recording.
func toggleCmd(rec *recorder.Controller) tea.Cmd {
	return func() tea.Msg {
		if err := rec.Toggle(context.Background()); err != nil {
			return RecorderErrorMsg{Err: err}
		}
		return nil
	}
}

func loadHistoryCmd(list *history.List, owner string) tea.Cmd {
	return func() tea.Msg {
		if err := list.Load(context.Background(), owner); err != nil {
			return HistoryLoadedMsg{Err: err}
		}
		return HistoryLoadedMsg{Records: list.Records()}
	}
}

func recordNewCmd(list *history.List, owner string, rec history.NewRecord) tea.Cmd {
	return func() tea.Msg {
		created, err := list.RecordNew(context.Background(), owner, rec)
		return RecordSavedMsg{Record: created, Err: err}
	}
}

func removeCmd(list *history.List, owner string, id int64) tea.Cmd {
	return func() tea.Msg {
		err := list.Remove(context.Background(), owner, id)
		return RecordRemovedMsg{ID: id, Err: err}
	}
}

func copyCmd(copyFn func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return CopiedMsg{Err: copyFn(text)}
	}
}

func exportCmd(dir, text string) tea.Cmd {
	return func() tea.Msg {
		path, err := ExportTranscript(dir, text)
		return ExportedMsg{Path: path, Err: err}
	}
}

func notifyCmd(notifyFn func(title, message string) error, logger *slog.Logger, text string) tea.Cmd {
	return func() tea.Msg {
		if err := notifyFn("Transcription complete", truncateRunes(text, 120)); err != nil {
			logger.Debug("desktop notification failed", "error", err)
		}
		return nil
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

func clearNoticeCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case RecorderEventMsg:
		cmd := m.handleEvent(msg.Event)
		if m.recorder == nil {
			return m, cmd
		}
		return m, tea.Batch(cmd, readEventCmd(m.recorder))

	case RecorderErrorMsg:
		cmd := m.setError(msg.Err, true)
		return m, cmd

	case HistoryLoadedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, true)
			return m, cmd
		}
		m.records = msg.Records
		m.historyLoaded = true
		m.clampSelection()
		return m, nil

	case RecordSavedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, true)
			return m, cmd
		}
		if m.history != nil {
			m.records = m.history.Records()
		}
		m.clampSelection()
		return m, nil

	case RecordRemovedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, true)
			return m, cmd
		}
		if m.history != nil {
			m.records = m.history.Records()
		}
		m.clampSelection()
		cmd := m.setNotice("Transcript deleted")
		return m, cmd

	case CopiedMsg:
		if msg.Err != nil {
			cmd := m.setError(fmt.Errorf("copy transcript: %w", msg.Err), true)
			return m, cmd
		}
		cmd := m.setNotice("Copied to clipboard")
		return m, cmd

	case ExportedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, true)
			return m, cmd
		}
		cmd := m.setNotice("Saved " + msg.Path)
		return m, cmd

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil

	case ClearNoticeMsg:
		m.noticeText = ""
		return m, nil
	}

	return m, nil
}

// handleEvent processes a recorder event and returns any resulting command.
func (m *Model) handleEvent(ev recorder.Event) tea.Cmd {
	if ev.SessionID != "" {
		m.sessionID = ev.SessionID
	}

	switch ev.Kind {
	case recorder.EventState:
		m.state = ev.To
		switch ev.To {
		case recorder.Idle:
			m.statusText = statusIdle
		case recorder.Recording:
			m.elapsed = 0
			m.statusText = statusRecording
		case recorder.Processing:
			m.statusText = statusProcessing
		case recorder.Complete:
			m.statusText = statusComplete
		}

	case recorder.EventTick:
		m.elapsed = ev.Elapsed

	case recorder.EventTranscribed:
		m.transcript = ev.Text
		m.transcriptScroll = 0

		owner, ok := m.owner()
		if !ok || m.history == nil {
			return m.setError(identity.ErrNoSession, false)
		}
		save := recordNewCmd(m.history, owner, history.NewRecord{
			Text:            ev.Text,
			Filename:        ev.Filename,
			DurationSeconds: ev.Duration,
			Language:        m.language,
		})
		if m.notify {
			return tea.Batch(save, notifyCmd(m.notifyFn, m.logger, ev.Text))
		}
		return save

	case recorder.EventFailed:
		return m.setError(ev.Err, true)
	}

	return nil
}

func (m *Model) setError(err error, transient bool) tea.Cmd {
	m.logger.Warn("tui error", "session_id", m.sessionID, "error", err)
	m.errorMessage = err.Error()
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd()
	}
	return nil
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeText = text
	return clearNoticeCmd()
}

func (m *Model) clampSelection() {
	if m.selected >= len(m.records) {
		m.selected = max(0, len(m.records)-1)
	}
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeySpace:
		if m.recorder == nil || m.state == recorder.Processing {
			return m, nil
		}
		if _, ok := m.owner(); !ok {
			cmd := m.setError(identity.ErrNoSession, false)
			return m, cmd
		}
		return m, toggleCmd(m.recorder)

	case KeyTab:
		if m.focusedPanel == FocusHistory {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusHistory
		}
		return m, nil

	case KeyJ, KeyDown:
		if m.focusedPanel == FocusHistory {
			if m.selected < len(m.records)-1 {
				m.selected++
			}
		} else if m.transcriptScroll < m.maxTranscriptScroll() {
			m.transcriptScroll++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.focusedPanel == FocusHistory {
			if m.selected > 0 {
				m.selected--
			}
		} else if m.transcriptScroll > 0 {
			m.transcriptScroll--
		}
		return m, nil

	case KeyEnter:
		if m.focusedPanel == FocusHistory && m.selected < len(m.records) {
			m.transcript = m.records[m.selected].Text
			m.transcriptScroll = 0
			m.focusedPanel = FocusTranscript
		}
		return m, nil

	case KeyDelete:
		if m.focusedPanel != FocusHistory || m.selected >= len(m.records) || m.history == nil {
			return m, nil
		}
		owner, ok := m.owner()
		if !ok {
			cmd := m.setError(identity.ErrNoSession, false)
			return m, cmd
		}
		return m, removeCmd(m.history, owner, m.records[m.selected].ID)

	case KeyReload:
		owner, ok := m.owner()
		if !ok || m.history == nil {
			cmd := m.setError(identity.ErrNoSession, false)
			return m, cmd
		}
		return m, loadHistoryCmd(m.history, owner)

	case KeyCopy:
		if m.transcript == "" {
			return m, nil
		}
		return m, copyCmd(m.copyFn, m.transcript)

	case KeySave:
		if m.transcript == "" {
			return m, nil
		}
		return m, exportCmd(m.exportDir, m.transcript)

	case KeyClear:
		m.transcript = ""
		m.transcriptScroll = 0
		return m, nil
	}

	return m, nil
}

func (m Model) maxTranscriptScroll() int {
	total := len(wrapText(m.transcript, max(10, m.transcriptPanelWidth()-4)))
	visible := m.contentHeight() - 1
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// header, status, two dividers, error, notice, footer
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) historyPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(24, m.width*35/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.historyPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	if m.noticeText != "" {
		sections = append(sections, ui.NoticeStyle.Render(m.noticeText))
	}

	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("SPEAKIFY")
	if owner, ok := m.owner(); ok {
		return title + ui.DimStyle.Render(" — "+owner)
	}
	return title + ui.DimStyle.Render(" — not signed in")
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.state {
	case recorder.Recording:
		dot = ui.RecordingDotStyle.Render("● REC") + " " + ui.TimerStyle.Render(recorder.FormatElapsed(m.elapsed))
	case recorder.Processing:
		dot = ui.ProcessingStyle.Render("⟳ PROCESSING")
	case recorder.Complete:
		dot = ui.CompleteStyle.Render("✓ DONE")
	default:
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}
	return dot + "  " + ui.StatusStyle.Render(m.statusText)
}

func (m Model) renderMainContent() string {
	historyW := m.historyPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.contentHeight()

	historyLines := strings.Split(m.renderHistoryPanel(historyW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(transcriptW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")

	var rows []string
	for i := 0; i < contentH; i++ {
		hl := strings.Repeat(" ", historyW)
		if i < len(historyLines) {
			hl = historyLines[i]
		}
		tl := ""
		if i < len(transcriptLines) {
			tl = transcriptLines[i]
		}
		rows = append(rows, hl+divider+tl)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderHistoryPanel(width, height int) string {
	title := fmt.Sprintf("HISTORY (%d)", len(m.records))
	var header string
	if m.focusedPanel == FocusHistory {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header}

	if len(m.records) == 0 {
		if m.historyLoaded {
			lines = append(lines, ui.DimStyle.Render("  No transcripts yet"))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Loading..."))
		}
	} else {
		// keep the selection visible
		visible := height - 1
		start := 0
		if m.selected >= visible {
			start = m.selected - visible + 1
		}
		for i := start; i < len(m.records) && len(lines) < height; i++ {
			r := m.records[i]
			ts := ui.TimestampStyle.Render(r.CreatedAt.Local().Format("Jan 2 15:04"))
			text := truncateRunes(strings.Join(strings.Fields(r.Text), " "), max(5, width-16))
			var line string
			if i == m.selected && m.focusedPanel == FocusHistory {
				line = ui.SelectedStyle.Render("> ") + ts + " " + ui.SelectedStyle.Render(text)
			} else {
				line = "  " + ts + " " + text
			}
			lines = append(lines, line)
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var header string
	if m.focusedPanel == FocusTranscript {
		header = ui.PanelTitleActiveStyle.Render("TRANSCRIPT")
	} else {
		header = ui.PanelTitleStyle.Render("TRANSCRIPT")
	}
	lines := []string{header}

	switch {
	case m.transcript != "":
		wrapped := wrapText(m.transcript, max(10, width-4))
		start := min(m.transcriptScroll, len(wrapped))
		end := min(start+height-1, len(wrapped))
		for _, wl := range wrapped[start:end] {
			lines = append(lines, "  "+wl)
		}
	case m.state == recorder.Recording:
		lines = append(lines, "", ui.DimStyle.Render("  Listening... press Space to stop"))
	case m.state == recorder.Processing:
		lines = append(lines, "", ui.DimStyle.Render("  Transcribing your recording..."))
	default:
		lines = append(lines, "", ui.DimStyle.Render("  Press Space to start recording"))
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	key := ui.KeyHint
	hasText := m.transcript != ""
	recordLabel := "Record"
	if m.state == recorder.Recording {
		recordLabel = "Stop"
	}

	parts := []string{
		key("Space", recordLabel, m.state != recorder.Processing),
		key("c", "Copy", hasText),
		key("s", "Save", hasText),
		key("x", "Clear", hasText),
		key("Tab", "Focus", true),
		key("j/k", "Nav", true),
		key("Enter", "Open", m.focusedPanel == FocusHistory && len(m.records) > 0),
		key("d", "Delete", m.focusedPanel == FocusHistory && len(m.records) > 0),
		key("r", "Reload", true),
		key("q", "Quit", true),
	}
	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateRunes(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
