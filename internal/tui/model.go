package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/vitaminmoo/blexfer/internal/transfer"
)

// eventMsg carries one session event into the program.
type eventMsg transfer.Event

// eventsClosedMsg signals the event channel was closed.
type eventsClosedMsg struct{}

// waitForEvent reads the next event.
func waitForEvent(events <-chan transfer.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Model is the Bubbletea model of a running transfer.
type Model struct {
	title   string
	events  <-chan transfer.Event
	cancel  func()
	started time.Time

	progress ProgressState
	status   string
	retries  int
	timeouts int

	finished  bool
	cancelled bool
	err       error

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// NewModel creates a model for a payload of size bytes. cancel is called once
// when the user aborts.
func NewModel(title string, size int, events <-chan transfer.Event, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		title:    title,
		events:   events,
		cancel:   cancel,
		started:  time.Now(),
		progress: NewProgressState(size),
		status:   "Starting...",
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		styles:   DefaultStyles(),
	}
}

// Err returns the failure reported by the session, transfer.ErrCancelled if
// the user aborted, or nil.
func (m Model) Err() error {
	if m.cancelled {
		return transfer.ErrCancelled
	}
	return m.err
}

// Init starts reading events and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.spinner.Tick)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			if !m.finished {
				m.cancelled = true
				m.status = "Cancelled"
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.progress.SetWidth(msg.Width - 8)
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(transfer.Event(msg))
		if m.finished {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.finished = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(ev transfer.Event) {
	switch ev.Kind {
	case transfer.EventStarted:
		m.progress.Start(ev.Total)
		m.status = fmt.Sprintf("Sending %d packets", ev.Total)
	case transfer.EventProgress:
		m.progress.Ack(len(ev.Data))
		m.status = "Sending"
	case transfer.EventTimeout:
		m.timeouts++
	case transfer.EventPacketFailedAndRetry, transfer.EventTimeoutAndRetry, transfer.EventWrongNotifyAndRetry:
		m.retries++
		m.status = fmt.Sprintf("Packet %d/%d: %s (try %d)", ev.Index+1, ev.Total, ev.Kind, ev.Try)
	case transfer.EventFinished:
		m.status = "Done"
	case transfer.EventStartFailed:
		m.err = ev.Err
	case transfer.EventPacketFailed, transfer.EventDataSendFailed, transfer.EventWrongNotify:
		m.err = fmt.Errorf("packet %d/%d: %s", ev.Index+1, ev.Total, ev.Kind)
	}
	if ev.Kind.Terminal() {
		m.finished = true
	}
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.progress.View())
	b.WriteString("\n\n")

	acked, _, sent := m.progress.Counts()
	elapsed := time.Since(m.started)
	b.WriteString(m.row("Elapsed", elapsed.Truncate(time.Millisecond).String()))
	if secs := elapsed.Seconds(); secs > 0 && acked > 0 {
		b.WriteString(m.row("Rate", humanize.Bytes(uint64(float64(sent)/secs))+"/s"))
	}
	b.WriteString(m.row("Retries", fmt.Sprintf("%d (%d timeouts)", m.retries, m.timeouts)))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("Failed: " + m.err.Error()))
	case m.cancelled:
		b.WriteString(m.styles.Warning.Render("Cancelled"))
	case m.finished:
		b.WriteString(m.styles.Success.Render(m.status))
	default:
		b.WriteString(m.spinner.View() + " " + m.styles.Highlight.Render(m.status))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Help.Render(m.help.View(m.keys)))
	return m.styles.App.Render(b.String())
}

func (m Model) row(label, value string) string {
	return m.styles.Label.Render(label) + m.styles.Value.Render(value) + "\n"
}
