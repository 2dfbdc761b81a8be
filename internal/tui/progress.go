package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// ProgressState tracks acknowledged packets and bytes of one transfer.
type ProgressState struct {
	progress progress.Model
	acked    int
	total    int
	sent     int
	size     int
}

// NewProgressState creates a progress bar for a payload of size bytes.
func NewProgressState(size int) ProgressState {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return ProgressState{
		progress: p,
		size:     size,
	}
}

// Start records the packet total.
func (p *ProgressState) Start(total int) {
	p.total = total
	p.acked = 0
	p.sent = 0
}

// Ack records one acknowledged packet of n bytes.
func (p *ProgressState) Ack(n int) {
	p.acked++
	p.sent += n
}

// SetWidth resizes the bar.
func (p *ProgressState) SetWidth(w int) {
	if w > 60 {
		w = 60
	}
	if w < 10 {
		w = 10
	}
	p.progress.Width = w
}

// Percent returns the acknowledged fraction (0.0 to 1.0).
func (p ProgressState) Percent() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.acked) / float64(p.total)
}

// Counts returns acknowledged packets, the packet total and bytes sent.
func (p ProgressState) Counts() (acked, total, sent int) {
	return p.acked, p.total, p.sent
}

// View renders the progress bar.
func (p ProgressState) View() string {
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	desc := fmt.Sprintf("packet %d/%d  %s of %s",
		p.acked, p.total,
		humanize.Bytes(uint64(p.sent)), humanize.Bytes(uint64(p.size)))
	return p.progress.ViewAs(p.Percent()) + "\n" + descStyle.Render(desc)
}
