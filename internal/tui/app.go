package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vitaminmoo/blexfer/internal/transfer"
)

// Run shows the transfer until it ends or the user cancels it, and returns
// the transfer result.
func Run(title string, size int, events <-chan transfer.Event, cancel func()) error {
	m := NewModel(title, size, events, cancel)
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}

	return final.(Model).Err()
}
