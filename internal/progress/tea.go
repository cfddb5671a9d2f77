package progress

import (
	"context"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg struct{}
type stopMsg struct{}

type watchTeaModel struct {
	viewFn func() WatchView
	view   WatchView
}

func (m watchTeaModel) Init() tea.Cmd {
	return nil
}

func (m watchTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tea.KeyMsg:
		key := msg.(tea.KeyMsg)
		if key.Type == tea.KeyCtrlC {
			os.Exit(130)
		}
	case tickMsg:
		m.view = m.viewFn()
		return m, nil
	case stopMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m watchTeaModel) View() string {
	return renderWatchTTY(m.view, true)
}

// RenderWatchTea drives the watch view through a full-screen terminal
// program. Used on TTYs when the alt-screen UI is enabled.
func RenderWatchTea(ctx context.Context, w io.Writer, view func() WatchView) func() {
	model := watchTeaModel{viewFn: view, view: view()}
	program := tea.NewProgram(model, tea.WithOutput(w), tea.WithAltScreen())
	go func() {
		_, _ = program.Run()
	}()
	ticker := time.NewTicker(250 * time.Millisecond)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				program.Send(stopMsg{})
				return
			case <-stop:
				program.Send(stopMsg{})
				return
			case <-ticker.C:
				program.Send(tickMsg{})
			}
		}
	}()
	return func() {
		close(stop)
		ticker.Stop()
		program.Send(tickMsg{})
		program.Send(stopMsg{})
	}
}
