// Package ui provides the live dashboard for a conversion run: worker
// progress bars, checkpoint prompts, and the final summary, driven by
// coordinator snapshots.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/bookvox/internal/coordinator"
	"github.com/dgnsrekt/bookvox/internal/dashboard"
)

const defaultPollInterval = 500 * time.Millisecond

// Config contains TUI-specific configuration.
type Config struct {
	EnableMouse  bool          `env:"BOOKVOX_ENABLE_MOUSE"`
	PollInterval time.Duration `env:"BOOKVOX_POLL_INTERVAL"`
}

// NewProgram returns a new Tea program observing the coordinator.
// cancel is invoked when the operator quits mid-run.
func NewProgram(cfg Config, coord *coordinator.Coordinator, done <-chan RunResult, cancel context.CancelFunc) *tea.Program {
	log.Debug("starting dashboard", "poll", cfg.PollInterval)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	m := newModel(cfg, coord, done, cancel)
	return tea.NewProgram(m, opts...)
}

// RunResult carries the coordinator's outcome into the UI.
type RunResult struct {
	Summary coordinator.Summary
	Err     error
}

type tickMsg time.Time

type runDoneMsg RunResult

type model struct {
	cfg    Config
	coord  *coordinator.Coordinator
	done   <-chan RunResult
	cancel context.CancelFunc

	spinner  spinner.Model
	snapshot coordinator.Snapshot
	result   *RunResult
	quitting bool
	width    int
	height   int
}

func newModel(cfg Config, coord *coordinator.Coordinator, done <-chan RunResult, cancel context.CancelFunc) model {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return model{
		cfg:     cfg,
		coord:   coord,
		done:    done,
		cancel:  cancel,
		spinner: sp,
		width:   80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick(), m.waitForDone())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.cfg.PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return runDoneMsg(<-m.done)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.snapshot = m.coord.Snapshot()
		return m, m.tick()

	case runDoneMsg:
		result := RunResult(msg)
		m.result = &result
		m.snapshot = m.coord.Snapshot()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.quitting = true
		if m.cancel != nil {
			m.cancel()
		}
		if m.result != nil {
			return m, tea.Quit
		}
		// Wait for the coordinator to wind down; runDoneMsg quits.
		return m, nil

	case "a":
		if n := m.coord.ConfirmAllCheckpoints(); n > 0 {
			log.Debug("confirmed all checkpoints", "released", n)
		}
		m.snapshot = m.coord.Snapshot()
		return m, nil

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		id := int(key[0] - '0')
		if m.coord.ConfirmCheckpoint(id) {
			log.Debug("checkpoint confirmed", "worker", id)
		}
		m.snapshot = m.coord.Snapshot()
		return m, nil
	}

	return m, nil
}

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

func (m model) View() string {
	if m.result != nil {
		return dashboard.RenderSummary(m.result.Summary)
	}

	view := m.spinner.View() + " " + dashboard.Render(m.snapshot, m.width)

	if m.quitting {
		view += helpStyle.Render("\nstopping workers, progress is saved...")
	} else {
		view += helpStyle.Render("\n1-9 confirm checkpoint · a confirm all · q quit")
	}
	return view
}
