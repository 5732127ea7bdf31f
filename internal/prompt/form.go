// Package prompt provides the interactive run configuration form.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/lifelapse/internal/config"
	"github.com/verte-zerg/lifelapse/internal/model"
)

// ErrCancelled is returned when the user leaves the form without confirming.
var ErrCancelled = errors.New("prompt cancelled")

const (
	fieldStart = iota
	fieldEnd
	fieldCamera
	fieldThreads
	fieldBatch
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// Model implements the Bubble Tea run configuration form.
type Model struct {
	cfg       model.RunConfig
	today     time.Time
	inputs    []textinput.Model
	index     int
	errMsg    string
	done      bool
	cancelled bool
}

// NewModel builds a form prefilled from cfg.
func NewModel(cfg model.RunConfig, today time.Time) *Model {
	m := &Model{cfg: cfg, today: today}
	m.inputs = []textinput.Model{
		newInput("Start date (YYYY-MM-DD, or 'all'): "),
		newInput("End date (YYYY-MM-DD): "),
		newInput("Include camera photos (y/n): "),
		newInput(fmt.Sprintf("Threads (%d-%d): ", config.MinThreads, config.MaxThreads)),
		newInput(fmt.Sprintf("Batch size (%d-%d): ", config.MinBatchSize, config.MaxBatchSize)),
	}
	m.setInputsFromConfig()
	m.setIndex(0)
	return m
}

func newInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 32
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	if m.cfg.AllDates {
		m.inputs[fieldStart].SetValue("all")
	} else {
		m.inputs[fieldStart].SetValue(m.cfg.Start.Format(config.DateLayout))
	}
	m.inputs[fieldEnd].SetValue(m.cfg.End.Format(config.DateLayout))
	if m.cfg.IncludeCamera {
		m.inputs[fieldCamera].SetValue("y")
	} else {
		m.inputs[fieldCamera].SetValue("n")
	}
	m.inputs[fieldThreads].SetValue(strconv.Itoa(m.cfg.Threads))
	m.inputs[fieldBatch].SetValue(strconv.Itoa(m.cfg.BatchSize))
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.cancelled = true
		return m, tea.Quit
	case tea.KeyEnter:
		if m.index < len(m.inputs)-1 {
			return m, m.setIndex(m.index + 1)
		}
		cfg, err := Apply(m.cfg, m.values(), m.today)
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.cfg = cfg
		m.done = true
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		return m, m.setIndex(m.index + 1)
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.setIndex(m.index - 1)
	}
	var cmd tea.Cmd
	m.inputs[m.index], cmd = m.inputs[m.index].Update(msg)
	m.errMsg = ""
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.done || m.cancelled {
		return ""
	}
	lines := []string{titleStyle.Render("Composite run"), ""}
	for _, input := range m.inputs {
		lines = append(lines, input.View())
	}
	lines = append(lines, "")
	if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(m.errMsg))
	}
	lines = append(lines, helpStyle.Render("tab/enter next • shift+tab back • enter on last field runs • esc cancels"))
	return strings.Join(lines, "\n") + "\n"
}

func (m *Model) setIndex(idx int) tea.Cmd {
	count := len(m.inputs)
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.index = idx
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == m.index {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) values() []string {
	out := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		out[i] = input.Value()
	}
	return out
}

// Result returns the confirmed configuration.
func (m *Model) Result() (model.RunConfig, error) {
	if !m.done {
		return m.cfg, ErrCancelled
	}
	return m.cfg, nil
}

// Run shows the form and returns the confirmed configuration.
func Run(cfg model.RunConfig) (model.RunConfig, error) {
	m := NewModel(cfg, time.Now())
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return cfg, err
	}
	return m.Result()
}

// Apply parses the form values on top of cfg. Empty values keep the current
// setting. Out-of-range threads and batch sizes are clamped. An end date
// after today is capped to today.
func Apply(cfg model.RunConfig, values []string, today time.Time) (model.RunConfig, error) {
	if len(values) != fieldBatch+1 {
		return cfg, fmt.Errorf("expected %d values, got %d", fieldBatch+1, len(values))
	}
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	switch start := strings.ToLower(values[fieldStart]); start {
	case "":
	case "all":
		cfg.AllDates = true
	default:
		parsed, err := config.ParseDate(start)
		if err != nil {
			return cfg, err
		}
		cfg.Start = parsed
		cfg.AllDates = false
	}
	if values[fieldEnd] != "" {
		parsed, err := config.ParseDate(values[fieldEnd])
		if err != nil {
			return cfg, err
		}
		cfg.End = parsed
	}
	if !today.IsZero() && cfg.End.After(today) {
		cfg.End = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	}
	if !cfg.AllDates && cfg.Start.After(cfg.End) {
		return cfg, fmt.Errorf("start date %s is after end date %s", cfg.Start.Format(config.DateLayout), cfg.End.Format(config.DateLayout))
	}

	switch strings.ToLower(values[fieldCamera]) {
	case "":
	case "y", "yes":
		cfg.IncludeCamera = true
	case "n", "no":
		cfg.IncludeCamera = false
	default:
		return cfg, fmt.Errorf("invalid camera answer %q (use y or n)", values[fieldCamera])
	}

	if values[fieldThreads] != "" {
		n, err := strconv.Atoi(values[fieldThreads])
		if err != nil {
			return cfg, fmt.Errorf("invalid threads value %q (use an integer)", values[fieldThreads])
		}
		cfg.Threads, _ = config.ClampThreads(n)
	}
	if values[fieldBatch] != "" {
		n, err := strconv.Atoi(values[fieldBatch])
		if err != nil {
			return cfg, fmt.Errorf("invalid batch size %q (use an integer)", values[fieldBatch])
		}
		cfg.BatchSize, _ = config.ClampBatchSize(n)
	}
	return cfg, nil
}
