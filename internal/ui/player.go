package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/jivecanvas/internal/renderer"
)

// playerInterval is how often the terminal preview refreshes. The canvas
// itself ticks faster; the terminal only samples it.
const playerInterval = time.Second / 15

// Player is the live composition the preview watches.
type Player interface {
	Renderer() *renderer.Renderer
	Position() (pos, duration time.Duration)
	Params() renderer.Params
	SetStyle(tag string)
	AudioError() error
}

type playerTickMsg time.Time

// PlayerModel is the Bubbletea model for the live preview
type PlayerModel struct {
	player      Player
	events      <-chan renderer.TickEvent
	unsubscribe func()
	timeline    progress.Model

	levels    []float64
	seq       uint64
	preview   string
	width     int
	noPreview bool
	frozen    bool
	err       error
}

// NewPlayerModel subscribes to the player's renderer. The subscription is
// released when the model quits.
func NewPlayerModel(p Player, noPreview bool) *PlayerModel {
	events, unsubscribe := p.Renderer().Subscribe(1)
	return &PlayerModel{
		player:      p,
		events:      events,
		unsubscribe: unsubscribe,
		timeline: progress.New(
			progress.WithSolidFill(string(violet)),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		noPreview: noPreview,
	}
}

func playerTick() tea.Cmd {
	return tea.Tick(playerInterval, func(t time.Time) tea.Msg {
		return playerTickMsg(t)
	})
}

// Init starts the refresh ticker
func (m *PlayerModel) Init() tea.Cmd {
	return playerTick()
}

// Update handles messages
func (m *PlayerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.timeline.Width = max(min(msg.Width-30, 50), 10)
		return m, nil

	case playerTickMsg:
		m.refresh()
		return m, playerTick()

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "esc", "ctrl+c":
			m.unsubscribe()
			return m, tea.Quit
		case " ":
			m.toggleFreeze()
		case "1", "2", "3", "4", "5":
			m.player.SetStyle(renderer.Styles[key[0]-'1'].String())
		}
	}

	return m, nil
}

// refresh drains pending ticks and keeps the newest.
func (m *PlayerModel) refresh() {
	m.err = m.player.AudioError()
	for {
		select {
		case ev, ok := <-m.events:
			if !ok {
				return
			}
			m.seq = ev.Seq
			m.levels = levels(ev.Data)
			if !m.noPreview {
				if frame, err := m.player.Renderer().Frame(); err == nil {
					m.preview = RenderPreview(DownsampleFrame(frame, DefaultPreviewConfig()))
				}
			}
		default:
			return
		}
	}
}

func (m *PlayerModel) toggleFreeze() {
	r := m.player.Renderer()
	switch {
	case m.frozen:
		r.Start()
		m.frozen = false
	case r.Running():
		r.Stop()
		m.frozen = true
	}
}

// View renders the UI
func (m *PlayerModel) View() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(violet).Render("Jivecanvas"))
	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Foreground(lavender).Render("Live Preview"))
	s.WriteString("\n\n")

	current := m.player.Params().Style
	for i, style := range renderer.Styles {
		item := fmt.Sprintf("%d %s", i+1, style)
		if style == current {
			s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lilac).Background(violet).Padding(0, 1).Render(item))
		} else {
			s.WriteString(lipgloss.NewStyle().Foreground(slate).Padding(0, 1).Render(item))
		}
	}
	s.WriteString("\n\n")

	pos, dur := m.player.Position()
	ratio := 0.0
	if dur > 0 {
		ratio = float64(pos) / float64(dur)
	}
	s.WriteString(m.timeline.ViewAs(ratio))
	s.WriteString(fmt.Sprintf("  %s / %s", formatClock(pos), formatClock(dur)))
	if m.frozen {
		s.WriteString(lipgloss.NewStyle().Foreground(lavender).Render("  frozen"))
	}
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(rose).Render(m.err.Error()))
		s.WriteString("\n")
	}

	if len(m.levels) > 0 {
		s.WriteString("\n")
		width := 64
		if m.width > 10 {
			width = min(m.width-10, 64)
		}
		s.WriteString(renderSpectrum(m.levels, width))
		s.WriteString("\n")
	}

	if m.preview != "" {
		s.WriteString("\n")
		s.WriteString(m.preview)
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Faint(true).Render("1-5 style  •  space freeze  •  q quit"))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(violet).
		Padding(1, 2).
		Render(s.String())
}
