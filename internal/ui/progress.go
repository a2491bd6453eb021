package ui

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Phase represents the current processing phase
type Phase int

const (
	PhaseDecoding Phase = iota
	PhaseEncoding
	PhaseComplete
	PhaseFailed
)

// AudioReady signals the audio finished decoding
type AudioReady struct {
	Name       string
	Duration   time.Duration
	SampleRate int
}

// EncodeProgress reports encoding progress. Frame counts are zero when
// ffmpeg loops a still image.
type EncodeProgress struct {
	Percent     int
	Frame       int
	TotalFrames int
	Elapsed     time.Duration
	Levels      []float64
	FrameData   *image.RGBA
}

// EncodeComplete signals the output file is written
type EncodeComplete struct {
	OutputFile  string
	FileSize    int64
	Frames      int
	Duration    time.Duration // Length of the video
	TotalTime   time.Duration // Wall time spent
	EncoderName string
}

// EncodeFailed ends the run with an error
type EncodeFailed struct {
	Err error
}

// progressQuitMsg is sent when it's time to quit after showing completion
type progressQuitMsg struct{}

// Model is the Bubbletea model for export and render runs
type Model struct {
	title       string
	progressBar progress.Model
	phase       Phase

	audio    *AudioReady
	state    EncodeProgress
	complete *EncodeComplete
	err      error

	startTime       time.Time
	encodeStart     time.Time
	width           int
	noPreview       bool
	cachedPreview   string
	cachedFrameNum  int
	completionDelay time.Duration
}

// NewModel creates a progress model headed by title
func NewModel(title string, noPreview bool) *Model {
	// Violet gradient: indigo → lavender
	p := progress.New(
		progress.WithGradient(string(indigo), string(lavender)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &Model{
		title:           title,
		progressBar:     p,
		phase:           PhaseDecoding,
		startTime:       time.Now(),
		cachedFrameNum:  -1,
		completionDelay: 2 * time.Second,
		noPreview:       noPreview,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(min(msg.Width-30, 50), 10)
		return m, nil

	case AudioReady:
		m.audio = &msg
		m.phase = PhaseEncoding
		m.encodeStart = time.Now()
		return m, nil

	case EncodeProgress:
		if m.phase == PhaseDecoding {
			m.phase = PhaseEncoding
			m.encodeStart = time.Now()
		}
		// Percent never moves backwards
		if msg.Percent < m.state.Percent {
			msg.Percent = m.state.Percent
		}
		m.state = msg
		return m, nil

	case EncodeComplete:
		m.complete = &msg
		m.phase = PhaseComplete
		return m, tea.Tick(m.completionDelay, func(time.Time) tea.Msg {
			return progressQuitMsg{}
		})

	case EncodeFailed:
		m.err = msg.Err
		m.phase = PhaseFailed
		return m, tea.Quit

	case progressQuitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete != nil || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

// Phase returns the current phase
func (m *Model) Phase() Phase {
	return m.phase
}

// Err returns the failure reported by EncodeFailed
func (m *Model) Err() error {
	return m.err
}

// View renders the UI
func (m *Model) View() string {
	switch m.phase {
	case PhaseComplete:
		return m.renderComplete()
	case PhaseFailed:
		return ""
	}
	return m.renderProgress()
}

// CompletionSummary returns the completion summary for printing after the
// program exits, or "" if the run did not complete.
func (m *Model) CompletionSummary() string {
	if m.complete == nil {
		return ""
	}
	return m.renderComplete()
}

func (m *Model) renderProgress() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(violet).Render("Jivecanvas"))
	s.WriteString("\n")

	label := m.title + ": Decoding Audio"
	if m.phase == PhaseEncoding {
		label = m.title + ": Encoding Video"
	}
	s.WriteString(lipgloss.NewStyle().Foreground(lavender).Render(label))
	s.WriteString("\n\n")

	faint := lipgloss.NewStyle().Faint(true)
	if m.phase == PhaseDecoding {
		s.WriteString(faint.Render("Reading audio..."))
		s.WriteString("\n")
	} else {
		m.renderEncodeProgress(&s)
	}

	s.WriteString("\n")
	m.renderAudio(&s)

	if len(m.state.Levels) > 0 {
		s.WriteString("\n\n")
		s.WriteString(lipgloss.NewStyle().Foreground(lavender).Render("Live Visualisation:"))
		s.WriteString("\n")
		width := 64
		if m.width > 10 {
			width = min(m.width-10, 64)
		}
		s.WriteString(renderSpectrum(m.state.Levels, width))
	}

	if !m.noPreview {
		if m.state.FrameData != nil && m.state.Frame != m.cachedFrameNum {
			m.cachedPreview = RenderPreview(DownsampleFrame(m.state.FrameData, DefaultPreviewConfig()))
			m.cachedFrameNum = m.state.Frame
		}
		if m.cachedPreview != "" {
			s.WriteString("\n")
			s.WriteString(m.cachedPreview)
		}
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(violet).
		Padding(1, 2).
		Render(s.String())
}

func (m *Model) renderEncodeProgress(s *strings.Builder) {
	percent := float64(m.state.Percent) / 100

	s.WriteString("Progress: ")
	s.WriteString(m.progressBar.ViewAs(percent))
	s.WriteString(fmt.Sprintf("  %d%%", m.state.Percent))
	s.WriteString("\n\n")

	elapsed := m.state.Elapsed
	if elapsed == 0 {
		elapsed = time.Since(m.encodeStart)
	}

	var estimatedTotal, eta time.Duration
	if percent > 0 {
		estimatedTotal = time.Duration(float64(elapsed) / percent)
		eta = estimatedTotal - elapsed
	}

	timing := fmt.Sprintf("Time: %s / %s  │  ETA: %s",
		formatDuration(elapsed),
		formatDuration(estimatedTotal),
		formatDuration(eta))
	if m.audio != nil && m.audio.Duration > 0 && elapsed > 0 {
		encoded := time.Duration(percent * float64(m.audio.Duration))
		timing += fmt.Sprintf("  │  Speed: %.1fx realtime", float64(encoded)/float64(elapsed))
	}
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(timing))

	if m.state.TotalFrames > 0 {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Faint(true).Italic(true).Render(
			fmt.Sprintf("Frame %d of %d", m.state.Frame, m.state.TotalFrames)))
	}
	s.WriteString("\n")
}

func (m *Model) renderAudio(s *strings.Builder) {
	s.WriteString(lipgloss.NewStyle().Faint(true).Bold(true).Render("Audio"))
	s.WriteString(" │ ")

	if m.audio == nil {
		s.WriteString(lipgloss.NewStyle().Faint(true).Italic(true).Render("Decoding..."))
		return
	}

	label := lipgloss.NewStyle().Faint(true)
	s.WriteString(m.audio.Name)
	s.WriteString("  ")
	s.WriteString(label.Render("Length:"))
	s.WriteString(" " + formatClock(m.audio.Duration))
	if m.audio.SampleRate > 0 {
		s.WriteString("  ")
		s.WriteString(label.Render("Rate:"))
		s.WriteString(fmt.Sprintf(" %.1f kHz", float64(m.audio.SampleRate)/1000))
	}
}

func (m *Model) renderComplete() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lavender).Render("✓ " + m.title + " Complete!"))
	s.WriteString("\n\n")

	label := lipgloss.NewStyle().Faint(true)
	highlight := lipgloss.NewStyle().Foreground(lavender)

	s.WriteString(fmt.Sprintf("%s%s\n", label.Render("Output:   "), m.complete.OutputFile))
	if m.complete.EncoderName != "" {
		s.WriteString(fmt.Sprintf("%s%s\n", label.Render("Encoder:  "), m.complete.EncoderName))
	}
	if m.complete.Frames > 0 {
		fps := 0.0
		if m.complete.Duration > 0 {
			fps = float64(m.complete.Frames) / m.complete.Duration.Seconds()
		}
		s.WriteString(fmt.Sprintf("%s%d frames, %.2f fps\n", label.Render("Video:    "), m.complete.Frames, fps))
	}

	s.WriteString(label.Render("Duration: "))
	s.WriteString(fmt.Sprintf("%.1fs video in %s", m.complete.Duration.Seconds(), formatDuration(m.complete.TotalTime)))
	if m.complete.TotalTime > 0 && m.complete.Duration > 0 {
		s.WriteString(highlight.Render(fmt.Sprintf(" (%.1fx realtime)", float64(m.complete.Duration)/float64(m.complete.TotalTime))))
	}
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("%s%s", label.Render("Size:     "), formatBytes(m.complete.FileSize)))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lavender).
		Padding(1, 1).
		Render(s.String()) + "\n"
}
