package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	transfer "github.com/franksops/gobak/progress"
)

// UIState is the batch as the view sees it.
type UIState struct {
	Destination    string
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	Current        *FileState
	LastError      string
	Done           bool
}

// FileState is the file currently being uploaded.
type FileState struct {
	Path        string
	TotalBytes  int64
	Transferred int64
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// BytesPerMs is the average throughput since the file started.
func (f *FileState) BytesPerMs() float64 {
	elapsed := f.UpdatedAt.Sub(f.StartedAt).Milliseconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(f.Transferred) / float64(elapsed)
}

// Fraction is the completed share of the file.
func (f *FileState) Fraction() float64 {
	if f.TotalBytes <= 0 {
		return 0
	}
	return min(float64(f.Transferred)/float64(f.TotalBytes), 1)
}

// FileStartMsg announces the next file.
type FileStartMsg struct {
	File  string
	Total int64
	At    time.Time
}

// ProgressMsg carries bytes transferred since the previous message.
type ProgressMsg struct {
	Bytes int64
	At    time.Time
}

// FileDoneMsg closes the current file.
type FileDoneMsg struct {
	Err error
}

// BatchDoneMsg ends the program.
type BatchDoneMsg struct{}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    *UIState
	cancel   context.CancelFunc
	spinner  spinner.Model
	progress progress.Model

	width int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	fileStyle    lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// NewTUIModel creates the view of a batch of totalFiles files. Quitting the
// view calls cancel, which aborts the file in flight and skips the rest.
func NewTUIModel(destination string, totalFiles int, cancel context.CancelFunc) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return TUIModel{
		state:        &UIState{Destination: destination, TotalFiles: totalFiles},
		cancel:       cancel,
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient()),
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		fileStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// State returns the current batch state.
func (m TUIModel) State() UIState {
	return *m.state
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-14, 10)

	case FileStartMsg:
		m.state.Current = &FileState{
			Path:       msg.File,
			TotalBytes: msg.Total,
			StartedAt:  msg.At,
			UpdatedAt:  msg.At,
		}

	case ProgressMsg:
		if m.state.Current != nil && msg.Bytes > 0 {
			m.state.Current.Transferred += msg.Bytes
			m.state.Current.UpdatedAt = msg.At
		}

	case FileDoneMsg:
		if msg.Err != nil {
			m.state.FailedFiles++
			m.state.LastError = msg.Err.Error()
		} else {
			m.state.CompletedFiles++
		}

	case BatchDoneMsg:
		m.state.Done = true
		m.state.Current = nil
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder
	s := m.state

	header := fmt.Sprintf("%s gbak %s", m.spinner.View(), m.titleStyle.Render("Backup to "+s.Destination))
	sb.WriteString(header + "\n")

	counts := fmt.Sprintf("Files: %d/%d done", s.CompletedFiles, s.TotalFiles)
	if s.FailedFiles > 0 {
		counts += " | " + m.errorStyle.Render(fmt.Sprintf("%d failed", s.FailedFiles))
	}
	sb.WriteString(m.infoStyle.Render(counts) + "\n\n")

	if f := s.Current; f != nil {
		name := f.Path
		if len(name) > 40 {
			name = "..." + name[len(name)-37:]
		}
		sb.WriteString(m.fileStyle.Render(name) + "\n")
		sb.WriteString(m.progress.ViewAs(f.Fraction()) + "\n")
		sb.WriteString(m.infoStyle.Render(fmt.Sprintf("%s / %s | %s | ETA: %s",
			transfer.FormatBytes(f.Transferred), transfer.FormatBytes(f.TotalBytes),
			transfer.FormatRate(f.Transferred, f.UpdatedAt.Sub(f.StartedAt)),
			formatETA(f.Fraction(), f.BytesPerMs(), f.TotalBytes, f.Transferred))) + "\n")
	} else if !s.Done {
		sb.WriteString(m.infoStyle.Render("Waiting for the first file...") + "\n")
	}

	if s.LastError != "" {
		sb.WriteString(m.errorStyle.Render("Last error: "+s.LastError) + "\n")
	}

	help := m.helpStyle.Render("q/ctrl+c: cancel the backup")
	if s.Done {
		help = m.successStyle.Render("Backup finished.")
	}
	sb.WriteString(help)

	return sb.String()
}

func formatETA(progress float64, bytesPerMs float64, totalBytes, completedBytes int64) string {
	if progress == 0 || bytesPerMs <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	d := time.Duration(float64(remainingBytes)/bytesPerMs) * time.Millisecond
	if d.Hours() > 24 {
		return "> 1d"
	}
	return d.Round(time.Second).String()
}
