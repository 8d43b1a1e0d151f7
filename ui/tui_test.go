package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestFormatETA(t *testing.T) {
	tests := []struct {
		progress       float64
		bytesPerMs     float64
		totalBytes     int64
		completedBytes int64
		expected       string
	}{
		{0.0, 1000, 10000, 0, "Calculating..."},
		{0.5, 0, 10000, 5000, "Calculating..."},
		{0.5, 1, 10000, 5000, "5s"}, // 5000 bytes remaining at 1 byte per ms
		{1.0, 10, 1000, 1000, "0s"},
		{0.1, 0.001, 1 << 30, 1 << 20, "> 1d"},
	}

	for _, tt := range tests {
		result := formatETA(tt.progress, tt.bytesPerMs, tt.totalBytes, tt.completedBytes)
		if result != tt.expected {
			t.Errorf("formatETA(%v, %v, %v, %v) = %v; want %v",
				tt.progress, tt.bytesPerMs, tt.totalBytes, tt.completedBytes, result, tt.expected)
		}
	}
}

func TestTUIModelInitialization(t *testing.T) {
	model := NewTUIModel("nas", 3, nil)

	if model.State().TotalFiles != 3 {
		t.Errorf("Expected TotalFiles 3, got %d", model.State().TotalFiles)
	}
	if !strings.Contains(model.View(), "Initializing...") {
		t.Errorf("Expected Initializing view when width is 0")
	}
}

func TestTUIModel_Batch(t *testing.T) {
	var m tea.Model = NewTUIModel("nas", 2, nil)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, _ = m.Update(FileStartMsg{File: "/data/a.bin", Total: 4000, At: start})
	m, _ = m.Update(ProgressMsg{Bytes: 1000, At: start.Add(time.Second)})
	m, _ = m.Update(ProgressMsg{Bytes: -5, At: start.Add(2 * time.Second)})

	state := m.(TUIModel).State()
	if state.Current == nil || state.Current.Transferred != 1000 {
		t.Fatalf("Expected 1000 bytes on current file, got %+v", state.Current)
	}
	if f := state.Current.Fraction(); f != 0.25 {
		t.Errorf("Expected fraction 0.25, got %v", f)
	}
	if rate := state.Current.BytesPerMs(); rate != 1 {
		t.Errorf("Expected 1 byte/ms, got %v", rate)
	}

	view := m.View()
	for _, want := range []string{"Backup to nas", "Files: 0/2", "/data/a.bin", "1000 B / 3.91 KiB | 1000 B/s", "ETA: 3s", "q/ctrl+c: cancel the backup"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q:\n%s", want, view)
		}
	}

	m, _ = m.Update(FileDoneMsg{})
	m, _ = m.Update(FileStartMsg{File: "/data/b.bin", Total: 10, At: start})
	m, _ = m.Update(FileDoneMsg{Err: errors.New("nas: connection failed")})

	state = m.(TUIModel).State()
	if state.CompletedFiles != 1 || state.FailedFiles != 1 {
		t.Errorf("Expected 1 completed and 1 failed, got %+v", state)
	}
	if !strings.Contains(m.View(), "Last error: nas: connection failed") {
		t.Errorf("Expected last error in view")
	}

	m, cmd := m.Update(BatchDoneMsg{})
	if !m.(TUIModel).State().Done {
		t.Error("Expected Done after BatchDoneMsg")
	}
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestTUIModel_QuitCancels(t *testing.T) {
	canceled := false
	m := NewTUIModel("nas", 1, func() { canceled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !canceled {
		t.Error("Expected cancel on quit")
	}
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
}
