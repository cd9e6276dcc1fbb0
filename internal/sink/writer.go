package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"connprobe/util"
)

var (
	okStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	ngStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Writer renders lines as text, one per row.  With Color set, OK and NG
// lines are styled green and red.
type Writer struct {
	Out   io.Writer
	Color bool

	mu sync.Mutex
}

// NewWriter returns a Writer on w, enabling colour only when w is a
// terminal.
func NewWriter(w io.Writer) *Writer {
	return &Writer{Out: w, Color: util.IsTerminal(w)}
}

// Emit writes l followed by a newline.
func (w *Writer) Emit(l Line) error {
	text := l.Text
	if w.Color {
		switch l.Status {
		case OK:
			text = okStyle.Render(text)
		case NG:
			text = ngStyle.Render(text)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(w.Out, text); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}
