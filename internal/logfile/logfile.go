// Package logfile writes a finished run's lines to disk behind a short
// header identifying where and when the run happened.
package logfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"connprobe/internal/sink"
	"connprobe/util"
)

const rule = "=============================================="

// Header identifies a saved log.
type Header struct {
	Generated time.Time
	Identity  util.Identity
	RunID     string
	Mode      string
}

// NewHeader stamps the current time and local identity.
func NewHeader(runID, mode string) Header {
	return Header{
		Generated: time.Now(),
		Identity:  util.CurrentIdentity(),
		RunID:     runID,
		Mode:      mode,
	}
}

// DefaultName is the file name used when the caller gives a directory.
func DefaultName(t time.Time) string {
	return fmt.Sprintf("check-log-%d.txt", t.UnixMilli())
}

// Write renders h and lines to w.
func Write(w io.Writer, h Header, lines []sink.Line) error {
	bw := bufio.NewWriter(w)
	header := []string{
		rule,
		" Log File Generated at: " + h.Generated.Format("2006-01-02 15:04:05 MST"),
		" Computer Name: " + h.Identity.Hostname,
		" User: " + h.Identity.User,
		" IP Address: " + h.Identity.IPv4,
	}
	if h.RunID != "" {
		header = append(header, " Run ID: "+h.RunID)
	}
	if h.Mode != "" {
		header = append(header, " Mode: "+h.Mode)
	}
	header = append(header, rule, "")

	if _, err := bw.WriteString(strings.Join(header, "\n") + "\n"); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := bw.WriteString(l.Text + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Save writes the log to path.  When path is an existing directory the
// file is created inside it under DefaultName.  It returns the path
// written.
func Save(path string, h Header, lines []sink.Line) (string, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, DefaultName(h.Generated))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("save log: %w", err)
	}
	if err := Write(f, h, lines); err != nil {
		f.Close()
		return "", fmt.Errorf("save log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("save log %s: %w", path, err)
	}
	return path, nil
}
