// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package console colors progress lines by their leading status symbol.
package console

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Status symbols written at the start of progress lines.
const (
	OK   = "✓"
	Fail = "✗"
	Warn = "⚠"
	Info = "ℹ"
)

var styles = map[string]lipgloss.Style{
	OK:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	Fail: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	Warn: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	Info: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
}

// Writer buffers partial lines and colors the status symbol of each
// complete one. Lines without a symbol pass through unchanged. It is safe
// for concurrent use.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	buf   bytes.Buffer
	plain bool
}

// New wraps w. When plain is set symbols are written without color.
func New(w io.Writer, plain bool) *Writer {
	return &Writer{w: w, plain: plain}
}

// Write implements io.Writer.
func (c *Writer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	for {
		line, err := c.buf.ReadString('\n')
		if err != nil {
			// incomplete line: keep it for the next write
			c.buf.Reset()
			c.buf.WriteString(line)
			break
		}
		if _, err := io.WriteString(c.w, c.render(line)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any buffered partial line.
func (c *Writer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(c.w, c.render(c.buf.String()))
	c.buf.Reset()
	return err
}

func (c *Writer) render(line string) string {
	if c.plain {
		return line
	}
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]
	for sym, style := range styles {
		if strings.HasPrefix(trimmed, sym) {
			return indent + style.Render(sym) + trimmed[len(sym):]
		}
	}
	return line
}
