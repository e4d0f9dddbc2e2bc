// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal appends human-readable entries to the library log. The
// log is the audit trail for every processing outcome.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Action names a logged outcome.
type Action string

const (
	Processed    Action = "PROCESSED"
	ReviewNeeded Action = "REVIEW_NEEDED"
	Duplicate    Action = "DUPLICATE"
	Failed       Action = "FAILED"
	Corrupted    Action = "CORRUPTED"
	Error        Action = "ERROR"
	Cleanup      Action = "CLEANUP"
	Reclassified Action = "RECLASSIFIED"
	Repaired     Action = "INDEX_REPAIRED"
)

// Entry is one log record. Optional fields are omitted when zero;
// Confidence is written only when HasConfidence is set.
type Entry struct {
	Time          time.Time
	Action        Action
	Display       string
	Source        string
	Destination   string
	Confidence    float64
	HasConfidence bool
	Method        string
	Topic         string
	Reason        string
}

// Journal appends entries to a file.
type Journal struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// Open returns a Journal writing to path. The file and its directory are
// created on the first Append.
func Open(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// Path returns the log file.
func (j *Journal) Path() string { return j.path }

// Append writes e, stamping the current time when e.Time is zero.
func (j *Journal) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	if _, err := f.WriteString(Format(e)); err != nil {
		f.Close()
		return fmt.Errorf("writing log: %w", err)
	}
	return f.Close()
}

// Format renders e:
//
//	2026-03-14 09:30:00 | PROCESSED | Smith, 2020 - Soil Carbon.pdf
//	  → Source: download.pdf
//	  → Destination: by-topic/soil-carbon/Smith, 2020 - Soil Carbon.pdf
//	  → Confidence: 95%
//	  → Method: doi_lookup
//	  → Topic: soil-carbon
func Format(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %s\n", e.Time.Format("2006-01-02 15:04:05"), e.Action, e.Display)
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  → %s: %s\n", label, value)
		}
	}
	line("Source", e.Source)
	line("Destination", e.Destination)
	if e.HasConfidence {
		fmt.Fprintf(&b, "  → Confidence: %.0f%%\n", e.Confidence*100)
	}
	line("Method", e.Method)
	line("Topic", e.Topic)
	line("Reason", e.Reason)
	b.WriteString("\n")
	return b.String()
}
