// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdfdoc reads PDF files for the extraction cascade: a fast
// readability probe, the embedded document-information dictionary, and
// plain text from the leading pages.
//
// Document information and page counts come from pdfcpu; page text comes
// from ledongthuc/pdf. Both libraries can panic on malformed input, so
// every entry point recovers and reports ErrCorrupted instead.
package pdfdoc

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrCorrupted marks a file that is structurally unreadable, has no pages,
// or yields neither metadata nor text on its first page.
var ErrCorrupted = errors.New("corrupted or unreadable PDF")

// Info is the embedded document-information dictionary.
type Info struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	CreationDate string
	Properties   map[string]string
	PageCount    int
}

// Empty reports whether no descriptive field is present.
func (i Info) Empty() bool {
	return strings.TrimSpace(i.Title) == "" && strings.TrimSpace(i.Author) == "" &&
		strings.TrimSpace(i.Subject) == "" && strings.TrimSpace(i.Keywords) == "" &&
		len(i.Properties) == 0
}

// Field returns a custom property by case-insensitive name.
func (i Info) Field(name string) string {
	for k, v := range i.Properties {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Reader abstracts PDF access so the cascade can be tested without files.
type Reader interface {
	// Probe confirms the file opens, has at least one page, and its first
	// page yields metadata or text. Failures wrap ErrCorrupted.
	Probe(path string) error

	// Info returns the document-information dictionary.
	Info(path string) (Info, error)

	// Text returns plain text of the first maxPages pages; maxPages <= 0
	// reads every page.
	Text(path string, maxPages int) (string, error)
}

// PDF is the production Reader.
type PDF struct{}

// New returns the production Reader.
func New() *PDF { return &PDF{} }

// Probe implements Reader.
func (p *PDF) Probe(path string) (err error) {
	defer recoverCorrupted(path, &err)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	pages, err := api.PageCount(f, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupted, path, err)
	}
	if pages < 1 {
		return fmt.Errorf("%w: %s has no pages", ErrCorrupted, path)
	}

	if info, infoErr := p.Info(path); infoErr == nil && !info.Empty() {
		return nil
	}

	text, err := p.Text(path, 1)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %s has no metadata and no text on page 1", ErrCorrupted, path)
	}
	return nil
}

// Info implements Reader.
func (p *PDF) Info(path string) (info Info, err error) {
	defer recoverCorrupted(path, &err)

	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	pi, err := api.PDFInfo(f, path, nil, nil)
	if err != nil {
		return Info{}, fmt.Errorf("%w: reading document info of %s: %v", ErrCorrupted, path, err)
	}

	return Info{
		Title:        strings.TrimSpace(pi.Title),
		Author:       strings.TrimSpace(pi.Author),
		Subject:      strings.TrimSpace(pi.Subject),
		Keywords:     strings.Join(pi.Keywords, ", "),
		CreationDate: pi.CreationDate,
		Properties:   pi.Properties,
		PageCount:    pi.PageCount,
	}, nil
}

// Text implements Reader.
func (p *PDF) Text(path string, maxPages int) (text string, err error) {
	defer recoverCorrupted(path, &err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupted, path, err)
	}
	defer f.Close()

	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func recoverCorrupted(path string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrCorrupted, path, r)
	}
}
