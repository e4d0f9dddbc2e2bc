// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"strings"

	"github.com/pdiddy/literature-manager/internal/doi"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
)

// Document caches what has been read from one PDF so that cascade methods
// and enrichment share a single parse of each part.
type Document struct {
	Path   string
	reader pdfdoc.Reader

	info    *pdfdoc.Info
	infoErr error
	text    map[int]string
	textErr map[int]error
}

// NewDocument wraps path for reading through r.
func NewDocument(path string, r pdfdoc.Reader) *Document {
	return &Document{
		Path:    path,
		reader:  r,
		text:    make(map[int]string),
		textErr: make(map[int]error),
	}
}

// Info returns the document-information dictionary.
func (d *Document) Info() (pdfdoc.Info, error) {
	if d.info == nil && d.infoErr == nil {
		info, err := d.reader.Info(d.Path)
		d.info, d.infoErr = &info, err
	}
	return *d.info, d.infoErr
}

// Text returns the plain text of the first pages pages.
func (d *Document) Text(pages int) (string, error) {
	if t, ok := d.text[pages]; ok {
		return t, d.textErr[pages]
	}
	t, err := d.reader.Text(d.Path, pages)
	d.text[pages], d.textErr[pages] = t, err
	return t, err
}

// FindDOI looks for a DOI in the embedded metadata fields, then the
// first page, then the first textPages pages.
func (d *Document) FindDOI(textPages int) string {
	if info, err := d.Info(); err == nil {
		for _, field := range []string{info.Field("doi"), info.Subject, info.Keywords} {
			if found := doi.Find(field); found != "" {
				return found
			}
		}
	}
	if text, err := d.Text(1); err == nil && strings.TrimSpace(text) != "" {
		if found := doi.Find(text); found != "" {
			return found
		}
	}
	if textPages > 1 {
		if text, err := d.Text(textPages); err == nil {
			return doi.Find(text)
		}
	}
	return ""
}
