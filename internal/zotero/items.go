// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package zotero

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pdiddy/literature-manager/internal/naming"
	"github.com/pdiddy/literature-manager/pkg/types"
)

type creator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Name        string `json:"name,omitempty"`
}

type tag struct {
	Tag string `json:"tag"`
}

// itemData is the subset of item fields the mirror reads and writes.
type itemData struct {
	ItemType     string    `json:"itemType"`
	Title        string    `json:"title,omitempty"`
	Creators     []creator `json:"creators,omitempty"`
	Date         string    `json:"date,omitempty"`
	DOI          string    `json:"DOI,omitempty"`
	AbstractNote string    `json:"abstractNote,omitempty"`
	Extra        string    `json:"extra,omitempty"`
	Tags         []tag     `json:"tags"`
	Collections  []string  `json:"collections"`
}

// Upsert mirrors rec and returns its item key. An item with the same DOI
// gains any missing topic tags and collections and is otherwise left
// alone. A new item gets full metadata, a summary note and the PDF at
// pdfPath as an imported attachment; note and attachment failures are
// logged and do not fail the call.
func (c *Client) Upsert(ctx context.Context, rec *types.PaperRecord, pdfPath string) (string, error) {
	if _, err := c.Cache(ctx); err != nil {
		return "", err
	}
	topics := mirrorTopics(rec)

	if key, ok := c.lookupItem(rec.DOI); ok {
		if err := c.merge(ctx, key, topics); err != nil {
			return key, err
		}
		return key, nil
	}

	collections, err := c.collections(ctx, topics)
	if err != nil {
		return "", err
	}
	keys, err := c.create(ctx, "/items", newItem(rec, topics, collections))
	if err != nil {
		return "", fmt.Errorf("creating item: %w", err)
	}
	key := keys[0]
	c.rememberItem(rec.DOI, key)
	log := c.logger().With("item", key)

	if note := SummaryNote(rec); note != "" {
		if _, err := c.create(ctx, "/items", map[string]any{"itemType": "note", "parentItem": key, "note": note}); err != nil {
			log.Warn("summary note failed", "error", err)
		}
	}
	if pdfPath != "" {
		if err := c.attach(ctx, key, pdfPath); err != nil {
			log.Warn("PDF upload failed", "error", err)
		}
	}
	return key, nil
}

// mirrorTopics returns the tags to apply: the filed topics, or the
// suggestions when the record is still awaiting review.
func mirrorTopics(rec *types.PaperRecord) []string {
	if len(rec.Topics) > 0 {
		return rec.Topics
	}
	return rec.SuggestedTopics
}

func (c *Client) collections(ctx context.Context, topics []string) ([]string, error) {
	keys := make([]string, 0, len(topics))
	for _, t := range topics {
		k, err := c.collection(ctx, t)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func newItem(rec *types.PaperRecord, topics, collections []string) itemData {
	it := itemData{
		ItemType:     "journalArticle",
		Title:        rec.Title,
		Creators:     creators(rec.Authors),
		DOI:          rec.DOI,
		AbstractNote: rec.Abstract,
		Extra:        extra(rec),
		Tags:         make([]tag, 0, len(topics)),
		Collections:  collections,
	}
	if rec.Year > 0 {
		it.Date = strconv.Itoa(rec.Year)
	}
	for _, t := range topics {
		it.Tags = append(it.Tags, tag{Tag: t})
	}
	return it
}

// creators splits "Last, First" and "First Last" names.
func creators(authors []string) []creator {
	out := make([]creator, 0, len(authors))
	for _, a := range authors {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if last, first, ok := strings.Cut(a, ","); ok {
			out = append(out, creator{CreatorType: "author", LastName: strings.TrimSpace(last), FirstName: strings.TrimSpace(first)})
			continue
		}
		parts := strings.Fields(a)
		if len(parts) == 1 {
			out = append(out, creator{CreatorType: "author", LastName: parts[0]})
			continue
		}
		out = append(out, creator{
			CreatorType: "author",
			LastName:    parts[len(parts)-1],
			FirstName:   strings.Join(parts[:len(parts)-1], " "),
		})
	}
	return out
}

func extra(rec *types.PaperRecord) string {
	var parts []string
	if rec.Summary != "" {
		parts = append(parts, "Summary: "+rec.Summary)
	}
	if d := rec.DomainAttributes; !d.Empty() {
		if d.StudyType != "" {
			parts = append(parts, "Study Type: "+d.StudyType)
		}
		if len(d.AnalyticalMethods) > 0 {
			parts = append(parts, "Methods: "+strings.Join(d.AnalyticalMethods, ", "))
		}
		if len(d.SoilFractions) > 0 {
			parts = append(parts, "Fractions: "+strings.Join(d.SoilFractions, ", "))
		}
	}
	return strings.Join(parts, "\n")
}

// merge adds missing topic tags and collections to an existing item.
func (c *Client) merge(ctx context.Context, key string, topics []string) error {
	var it itemEntry
	if err := c.getJSON(ctx, "/items/"+key, &it); err != nil {
		return fmt.Errorf("reading item %s: %w", key, err)
	}

	tags := it.Data.Tags
	cols := it.Data.Collections
	changed := false
	for _, t := range topics {
		if !slices.ContainsFunc(tags, func(x tag) bool { return x.Tag == t }) {
			tags = append(tags, tag{Tag: t})
			changed = true
		}
		ck, err := c.collection(ctx, t)
		if err != nil {
			return err
		}
		if !slices.Contains(cols, ck) {
			cols = append(cols, ck)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	patch, err := json.Marshal(map[string]any{"tags": tags, "collections": cols})
	if err != nil {
		return err
	}
	status, _, body, err := c.do(ctx, request{
		Method: http.MethodPatch,
		Path:   "/items/" + key,
		Body:   patch,
		Header: map[string]string{"If-Unmodified-Since-Version": strconv.Itoa(it.Version)},
	})
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("updating item %s: HTTP %d: %s", key, status, strings.TrimSpace(string(body)))
	}
	return nil
}

type uploadAuth struct {
	Exists      int    `json:"exists"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Prefix      string `json:"prefix"`
	Suffix      string `json:"suffix"`
	UploadKey   string `json:"uploadKey"`
}

// attach creates an imported-file attachment under parent and uploads
// the PDF: authorize, post to storage, register.
func (c *Client) attach(ctx context.Context, parent, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)

	keys, err := c.create(ctx, "/items", map[string]any{
		"itemType":    "attachment",
		"parentItem":  parent,
		"linkMode":    "imported_file",
		"title":       naming.NormalizeSpace(strings.TrimSuffix(name, filepath.Ext(name))),
		"contentType": "application/pdf",
		"filename":    name,
		"tags":        []tag{},
	})
	if err != nil {
		return fmt.Errorf("creating attachment: %w", err)
	}
	att := keys[0]

	sum := md5.Sum(data)
	form := url.Values{
		"md5":      {hex.EncodeToString(sum[:])},
		"filename": {name},
		"filesize": {strconv.Itoa(len(data))},
		"mtime":    {strconv.FormatInt(info.ModTime().UnixMilli(), 10)},
	}
	formHeader := map[string]string{"Content-Type": "application/x-www-form-urlencoded", "If-None-Match": "*"}
	status, _, body, err := c.do(ctx, request{
		Method: http.MethodPost,
		Path:   "/items/" + att + "/file",
		Body:   []byte(form.Encode()),
		Header: formHeader,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("authorizing upload: HTTP %d", status)
	}
	var auth uploadAuth
	if err := json.Unmarshal(body, &auth); err != nil {
		return fmt.Errorf("decoding upload authorization: %w", err)
	}
	if auth.Exists == 1 {
		return nil
	}

	payload := make([]byte, 0, len(auth.Prefix)+len(data)+len(auth.Suffix))
	payload = append(payload, auth.Prefix...)
	payload = append(payload, data...)
	payload = append(payload, auth.Suffix...)
	status, _, _, err = c.do(ctx, request{
		Method:   http.MethodPost,
		Path:     auth.URL,
		Absolute: true,
		Body:     payload,
		Header:   map[string]string{"Content-Type": auth.ContentType},
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("uploading file: HTTP %d", status)
	}

	status, _, _, err = c.do(ctx, request{
		Method: http.MethodPost,
		Path:   "/items/" + att + "/file",
		Body:   []byte(url.Values{"upload": {auth.UploadKey}}.Encode()),
		Header: formHeader,
	})
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("registering upload: HTTP %d", status)
	}
	return nil
}

// SummaryNote renders the HTML child note for rec, or "" when there is
// nothing to say.
func SummaryNote(rec *types.PaperRecord) string {
	var b strings.Builder
	section := func(heading, text string) {
		if text != "" {
			fmt.Fprintf(&b, "<h3>%s</h3>\n<p>%s</p>\n", heading, html.EscapeString(text))
		}
	}

	switch {
	case rec.FulltextSummary != nil:
		s := rec.FulltextSummary
		section("Main Finding", s.MainFinding)
		section("Key Approach", s.KeyApproach)
		section("Key Results", s.KeyResults)
		section("Implication", s.Implication)
	case rec.EnhancedSummary != nil:
		s := rec.EnhancedSummary
		section("Main Finding", s.MainFinding)
		section("Key Approach", s.KeyApproach)
		section("Implication", s.Implication)
	case rec.Summary != "":
		fmt.Fprintf(&b, "<p><strong>Key Finding:</strong> %s</p>\n", html.EscapeString(rec.Summary))
	}

	if d := rec.DomainAttributes; !d.Empty() {
		b.WriteString("<h3>Research Details</h3>\n<ul>\n")
		item := func(label, value string) {
			if value != "" {
				fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>\n", label, html.EscapeString(value))
			}
		}
		item("Study Type", d.StudyType)
		item("Ecosystem", d.Ecosystem)
		item("Methods", strings.Join(d.AnalyticalMethods, ", "))
		item("Soil Fractions", strings.Join(d.SoilFractions, ", "))
		item("Properties Measured", strings.Join(d.SoilProperties, ", "))
		item("Management", strings.Join(d.ManagementPractices, ", "))
		item("Sampling Depths", strings.Join(d.DepthInfo, ", "))
		b.WriteString("</ul>\n")
	}

	if b.Len() == 0 {
		return ""
	}
	return "<h2>Paper Summary</h2>\n" + b.String() + "<hr><p><em>Generated by Literature Manager</em></p>"
}
