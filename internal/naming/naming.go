// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package naming builds library filenames of the form
// "<Authors>, <Year> - <Short Title>.pdf" and resolves collisions on disk.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/literature-manager/pkg/types"
)

// maxCollisionSuffix bounds the " (n)" search before falling back to a
// timestamp suffix.
const maxCollisionSuffix = 100

// FormatAuthors renders the author part of a filename: "Unknown" for no
// authors, the surname for one, "A & B" for two, "A et al." otherwise.
func FormatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return "Unknown"
	case 1:
		return Surname(authors[0])
	case 2:
		return Surname(authors[0]) + " & " + Surname(authors[1])
	default:
		return Surname(authors[0]) + " et al."
	}
}

// Surname extracts the family name from "Last, F." or "First Last".
func Surname(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, ","); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return name
	}
	return parts[len(parts)-1]
}

const breakChars = ":-—,;"

var trailingBreaks = regexp.MustCompile(`[:\-—,;]+$`)

// ShortenTitle keeps at most maxWords words of title. When the title is
// longer, it cuts after the last word within the limit that carries a
// natural break (":", "-", "—", ",", ";"), dropping the punctuation. The
// result is title-cased.
func ShortenTitle(title string, maxWords int) string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return "Untitled"
	}
	if len(words) <= maxWords {
		return TitleCase(strings.Join(words, " "))
	}

	for i := maxWords; i > 0; i-- {
		if strings.ContainsAny(words[i-1], breakChars) {
			short := trailingBreaks.ReplaceAllString(strings.Join(words[:i], " "), "")
			return TitleCase(short)
		}
	}
	return TitleCase(strings.Join(words[:maxWords], " "))
}

// TitleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// NormalizeSpace collapses whitespace runs into single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var unsafeChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "",
	"?", "",
	`"`, "'",
	"<", "",
	">", "",
	"|", "-",
)

// Sanitize makes name safe for common filesystems and truncates it to
// maxLen bytes, preserving the extension.
func Sanitize(name string, maxLen int) string {
	name = unsafeChars.Replace(name)
	name = strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, name)
	name = NormalizeSpace(name)

	if maxLen > 0 && len(name) > maxLen {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		keep := maxLen - len(ext)
		if keep < 0 {
			keep = 0
		}
		stem = truncateUTF8(stem, keep)
		name = strings.TrimSpace(stem) + ext
	}
	return strings.TrimSpace(name)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Options control filename generation.
type Options struct {
	MaxLength int
	MaxWords  int
	// Now supplies the year used when the record has none.
	Now func() time.Time
}

// Generate builds the filename for rec. It performs no I/O.
func Generate(rec *types.PaperRecord, opts Options) string {
	if opts.MaxWords <= 0 {
		opts.MaxWords = 8
	}
	year := rec.Year
	if year == 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		year = now().Year()
	}

	short := strings.TrimSpace(rec.ShortTitle)
	if short == "" {
		title := rec.Title
		if strings.TrimSpace(title) == "" {
			title = "Untitled"
		}
		short = ShortenTitle(title, opts.MaxWords)
	}

	name := fmt.Sprintf("%s, %d - %s.pdf", FormatAuthors(rec.Authors), year, short)
	return Sanitize(name, opts.MaxLength)
}

// UniquePath returns a path in dir for filename that does not exist yet,
// appending " (2)", " (3)", ... and, after 100 collisions, a
// "_YYYYMMDD_HHMMSS" timestamp.
func UniquePath(dir, filename string, now time.Time) string {
	candidate := filepath.Join(dir, filename)
	if !exists(candidate) {
		return candidate
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 2; n <= maxCollisionSuffix; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, now.Format("20060102_150405"), ext))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
