// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"strings"
)

// badTitleWords flag section headings mistaken for titles.
var badTitleWords = []string{
	"acknowledgement",
	"acknowledgements",
	"references",
	"bibliography",
	"table of contents",
	"contents",
	"index",
	"appendix",
	"supplementary",
	"erratum",
	"corrigendum",
	"retraction",
	"front matter",
	"back matter",
}

const (
	minTitleLength      = 10
	badTitleLengthLimit = 50
)

// CheckTitle rejects titles that are evidently not paper titles: short
// strings containing a section-heading word, anything under ten
// characters, and bare numbers.
func CheckTitle(title string) error {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return fmt.Errorf("empty title")
	}
	if len(lower) < badTitleLengthLimit {
		for _, bad := range badTitleWords {
			if strings.Contains(lower, bad) {
				return fmt.Errorf("title %q looks like a %q heading", title, bad)
			}
		}
	}
	if len(lower) < minTitleLength {
		return fmt.Errorf("title %q is too short", title)
	}
	digits := strings.NewReplacer(".", "", " ", "").Replace(lower)
	if strings.Trim(digits, "0123456789") == "" {
		return fmt.Errorf("title %q is only digits", title)
	}
	return nil
}
