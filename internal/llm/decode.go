// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// DecodeJSON decodes a model reply into v. It accepts a bare JSON object,
// one wrapped in a fenced code block, or one embedded in prose (the
// outermost {...} span). v is left untouched unless a candidate decodes
// without error.
func DecodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if err := unmarshalFresh([]byte(text), v); err == nil {
		return nil
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if err := unmarshalFresh([]byte(m[1]), v); err == nil {
			return nil
		}
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := unmarshalFresh([]byte(text[start:end+1]), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidJSON, abbreviate(text, 200))
}

// unmarshalFresh decodes data into a zero value of v's element type and
// stores it in v only on success, so a failed attempt leaves no fields
// behind.
func unmarshalFresh(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return json.Unmarshal(data, v)
	}
	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// flexInt decodes a number, a numeric string, or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		if fl, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			*f = flexInt(fl)
			return nil
		}
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexList decodes a list of strings, a single string, or null.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = compact(list)
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		*f = nil
		return nil
	}
	*f = flexList{strings.TrimSpace(*s)}
	return nil
}

// flexString decodes a string, a list of strings (joined), or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == nil {
			*f = ""
		} else {
			*f = flexString(strings.TrimSpace(*s))
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = flexString(strings.Join(compact(list), " "))
	return nil
}

func compact(list []string) []string {
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" && s != "null" {
			out = append(out, s)
		}
	}
	return out
}
