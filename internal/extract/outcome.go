// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"fmt"

	"github.com/pdiddy/literature-manager/pkg/types"
)

// ErrFatal marks failures that abort processing of a file: a corrupted
// source or missing credentials. Callers test with errors.Is.
var ErrFatal = errors.New("fatal extraction error")

// Kind tags the result of one cascade method.
type Kind int

const (
	// Success carries a title-bearing record.
	Success Kind = iota
	// NotFound is an expected miss; the cascade moves on.
	NotFound
	// Retryable is a transient failure (network, rate limit) that
	// persisted through retries; the cascade moves on.
	Retryable
	// Fatal stops the cascade.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NotFound:
		return "not found"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the tagged result of a cascade method.
type Outcome struct {
	Kind   Kind
	Record *types.PaperRecord
	// Reason explains a non-success outcome.
	Reason string
	Err    error
}

func success(rec *types.PaperRecord) Outcome { return Outcome{Kind: Success, Record: rec} }

func notFound(reason string) Outcome { return Outcome{Kind: NotFound, Reason: reason} }

func retryable(err error) Outcome {
	return Outcome{Kind: Retryable, Reason: err.Error(), Err: err}
}

func fatal(err error) Outcome {
	return Outcome{Kind: Fatal, Reason: err.Error(), Err: fmt.Errorf("%w: %w", ErrFatal, err)}
}
