package strata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayushkumar29/strata/internal/extract"
	"github.com/ayushkumar29/strata/internal/semindex"
	"github.com/ayushkumar29/strata/internal/store"
)

// Sentinel errors surfaced by the pipeline and the planner.
var (
	// ErrGraphUnavailable marks transient graph store failures. Callers
	// may retry with backoff.
	ErrGraphUnavailable = store.ErrUnavailable

	// ErrIndexUnavailable marks a semantic index that cannot serve:
	// the embedding backend failed or no embedder is configured.
	ErrIndexUnavailable = semindex.ErrUnavailable

	// ErrNoEvidence is returned by the planner when every query channel
	// came back empty. It is a normal outcome, not a failure: the
	// question simply has no supported answer in the index.
	ErrNoEvidence = errors.New("no evidence found")
)

// ScanError records a file or directory the scanner could not read.
// An unreadable root fails the scan; an unreadable file is recorded on
// the batch report and the scan continues.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ParseError records a file the parser rejected. Line and Col locate
// the first offending token for syntax errors and are zero for
// whole-file rejections such as invalid encoding. The file is excluded
// from the generation; the batch continues.
type ParseError struct {
	Path string
	Line int
	Col  int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d:%d: %v", e.Path, e.Line, e.Col, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsInvariantViolation reports whether an error signals a broken
// pipeline contract rather than bad input: a symbol tree the extractor
// refuses or a generation the store rejects. These indicate an upstream
// bug; retrying cannot help.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, store.ErrInvariant) || errors.Is(err, extract.ErrMalformed)
}

// Retry budget for unavailability errors: total attempts and the first
// wait, doubling between attempts.
const (
	retryAttempts = 3
	retryBaseWait = 100 * time.Millisecond
)

// retryTransient runs fn, retrying ErrGraphUnavailable and
// ErrIndexUnavailable under the retry budget. Success, any other
// error, or context cancellation ends the attempts; the last error is
// returned so callers degrade with the real cause.
func retryTransient(ctx context.Context, fn func() error) error {
	wait := retryBaseWait
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || attempt == retryAttempts {
			return err
		}
		if !errors.Is(err, ErrGraphUnavailable) && !errors.Is(err, ErrIndexUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait *= 2
	}
}
