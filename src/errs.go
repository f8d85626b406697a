package sphinx

import (
	"errors"
	"fmt"
)

// The five error categories of the decoder's error taxonomy. Every
// exported API call returns one of these (or nil) as its trailing error
// result rather than a negative status code; host code distinguishes them
// with errors.As.

// ConfigError reports a missing or conflicting option, or an inapplicable
// file path, discovered while building a Config or initialising a Decoder.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// FormatError reports a model file with the wrong version, dimensions,
// byte-order magic, or checksum.
type FormatError struct {
	File string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.File == "" {
		return "format error: " + e.Msg
	}
	return fmt.Sprintf("format error in %s: %s", e.File, e.Msg)
}

// DomainError reports an out-of-vocabulary word, an invalid FSG
// reference, or a keyphrase containing OOV words. The decoder remains
// usable after a DomainError.
type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string { return "domain error: " + e.Msg }

// ResourceExhaustionError reports that a growable structure (the
// backpointer table, most notably) could not grow further.
type ResourceExhaustionError struct {
	Msg string
}

func (e *ResourceExhaustionError) Error() string { return "resource exhausted: " + e.Msg }

// LogicError reports a violated internal invariant: non-upper-triangular
// tmat, non-monotonic frame indices, an HMM count exceeding the lexicon
// size. These are unrecoverable for the current utterance.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string { return "internal invariant violated: " + e.Msg }

// Sentinel categories for errors.Is-style matching when callers only care
// about the category, not the specific message.
var (
	ErrConfig             = errors.New("config error")
	ErrFormat             = errors.New("format error")
	ErrDomain              = errors.New("domain error")
	ErrResourceExhaustion = errors.New("resource exhaustion")
	ErrLogic              = errors.New("logic error")
)

func (e *ConfigError) Unwrap() error             { return ErrConfig }
func (e *FormatError) Unwrap() error             { return ErrFormat }
func (e *DomainError) Unwrap() error             { return ErrDomain }
func (e *ResourceExhaustionError) Unwrap() error { return ErrResourceExhaustion }
func (e *LogicError) Unwrap() error              { return ErrLogic }
