package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoFetcher         = errors.New("unsupported url: no fetcher matches")
	ErrEmptyBatch        = errors.New("no URLs in batch")
	ErrFFmpegNotFound    = errors.New("ffmpeg not found in PATH")
	ErrNotFound          = errors.New("not found")
)

// ValidationError reports bad constructor input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigError reports an out-of-range batch or retry parameter.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Reason)
}

// FetchError is a failed download. Message is what gets classified.
type FetchError struct {
	Message string
}

func (e *FetchError) Error() string {
	return "download failed: " + e.Message
}

// ConvertError is a failed transcode.
type ConvertError struct {
	Message string
}

func (e *ConvertError) Error() string {
	return "conversion failed: " + e.Message
}
