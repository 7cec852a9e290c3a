// Package extractor recovers typed values from loosely formatted model output.
//
// Parsing runs a fixed chain and stops at the first stage that yields a
// value passing validation:
//
//	direct     the whole trimmed text
//	span       the outermost {...} or [...] span, then balanced spans
//	sanitized  the span search again after stripping fences and comments
//	fallback   a caller-supplied deterministic value
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/sicknote/internal/metrics"
)

// Stage names the step of the chain that produced a value
type Stage string

const (
	StageDirect    Stage = "direct"
	StageSpan      Stage = "span"
	StageSanitized Stage = "sanitized"
	StageFallback  Stage = "fallback"
)

var (
	// ErrExtractionFallbackUsed marks a result built from the fallback value
	ErrExtractionFallbackUsed = errors.New("extraction fallback used")

	// ErrNoStructuredContent is returned when no candidate JSON text exists
	ErrNoStructuredContent = errors.New("no structured content found")
)

// ParseResult is the tagged outcome of a parse.
// Err is nil when Stage is direct, span or sanitized.
type ParseResult[T any] struct {
	Value T
	Stage Stage
	Err   error
}

// OK reports whether a value was parsed from the text
func (r ParseResult[T]) OK() bool {
	return r.Err == nil && r.Stage != StageFallback
}

// Check is an extra validation applied after struct-tag validation
type Check[T any] func(T) error

// Extractor carries the logger, validator and metrics shared by parse calls
type Extractor struct {
	logger   arbor.ILogger
	validate *validator.Validate
	metrics  *metrics.Collector
}

// NewExtractor creates an extractor
func NewExtractor(collector *metrics.Collector, logger arbor.ILogger) *Extractor {
	return &Extractor{
		logger:   logger,
		validate: validator.New(),
		metrics:  collector,
	}
}

// Parse runs the chain without a fallback. On failure Stage is fallback,
// Value is the zero value and Err carries the last failure.
func Parse[T any](e *Extractor, text string, check Check[T]) ParseResult[T] {
	var lastErr error

	attempt := func(stage Stage, candidate string) (T, bool) {
		e.logger.Debug().
			Str("stage", string(stage)).
			Int("length", len(candidate)).
			Str("input", truncate(candidate, 512)).
			Msg("Extraction attempt")

		v, err := decode(e, candidate, check)
		if err != nil {
			lastErr = err
			e.logger.Debug().Str("stage", string(stage)).Err(err).Msg("Extraction attempt failed")
			return v, false
		}
		return v, true
	}

	trimmed := trimSpace(text)
	if trimmed == "" {
		return ParseResult[T]{Stage: StageFallback, Err: ErrNoStructuredContent}
	}

	if v, ok := attempt(StageDirect, trimmed); ok {
		return ParseResult[T]{Value: v, Stage: StageDirect}
	}

	for _, candidate := range spanCandidates(trimmed) {
		if v, ok := attempt(StageSpan, candidate); ok {
			return ParseResult[T]{Value: v, Stage: StageSpan}
		}
	}

	cleaned := Sanitize(trimmed)
	if cleaned != trimmed {
		candidates := append([]string{cleaned}, spanCandidates(cleaned)...)
		for _, candidate := range candidates {
			if v, ok := attempt(StageSanitized, candidate); ok {
				return ParseResult[T]{Value: v, Stage: StageSanitized}
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrNoStructuredContent
	}
	var zero T
	return ParseResult[T]{Value: zero, Stage: StageFallback, Err: lastErr}
}

// Extract runs Parse and substitutes fallback() when no stage succeeds.
// kind labels the caller in logs and metrics. The returned error inside the
// result wraps ErrExtractionFallbackUsed; nothing is returned as a Go error.
func Extract[T any](e *Extractor, kind, text string, check Check[T], fallback func() T) (T, ParseResult[T]) {
	result := Parse(e, text, check)
	if result.OK() {
		e.logger.Debug().Str("kind", kind).Str("stage", string(result.Stage)).Msg("Structured content extracted")
		return result.Value, result
	}

	cause := result.Err
	result.Value = fallback()
	result.Stage = StageFallback
	result.Err = fmt.Errorf("%w: %s: %v", ErrExtractionFallbackUsed, kind, cause)

	e.metrics.ExtractorFallback(kind)
	e.logger.Warn().
		Str("kind", kind).
		Err(result.Err).
		Str("input", truncate(text, 512)).
		Msg("Structured content could not be extracted, using fallback")

	return result.Value, result
}

// decode validates candidate as JSON, unmarshals it and checks required fields
func decode[T any](e *Extractor, candidate string, check Check[T]) (T, error) {
	var v T
	if !gjson.Valid(candidate) {
		return v, errors.New("invalid json")
	}
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal: %w", err)
	}
	if err := e.validateTags(v); err != nil {
		return v, fmt.Errorf("validation failed: %w", err)
	}
	if check != nil {
		if err := check(v); err != nil {
			return v, fmt.Errorf("validation failed: %w", err)
		}
	}
	return v, nil
}

// validateTags applies `validate` struct tags to structs, struct pointers
// and slices of either
func (e *Extractor) validateTags(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return errors.New("null value")
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return e.validate.Struct(rv.Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := e.validateTags(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
