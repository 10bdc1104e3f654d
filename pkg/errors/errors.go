// Package errors provides the structured error and warning types used across
// the habmap pipeline. Every failure mode the pipeline reports to a user has
// a concrete type here, so callers can branch with errors.As and logs can
// carry structured fields instead of formatted strings.
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Warning handling
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("habmap-warning: %v\n", w)
	}
)

// SetWarningHandler replaces the process-wide warning handler. Warnings are
// conditions worth surfacing (a bootstrap member that failed to refit, an
// undefined metric) that do not abort the stage that raised them.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// Warn dispatches a warning to the registered handler.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Per-task failures (recorded, not fatal)
//
// ===========================================================================

// ConvergenceError reports that a boosted-tree fit produced no usable
// statistics. One grid cell or one bootstrap member failing this way is
// recorded in the output table, never fatal to the run.
type ConvergenceError struct {
	Stage   string // "tuning" or "bootstrap"
	Index   int    // grid cell or bootstrap member index
	Attempt int    // 1 for the initial fit, 2 for the retry
	Reason  string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("habmap: %s fit %d did not converge (attempt %d): %s",
		e.Stage, e.Index, e.Attempt, e.Reason)
}

// MarshalZerologObject adds structured fields to a zerolog event.
func (e *ConvergenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage).
		Int("index", e.Index).
		Int("attempt", e.Attempt).
		Str("reason", e.Reason).
		Str("type", "ConvergenceError")
}

// NewConvergenceError creates a ConvergenceError with a stack trace.
func NewConvergenceError(stage string, index, attempt int, reason string) error {
	err := &ConvergenceError{Stage: stage, Index: index, Attempt: attempt, Reason: reason}
	return errors.WithStack(err)
}

// UndefinedMetricWarning reports a metric that cannot be computed for the
// given data (e.g. AUC with a single observed class). The metric is reported
// as the stated fallback value.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %g due to %s", w.Metric, w.Result, w.Condition)
}

// NewUndefinedMetricWarning creates a new UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	Pipeline-fatal failures
//
// ===========================================================================

// SelectionError reports that every candidate in the hyperparameter grid
// failed to converge, leaving no model to carry forward. Always fatal.
type SelectionError struct {
	Candidates int
	Failed     int
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("habmap: model selection failed: all %d of %d candidate fits were non-convergent",
		e.Failed, e.Candidates)
}

// MarshalZerologObject adds structured fields to a zerolog event.
func (e *SelectionError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("candidates", e.Candidates).
		Int("failed", e.Failed).
		Str("type", "SelectionError")
}

// NewSelectionError creates a SelectionError with a stack trace.
func NewSelectionError(candidates, failed int) error {
	err := &SelectionError{Candidates: candidates, Failed: failed}
	return errors.WithStack(err)
}

// AlignmentError reports a mismatch between the predictor layers supplied for
// prediction and the predictor set the model was trained on. The run must
// halt rather than silently mis-align columns, and the message names every
// offending layer.
type AlignmentError struct {
	Missing []string // trained predictors with no matching layer
	Extra   []string // supplied layers the model never saw
}

func (e *AlignmentError) Error() string {
	var b strings.Builder
	b.WriteString("habmap: predictor layers do not match the trained model")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, "; extra: %s", strings.Join(e.Extra, ", "))
	}
	return b.String()
}

// MarshalZerologObject adds structured fields to a zerolog event.
func (e *AlignmentError) MarshalZerologObject(event *zerolog.Event) {
	event.Strs("missing", e.Missing).
		Strs("extra", e.Extra).
		Str("type", "AlignmentError")
}

// NewAlignmentError creates an AlignmentError with a stack trace.
func NewAlignmentError(missing, extra []string) error {
	err := &AlignmentError{Missing: missing, Extra: extra}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Input and state errors
//
// ===========================================================================

// NotFittedError reports a Predict (or similar) call on a model that has not
// been fitted.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("habmap: %s: model is not fitted yet; call Fit before %s", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError reports input whose shape does not match what an operation
// expects.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/predictors
}

func (e *DimensionError) Error() string {
	axisName := "predictors"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("habmap: %s: dimension mismatch on axis %d (%s): expected %d, got %d",
		e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError reports an argument whose value is invalid for the operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("habmap: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// SchemaError reports a tabular input whose columns do not satisfy the
// configured schema (missing response column, duplicate predictor names).
type SchemaError struct {
	Path    string
	Column  string
	Problem string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("habmap: %s: column %q: %s", e.Path, e.Column, e.Problem)
}

// MarshalZerologObject adds structured fields to a zerolog event.
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("column", e.Column).
		Str("problem", e.Problem).
		Str("type", "SchemaError")
}

// NewSchemaError creates a SchemaError with a stack trace.
func NewSchemaError(path, column, problem string) error {
	err := &SchemaError{Path: path, Column: column, Problem: problem}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common sentinel errors
//
// ===========================================================================

var (
	// ErrEmptyData is returned when an operation receives no rows.
	ErrEmptyData = New("empty data")

	// ErrNoValidCells is returned when a raster operation finds no cell with
	// complete predictor data.
	ErrNoValidCells = New("no valid cells")
)
