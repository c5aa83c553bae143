// Package errors provides the error taxonomy and warning hooks shared by every
// package of lurcv. Errors are plain structs wrapped with a stack trace from
// cockroachdb/errors; match them with As or the Is* helpers.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Warnings
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("lurcv-warning: %v\n", w)
	}
	// set by pkg/log to avoid an import cycle
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the process-wide warning handler.
//
//	errors.SetWarningHandler(func(w error) {
//	    // drop warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc routes warnings to a zerolog backed logger.
// Passing nil restores the plain handler.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a warning. Warnings never stop a computation.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// UndefinedMetricWarning is raised when a metric cannot be computed for a fold,
// e.g. R² on a test fold whose target has no variance.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // value recorded instead
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning creates an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	Estimator errors
//
// ===========================================================================

// NotFittedError is returned when Predict or Score is called before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("lurcv: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError reports a row or column count that differs from the expected one.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("lurcv: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError reports an argument with an invalid value.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("lurcv: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError is a generic estimator failure (singular design, empty input...).
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lurcv: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("lurcv: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	Cross-validation errors
//
// ===========================================================================

// ConfigurationError reports a run that cannot start: unknown column names,
// inconsistent schemas between tables or invalid run parameters.
type ConfigurationError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("lurcv: configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("lurcv: configuration: %s: %s (got: %v)", e.Field, e.Reason, e.Value)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a ConfigurationError with a stack trace.
func NewConfigurationError(field, reason string, value interface{}) error {
	return errors.WithStack(&ConfigurationError{Field: field, Reason: reason, Value: value})
}

// InsufficientDataError reports a partition or design matrix too small to
// evaluate: an empty test fold, or fewer rows than regression parameters.
type InsufficientDataError struct {
	Op       string
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("lurcv: %s: insufficient data: need at least %d rows, got %d", e.Op, e.Required, e.Got)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("required", e.Required).
		Int("got", e.Got).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError creates an InsufficientDataError with a stack trace.
func NewInsufficientDataError(op string, required, got int) error {
	return errors.WithStack(&InsufficientDataError{Op: op, Required: required, Got: got})
}

// NoCandidateError is returned by the random search when its time budget ran
// out before a single candidate finished fitting.
type NoCandidateError struct {
	Budget string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("lurcv: random search: no candidate finished within the time budget of %s; raise the budget or lower the candidate cost", e.Budget)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *NoCandidateError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("budget", e.Budget).
		Str("type", "NoCandidateError")
}

// NewNoCandidateError creates a NoCandidateError with a stack trace.
func NewNoCandidateError(budget string) error {
	return errors.WithStack(&NoCandidateError{Budget: budget})
}

// StrategyDelegationError reports an external engine that is unreachable or
// returned a malformed result.
type StrategyDelegationError struct {
	Engine string
	Reason string
	Err    error
}

func (e *StrategyDelegationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lurcv: delegate %s: %s: %v", e.Engine, e.Reason, e.Err)
	}
	return fmt.Sprintf("lurcv: delegate %s: %s", e.Engine, e.Reason)
}

func (e *StrategyDelegationError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *StrategyDelegationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("engine", e.Engine).
		Str("reason", e.Reason).
		Str("type", "StrategyDelegationError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewStrategyDelegationError creates a StrategyDelegationError with a stack trace.
func NewStrategyDelegationError(engine, reason string, err error) error {
	return errors.WithStack(&StrategyDelegationError{Engine: engine, Reason: reason, Err: err})
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsInsufficientData reports whether err carries an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// IsNoCandidate reports whether err carries a NoCandidateError.
func IsNoCandidate(err error) bool {
	var target *NoCandidateError
	return errors.As(err, &target)
}

// IsStrategyDelegation reports whether err carries a StrategyDelegationError.
func IsStrategyDelegation(err error) bool {
	var target *StrategyDelegationError
	return errors.As(err, &target)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Numerical errors
//
// ===========================================================================

// NumericalInstabilityError reports NaN or Inf values where finite ones are required.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("lurcv: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	})
}

var (
	// ErrEmptyData is returned for inputs without rows.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a design matrix has no unique least squares solution.
	ErrSingularMatrix = New("singular matrix")
)
