// Package errors classifies errors raised while configuring, deploying and
// running flows.
//
// Every error that reaches an outer surface is mapped onto a small
// taxonomy:
//   - Configuration: the application source is invalid
//   - NotFound: an application or flow does not exist
//   - Operation: an operation failed while a flow ran
//   - Transient: the target is paused, undeployed or busy; retry may help
//   - Deploy: an application could not be built or initialized
//   - Cancelled: the caller's context ended the work
//
// Packages that own an error mark it with one of the constructors
// (NotFound, Transient, ...) or with Sentinel. Errors raised by the
// flowgraph and config packages are recognized by type.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
)

// Category represents how an error should be reported.
type Category int

const (
	// CategoryUnknown is used for errors nothing recognizes.
	CategoryUnknown Category = iota

	// CategoryConfiguration indicates an invalid application source.
	CategoryConfiguration

	// CategoryNotFound indicates a missing application or flow.
	CategoryNotFound

	// CategoryOperation indicates an operation failed during a run.
	CategoryOperation

	// CategoryTransient indicates retry will likely help.
	CategoryTransient

	// CategoryDeploy indicates an application failed to build.
	CategoryDeploy

	// CategoryCancelled indicates the caller cancelled the work.
	CategoryCancelled
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConfiguration:
		return "configuration"
	case CategoryNotFound:
		return "not_found"
	case CategoryOperation:
		return "operation"
	case CategoryTransient:
		return "transient"
	case CategoryDeploy:
		return "deploy"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code used to report the category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryConfiguration:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryTransient:
		return http.StatusServiceUnavailable
	case CategoryDeploy:
		return http.StatusUnprocessableEntity
	case CategoryCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error. It is nil for sentinels.
	Err error

	// Category indicates how this error is reported.
	Category Category

	// Context describes what was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	switch {
	case e.Err == nil:
		return e.Context
	case e.Context != "":
		return fmt.Sprintf("%s: %s", e.Context, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Sentinel creates a categorized sentinel for use with errors.Is.
func Sentinel(category Category, msg string) *CategorizedError {
	return &CategorizedError{Category: category, Context: msg}
}

// Configuration creates a configuration error.
func Configuration(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryConfiguration, context)
}

// NotFound creates a not-found error.
func NotFound(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryNotFound, context)
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Deploy creates a deploy error.
func Deploy(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryDeploy, context)
}

// Categorize determines how an error should be reported.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	// Already-categorized errors win over anything they wrap.
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var cancelErr *flowgraph.CancellationError
	if errors.As(err, &cancelErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return CategoryCancelled
	}

	var nodeErr *flowgraph.NodeError
	var panicErr *flowgraph.PanicError
	if errors.As(err, &nodeErr) || errors.As(err, &panicErr) {
		return CategoryOperation
	}

	if errors.Is(err, config.ErrInvalidConfig) {
		return CategoryConfiguration
	}
	var compileErr *flowgraph.CompileError
	var cycleErr *flowgraph.EmbedCycleError
	var routeErr *flowgraph.RouteError
	if errors.As(err, &compileErr) || errors.As(err, &cycleErr) || errors.As(err, &routeErr) {
		return CategoryConfiguration
	}
	for _, sentinel := range compileSentinels {
		if errors.Is(err, sentinel) {
			return CategoryConfiguration
		}
	}

	return CategoryUnknown
}

var compileSentinels = []error{
	flowgraph.ErrFlowNotFound,
	flowgraph.ErrAmbiguousFlow,
	flowgraph.ErrDuplicateFlow,
	flowgraph.ErrInvalidFlowName,
	flowgraph.ErrEmbedCycle,
	flowgraph.ErrUnknownRoute,
}

// HTTPStatus returns the status code used to report err.
func HTTPStatus(err error) int {
	return Categorize(err).HTTPStatus()
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
