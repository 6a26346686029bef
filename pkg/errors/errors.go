// Package errors defines the engine's error kinds (spec §7): method_not_found,
// conflict, strategy_error, execution_error, reference_resolution, cycle,
// missing_dependency, cache_io, hook_handler. Each kind has its own type so callers
// can branch with errors.As/errors.Is instead of string matching.
package errors

import "fmt"

// Kind names the semantic error category, independent of the concrete Go type.
type Kind string

const (
	KindMethodNotFound      Kind = "method_not_found"
	KindConflict            Kind = "conflict"
	KindStrategy            Kind = "strategy_error"
	KindExecution           Kind = "execution_error"
	KindReferenceResolution Kind = "reference_resolution"
	KindCycle               Kind = "cycle"
	KindMissingDependency   Kind = "missing_dependency"
	KindCacheIO             Kind = "cache_io"
	KindHookHandler         Kind = "hook_handler"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MethodNotFoundError: no candidates for (component, method), or engine_override
// matched nothing. Fatal to the step.
type MethodNotFoundError struct {
	Component string
	Method    string
	Engine    string // set when an engine_override lookup failed
}

func NewMethodNotFoundError(component, method string) error {
	return &MethodNotFoundError{Component: component, Method: method}
}

func NewEngineNotFoundError(component, method, engine string) error {
	return &MethodNotFoundError{Component: component, Method: method, Engine: engine}
}

func (e *MethodNotFoundError) Kind() Kind { return KindMethodNotFound }

func (e *MethodNotFoundError) Error() string {
	if e.Engine != "" {
		return fmt.Sprintf("method_not_found: no engine %q registered for %s::%s. Hint: check the registry with `list --component %s`", e.Engine, e.Component, e.Method, e.Component)
	}
	return fmt.Sprintf("method_not_found: no implementation registered for %s::%s. Hint: has the owning plugin/module been registered?", e.Component, e.Method)
}

// ConflictError: registration collision under conflict_mode=error.
type ConflictError struct {
	FullKey string
}

func NewConflictError(fullKey string) error {
	return &ConflictError{FullKey: fullKey}
}

func (e *ConflictError) Kind() Kind { return KindConflict }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %q is already registered. Hint: set conflict_mode=warn to overwrite, or conflict_mode=ignore to keep the first registration", e.FullKey)
}

// StrategyError: unknown strategy name, or engine_override without an argument.
type StrategyError struct {
	Strategy string
	Message  string
}

func NewStrategyError(strategy, message string) error {
	return &StrategyError{Strategy: strategy, Message: message}
}

func (e *StrategyError) Kind() Kind { return KindStrategy }

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy_error: %s (strategy=%q)", e.Message, e.Strategy)
}

// ExecutionError: callable raised, input-style validation failed, or an unbound
// required parameter remained. Retried per step config, then fatal.
type ExecutionError struct {
	StepID string
	Err    error
}

func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Kind() Kind { return KindExecution }

func (e *ExecutionError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("execution_error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution_error: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReferenceResolutionError: a referenced (step, output) was not present at
// invocation time. Fatal to the step.
type ReferenceResolutionError struct {
	Reference string
	StepID    string
	Output    string
}

func NewReferenceResolutionError(stepID, reference string) error {
	return &ReferenceResolutionError{StepID: stepID, Reference: reference}
}

func (e *ReferenceResolutionError) Kind() Kind { return KindReferenceResolution }

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("reference_resolution: step %q could not resolve %q. Hint: confirm the referenced step runs before this one and declares the output", e.StepID, e.Reference)
}

// CycleError: the DAG has a cycle. Reports one concrete cycle path.
type CycleError struct {
	Cycle []string
}

func NewCycleError(cycle []string) error {
	return &CycleError{Cycle: cycle}
}

func (e *CycleError) Kind() Kind { return KindCycle }

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle: dependency cycle detected: %v", e.Cycle)
}

// MissingDependencyError: a step depends on an undeclared step. Fatal in strict
// mode, a warning in lax mode (policy enforced by the caller, not this type).
type MissingDependencyError struct {
	StepID     string
	Dependency string
}

func NewMissingDependencyError(stepID, dependency string) error {
	return &MissingDependencyError{StepID: stepID, Dependency: dependency}
}

func (e *MissingDependencyError) Kind() Kind { return KindMissingDependency }

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing_dependency: step %q depends on undeclared step %q", e.StepID, e.Dependency)
}

// CacheIOError: reading/writing cache files failed. Non-fatal — logged, execution
// proceeds without the cache.
type CacheIOError struct {
	Path string
	Err  error
}

func NewCacheIOError(path string, err error) error {
	return &CacheIOError{Path: path, Err: err}
}

func (e *CacheIOError) Kind() Kind { return KindCacheIO }

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache_io: %s: %v", e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HookHandlerError: a hook handler raised. Swallowed by the HookBus, logged, and
// counted; never propagated to the caller of emit.
type HookHandlerError struct {
	Event string
	Err   error
}

func NewHookHandlerError(event string, err error) error {
	return &HookHandlerError{Event: event, Err: err}
}

func (e *HookHandlerError) Kind() Kind { return KindHookHandler }

func (e *HookHandlerError) Error() string {
	return fmt.Sprintf("hook_handler: event %q handler failed: %v", e.Event, e.Err)
}

func (e *HookHandlerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kinded is implemented by every error type above except ParseError and
// ValidationError; use errors.As to recover the semantic Kind from a wrapped
// error chain.
type Kinded interface {
	error
	Kind() Kind
}
