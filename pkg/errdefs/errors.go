// Package errdefs defines the error taxonomy used across the runtime.
// Every failure is tagged with a Kind so callers can route it without
// inspecting message text.
package errdefs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown is the zero value for errors that carry no kind.
	KindUnknown Kind = iota

	// KindConfig marks missing or invalid settings. Fatal at startup.
	KindConfig

	// KindLLMTransient marks network errors, timeouts, rate limits and
	// 5xx responses from the chat endpoint. Retried by the LLM client.
	KindLLMTransient

	// KindLLMPermanent marks auth, quota and schema-invalid payload
	// errors. Surfaced immediately; malformed tool invocations route
	// the reasoner into its recovery turn.
	KindLLMPermanent

	// KindToolValidation marks arguments that violate a tool's schema
	// or the sandbox rules. Surfaced as an observation, never retried.
	KindToolValidation

	// KindToolExecution marks runtime failures inside a tool.
	KindToolExecution

	// KindToolTimeout marks a tool call that exceeded its deadline.
	KindToolTimeout

	// KindSafety marks blocked paths, blacklisted commands and denied
	// privileged operations.
	KindSafety

	// KindBudget marks an exhausted per-task token budget.
	KindBudget

	// KindCancelled marks deadline expiry or user abort.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindLLMTransient:
		return "llm_transient"
	case KindLLMPermanent:
		return "llm_permanent"
	case KindToolValidation:
		return "tool_validation"
	case KindToolExecution:
		return "tool_execution"
	case KindToolTimeout:
		return "tool_timeout"
	case KindSafety:
		return "safety"
	case KindBudget:
		return "budget"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the single error type used by the runtime. Details carries
// structured context (paths, sizes, tool names) consumed by the error
// memory and by remediation rendering.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail attaches a structured detail and returns the same error
// for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value if present.
func (e *Error) Detail(key string) (any, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// KindOf extracts the Kind from an error chain. Errors that do not
// carry a taxonomy kind report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the error is safe to retry at the
// transport level.
func IsRetryable(err error) bool {
	return KindOf(err) == KindLLMTransient
}

// ShouldAlertUser reports whether the error must be surfaced to the
// user verbatim rather than absorbed as an observation.
func ShouldAlertUser(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindBudget, KindSafety:
		return true
	default:
		return false
	}
}
