package orchestrator

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2.
// Examples include configuration errors, discovery failures and a WebDriver
// server that never became ready.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// ConfigurationError is raised before any process or server is touched,
// e.g. when an unknown environment id is requested.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError checks if the error is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return err != nil && errors.As(err, &cfgErr)
}

// DiscoveryError is raised when test module enumeration fails in worker-pool
// mode, before any child is spawned.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery error: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// NewDiscoveryError creates a new DiscoveryError
func NewDiscoveryError(err error) *DiscoveryError {
	return &DiscoveryError{Err: err}
}

// IsDiscoveryError checks if the error is or wraps a DiscoveryError
func IsDiscoveryError(err error) bool {
	var discErr *DiscoveryError
	return err != nil && errors.As(err, &discErr)
}

// UnitFailureError represents one or more failed work units (exit code 1)
type UnitFailureError struct {
	Message string
}

func (e *UnitFailureError) Error() string {
	return fmt.Sprintf("unit failure: %s", e.Message)
}

// NewUnitFailureError creates a new UnitFailureError
func NewUnitFailureError(message string) *UnitFailureError {
	return &UnitFailureError{Message: message}
}

// IsUnitFailureError checks if the error is or wraps a UnitFailureError
func IsUnitFailureError(err error) bool {
	var unitErr *UnitFailureError
	return err != nil && errors.As(err, &unitErr)
}
