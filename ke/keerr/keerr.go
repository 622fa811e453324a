// Package keerr defines the structured error taxonomy surfaced by the NTS-KE
// handshake driver: a stable Stage/Code pair wrapping the underlying cause
// so callers can branch with errors.As instead of matching error strings.
package keerr

import "fmt"

// Stage identifies which step of the handshake failed.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageConnect  Stage = "connect"
	StageTLS      Stage = "tls"
	StageIO       Stage = "io"
	StageParse    Stage = "parse"
	StageServer   Stage = "server"
	StageExporter Stage = "exporter"
)

// Code is a stable, programmatic error identifier.
type Code string

const (
	CodeResolutionFailure    Code = "resolution_failure"
	CodeNoIPv4AddrFound      Code = "no_ipv4_addr_found"
	CodeNoIPv6AddrFound      Code = "no_ipv6_addr_found"
	CodeConnectFailure       Code = "connect_failure"
	CodeTLSFailure           Code = "tls_failure"
	CodeIOFailure            Code = "io_failure"
	CodeUnknownCriticalRecord Code = "unknown_critical_record"
	CodeParseFailure         Code = "parse_failure"
	CodeServerError          Code = "server_error"
	CodeExporterFailure      Code = "exporter_failure"
)

// Error is a structured, programmatically identifiable handshake failure.
type Error struct {
	Stage Stage
	Code  Code
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("ntske: %s (%s): %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("ntske: %s (%s)", e.Stage, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a structured Error around err.
func Wrap(stage Stage, code Code, err error) error {
	return &Error{Stage: stage, Code: code, Err: err}
}
