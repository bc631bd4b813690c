// Package mcperr defines the error taxonomy shared by the registry, the
// dispatcher and the transports, and the single mapping from that taxonomy
// to JSON-RPC error objects.
//
// Every failure that reaches the wire is classified by Kind. Errors that
// carry no Kind are treated as InternalError and are reported to the peer
// with a fixed message; their detail is only ever logged.
package mcperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternalError Kind = iota
	KindMalformedMessage
	KindProtocolViolation
	KindDuplicateRequestID
	KindMethodNotFound
	KindInvalidParams
	KindHandlerFailure
	// KindDuplicateName is raised at registration time and never sent to a peer.
	KindDuplicateName
)

func (k Kind) String() string {
	switch k {
	case KindMalformedMessage:
		return "MalformedMessage"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindDuplicateRequestID:
		return "DuplicateRequestId"
	case KindMethodNotFound:
		return "MethodNotFound"
	case KindInvalidParams:
		return "InvalidParams"
	case KindHandlerFailure:
		return "HandlerFailure"
	case KindDuplicateName:
		return "DuplicateName"
	default:
		return "InternalError"
	}
}

// JSON-RPC codes for each Kind.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternalError      = -32603
	CodeHandlerFailure     = -32000
	CodeDuplicateRequestID = -32001
)

// Code returns the JSON-RPC error code for k.
func (k Kind) Code() int {
	switch k {
	case KindMalformedMessage:
		return CodeParseError
	case KindProtocolViolation:
		return CodeInvalidRequest
	case KindDuplicateRequestID:
		return CodeDuplicateRequestID
	case KindMethodNotFound:
		return CodeMethodNotFound
	case KindInvalidParams:
		return CodeInvalidParams
	case KindHandlerFailure:
		return CodeHandlerFailure
	default:
		return CodeInternalError
	}
}

// InternalErrorMessage is the only message sent for internal failures.
const InternalErrorMessage = "internal error"

// Error is a classified failure. Message is safe to show to the peer; Err
// is the underlying cause and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Data    any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind with no message, which lets the
// package-level sentinels below be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// WithData returns a copy of e carrying data.
func (e *Error) WithData(data any) *Error {
	cp := *e
	cp.Data = data
	return &cp
}

// Sentinels for errors.Is checks.
var (
	ErrMalformedMessage   = &Error{Kind: KindMalformedMessage}
	ErrProtocolViolation  = &Error{Kind: KindProtocolViolation}
	ErrDuplicateRequestID = &Error{Kind: KindDuplicateRequestID}
	ErrMethodNotFound     = &Error{Kind: KindMethodNotFound}
	ErrInvalidParams      = &Error{Kind: KindInvalidParams}
	ErrHandlerFailure     = &Error{Kind: KindHandlerFailure}
	ErrDuplicateName      = &Error{Kind: KindDuplicateName}
	ErrInternal           = &Error{Kind: KindInternalError}
)

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with a peer-safe message.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func MalformedMessage(err error) *Error {
	return Wrap(KindMalformedMessage, err, "parse error")
}

func ProtocolViolation(format string, args ...any) *Error {
	return New(KindProtocolViolation, format, args...)
}

func MethodNotFound(format string, args ...any) *Error {
	return New(KindMethodNotFound, format, args...)
}

func InvalidParams(format string, args ...any) *Error {
	return New(KindInvalidParams, format, args...)
}

// HandlerFailure reports a failure raised by a capability handler. The
// handler's own message is forwarded to the peer.
func HandlerFailure(err error) *Error {
	return Wrap(KindHandlerFailure, err, err.Error())
}

// KindOf classifies any error. Unclassified errors are KindInternalError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// Wire is the peer-visible rendering of an error.
type Wire struct {
	Code    int
	Message string
	Data    any
}

// ToWire maps err to the JSON-RPC error it should produce. Internal errors
// always render the fixed InternalErrorMessage with no data.
func ToWire(err error) Wire {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternalError || e.Kind == KindDuplicateName {
		return Wire{Code: CodeInternalError, Message: InternalErrorMessage}
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	return Wire{Code: e.Kind.Code(), Message: msg, Data: e.Data}
}
