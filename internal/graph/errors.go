package graph

import (
	"errors"
	"fmt"
)

// Error is a media graph error. Errors match by code through errors.Is, so
// callers compare against the exported sentinels:
//
//	if errors.Is(err, graph.ErrLinking) { ... }
type Error struct {
	Code    string
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Stage != "" {
		msg += " [" + e.Stage + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error codes
const (
	CodeElementInit         = "ELEMENT_INIT"
	CodeAddingElement       = "ADDING_ELEMENT"
	CodeElementAlreadyAdded = "ELEMENT_ALREADY_ADDED"
	CodeLinking             = "LINKING"
	CodeJunctionPatching    = "JUNCTION_PATCHING"
	CodeNotJunctionIO       = "NOT_JUNCTION_IO"
	CodeNotAudioVideoSource = "NOT_AUDIO_VIDEO_SOURCE"
	CodeNotStoreStreamSink  = "NOT_STORE_STREAM_SINK"
	CodeDeviceMissing       = "DEVICE_MISSING"
	CodeLocationMissing     = "LOCATION_MISSING"
	CodeLocationNotValid    = "LOCATION_NOT_VALID"
	CodeStreamInfo          = "STREAM_INFO_INCOMPLETE"
	CodeSwapTimeout         = "SWAP_TIMEOUT"
	CodeSwapCancelled       = "SWAP_CANCELLED"
	CodePipelineClosed      = "PIPELINE_CLOSED"
	CodeInvalidState        = "INVALID_STATE"
	CodeUnknownStage        = "UNKNOWN_STAGE"
	CodeUnknownOutput       = "UNKNOWN_OUTPUT"
	CodeInvalidCategory     = "INVALID_CATEGORY"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeEngine              = "ENGINE"
)

// Sentinels for errors.Is.
var (
	ErrElementInit         = &Error{Code: CodeElementInit}
	ErrAddingElement       = &Error{Code: CodeAddingElement}
	ErrElementAlreadyAdded = &Error{Code: CodeElementAlreadyAdded}
	ErrLinking             = &Error{Code: CodeLinking}
	ErrJunctionPatching    = &Error{Code: CodeJunctionPatching}
	ErrNotJunctionIO       = &Error{Code: CodeNotJunctionIO}
	ErrNotAudioVideoSource = &Error{Code: CodeNotAudioVideoSource}
	ErrNotStoreStreamSink  = &Error{Code: CodeNotStoreStreamSink}
	ErrDeviceMissing       = &Error{Code: CodeDeviceMissing}
	ErrLocationMissing     = &Error{Code: CodeLocationMissing}
	ErrLocationNotValid    = &Error{Code: CodeLocationNotValid}
	ErrStreamInfo          = &Error{Code: CodeStreamInfo}
	ErrSwapTimeout         = &Error{Code: CodeSwapTimeout}
	ErrSwapCancelled       = &Error{Code: CodeSwapCancelled}
	ErrPipelineClosed      = &Error{Code: CodePipelineClosed}
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrUnknownStage        = &Error{Code: CodeUnknownStage}
	ErrUnknownOutput       = &Error{Code: CodeUnknownOutput}
	ErrInvalidCategory     = &Error{Code: CodeInvalidCategory}
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument}
	ErrEngine              = &Error{Code: CodeEngine}
)

// NewError creates a new graph error.
func NewError(code, stage, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// IsTopology reports whether err denotes a malformed or duplicate graph
// request, which is never worth retrying.
func IsTopology(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case CodeJunctionPatching, CodeElementAlreadyAdded, CodeNotJunctionIO:
		return true
	}
	return false
}
