package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoFile             = errors.New("no file")
	ErrFileTooLarge       = errors.New("file too large")
	ErrInvalidPromptType  = errors.New("invalid promptType")
	ErrSubmissionInFlight = errors.New("submission already in flight")
)

// ErrorKind tags a SubmissionError.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindUploadFailed   ErrorKind = "upload_failed"
	KindWorkflowFailed ErrorKind = "workflow_failed"
	KindNetwork        ErrorKind = "network"
)

// ProviderStatusError is returned by provider clients when the remote end
// answered with a non-success status.
type ProviderStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// SubmissionError is the failure taxonomy of the image-to-prompt pipeline.
type SubmissionError struct {
	Kind         ErrorKind
	Message      string
	StatusCode   int
	ProviderBody string
	Cause        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to the status returned by the inbound endpoint.
func (e *SubmissionError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUploadFailed, KindWorkflowFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// OutcomeStatus maps the error kind onto the audit status.
func (e *SubmissionError) OutcomeStatus() OutcomeStatus {
	switch e.Kind {
	case KindUploadFailed:
		return OutcomeUploadFailed
	case KindWorkflowFailed:
		return OutcomeWorkflowFailed
	default:
		return OutcomeRequestFailed
	}
}

func UploadFailed(status int, body string) *SubmissionError {
	return &SubmissionError{Kind: KindUploadFailed, Message: "coze upload failed", StatusCode: status, ProviderBody: body}
}

func WorkflowFailed(status int, body string) *SubmissionError {
	return &SubmissionError{Kind: KindWorkflowFailed, Message: "coze workflow run failed", StatusCode: status, ProviderBody: body}
}

// RequestError wraps a transport or encoding failure. Message keeps the
// cause text because the 500 body reports it.
func RequestError(err error) *SubmissionError {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	return &SubmissionError{Kind: KindNetwork, Message: msg, Cause: err}
}

// ValidationError wraps a client-side rejection such as ErrNoFile.
func ValidationError(err error) *SubmissionError {
	return &SubmissionError{Kind: KindValidation, Message: err.Error(), Cause: err}
}

// AsSubmissionError extracts a *SubmissionError from err's chain.
func AsSubmissionError(err error) (*SubmissionError, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
