package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced through the RPC envelope.
const (
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeInvalidAction        = "INVALID_ACTION"
	CodeWebhookNotFound      = "WEBHOOK_NOT_FOUND"
	CodeLearnerNotFound      = "LEARNER_NOT_FOUND"
	CodeCourseNotFound       = "COURSE_NOT_FOUND"
	CodeOrganizationNotFound = "ORGANIZATION_NOT_FOUND"
	CodeCertificateNotFound  = "CERTIFICATE_NOT_FOUND"
	CodeLearnerNotCompleted  = "LEARNER_NOT_COMPLETED"
	CodePDFGeneration        = "PDF_GENERATION_ERROR"
	CodeEmailDelivery        = "EMAIL_DELIVERY_FAILED"
	CodeEnqueue              = "ENQUEUE_ERROR"
	CodeNoLearnersToResend   = "NO_LEARNERS_TO_RESEND"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError carries the machine-readable code and HTTP status alongside the
// message; handlers map it straight into the envelope error object.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

func Wrap(code string, status int, message string, err error) *AppError {
	return &AppError{Code: code, Status: status, Message: message, Err: err}
}

func NotFound(code, message string) *AppError {
	return &AppError{Code: code, Status: http.StatusNotFound, Message: message}
}

func BadRequest(code, message string) *AppError {
	return &AppError{Code: code, Status: http.StatusBadRequest, Message: message}
}

func Unauthorized(code, message string) *AppError {
	return &AppError{Code: code, Status: http.StatusUnauthorized, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// AsAppError unwraps err looking for an AppError; anything else becomes an
// internal error so unexpected failures never leak raw messages.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
