package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel AppErrors by code so errors.Is(err, ErrUploadFailed)
// holds for any error carrying that code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

const (
	CodeUnsupportedFormat = "IMPORT_001"
	CodeStructural        = "IMPORT_002"
	CodeNoHeader          = "IMPORT_003"
	CodeUpload            = "AI_001"
	CodeExtraction        = "AI_002"
	CodeInvalidResponse   = "AI_003"
	CodeScrape            = "SCRAPE_001"
	CodeStore             = "STORE_001"
	CodeObjectNotFound    = "STORE_002"
)

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrUnsupportedFormat = &AppError{Code: CodeUnsupportedFormat, Message: "Unsupported file type"}
	ErrStructural        = &AppError{Code: CodeStructural, Message: "malformed document"}
	ErrNoHeader          = &AppError{Code: CodeNoHeader, Message: "no header row detected"}

	ErrUploadFailed     = &AppError{Code: CodeUpload, Message: "upload failed"}
	ErrExtraction       = &AppError{Code: CodeExtraction, Message: "extraction failed"}
	ErrInvalidResponse  = &AppError{Code: CodeInvalidResponse, Message: "invalid response"}
	ErrServiceNotConfig = &AppError{Code: "AI_004", Message: "no extraction service configured"}
	ErrRateLimited      = &AppError{Code: "AI_005", Message: "rate limit exceeded"}

	ErrScrapeFailed = &AppError{Code: CodeScrape, Message: "scrape failed"}

	ErrStore          = &AppError{Code: CodeStore, Message: "storage error"}
	ErrObjectNotFound = &AppError{Code: CodeObjectNotFound, Message: "object not found"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// UserMessage renders err the way import results show it: the AppError
// message followed by its cause, or the plain error text. A nil error or an
// empty message yields "Unknown error".
func UserMessage(err error) string {
	if err == nil {
		return "Unknown error"
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		switch {
		case appErr.Message == "" && appErr.Cause != nil:
			return UserMessage(appErr.Cause)
		case appErr.Message == "":
			return "Unknown error"
		case appErr.Cause != nil:
			if inner, ok := appErr.Cause.(*AppError); ok {
				return appErr.Message + ": " + UserMessage(inner)
			}
			return appErr.Message + ": " + appErr.Cause.Error()
		default:
			return appErr.Message
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
