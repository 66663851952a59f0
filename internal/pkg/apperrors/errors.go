package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	ErrConnectivity      Kind = "CONNECTIVITY"
	ErrConfigUnavailable Kind = "CONFIG_UNAVAILABLE"
	ErrQuoteUnavailable  Kind = "QUOTE_UNAVAILABLE"
	ErrSlippageExceeded  Kind = "SLIPPAGE_EXCEEDED"
	ErrSizing            Kind = "SIZING"
	ErrSubmission        Kind = "SUBMISSION"
	ErrClassification    Kind = "CLASSIFICATION"
	ErrInternal          Kind = "INTERNAL"
)

// AppError is the standard error struct for the application
type AppError struct {
	Kind       Kind   `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Cause      error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(kind Kind, msg string, cause error) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    msg,
		Cause:      cause,
		Suggestion: mapKindToSuggestion(kind),
	}
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// KindOf reports the kind of an error, or ErrInternal for untyped errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrInternal
}

func mapKindToSuggestion(k Kind) string {
	switch k {
	case ErrConnectivity:
		return "Check the RPC endpoint; the supervisor reconnects automatically."
	case ErrConfigUnavailable:
		return "Check the settings store and database connectivity."
	case ErrQuoteUnavailable:
		return "The order book is empty or unreachable for this token."
	case ErrSlippageExceeded:
		return "Price moved past the configured tolerance."
	case ErrSizing:
		return "Check copy_ratio and max_notional in the bot settings."
	case ErrSubmission:
		return "Check CLOB API credentials and account balance."
	default:
		return ""
	}
}
