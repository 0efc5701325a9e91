package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorValidation        = "HOOKQUEUE_VALIDATION"
	ErrorTransient         = "HOOKQUEUE_TRANSIENT"
	ErrorReferenceNotFound = "HOOKQUEUE_REFERENCE_NOT_FOUND"
	ErrorNotification      = "HOOKQUEUE_NOTIFICATION"
	ErrorInternal          = "HOOKQUEUE_INTERNAL"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindTransient         ErrorKind = "transient"
	KindReferenceNotFound ErrorKind = "reference_not_found"
	KindNotification      ErrorKind = "notification"
	KindInternal          ErrorKind = "internal"
)

// NewValidationError reports a missing or malformed required field. The item
// is retried up to its attempt limit and then dead-lettered.
func NewValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation("hookqueue: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorValidation).
		WithMetadata(map[string]any{"field": field})
}

func NewTransientError(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryExternal).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(ErrorTransient)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorTransient)
}

// NewReferenceNotFoundError is non-fatal; callers continue with a nil reference.
func NewReferenceNotFoundError(entity string, externalID string) *goerrors.Error {
	return goerrors.Wrap(ErrEntityNotFound, goerrors.CategoryNotFound, "hookqueue: "+entity+" reference not found").
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorReferenceNotFound).
		WithMetadata(map[string]any{
			"entity":      entity,
			"external_id": externalID,
		})
}

func NewNotificationError(source error, channel string, eventName string) *goerrors.Error {
	message := "hookqueue: notification delivery failed"
	metadata := map[string]any{"channel": channel, "event": eventName}
	if source == nil {
		return goerrors.New(message, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(ErrorNotification).
			WithMetadata(metadata)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorNotification).
		WithMetadata(metadata)
}

func NewInternalError(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

// KindOf classifies any error into the pipeline taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.TextCode {
		case ErrorValidation:
			return KindValidation
		case ErrorTransient:
			return KindTransient
		case ErrorReferenceNotFound:
			return KindReferenceNotFound
		case ErrorNotification:
			return KindNotification
		case ErrorInternal:
			return KindInternal
		}
		switch rich.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return KindValidation
		case goerrors.CategoryNotFound:
			return KindReferenceNotFound
		case goerrors.CategoryExternal, goerrors.CategoryConflict, goerrors.CategoryRateLimit:
			return KindTransient
		}
	}
	switch {
	case errors.Is(err, ErrEntityNotFound), errors.Is(err, ErrLocationNotFound):
		return KindReferenceNotFound
	case errors.Is(err, ErrInvalidQueueType):
		return KindValidation
	case errors.Is(err, ErrLeaseLost):
		return KindTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "database is locked"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "serialization failure"):
		return KindTransient
	}
	return KindInternal
}

// MapError normalizes any error into a go-errors envelope with a pipeline text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	switch KindOf(err) {
	case KindValidation:
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).WithTextCode(ErrorValidation))
	case KindReferenceNotFound:
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).WithTextCode(ErrorReferenceNotFound))
	case KindTransient:
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryExternal, err.Error()).WithTextCode(ErrorTransient))
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryNotFound:
		return ErrorReferenceNotFound
	case goerrors.CategoryExternal, goerrors.CategoryConflict, goerrors.CategoryRateLimit:
		return ErrorTransient
	default:
		return ErrorInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorReason renders a short reason string suitable for analytics grouping.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		reason := strings.TrimSpace(rich.Message)
		if fields := rich.AllValidationErrors(); len(fields) > 0 {
			first := fields[0]
			reason = strings.TrimSpace(first.Field + ": " + first.Message)
		}
		if reason != "" {
			return reason
		}
	}
	return strings.TrimSpace(err.Error())
}
