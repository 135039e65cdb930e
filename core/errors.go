package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSignatureMissing       = "WEBHOOK_SIGNATURE_MISSING"
	ErrorSignatureInvalidFormat = "WEBHOOK_SIGNATURE_INVALID_FORMAT"
	ErrorSignatureMismatch      = "WEBHOOK_SIGNATURE_MISMATCH"
	ErrorTimestampExpired       = "WEBHOOK_TIMESTAMP_EXPIRED"

	ErrorSecretNotFound        = "WEBHOOK_SECRET_NOT_FOUND"
	ErrorSecretUnavailable     = "WEBHOOK_SECRET_UNAVAILABLE"
	ErrorProviderNotConfigured = "WEBHOOK_PROVIDER_NOT_CONFIGURED"
	ErrorHandlerNotFound       = "WEBHOOK_HANDLER_NOT_FOUND"
	ErrorConfigInvalid         = "WEBHOOK_CONFIG_INVALID"
	ErrorEndpointNotFound      = "WEBHOOK_ENDPOINT_NOT_FOUND"

	ErrorPayloadInvalid         = "WEBHOOK_PAYLOAD_INVALID"
	ErrorEventIDMissing         = "WEBHOOK_EVENT_ID_MISSING"
	ErrorPathNotFound           = "WEBHOOK_PATH_NOT_FOUND"
	ErrorConditionInvalidSyntax = "WEBHOOK_CONDITION_INVALID_SYNTAX"

	ErrorHandlerFailed   = "WEBHOOK_HANDLER_FAILED"
	ErrorHandlerRejected = "WEBHOOK_HANDLER_REJECTED"
	ErrorStorageFailed   = "WEBHOOK_STORAGE_FAILED"

	ErrorEventAlreadyRecorded = "WEBHOOK_EVENT_ALREADY_RECORDED"
	ErrorRecordNotFound       = "WEBHOOK_RECORD_NOT_FOUND"
	ErrorBadInput             = "WEBHOOK_BAD_INPUT"
	ErrorInternal             = "WEBHOOK_INTERNAL"
)

// ErrEventAlreadyRecorded is returned by EventTx.Record when the
// (provider, event_id) key exists. Match it with IsDuplicate.
var ErrEventAlreadyRecorded = errors.New("core: event already recorded")

func signatureError(message, textCode string, metadata map[string]any) *goerrors.Error {
	return newWebhookError(message, goerrors.CategoryAuth, http.StatusUnauthorized, textCode, goerrors.SeverityInfo, metadata)
}

func ErrSignatureMissing(header string) *goerrors.Error {
	return signatureError("webhook signature header is missing", ErrorSignatureMissing, map[string]any{"header": header})
}

func ErrSignatureInvalidFormat(scheme, reason string) *goerrors.Error {
	return signatureError("webhook signature is malformed: "+reason, ErrorSignatureInvalidFormat, map[string]any{"scheme": scheme})
}

func ErrSignatureMismatch(scheme string) *goerrors.Error {
	return signatureError("webhook signature does not match", ErrorSignatureMismatch, map[string]any{"scheme": scheme})
}

func ErrTimestampExpired(scheme string, skewSeconds int64) *goerrors.Error {
	return signatureError("webhook timestamp is outside the tolerance window", ErrorTimestampExpired, map[string]any{
		"scheme":       scheme,
		"skew_seconds": skewSeconds,
	})
}

func ErrSecretNotFound(ref string) *goerrors.Error {
	return newWebhookError("webhook secret is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, ErrorSecretNotFound, goerrors.SeverityWarning, map[string]any{"secret_ref": ref})
}

func ErrSecretUnavailable(ref string, cause error) *goerrors.Error {
	err := newWebhookError("webhook secret could not be resolved", goerrors.CategoryExternal, http.StatusInternalServerError, ErrorSecretUnavailable, goerrors.SeverityWarning, map[string]any{"secret_ref": ref})
	if cause != nil {
		err.Source = cause
	}
	return err
}

func ErrProviderNotConfigured(name string) *goerrors.Error {
	return newWebhookError("webhook provider is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, ErrorProviderNotConfigured, goerrors.SeverityWarning, map[string]any{"provider": name})
}

func ErrHandlerNotFound(target string) *goerrors.Error {
	return newWebhookError("no handler registered for target", goerrors.CategoryInternal, http.StatusInternalServerError, ErrorHandlerNotFound, goerrors.SeverityWarning, map[string]any{"target": target})
}

func ErrEndpointNotFound(endpoint string) *goerrors.Error {
	return newWebhookError("webhook endpoint is not configured", goerrors.CategoryNotFound, http.StatusNotFound, ErrorEndpointNotFound, goerrors.SeverityInfo, map[string]any{"endpoint": endpoint})
}

func ErrConfigInvalid(message string) *goerrors.Error {
	return newWebhookError(message, goerrors.CategoryValidation, http.StatusInternalServerError, ErrorConfigInvalid, goerrors.SeverityWarning, nil)
}

func ErrPayloadInvalid(cause error) *goerrors.Error {
	err := newWebhookError("webhook payload is not valid JSON", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorPayloadInvalid, goerrors.SeverityInfo, nil)
	if cause != nil {
		err.Source = cause
	}
	return err
}

func ErrEventIDMissing(source string) *goerrors.Error {
	return newWebhookError("webhook event id could not be resolved", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorEventIDMissing, goerrors.SeverityInfo, map[string]any{"source": source})
}

func ErrPathNotFound(path string) *goerrors.Error {
	return newWebhookError("payload path not found: "+path, goerrors.CategoryBadInput, http.StatusUnprocessableEntity, ErrorPathNotFound, goerrors.SeverityInfo, map[string]any{"path": path})
}

func ErrConditionInvalidSyntax(expr, reason string) *goerrors.Error {
	return newWebhookError("invalid condition: "+reason, goerrors.CategoryBadInput, http.StatusUnprocessableEntity, ErrorConditionInvalidSyntax, goerrors.SeverityInfo, map[string]any{"condition": expr})
}

func ErrHandlerFailed(target string, cause error) *goerrors.Error {
	err := newWebhookError("webhook handler failed", goerrors.CategoryHandler, http.StatusInternalServerError, ErrorHandlerFailed, goerrors.SeverityWarning, map[string]any{"target": target})
	if cause != nil {
		err.Source = cause
		err.Message = "webhook handler failed: " + cause.Error()
	}
	return err
}

func ErrHandlerRejected(target, message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "webhook handler rejected the event"
	}
	return newWebhookError(message, goerrors.CategoryOperation, http.StatusUnprocessableEntity, ErrorHandlerRejected, goerrors.SeverityInfo, map[string]any{"target": target})
}

func ErrStorageFailed(operation string, cause error) *goerrors.Error {
	err := newWebhookError("webhook ledger "+operation+" failed", goerrors.CategoryInternal, http.StatusInternalServerError, ErrorStorageFailed, goerrors.SeverityWarning, map[string]any{"operation": operation})
	if cause != nil {
		err.Source = cause
	}
	return err
}

func ErrRecordNotFound(provider, eventID string) *goerrors.Error {
	return newWebhookError("webhook event record not found", goerrors.CategoryNotFound, http.StatusNotFound, ErrorRecordNotFound, goerrors.SeverityInfo, map[string]any{
		"provider": provider,
		"event_id": eventID,
	})
}

func newWebhookError(message string, category goerrors.Category, status int, textCode string, severity goerrors.Severity, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode).
		WithSeverity(severity)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// IsDuplicate reports whether err signals an existing ledger key.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrEventAlreadyRecorded) || HasTextCode(err, ErrorEventAlreadyRecorded)
}

// HasTextCode reports whether err wraps a go-errors envelope with textCode.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// ClientAttributable reports whether the error was caused by the caller
// rather than the service.
func ClientAttributable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Code >= 400 && richErr.Code < 500
}

// MapError normalizes any error into a go-errors envelope with an HTTP code
// and a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
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
		return ErrorBadInput
	case goerrors.CategoryAuth:
		return ErrorSignatureMismatch
	case goerrors.CategoryNotFound:
		return ErrorRecordNotFound
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
