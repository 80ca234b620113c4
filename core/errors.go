package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorInvalidCallback         = "QBO_INVALID_CALLBACK"
	ErrorInvalidOrExpiredState   = "QBO_INVALID_OR_EXPIRED_STATE"
	ErrorExchangeFailed          = "QBO_EXCHANGE_FAILED"
	ErrorRefreshFailed           = "QBO_REFRESH_FAILED"
	ErrorReauthorizationRequired = "QBO_REAUTHORIZATION_REQUIRED"
	ErrorNotConnected            = "QBO_NOT_CONNECTED"
	ErrorCodec                   = "QBO_CODEC_ERROR"
	ErrorTransport               = "QBO_TRANSPORT_ERROR"
	ErrorProviderUnauthorized    = "QBO_PROVIDER_UNAUTHORIZED"
	ErrorProviderRequestFailed   = "QBO_PROVIDER_REQUEST_FAILED"
	ErrorBadInput                = "QBO_BAD_INPUT"
	ErrorInternal                = "QBO_INTERNAL_ERROR"
)

var (
	ErrAttemptNotFound    = errors.New("core: authorization attempt not found or expired")
	ErrConnectionNotFound = errors.New("core: connection not found")
)

func NewInvalidCallbackError(message string) *goerrors.Error {
	return newQuickBooksError(message, goerrors.CategoryBadInput, ErrorInvalidCallback)
}

func NewInvalidOrExpiredStateError() *goerrors.Error {
	return newQuickBooksError("authorization state is invalid or expired", goerrors.CategoryAuth, ErrorInvalidOrExpiredState)
}

func NewNotConnectedError(ownerID string) *goerrors.Error {
	return newQuickBooksError("owner has no quickbooks connection", goerrors.CategoryNotFound, ErrorNotConnected).
		WithMetadata(map[string]any{"owner_id": ownerID})
}

func NewReauthorizationRequiredError(ownerID string, cause error) *goerrors.Error {
	message := "quickbooks authorization must be renewed"
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryAuth, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryAuth)
	}
	err = err.WithTextCode(ErrorReauthorizationRequired).
		WithMetadata(map[string]any{"owner_id": ownerID})
	return ensureErrorEnvelope(err)
}

func NewCodecError(source error, message string) *goerrors.Error {
	return wrapQuickBooksError(source, goerrors.CategoryInternal, ErrorCodec, message)
}

// NewTransportError marks a network failure or timeout talking to Intuit.
func NewTransportError(source error, message string) *goerrors.Error {
	err := wrapQuickBooksError(source, goerrors.CategoryExternal, ErrorTransport, message)
	err.Code = http.StatusGatewayTimeout
	return err
}

// NewProviderUnauthorizedError marks an API call rejected because the access
// token is no longer accepted.
func NewProviderUnauthorizedError(message string, metadata map[string]any) *goerrors.Error {
	err := newQuickBooksError(message, goerrors.CategoryAuth, ErrorProviderUnauthorized)
	if len(metadata) > 0 {
		err.WithMetadata(RedactSensitiveMap(metadata))
	}
	return err
}

// NewProviderRequestError reports a non-auth API failure. Client errors keep
// their status; everything else surfaces as 502.
func NewProviderRequestError(status int, message string, metadata map[string]any) *goerrors.Error {
	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	switch {
	case status == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
		code = status
	case status >= 400 && status < 500:
		category = goerrors.CategoryBadInput
		code = status
	}
	err := newQuickBooksError(message, category, ErrorProviderRequestFailed)
	err.Code = code
	if len(metadata) > 0 {
		err.WithMetadata(RedactSensitiveMap(metadata))
	}
	return err
}

func newExchangeFailedError(source error) *goerrors.Error {
	err := wrapQuickBooksError(source, goerrors.CategoryExternal, ErrorExchangeFailed, "authorization code exchange failed")
	err.Code = http.StatusBadGateway
	return err
}

func newRefreshFailedError(source error) *goerrors.Error {
	err := wrapQuickBooksError(source, goerrors.CategoryExternal, ErrorRefreshFailed, "token refresh failed")
	err.Code = http.StatusBadGateway
	return err
}

func newBadInputError(message string) *goerrors.Error {
	return newQuickBooksError(message, goerrors.CategoryBadInput, ErrorBadInput)
}

func newQuickBooksError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func wrapQuickBooksError(source error, category goerrors.Category, textCode string, message string) *goerrors.Error {
	if source == nil {
		return newQuickBooksError(message, category, textCode)
	}
	return ensureErrorEnvelope(
		goerrors.Wrap(source, category, message).
			WithTextCode(textCode),
	)
}

// IsKind reports whether err carries the given text code anywhere in its chain.
func IsKind(err error, textCode string) bool {
	if err == nil {
		return false
	}
	textCode = strings.TrimSpace(textCode)
	for current := err; current != nil; current = errors.Unwrap(current) {
		if richErr, ok := current.(*goerrors.Error); ok && richErr.TextCode == textCode {
			return true
		}
	}
	return false
}

func IsNotConnected(err error) bool { return IsKind(err, ErrorNotConnected) }

func IsReauthorizationRequired(err error) bool { return IsKind(err, ErrorReauthorizationRequired) }

func IsInvalidOrExpiredState(err error) bool { return IsKind(err, ErrorInvalidOrExpiredState) }

func IsInvalidCallback(err error) bool { return IsKind(err, ErrorInvalidCallback) }

func IsCodecError(err error) bool { return IsKind(err, ErrorCodec) }

// IsTransportFailure reports network errors, deadline expiry and errors already
// classified as transport failures.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if IsKind(err, ErrorTransport) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsProviderAuthFailure reports whether an API call failed because Intuit no
// longer accepts the access token.
func IsProviderAuthFailure(err error) bool {
	return IsKind(err, ErrorProviderUnauthorized)
}

func quickBooksErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	if IsTransportFailure(err) {
		return NewTransportError(err, "quickbooks request did not complete")
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		return NewInvalidOrExpiredStateError()
	case errors.Is(err, ErrConnectionNotFound):
		return newQuickBooksError(err.Error(), goerrors.CategoryNotFound, ErrorNotConnected)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newQuickBooksError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
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
	case goerrors.CategoryNotFound:
		return ErrorNotConnected
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorReauthorizationRequired
	case goerrors.CategoryExternal:
		return ErrorProviderRequestFailed
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
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
