package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Default messages of the error envelope.
const (
	DefaultServerMessage  = "Network Error or Internal Server Error"
	DefaultMessage        = "An unexpected error occurred"
	ErrorCodeServer       = "Server Error"
	ErrorCodeBadRequest   = "Bad Request"
	networkFailureStatus  = http.StatusInternalServerError
	validationErrorStatus = http.StatusBadRequest
)

// ErrMalformedResponse is returned when a 2xx body does not have the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// Kind classifies an APIError.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindServer     Kind = "server"
	KindNetwork    Kind = "network"
)

// APIError is the normalized failure of every remote call. It serializes to
// the {statusCode, message, error} envelope the backend uses.
type APIError struct {
	StatusCode int      `json:"statusCode"`
	Message    []string `json:"message"`
	ErrorCode  string   `json:"error"`

	Kind     Kind   `json:"-"`
	Endpoint string `json:"-"`
	cause    error
}

// Error returns the serialized envelope.
func (e *APIError) Error() string {
	return string(e.JSON())
}

// JSON returns the envelope as JSON.
func (e *APIError) JSON() []byte {
	msgs := e.Message
	if msgs == nil {
		msgs = []string{}
	}
	payload, _ := json.Marshal(struct {
		StatusCode int      `json:"statusCode"`
		Message    []string `json:"message"`
		Error      string   `json:"error"`
	}{e.StatusCode, msgs, e.ErrorCode})
	return payload
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Retryable reports whether repeating the call may succeed.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindServer:
		return true
	case KindNetwork:
		return !errors.Is(e.cause, context.Canceled) && !errors.Is(e.cause, context.DeadlineExceeded)
	default:
		return false
	}
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsKind reports whether err is an APIError of kind.
func IsKind(err error, kind Kind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// NewValidationError builds the error for input rejected before or after a
// call without an HTTP failure. cause may be nil.
func NewValidationError(messages []string, cause error) *APIError {
	if len(messages) == 0 {
		messages = []string{DefaultMessage}
	}
	return &APIError{
		StatusCode: validationErrorStatus,
		Message:    messages,
		ErrorCode:  ErrorCodeBadRequest,
		Kind:       KindValidation,
		cause:      cause,
	}
}

func networkError(endpoint string, cause error) *APIError {
	return &APIError{
		StatusCode: networkFailureStatus,
		Message:    []string{DefaultServerMessage},
		ErrorCode:  ErrorCodeServer,
		Kind:       KindNetwork,
		Endpoint:   endpoint,
		cause:      cause,
	}
}

// normalizeError maps a non-2xx response to an APIError. Missing fields of a
// structured body take defaults; bodies that are not JSON objects take the
// defaults for their status class.
func normalizeError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Kind: kindOf(status), Endpoint: endpoint}

	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		if status >= http.StatusInternalServerError {
			apiErr.Message = []string{DefaultServerMessage}
			apiErr.ErrorCode = ErrorCodeServer
		} else {
			apiErr.Message = []string{DefaultMessage}
			apiErr.ErrorCode = ErrorCodeBadRequest
		}
		return apiErr
	}

	parsed := gjson.ParseBytes(body)
	apiErr.Message = messagesOf(parsed.Get("message"))
	if len(apiErr.Message) == 0 {
		apiErr.Message = []string{DefaultMessage}
	}

	apiErr.ErrorCode = parsed.Get("error").String()
	if apiErr.ErrorCode == "" {
		if status >= http.StatusInternalServerError {
			apiErr.ErrorCode = ErrorCodeServer
		} else {
			apiErr.ErrorCode = ErrorCodeBadRequest
		}
	}
	return apiErr
}

func kindOf(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= http.StatusInternalServerError:
		return KindServer
	default:
		return KindValidation
	}
}

// messagesOf reads a message field sent either as a string or an array.
func messagesOf(v gjson.Result) []string {
	switch {
	case v.IsArray():
		var out []string
		for _, item := range v.Array() {
			if s := item.String(); s != "" {
				out = append(out, s)
			}
		}
		return out
	case v.Type == gjson.String && v.Str != "":
		return []string{v.Str}
	default:
		return nil
	}
}

// Messages is a message field that may be a string, an array or null.
type Messages []string

// UnmarshalJSON accepts both shapes of the message field.
func (m *Messages) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid message field")
	}
	*m = messagesOf(gjson.ParseBytes(data))
	return nil
}

// First returns the first message or fallback.
func (m Messages) First(fallback string) string {
	if len(m) == 0 {
		return fallback
	}
	return m[0]
}
