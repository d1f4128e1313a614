package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rhuss/groqchat/pkg/debug"
)

// ErrorKind is the category of a completion failure.
type ErrorKind string

const (
	// KindValidation is a caller error detected before any network activity.
	KindValidation ErrorKind = "validation"
	// KindTransport is a connection or stream-level failure.
	KindTransport ErrorKind = "transport"
	// KindAPI is a non-success status with a structured error body.
	KindAPI ErrorKind = "api"
	// KindDecode is a success or error body that does not match its schema.
	KindDecode ErrorKind = "decode"
)

// Sentinel causes, reachable with errors.Is.
var (
	ErrEmptyHistory    = errors.New("message history is empty")
	ErrStreamMismatch  = errors.New("stream flag does not match dispatch mode")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrStreamTruncated = errors.New("event stream ended before [DONE]")
)

// maxErrorBody bounds how much of an error body is read.
const maxErrorBody = 1 << 20

// Error is the single error type returned by the Client.
type Error struct {
	Kind ErrorKind

	// StatusCode is the HTTP status observed on the response, or 0 when no
	// response was received.
	StatusCode int

	// Type, Code and Param come from the endpoint's error body.
	Type  string
	Code  string
	Param string

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("completion ")
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d", e.StatusCode)
		if e.Type != "" {
			b.WriteString(", ")
			b.WriteString(e.Type)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " (code: %s)", e.Code)
	}
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsValidation(err error) bool { return isKind(err, KindValidation) }
func IsTransport(err error) bool  { return isKind(err, KindTransport) }
func IsAPI(err error) bool        { return isKind(err, KindAPI) }
func IsDecode(err error) bool     { return isKind(err, KindDecode) }

func isKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func newValidationError(cause error, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Cause: cause}
}

func newTransportError(message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, Cause: cause}
}

func newDecodeError(status int, message string, cause error) *Error {
	return &Error{Kind: KindDecode, StatusCode: status, Message: message, Cause: cause}
}

// mapNetworkError converts a failure to obtain a response (connection
// refused, DNS, TLS, cancellation) into a transport error.
func mapNetworkError(err error) *Error {
	return newTransportError("endpoint connection error", err)
}

// mapHTTPError converts a non-success response into an API error. The body
// must decode as an ErrorResponse; otherwise the result is a decode error.
// Both carry the status code observed on the response.
func mapHTTPError(resp *http.Response) *Error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &Error{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Message:    "reading error body",
			Cause:      err,
		}
	}
	return decodeErrorBody(resp.StatusCode, data)
}

// decodeErrorBody parses data as an ErrorResponse and attaches status.
func decodeErrorBody(status int, data []byte) *Error {
	var body ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return newDecodeError(status,
			fmt.Sprintf("undecodable error body: %s", debug.Truncate(string(data), 200)), err)
	}
	if body.Error.Message == "" && body.Error.Type == "" {
		return newDecodeError(status,
			fmt.Sprintf("error body has no error object: %s", debug.Truncate(string(data), 200)), nil)
	}

	return &Error{
		Kind:       KindAPI,
		StatusCode: status,
		Type:       body.Error.Type,
		Code:       codeString(body.Error.Code),
		Param:      body.Error.Param,
		Message:    body.Error.Message,
	}
}

func codeString(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}
