package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edouard/botwire/internal/schema"
)

// Sentinel errors. Schema mismatches are detected before anything is sent.
var (
	ErrUnknownMethod            = schema.ErrUnknownMethod
	ErrUnknownParameter         = errors.New("unknown parameter")
	ErrMissingRequiredParameter = errors.New("missing required parameter")
	ErrDecode                   = errors.New("decode")
)

// TeleError is an application-level failure reported by the API with
// "ok": false.
type TeleError struct {
	Description string
	Code        int
	Parameters  *ResponseParameters
}

func (e *TeleError) Error() string {
	return e.Description
}

// ErrorCode returns the numeric error code sent by the API.
func (e *TeleError) ErrorCode() int {
	return e.Code
}

// RetryAfter returns how long the API asked the caller to wait before
// repeating the request, or zero.
func (e *TeleError) RetryAfter() time.Duration {
	if e.Parameters == nil {
		return 0
	}
	return time.Duration(e.Parameters.RetryAfter) * time.Second
}

// MigrateToChatID returns the new identifier of a group upgraded to a
// supergroup, or zero.
func (e *TeleError) MigrateToChatID() int64 {
	if e.Parameters == nil {
		return 0
	}
	return e.Parameters.MigrateToChatID
}

// IsRetryable returns true for flood control (429) and server-side (5xx) errors.
func (e *TeleError) IsRetryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// DecodeError reports a response that does not match the declared result
// type. Path locates the offending value, e.g. "result.chat.id".
type DecodeError struct {
	Path string
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes every DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErrorf(path, format string, args ...any) *DecodeError {
	return &DecodeError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// MarshalError reports an argument that does not fit its declared type.
type MarshalError struct {
	Path string
	Type *schema.Type
	Msg  string
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("marshal %s: %s (declared %s)", e.Path, e.Msg, e.Type)
}

func marshalErrorf(path string, t *schema.Type, format string, args ...any) *MarshalError {
	return &MarshalError{Path: path, Type: t, Msg: fmt.Sprintf(format, args...)}
}
