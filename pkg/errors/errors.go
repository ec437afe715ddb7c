package errors

import "fmt"

// ErrorCode classifies playback test failures. The code decides what the
// corrective action is: switch runtime, try a backup source, or contact the
// stream provider.
type ErrorCode string

const (
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeEngineInit        ErrorCode = "ENGINE_INIT_FAILURE"
	ErrCodeNetworkFatal      ErrorCode = "NETWORK_FATAL"
	ErrCodeMediaFatal        ErrorCode = "MEDIA_FATAL"
	ErrCodeSignalingProtocol ErrorCode = "SIGNALING_PROTOCOL_ERROR"
	ErrCodeSignalingClosed   ErrorCode = "SIGNALING_CHANNEL_CLOSED"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// PlaybackError is an application error carrying a classification code and a
// human-readable reason suitable for display.
type PlaybackError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *PlaybackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PlaybackError) Unwrap() error {
	return e.Cause
}

// Reason returns the display string for result records.
func (e *PlaybackError) Reason() string {
	return e.Message
}

// WithContext attaches a diagnostic key/value pair.
func (e *PlaybackError) WithContext(key string, value interface{}) *PlaybackError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a PlaybackError with the given code and message.
func New(code ErrorCode, message string) *PlaybackError {
	return &PlaybackError{Code: code, Message: message}
}

// Newf creates a PlaybackError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *PlaybackError {
	return &PlaybackError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error with a classification code.
func Wrap(err error, code ErrorCode, message string) *PlaybackError {
	return &PlaybackError{Code: code, Message: message, Cause: err}
}

// Unsupported builds the error for a format with no playback path in this
// runtime. The reason must make clear that switching runtimes, not retrying,
// is the fix.
func Unsupported(format string) *PlaybackError {
	return Newf(ErrCodeUnsupportedFormat, "protocol %s unsupported in this runtime", format)
}

// CodeOf extracts the classification code from an error chain, defaulting to
// ErrCodeInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if pe := AsPlaybackError(err); pe != nil {
		return pe.Code
	}
	return ErrCodeInternal
}

// AsPlaybackError walks the error chain looking for a PlaybackError.
func AsPlaybackError(err error) *PlaybackError {
	for err != nil {
		if pe, ok := err.(*PlaybackError); ok {
			return pe
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}
