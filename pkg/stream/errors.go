package stream

import "fmt"

// Stream error codes. These surface on stream.error envelopes and in
// control.nack responses, so they are stable protocol strings.
const (
	CodeUnknownStream     = "UNKNOWN_STREAM"
	CodeDuplicateStream   = "DUPLICATE_STREAM"
	CodeDuplicateSequence = "DUPLICATE_SEQUENCE"
	CodeSequenceGap       = "SEQUENCE_GAP"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeIncomplete        = "INCOMPLETE_STREAM"
	CodeResumeMismatch    = "RESUME_MISMATCH"
	CodeTokenInvalid      = "TOKEN_INVALID"
	CodeRateLimited       = "RATE_LIMITED"
	CodeConflict          = "CONCURRENT_UPDATE"
)

// StreamError is the typed failure of a stream operation.
type StreamError struct {
	Code     string
	StreamID string
	Message  string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %s: %s", e.StreamID, e.Code, e.Message)
}

func streamErr(code, streamID, format string, args ...interface{}) *StreamError {
	return &StreamError{Code: code, StreamID: streamID, Message: fmt.Sprintf(format, args...)}
}
