package router

import "fmt"

// Kind classifies a failed command. The values are part of the host contract.
type Kind string

const (
	KindNoBinary       Kind = "NO_BINARY"
	KindProcessDied    Kind = "PROCESS_DIED"
	KindStartFailed    Kind = "START_FAILED"
	KindStartTimeout   Kind = "start_timeout"
	KindStopError      Kind = "STOP_ERROR"
	KindStatusError    Kind = "status_error"
	KindPeerInfoError  Kind = "peerinfo_error"
	KindQRError        Kind = "QR_ERROR"
	KindPeersError     Kind = "peers_error"
	KindUnknownCommand Kind = "UNKNOWN_COMMAND"
	KindBadArgs        Kind = "BAD_ARGS"
	KindUnavailable    Kind = "UNAVAILABLE"
)

// Result is the single outcome of a command
type Result struct {
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Kind    Kind        `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Success wraps a payload
func Success(payload interface{}) Result {
	return Result{OK: true, Payload: payload}
}

// Failure builds a failed result
func Failure(kind Kind, format string, args ...interface{}) Result {
	return Result{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Err returns nil for a success and an *Error otherwise
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &Error{Kind: r.Kind, Message: r.Message}
}

// Error is a failed Result as a Go error
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
