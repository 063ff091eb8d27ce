package dispatch

import "fmt"

// Kind classifies a dispatch failure. Every failure of Invoke is one of
// these four kinds; callers branch with errors.As on *Error.
type Kind string

const (
	// KindInvocation means the external tool could not be started, or
	// the call was rejected locally (empty/unknown operation name,
	// non-object arguments).
	KindInvocation Kind = "invocation"

	// KindTimeout means the bounded wait elapsed before the tool exited.
	KindTimeout Kind = "timeout"

	// KindRemote means the tool exited non-zero; message and code pass
	// through from the tool output where available.
	KindRemote Kind = "remote"

	// KindDecode means the tool exited zero but stdout was not valid JSON.
	KindDecode Kind = "decode"
)

// Sentinel codes for failures that have no remote exit status. Remote
// failures carry the process (or reported) exit code instead.
const (
	CodeTimeout    = -1
	CodeInvocation = -2
	CodeDecode     = -3
)

// Error is the normalized failure value returned by Invoke. It is
// always returned as data through the error result, never panicked.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Stderr  string // captured tool stderr, capped
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
}

func invocationErr(format string, args ...any) *Error {
	return &Error{Kind: KindInvocation, Code: CodeInvocation, Message: fmt.Sprintf(format, args...)}
}
