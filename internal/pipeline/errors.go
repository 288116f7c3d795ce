package pipeline

import "fmt"

// Kind classifies a pipeline failure
type Kind string

const (
	// KindToolUnavailable means the yt-dlp binary could not be located or executed
	KindToolUnavailable Kind = "tool_unavailable"
	// KindResolutionFailed means the source could not be resolved
	// (private, deleted, geo-blocked, malformed)
	KindResolutionFailed Kind = "resolution_failed"
	// KindArtifactNotFound means the tool exited cleanly but no matching
	// output file was produced
	KindArtifactNotFound Kind = "artifact_not_found"
	// KindExecFailed covers extraction/transcode failures and timeouts
	KindExecFailed Kind = "exec_failed"
)

// Error is the structured failure surfaced by all pipeline operations.
// Raw process exit codes never reach callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
