// Package thrifterr defines the typed error taxonomy shared by every
// thrifty-builder component. Each kind has its own constructor and
// carries the structured detail a caller (typically the CLI) needs to
// report a useful message and pick an exit code without string
// matching.
package thrifterr

import "fmt"

// Kind identifies one failure mode.
type Kind string

const (
	// KindInvalidBuildConfiguration: missing FROM, empty or malformed identifier.
	KindInvalidBuildConfiguration Kind = "InvalidBuildConfiguration"
	// KindUnmanagedBuild: planner asked to build or permit a non-managed configuration.
	KindUnmanagedBuild Kind = "UnmanagedBuild"
	// KindCircularDependency: parent appears on the current build stack.
	KindCircularDependency Kind = "CircularDependency"
	// KindBuildFailed: the build backend failed for a reason other than the two below.
	KindBuildFailed Kind = "BuildFailed"
	// KindInvalidDockerfile: the build backend could not parse the Dockerfile.
	KindInvalidDockerfile Kind = "InvalidDockerfile"
	// KindBuildStep: a specific build step failed, with an exit code.
	KindBuildStep Kind = "BuildStep"
	// KindUploadError: a registry push stream reported a non-"image does not exist" error.
	KindUploadError Kind = "UploadError"
	// KindImageNotFound: a registry push stream reported "image does not exist".
	KindImageNotFound Kind = "ImageNotFound"
	// KindNamespaceUnknown: a push target's registry namespace could not be derived.
	KindNamespaceUnknown Kind = "NamespaceUnknown"
	// KindUnreadableChecksumStorage: the checksum store could not be read or
	// written (unparsable stdin or file JSON, or a file or Consul backend failure).
	KindUnreadableChecksumStorage Kind = "UnreadableChecksumStorage"
	// KindMissingOptionalDependency: a store backend was selected but its client is unavailable.
	KindMissingOptionalDependency Kind = "MissingOptionalDependency"
	// KindInvalidCliArgument: the CLI was given contradictory or malformed flags.
	KindInvalidCliArgument Kind = "InvalidCliArgument"
)

// Error is the concrete error type returned by every thrifty-builder
// component. Use errors.As to recover it and switch on Kind.
type Error struct {
	Kind    Kind
	Message string
	// Identifier is the image identifier the error concerns, if any.
	Identifier string
	// ExitCode is set for KindBuildStep.
	ExitCode int
	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Identifier != "" {
		msg += fmt.Sprintf(" (%s)", e.Identifier)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying error to errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// InvalidBuildConfiguration reports a malformed configuration, rejected
// at construction time before it ever enters a container.
func InvalidBuildConfiguration(identifier, message string) *Error {
	return &Error{Kind: KindInvalidBuildConfiguration, Identifier: identifier, Message: message}
}

// UnmanagedBuild reports that the planner was asked to build, or permit
// the build of, a configuration it does not manage.
func UnmanagedBuild(identifier string) *Error {
	return &Error{Kind: KindUnmanagedBuild, Identifier: identifier, Message: "not a managed configuration"}
}

// CircularDependency reports that identifier appears on the current
// build stack.
func CircularDependency(identifier string) *Error {
	return &Error{Kind: KindCircularDependency, Identifier: identifier, Message: "circular build dependency"}
}

// BuildFailed wraps a generic build backend failure.
func BuildFailed(identifier string, cause error) *Error {
	return &Error{Kind: KindBuildFailed, Identifier: identifier, Cause: cause}
}

// InvalidDockerfile wraps a Dockerfile parse error from the build backend.
func InvalidDockerfile(identifier string, cause error) *Error {
	return &Error{Kind: KindInvalidDockerfile, Identifier: identifier, Cause: cause}
}

// BuildStep reports a failing build step, with its exit code and output.
func BuildStep(identifier string, exitCode int, message string) *Error {
	return &Error{Kind: KindBuildStep, Identifier: identifier, ExitCode: exitCode, Message: message}
}

// UploadError wraps any push-stream error other than "image does not exist".
func UploadError(message string) *Error {
	return &Error{Kind: KindUploadError, Message: message}
}

// ImageNotFound reports that the named image/tag does not exist to push.
func ImageNotFound(name, tag string) *Error {
	return &Error{Kind: KindImageNotFound, Identifier: fmt.Sprintf("%s:%s", name, tag)}
}

// NamespaceUnknown reports that a registry push target's namespace could
// not be derived from the image name or the registry configuration.
func NamespaceUnknown(name string) *Error {
	return &Error{Kind: KindNamespaceUnknown, Identifier: name}
}

// UnreadableChecksumStorage reports that the checksum store could not be
// read or written: stdin or file JSON that does not parse, or a failure
// of the file or Consul backend (including acquiring the Consul lock).
func UnreadableChecksumStorage(cause error) *Error {
	return &Error{Kind: KindUnreadableChecksumStorage, Cause: cause}
}

// MissingOptionalDependency reports that a store backend was selected
// but its client dependency is not available.
func MissingOptionalDependency(message string) *Error {
	return &Error{Kind: KindMissingOptionalDependency, Message: message}
}

// InvalidCliArgument reports contradictory or malformed CLI flags.
func InvalidCliArgument(message string) *Error {
	return &Error{Kind: KindInvalidCliArgument, Message: message}
}
