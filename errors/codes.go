// Package errors provides the structured error type used across the deployer.
// It extends Go's standard error handling with string error codes, retry
// classification and key/value context that is safe to log.
package errors

// ErrorCode represents a specific error condition in a deployer run.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeConflict indicates a resource state conflict that prevents the operation.
	CodeConflict ErrorCode = "CONFLICT"

	// Permission errors.

	// CodeUnauthorized indicates missing or rejected credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeInvalidManifest indicates a Kubernetes manifest is not valid YAML
	// or does not decode into the expected workload type.
	CodeInvalidManifest ErrorCode = "INVALID_MANIFEST"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCancelled indicates the run was cancelled before the operation finished.
	CodeCancelled ErrorCode = "CANCELLED"

	// Execution errors.

	// CodeExecutionFailed indicates an external command exited unsuccessfully.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeBuildFailed indicates an image build failed.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"

	// CodePublishFailed indicates an image push or registry lookup failed.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"

	// CodeVCSFailed indicates a git operation failed.
	CodeVCSFailed ErrorCode = "VCS_FAILED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// String returns the string form of the code.
func (c ErrorCode) String() string {
	return string(c)
}

// retryableCodes lists the codes that are transient by default.
var retryableCodes = map[ErrorCode]bool{
	CodeNetwork:       true,
	CodeTimeout:       true,
	CodePublishFailed: true,
}

// IsRetryableCode reports whether errors with this code are transient by default.
func IsRetryableCode(c ErrorCode) bool {
	return retryableCodes[c]
}
