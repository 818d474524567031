// Package errutils provides the error handling vocabulary of wheelhouse.
// It defines sentinel errors for validation and configuration problems,
// wrapping helpers that add context while preserving errors.Is, and the
// tagged Error type used by the synchronization engine to tell a blocked
// upload apart from a failed store mutation or a stale index.
package errutils

import (
	"fmt"
)

// Common error types used throughout the application.
var (
	// ErrValidation is returned when user supplied input fails validation.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrAlreadyExists is returned when a resource that must be unique already exists.
	ErrAlreadyExists = fmt.Errorf("resource already exists")

	// Config errors are related to configuration file operations and validation.
	ErrEmptyConfigPath = fmt.Errorf(
		"config file path cannot be empty") // When config file path is empty

	ErrInvalidConfigPath = fmt.Errorf(
		"invalid config file path") // When provided config file path is invalid

	ErrConfigParse = fmt.Errorf(
		"failed to parse config") // When config file cannot be parsed

	// ErrConfigValidation is returned when configuration values fail validation.
	ErrConfigValidation = fmt.Errorf(
		"invalid configuration") // When config values fail validation

	ErrConfigEncode = fmt.Errorf(
		"failed to encode config") // When config cannot be encoded

	ErrConfigDirectory = fmt.Errorf(
		"failed to create config directory") // When config dir cannot be created

	ErrConfigFileCreate = fmt.Errorf(
		"failed to create config file") // When config file cannot be created

	// ErrConfigFileExists is returned when attempting to create a configuration file that already exists.
	ErrConfigFileExists = fmt.Errorf("configuration file already exists (use --force to overwrite)")

	// ErrConfigFileRename is returned when renaming the temporary config file fails.
	ErrConfigFileRename = fmt.Errorf("failed to rename temporary config file")

	// ErrStoreRootEmpty is returned when no store root is configured.
	ErrStoreRootEmpty = fmt.Errorf("store root cannot be empty")

	// ErrUnknownTransport is returned when the configured transport is neither local nor remote.
	ErrUnknownTransport = fmt.Errorf("unknown store transport")

	// ErrRemoteHostEmpty is returned when the remote transport is selected without a host.
	ErrRemoteHostEmpty = fmt.Errorf("remote transport requires a host")

	// ErrRemoteUserEmpty is returned when the remote transport is selected without a user.
	ErrRemoteUserEmpty = fmt.Errorf("remote transport requires a user")

	// ErrRemoteNoAuth is returned when the remote transport has no way to authenticate.
	ErrRemoteNoAuth = fmt.Errorf("remote transport requires a key file, password or ssh agent")

	// ErrRemoteRootRelative is returned when the remote store root is not an absolute path.
	ErrRemoteRootRelative = fmt.Errorf("remote store root must be an absolute path")

	// ErrBuiltinIndexRemote is returned when the built-in index tool is combined with the remote transport.
	ErrBuiltinIndexRemote = fmt.Errorf("the builtin index tool only works with the local transport")

	// ErrTimeoutNegative is returned when a timeout is set to a negative value.
	ErrTimeoutNegative = fmt.Errorf("timeout cannot be negative")

	// ErrInvalidOutputFormat is returned when an invalid log output format is specified.
	ErrInvalidOutputFormat = fmt.Errorf("invalid output format")

	// ErrInvalidLogLevel is returned when an invalid log level is specified.
	ErrInvalidLogLevel = fmt.Errorf("invalid log level")

	// ErrUnknownConfigKey is returned when an unknown configuration key is encountered.
	ErrUnknownConfigKey = fmt.Errorf("unknown configuration key")

	// ErrFileNotFound is returned when a required file cannot be found.
	ErrFileNotFound = fmt.Errorf("file not found")

	// ErrInvalidPath is returned when a file or directory path is invalid.
	ErrInvalidPath = fmt.Errorf("invalid path")

	// ErrEmptyPaths is returned when source or destination paths are empty in file operations.
	ErrEmptyPaths = fmt.Errorf("source and destination paths cannot be empty")

	// ErrInvalidFilename is returned when a filename does not follow the artifact naming scheme.
	ErrInvalidFilename = fmt.Errorf("invalid artifact filename")

	// ErrInvalidRequirement is returned when a dependency declaration cannot be parsed.
	ErrInvalidRequirement = fmt.Errorf("invalid requirement")

	// ErrMetadataNotFound is returned when an artifact carries no METADATA or PKG-INFO entry.
	ErrMetadataNotFound = fmt.Errorf("metadata not found in artifact")

	// Credential errors.

	// ErrInvalidCredentials is returned when a username/password pair does not verify.
	ErrInvalidCredentials = fmt.Errorf("incorrect username or password")

	// ErrUserNotFound is returned when a user does not exist in the credential store.
	ErrUserNotFound = fmt.Errorf("user not found")

	// ErrUserExists is returned when registering a username that is already taken.
	ErrUserExists = fmt.Errorf("username already registered")

	// ErrInvalidRole is returned for roles other than admin and user.
	ErrInvalidRole = fmt.Errorf("role must be either 'admin' or 'user'")

	// ErrForbidden is returned when an authenticated user lacks the admin role.
	ErrForbidden = fmt.Errorf("forbidden")

	// ErrServerURLEmpty is returned when the API client has no server URL.
	ErrServerURLEmpty = fmt.Errorf("server URL cannot be empty")

	// ErrUnexpectedResponse is returned for API responses the client cannot interpret.
	ErrUnexpectedResponse = fmt.Errorf("unexpected server response")
)

// Wrap wraps an error with additional context.
// This is useful for adding context to errors as they propagate up the call stack.
// If the error is nil, Wrap returns nil.
//
// Example:
//
//	if err := someOperation(); err != nil {
//	    return errutils.Wrap(err, "failed to perform operation")
//	}
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
// If the error is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrUnknownTransportWithName creates an error naming the rejected transport.
func ErrUnknownTransportWithName(name string) error {
	return fmt.Errorf("%w: '%s', must be one of: local, remote", ErrUnknownTransport, name)
}

// ErrInvalidOutputFormatWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidOutputFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidOutputFormat, format)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrUserNotFoundWithName creates an error for when a user with the given name is not found.
func ErrUserNotFoundWithName(name string) error {
	return fmt.Errorf("%w: %s", ErrUserNotFound, name)
}

// ErrInvalidFilenameWithName creates an error naming the rejected artifact filename.
func ErrInvalidFilenameWithName(name string) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilename, name)
}
