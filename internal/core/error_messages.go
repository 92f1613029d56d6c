package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis. Typed pipeline errors are matched first with
// errors.Is / errors.As; anything else falls through to the pattern table.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Invalid CSV: Rows do not match the header
//	          Patterns: "invalid csv", "wrong number of fields"
//	FILE003 - Unreadable file: File could not be decoded in any tried encoding
//	          Patterns: "codec can't decode". Fallback for *ReadError
//	FILE004 - No file: No file was sent
//	          Patterns: "no file provided"
//	FILE005 - Empty file: The file has no header
//	          Patterns: "no columns to parse"
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - Template not found        Typed: ErrTemplateNotFound
//	TPL002 - Invalid template          Patterns: "invalid template"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - File failed validation    Patterns: "validation failed"
//
// # Generation Errors (GEN001-GEN099)
//
//	GEN001 - Generation failed         Typed: *GenerationFailure
//	GEN002 - No generator configured   Typed: ErrNoGenerator
//	GEN003 - Empty script              Typed: ErrEmptyScript
//	GEN004 - Script not cached         Typed: ErrScriptNotFound
//
// # Execution Errors (EXEC001-EXEC099)
//
//	EXEC001 - Missing entry point      Typed: ErrMissingCallable
//	EXEC002 - No output written        Typed: ErrNoOutput
//	EXEC003 - Output still invalid     Typed: ErrStillInvalid
//	EXEC004 - Script failed            Typed: *ExecutionContractViolation
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key              Patterns: "duplicate key", "unique constraint"
//	DB004 - Connection refused         Patterns: "connection refused"
//	DB005 - Connection reset           Patterns: "connection reset"
//	DB006 - Timeout                    Patterns: "timeout"
//	DB007 - Deadlock                   Patterns: "deadlock"
//	DB008 - Persistence failure        Fallback for *PersistenceFailure
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy               Typed: ErrTooManyRuns
//	RUN002 - Request cancelled         Patterns: "context canceled"
//	RUN003 - Request timeout           Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited             Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application logs
// for the original technical error when users report ERR000.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// typedError matches an error by identity or type.
type typedError struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func as[T error]() func(error) bool {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// typedErrors are checked in order before the pattern table. Sentinels come
// before the wrapper types that carry them.
var typedErrors = []typedError{
	{is(ErrTemplateNotFound), UserMessage{
		Message: "Template not found",
		Action:  "Check the template name or list available templates",
		Code:    "TPL001",
	}},
	{is(ErrTooManyRuns), UserMessage{
		Message: "System is busy processing other files",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}},
	{is(ErrNoGenerator), UserMessage{
		Message: "The file needs correction and no script is cached for its structure",
		Action:  "Configure a correction generator or supply a script",
		Code:    "GEN002",
	}},
	{is(ErrEmptyScript), UserMessage{
		Message: "The generator returned no script",
		Action:  "Try again or supply a script manually",
		Code:    "GEN003",
	}},
	{is(ErrScriptNotFound), UserMessage{
		Message: "No correction script is cached for this file structure",
		Action:  "Run the file once to generate and cache a script",
		Code:    "GEN004",
	}},
	{as[*GenerationFailure](), UserMessage{
		Message: "A correction script could not be generated",
		Action:  "Try again later or supply a script manually",
		Code:    "GEN001",
	}},
	{is(ErrMissingCallable), UserMessage{
		Message: "The correction script does not define " + CorrectionEntryPoint,
		Action:  "Define " + CorrectionEntryPoint + "(input_path, output_path) in the script",
		Code:    "EXEC001",
	}},
	{is(ErrNoOutput), UserMessage{
		Message: "The correction script wrote no output file",
		Action:  "Make sure the script writes to output_path",
		Code:    "EXEC002",
	}},
	{is(ErrStillInvalid), UserMessage{
		Message: "The corrected file still fails validation",
		Action:  "Review the remaining findings and adjust the script",
		Code:    "EXEC003",
	}},
	{as[*ExecutionContractViolation](), UserMessage{
		Message: "The correction script failed",
		Action:  "Review the script error output and fix the script",
		Code:    "EXEC004",
	}},
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	// File errors
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"request body too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"invalid csv", UserMessage{
		Message: "Rows do not match the header",
		Action:  "Ensure every row has the same number of fields as the header",
		Code:    "FILE002",
	}},
	{"wrong number of fields", UserMessage{
		Message: "Rows do not match the header",
		Action:  "Ensure every row has the same number of fields as the header",
		Code:    "FILE002",
	}},
	{"codec can't decode", UserMessage{
		Message: "The file could not be read",
		Action:  "Save the file as UTF-8 or Latin-1 CSV and try again",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was sent",
		Action:  "Attach a CSV file in the \"file\" field",
		Code:    "FILE004",
	}},
	{"no columns to parse", UserMessage{
		Message: "The file is empty",
		Action:  "Upload a CSV file with a header row",
		Code:    "FILE005",
	}},

	// Template and validation
	{"invalid template", UserMessage{
		Message: "The template definition is invalid",
		Action:  "Fix the template file and reload",
		Code:    "TPL002",
	}},
	{"validation failed", UserMessage{
		Message: "The file failed validation",
		Action:  "Review the report findings",
		Code:    "VAL001",
	}},

	// Database
	{"duplicate key", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Check for duplicate entries",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Check for duplicate entries",
		Code:    "DB001",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},

	// Run lifecycle. These precede "timeout" so a cancelled context is not
	// reported as a database timeout.
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "RUN002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "RUN003",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},

	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// readMessage is used for *ReadError when no pattern matches the underlying error.
var readMessage = UserMessage{
	Message: "The file could not be read",
	Action:  "Save the file as UTF-8 or Latin-1 CSV and try again",
	Code:    "FILE003",
}

// persistenceMessage is used for *PersistenceFailure when no pattern matches
// the underlying error.
var persistenceMessage = UserMessage{
	Message: "Results could not be saved",
	Action:  "Please try again or contact support",
	Code:    "DB008",
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors win over patterns, except that *ReadError and
// *PersistenceFailure first try the patterns of their underlying error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, te := range typedErrors {
		if te.match(err) {
			return te.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	var re *ReadError
	if errors.As(err, &re) {
		return readMessage
	}
	var pf *PersistenceFailure
	if errors.As(err, &pf) {
		return persistenceMessage
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
